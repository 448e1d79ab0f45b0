// Package version stamps the securestore release into the binary.
package version

const (
	// Number is the numeric project version.
	Number float64 = 1.0

	// String is the human-readable release version.
	String = "1.0.0"
)
