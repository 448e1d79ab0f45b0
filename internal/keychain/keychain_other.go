//go:build !darwin

package keychain

// NewSystemBackend returns a FileBackend in fallbackDir on non-darwin
// platforms, where no system Keychain is available. Access groups do not
// apply to files.
func NewSystemBackend(_, _, fallbackDir string) Backend {
	return NewFileBackend(fallbackDir)
}
