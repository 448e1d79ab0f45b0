package version

import (
	"strconv"
	"strings"
	"testing"
)

func TestNumberMatchesString(t *testing.T) {
	prefix := strconv.FormatFloat(Number, 'f', 1, 64)
	if !strings.HasPrefix(String, prefix) {
		t.Errorf("String %q does not start with Number %s", String, prefix)
	}
}
