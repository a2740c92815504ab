package probes

import (
	"fmt"
	"os"

	"github.com/intar-dev/intar-cli/internal/probespec"
)

// evalFileExists stats path (following symlinks) and compares presence
// against the spec's expectation.
func evalFileExists(spec *probespec.FileExistsSpec) (bool, string, error) {
	_, err := os.Stat(spec.Path)
	exists := err == nil
	if err != nil && !os.IsNotExist(err) {
		return false, fmt.Sprintf("stat %s: %v", spec.Path, err), nil
	}

	if exists == spec.Exists {
		return true, "ok", nil
	}
	if spec.Exists {
		return false, fmt.Sprintf("%s does not exist", spec.Path), nil
	}
	return false, fmt.Sprintf("%s exists", spec.Path), nil
}
