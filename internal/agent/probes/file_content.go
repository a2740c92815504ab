package probes

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/intar-dev/intar-cli/internal/probespec"
)

// evalFileContent checks path's bytes for a substring and/or a regex match.
// Both checks apply when both are set; binary files are read as bytes and
// the regex is matched against a lossy string view.
func evalFileContent(spec *probespec.FileContentSpec) (bool, string, error) {
	data, err := os.ReadFile(spec.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, "missing", nil
		}
		return false, fmt.Sprintf("reading %s: %v", spec.Path, err), nil
	}

	if spec.Contains != nil {
		if !strings.Contains(string(data), *spec.Contains) {
			return false, fmt.Sprintf("%s does not contain %q", spec.Path, *spec.Contains), nil
		}
	}
	if spec.Regex != nil {
		re, err := regexp.Compile(*spec.Regex)
		if err != nil {
			return false, fmt.Sprintf("invalid regex %q: %v", *spec.Regex, err), nil
		}
		if !re.Match(data) {
			return false, fmt.Sprintf("%s does not match /%s/", spec.Path, *spec.Regex), nil
		}
	}

	return true, "ok", nil
}
