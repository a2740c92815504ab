package probes

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/intar-dev/intar-cli/internal/probespec"
)

// evalService invokes systemctl is-active/is-enabled and maps the result to
// the requested state.
func evalService(ctx context.Context, spec *probespec.ServiceSpec) (bool, string, error) {
	switch spec.State {
	case probespec.ServiceRunning, probespec.ServiceStopped:
		return checkSystemctl(ctx, "is-active", spec.Unit, spec.State == probespec.ServiceRunning, "active")
	case probespec.ServiceEnabled, probespec.ServiceDisabled:
		return checkSystemctl(ctx, "is-enabled", spec.Unit, spec.State == probespec.ServiceEnabled, "enabled")
	default:
		return false, fmt.Sprintf("unknown service state %q", spec.State), nil
	}
}

func checkSystemctl(ctx context.Context, subcmd, unit string, wantMatch bool, matchWord string) (bool, string, error) {
	cmd := exec.CommandContext(ctx, "systemctl", subcmd, unit)
	out, err := cmd.Output()
	status := strings.TrimSpace(string(out))

	if err != nil {
		if _, ok := err.(*exec.ExitError); !ok {
			return false, fmt.Sprintf("systemctl %s %s: %v", subcmd, unit, err), nil
		}
	}

	isMatch := status == matchWord
	if isMatch == wantMatch {
		return true, "ok", nil
	}
	return false, fmt.Sprintf("%s %s reports %q", unit, subcmd, status), nil
}
