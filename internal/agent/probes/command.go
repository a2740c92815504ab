package probes

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/intar-dev/intar-cli/internal/probespec"
)

// evalCommand runs cmd under /bin/sh -c and checks exit status (and
// optionally stdout content).
func evalCommand(ctx context.Context, spec *probespec.CommandSpec) (bool, string, error) {
	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", spec.Cmd)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	err := cmd.Run()
	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return false, fmt.Sprintf("running command: %v", err), nil
		}
	}

	if exitCode != spec.ExitCode {
		return false, fmt.Sprintf("exit code %d, want %d", exitCode, spec.ExitCode), nil
	}
	if spec.StdoutContains != nil && !strings.Contains(stdout.String(), *spec.StdoutContains) {
		return false, fmt.Sprintf("stdout does not contain %q", *spec.StdoutContains), nil
	}
	return true, "ok", nil
}
