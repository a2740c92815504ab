package orchestrator

import "github.com/pkg/errors"

// The error taxonomy from spec.md §7, used to pick a CLI exit code without
// the CLI needing to know orchestrator internals.
var (
	ErrScenarioInvalid  = errors.New("scenario invalid")
	ErrImageUnavailable = errors.New("image unavailable")
	ErrBootFailure      = errors.New("vm boot failure")
	ErrStepFailure      = errors.New("step failure")
	ErrTransportError   = errors.New("transport error")
	ErrInternal         = errors.New("internal error")
)

// ExitCode maps a run's terminal error to the documented process exit code:
// 0 success, 1 scenario/image/config problems, 2 infrastructure failures
// (boot/step/transport), 3 anything unanticipated.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrScenarioInvalid), errors.Is(err, ErrImageUnavailable):
		return 1
	case errors.Is(err, ErrBootFailure), errors.Is(err, ErrStepFailure), errors.Is(err, ErrTransportError):
		return 2
	default:
		return 3
	}
}
