// Package probes implements the guest-side evaluators for every probe kind
// defined in internal/probespec. Each evaluator returns (passed, message,
// err): err is reserved for "the evaluator itself could not run" (e.g. a
// malformed spec gap); ordinary pass/fail outcomes always return a nil err
// with an explanatory message.
package probes

import (
	"context"
	"fmt"

	"github.com/intar-dev/intar-cli/internal/probespec"
)

// Evaluate dispatches spec to its kind-specific evaluator.
func Evaluate(ctx context.Context, spec probespec.ProbeSpec) (passed bool, message string, err error) {
	switch spec.Kind {
	case probespec.KindFileContent:
		return evalFileContent(spec.FileContent)
	case probespec.KindFileExists:
		return evalFileExists(spec.FileExists)
	case probespec.KindService:
		return evalService(ctx, spec.Service)
	case probespec.KindPort:
		return evalPort(spec.Port)
	case probespec.KindTCPPing:
		return evalTCPPing(spec.TCPPing)
	case probespec.KindK8sNodesReady:
		return evalK8sNodesReady(ctx, spec.K8sNodesReady)
	case probespec.KindK8sEndpointsNonEmpty:
		return evalK8sEndpointsNonEmpty(ctx, spec.K8sEndpoints)
	case probespec.KindCommand:
		return evalCommand(ctx, spec.Command)
	case probespec.KindHTTP:
		return evalHTTP(ctx, spec.HTTP)
	default:
		return false, "", fmt.Errorf("no evaluator for probe kind %q", spec.Kind)
	}
}
