package agent

import (
	"context"
	"encoding/json"
	"time"

	"github.com/intar-dev/intar-cli/internal/agent/probes"
	"github.com/intar-dev/intar-cli/internal/agentclient"
	"github.com/intar-dev/intar-cli/internal/probespec"
)

// evalTimeout is the hard ceiling every probe evaluation is wrapped in,
// enforced once here rather than duplicated per evaluator (spec.md §4.2).
const evalTimeout = 30 * time.Second

// Dispatch routes one decoded Request to its handler and returns the
// Response to send back. It never short-circuits a check_all batch: one
// probe's failure does not stop the rest from being evaluated.
func Dispatch(req agentclient.Request) agentclient.Response {
	switch req.Type {
	case "ping":
		return agentclient.Response{Type: "pong", UptimeSecs: Uptime()}

	case "check_probe":
		result := evalOne(req.ProbeID, req.Spec)
		return agentclient.Response{
			Type:    "probe_result",
			ProbeID: result.ID,
			Passed:  result.Passed,
			Message: result.Message,
		}

	case "check_all":
		results := make([]agentclient.ProbeResult, len(req.Probes))
		for i, p := range req.Probes {
			results[i] = evalOne(p.ID, p.Spec)
		}
		return agentclient.Response{Type: "all_results", Results: results}

	default:
		return agentclient.Response{Type: "error", Message: "unknown request type: " + req.Type}
	}
}

// evalOne validates and evaluates a single probe, bounding its wall time at
// evalTimeout regardless of which evaluator runs.
func evalOne(id string, rawSpec json.RawMessage) agentclient.ProbeResult {
	spec, err := probespec.Parse(rawSpec)
	if err != nil {
		return agentclient.ProbeResult{ID: id, Passed: false, Message: "invalid probe spec: " + err.Error()}
	}

	ctx, cancel := context.WithTimeout(context.Background(), evalTimeout)
	defer cancel()

	type outcome struct {
		passed  bool
		message string
	}
	done := make(chan outcome, 1)
	go func() {
		passed, message, err := probes.Evaluate(ctx, spec)
		if err != nil {
			done <- outcome{passed: false, message: err.Error()}
			return
		}
		done <- outcome{passed: passed, message: message}
	}()

	select {
	case o := <-done:
		return agentclient.ProbeResult{ID: id, Passed: o.passed, Message: o.message}
	case <-ctx.Done():
		return agentclient.ProbeResult{ID: id, Passed: false, Message: "timeout"}
	}
}
