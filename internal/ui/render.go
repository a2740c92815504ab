// Package ui renders ProbeResult events to the operator. A full terminal UI
// is out of scope (spec.md §1); Render is the narrow seam the orchestrator
// drives, with a minimal line-printing implementation sufficient to exercise
// the rest of the system end to end.
package ui

import (
	"fmt"
	"io"

	"github.com/intar-dev/intar-cli/internal/scheduler"
)

// Render consumes results until the channel closes, printing one line per
// observed change. Suitable as a placeholder for a richer terminal
// renderer driven off the same channel shape.
func Render(w io.Writer, results <-chan scheduler.ProbeResult) {
	for r := range results {
		status := "PASS"
		if !r.Passed {
			status = "FAIL"
		}
		fmt.Fprintf(w, "[%s] %-20s %-20s %s — %s\n",
			r.EvaluatedAt.Format("15:04:05"), r.VMName, r.ProbeID, status, r.Message)
	}
}
