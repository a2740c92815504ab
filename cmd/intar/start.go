package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"

	"github.com/intar-dev/intar-cli/internal/orchestrator"
	"github.com/intar-dev/intar-cli/internal/scenario"
	"github.com/intar-dev/intar-cli/internal/ui"
)

var (
	startCmd        = app.Command("start", "Parse a scenario and run it: boot VMs, provision, probe until interrupted.")
	startScenario   = startCmd.Arg("scenario", "path to the .hcl scenario file").Required().ExistingFile()
	startVerbose    = startCmd.Flag("verbose", "enable debug logging").Bool()
	startImageCache = startCmd.Flag("image-cache", "directory already-downloaded base images are staged in").String()
)

func runStart() error {
	log := newLogger(*startVerbose)
	defer log.Sync() //nolint:errcheck

	arch, err := hostArch()
	if err != nil {
		return errors.Wrap(orchestrator.ErrInternal, err.Error())
	}

	raw, err := os.ReadFile(*startScenario)
	if err != nil {
		return errors.Wrap(orchestrator.ErrScenarioInvalid, err.Error())
	}
	s, err := scenario.Parse(raw, *startScenario, arch)
	if err != nil {
		return errors.Wrap(orchestrator.ErrScenarioInvalid, err.Error())
	}

	run, err := scenario.NewRun(s, *startScenario, time.Now())
	if err != nil {
		return errors.Wrap(orchestrator.ErrInternal, err.Error())
	}
	fmt.Printf("run %s at %s\n", run.ID, run.Dir)

	cacheDir, err := imageCacheDir(*startImageCache)
	if err != nil {
		return errors.Wrap(orchestrator.ErrInternal, err.Error())
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	orch := orchestrator.New(run, arch, cacheDir, log)

	go ui.Render(os.Stdout, orch.Probes())
	go renderEvents(orch.Events())

	return orch.Run(ctx)
}

// renderEvents prints state-machine transitions alongside ui.Render's
// probe-result stream.
func renderEvents(events <-chan orchestrator.Event) {
	for ev := range events {
		ts := time.Now().Format("15:04:05")
		if ev.VMName == "" {
			fmt.Printf("[%s] %-14s %s\n", ts, ev.State, ev.Message)
		} else {
			fmt.Printf("[%s] %-14s %-16s %s\n", ts, ev.State, ev.VMName, ev.Message)
		}
		if ev.Err != nil {
			fmt.Printf("[%s] %-14s %-16s error: %v\n", ts, ev.State, ev.VMName, ev.Err)
		}
	}
}
