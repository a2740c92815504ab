// Package orchestrator drives one scenario run end to end: image
// verification, parallel VM boot, per-VM agent/SSH handshake, boot-phase
// probes, steps, and the post-phase probe loop, tearing everything down on
// cancellation.
package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/intar-dev/intar-cli/internal/agentclient"
	"github.com/intar-dev/intar-cli/internal/cloudinit"
	"github.com/intar-dev/intar-cli/internal/imagecache"
	"github.com/intar-dev/intar-cli/internal/scenario"
	"github.com/intar-dev/intar-cli/internal/scheduler"
	"github.com/intar-dev/intar-cli/internal/ssh"
	"github.com/intar-dev/intar-cli/internal/steps"
	"github.com/intar-dev/intar-cli/internal/vm"
)

// agentHandshakeTimeout bounds how long a single VM's SSH+agent channels
// have to come up before the run fails (spec.md §4.7).
const agentHandshakeTimeout = 10 * time.Minute

// vmHandle bundles one VM's runtime state across the pipeline's phases.
type vmHandle struct {
	def        scenario.VMDefinition
	supervisor *vm.Supervisor
	session    ssh.VMSession
	agent      *agentclient.Client
	scheduler  *scheduler.Scheduler
}

// Orchestrator owns one scenario.Run's lifecycle.
type Orchestrator struct {
	run      *scenario.Run
	hostArch scenario.Arch
	log      *zap.Logger

	imageCacheDir string
	keyPair       *ssh.KeyPair

	resultsFile *os.File
	resultsSink *scheduler.ResultsWriter

	events chan Event
	probes chan scheduler.ProbeResult
	vms    map[string]*vmHandle
}

// New builds an Orchestrator for run. imageCacheDir is where already-
// downloaded base images are expected to live (download itself is out of
// scope; this package only verifies and boots from what's already there).
func New(run *scenario.Run, hostArch scenario.Arch, imageCacheDir string, log *zap.Logger) *Orchestrator {
	return &Orchestrator{
		run:           run,
		hostArch:      hostArch,
		log:           log,
		imageCacheDir: imageCacheDir,
		events:        make(chan Event, 256),
		probes:        make(chan scheduler.ProbeResult, 256),
		vms:           make(map[string]*vmHandle),
	}
}

// Events returns the run's lifecycle event stream. Closed when Run returns.
func (o *Orchestrator) Events() <-chan Event {
	return o.events
}

// Probes returns the fan-in of every VM's probe results, suitable for
// ui.Render. Not closed on return: the per-VM Scheduler.Subscribe channels
// it forwards from are themselves never closed, so callers should stop
// reading once Run returns rather than ranging to exhaustion.
func (o *Orchestrator) Probes() <-chan scheduler.ProbeResult {
	return o.probes
}

func (o *Orchestrator) emit(state State, vmName, message string, err error) {
	select {
	case o.events <- Event{State: state, VMName: vmName, Message: message, Err: err}:
	default:
		o.log.Warn("dropping event, subscriber too slow", zap.String("vm", vmName))
	}
}

// Run drives the full state machine, returning the run's terminal error (nil
// on success). Cancelling ctx moves the run to TearingDown regardless of
// which phase it's in.
func (o *Orchestrator) Run(ctx context.Context) (err error) {
	defer close(o.events)

	for _, vmDef := range o.run.Scenario.VMs {
		o.vms[vmDef.Name] = &vmHandle{def: vmDef}
	}

	if err := o.prepare(ctx); err != nil {
		o.emit(StateFailed, "", "prepare failed", err)
		return err
	}
	o.emit(StatePrepared, "", "images verified, run directory ready", nil)

	resultsFile, err := os.OpenFile(o.run.ResultsPath(), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		err = errors.Wrap(ErrInternal, err.Error())
		o.emit(StateFailed, "", "opening results file failed", err)
		return err
	}
	o.resultsFile = resultsFile
	o.resultsSink = scheduler.NewResultsWriter(resultsFile)

	defer func() {
		o.emit(StateTearingDown, "", "tearing down", nil)
		o.tearDown(context.Background())
	}()

	if err := o.bootAll(ctx); err != nil {
		return errors.Wrap(ErrBootFailure, err.Error())
	}
	o.emit(StateBooting, "", "all vms booted", nil)

	if err := o.handshakeAll(ctx); err != nil {
		return errors.Wrap(ErrBootFailure, err.Error())
	}
	o.emit(StateAgentHandshake, "", "all channels live", nil)

	o.runBootProbes(ctx) // boot-phase probe failures don't abort the run
	o.emit(StateBootProbes, "", "boot probes evaluated", nil)

	// A step failure (or a VM crashing mid-steps) is recoverable and
	// VM-local (§4.7, §7 StepFailure): it never aborts the run, and
	// PostProbes always starts for every VM afterward so the user can
	// diagnose via probes.
	o.runSteps(ctx)
	o.emit(StateSteps, "", "steps complete", nil)

	o.startPostProbes(ctx)
	o.emit(StateRunning, "", "post-phase probes running", nil)

	<-ctx.Done()
	return nil
}

// prepare verifies every declared image's digest against the host's
// architecture-selected source. It does not create the run directory tree
// (scenario.NewRun does that before the Orchestrator is constructed); it
// only verifies bytes on disk.
func (o *Orchestrator) prepare(ctx context.Context) error {
	for id, img := range o.run.Scenario.Images {
		src, ok := img.SourceFor(o.hostArch)
		if !ok {
			return errors.Wrapf(ErrImageUnavailable, "image %q has no source for %s", id, o.hostArch)
		}
		path := o.baseImagePath(img, src)
		if _, err := os.Stat(path); err != nil {
			return errors.Wrapf(ErrImageUnavailable, "image %q: %v (expected at %s)", id, err, path)
		}
		if err := imagecache.Verify(path, src.Hash); err != nil {
			return errors.Wrapf(ErrImageUnavailable, "image %q: %v", id, err)
		}
	}
	return nil
}

// baseImagePath is the on-disk convention for a cached base image: the
// download/caching mechanism itself is out of scope, but something has to
// place files there for the scenario to boot from.
func (o *Orchestrator) baseImagePath(img scenario.Image, src scenario.Source) string {
	ext := filepath.Ext(src.URL)
	if ext == "" {
		ext = ".qcow2"
	}
	return filepath.Join(o.imageCacheDir, fmt.Sprintf("%s-%s%s", img.ID, src.Arch, ext))
}

// bootAll boots every VM's Supervisor in parallel, building its cloud-init
// seed first.
func (o *Orchestrator) bootAll(ctx context.Context) error {
	keyPair, err := ssh.GenerateKeyPair()
	if err != nil {
		return errors.Wrap(err, "generating run ssh identity")
	}
	o.keyPair = keyPair
	if err := os.WriteFile(o.run.SSHPrivateKeyPath(), keyPair.PrivateKeyPEM, 0o600); err != nil {
		return errors.Wrap(err, "persisting run ssh identity")
	}

	g, gctx := errgroup.WithContext(ctx)
	for name, h := range o.vms {
		name, h := name, h
		g.Go(func() error {
			if err := o.bootOne(gctx, h); err != nil {
				return errors.Wrapf(err, "vm %s", name)
			}
			return nil
		})
	}
	return g.Wait()
}

func (o *Orchestrator) bootOne(ctx context.Context, h *vmHandle) error {
	img := o.run.Scenario.Images[h.def.Image]
	src, _ := img.SourceFor(o.hostArch)

	seedPath, err := cloudinit.Build(ctx, cloudinit.Inputs{
		Run:              o.run,
		HostArch:         o.hostArch,
		AuthorizedSSHKey: o.keyPair.PublicAuthorizedKey,
	}, h.def)
	if err != nil {
		return errors.Wrap(err, "building cloud-init seed")
	}

	sup := vm.New(vm.Config{
		VMName:      h.def.Name,
		CPU:         h.def.CPU,
		MemoryMiB:   h.def.MemoryMiB,
		DiskGiB:     h.def.DiskGiB,
		BaseImage:   o.baseImagePath(img, src),
		SeedImage:   seedPath,
		OverlayDisk: o.run.DiskImagePath(h.def.Name),
		SerialSock:  o.run.SerialSocketPath(h.def.Name),
		SSHPortFile: o.run.SSHPortFilePath(h.def.Name),
		ConsoleLog:  o.run.ConsoleLogPath(h.def.Name),
		Accel:       vm.DetectAccelerator(),
	}, o.log)
	h.supervisor = sup

	if err := sup.Boot(ctx); err != nil {
		return err
	}
	return sup.WaitDiskReady(ctx)
}

// handshakeAll waits, per VM and in parallel, for both the SSH channel and
// the agent channel to become live.
func (o *Orchestrator) handshakeAll(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for name, h := range o.vms {
		name, h := name, h
		g.Go(func() error {
			deadline, cancel := context.WithTimeout(gctx, agentHandshakeTimeout)
			defer cancel()
			if err := o.handshakeOne(deadline, h); err != nil {
				return errors.Wrapf(err, "vm %s", name)
			}
			return nil
		})
	}
	return g.Wait()
}

func (o *Orchestrator) handshakeOne(ctx context.Context, h *vmHandle) error {
	session, err := ssh.NewVMSession(ctx, ssh.SessionConfig{
		VMName:        h.def.Name,
		SSHPort:       h.supervisor.SSHPort(),
		PrivateKeyPEM: o.keyPair.PrivateKeyPEM,
	})
	if err != nil {
		return errors.Wrap(err, "ssh handshake")
	}
	h.session = session

	client := agentclient.New(o.run.SerialSocketPath(h.def.Name))
	for {
		if _, err := client.Ping(ctx); err == nil {
			break
		}
		select {
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "agent handshake")
		case <-time.After(500 * time.Millisecond):
		}
	}
	probes, err := o.run.Scenario.ProbesForVM(h.def)
	if err != nil {
		return errors.Wrap(err, "resolving probes")
	}
	h.agent = client
	h.scheduler = scheduler.New(h.def.Name, client, probes, o.log)
	h.scheduler.SetResultsSink(o.resultsSink)
	return nil
}

func (o *Orchestrator) runBootProbes(ctx context.Context) {
	for _, h := range o.vms {
		go o.forwardProbes(h.scheduler.Subscribe())
	}

	var g errgroup.Group
	for name, h := range o.vms {
		name, h := name, h
		g.Go(func() error {
			if err := h.scheduler.RunBootPhase(ctx); err != nil {
				o.emit(StateBootProbes, name, "boot probe evaluation error", err)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// forwardProbes fans one VM's Subscribe channel into the orchestrator's
// combined Probes() stream, dropping on backpressure rather than blocking
// the scheduler that's feeding it.
func (o *Orchestrator) forwardProbes(sub <-chan scheduler.ProbeResult) {
	for r := range sub {
		select {
		case o.probes <- r:
		default:
			o.log.Warn("dropping probe result, Probes() consumer too slow", zap.String("vm", r.VMName))
		}
	}
}

// runSteps runs every VM's step pipeline in parallel, each against its own
// cancellation scope (§4.4/§5: one VM's failure must never affect another's
// in-flight work, which a shared errgroup context would do).
func (o *Orchestrator) runSteps(ctx context.Context) {
	var wg sync.WaitGroup
	for name, h := range o.vms {
		name, h := name, h
		wg.Add(1)
		go func() {
			defer wg.Done()
			o.runStepsForVM(ctx, name, h)
		}()
	}
	wg.Wait()
}

// runStepsForVM runs one VM's steps in order, stopping at the first failure
// or at the VM crashing, whichever comes first. Either outcome is recorded
// as an event and skips only this VM's remaining steps; it is never
// returned as a run-fatal error.
func (o *Orchestrator) runStepsForVM(ctx context.Context, name string, h *vmHandle) {
	vmCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-h.supervisor.Done():
			cancel()
		case <-vmCtx.Done():
		}
	}()

	runner := steps.New(name, h.session, o.log)
	for _, step := range h.def.Steps {
		select {
		case <-h.supervisor.Done():
			o.emit(StateSteps, name, "vm crashed, skipping remaining steps", errors.Wrap(ErrStepFailure, crashMessage(h.supervisor)))
			return
		default:
		}
		if err := runner.Run(vmCtx, step); err != nil {
			o.emit(StateSteps, name, "step "+step.Name+" failed, skipping remaining steps", errors.Wrap(ErrStepFailure, err.Error()))
			return
		}
		o.emit(StateSteps, name, "step "+step.Name+" complete", nil)
	}
}

// startPostProbes starts each VM's post-phase ticker loop, each against its
// own cancellation scope tied to that VM's Supervisor so a crash stops only
// that VM's probing (§4.4). Results continue flowing through the Subscribe
// channel already registered in runBootProbes and forwarded to Probes().
func (o *Orchestrator) startPostProbes(ctx context.Context) {
	for name, h := range o.vms {
		name, h := name, h
		go func() {
			vmCtx, cancel := context.WithCancel(ctx)
			defer cancel()
			go func() {
				select {
				case <-h.supervisor.Done():
					cancel()
				case <-vmCtx.Done():
				}
			}()

			h.scheduler.RunPostPhase(vmCtx)
			if h.supervisor.State() == vm.StateCrashed {
				o.emit(StateRunning, name, "vm crashed, post-phase probes stopped", errors.Wrap(ErrTransportError, crashMessage(h.supervisor)))
			}
		}()
	}
}

// crashMessage returns the Supervisor's recorded crash error text, falling
// back to a generic message if Boot/monitor never recorded one.
func crashMessage(sup *vm.Supervisor) string {
	if err := sup.CrashErr(); err != nil {
		return err.Error()
	}
	return "vm process exited unexpectedly"
}

// tearDown shuts down every VM in parallel. Console/SSH logs are already
// resident under the run's log directory (written there directly as the
// run progressed), so there is nothing left to snapshot once sockets close.
func (o *Orchestrator) tearDown(ctx context.Context) {
	var g errgroup.Group
	for name, h := range o.vms {
		name, h := name, h
		g.Go(func() error {
			if h.agent != nil {
				_ = h.agent.Close()
			}
			if h.session != nil {
				_ = h.session.Close()
			}
			if h.supervisor == nil {
				return nil
			}
			if err := h.supervisor.Shutdown(ctx, true); err != nil {
				o.emit(StateTearingDown, name, "shutdown error", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	if o.resultsFile != nil {
		_ = o.resultsFile.Close()
	}
}
