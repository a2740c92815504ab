// Package vm owns the QEMU-family hypervisor subprocess backing one VM: its
// overlay disk, its two sockets (virtio-serial and host-forwarded SSH), and
// its lifecycle from Boot through Shutdown. Modeled on the single-owner
// VirtualMachine pattern (os/exec.Cmd + a Done/Error channel pair, guarded by
// a mutex) used by hypervisor-fronting worker engines elsewhere in the
// ecosystem.
package vm

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/intar-dev/intar-cli/internal/scenario"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// State is the Supervisor's lifecycle state.
type State int32

const (
	StateNotStarted State = iota
	StateBooting
	StateRunning
	StateShuttingDown
	StateStopped
	StateCrashed
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateBooting:
		return "booting"
	case StateRunning:
		return "running"
	case StateShuttingDown:
		return "shutting_down"
	case StateStopped:
		return "stopped"
	case StateCrashed:
		return "crashed"
	default:
		return "unknown"
	}
}

// LogKind selects which guest-side log Logs returns a path for.
type LogKind string

const (
	LogConsole LogKind = "console"
	LogSSH     LogKind = "ssh"
	LogSystem  LogKind = "system"
)

// Config is the fixed, boot-time configuration for one VM's Supervisor.
type Config struct {
	VMName      string
	CPU         int
	MemoryMiB   int
	DiskGiB     int
	BaseImage   string // path to the scenario's source image for this VM's arch
	SeedImage   string // path to the cloud-init seed.img
	OverlayDisk string // <run_dir>/<vm>/disk.qcow2
	SerialSock  string // <run_dir>/<vm>-serial.sock
	SSHPortFile string // <run_dir>/<vm>-ssh.port
	ConsoleLog  string // <run_dir>/logs/<vm>/console.log
	Accel       Accelerator
}

// Accelerator is the host hardware-acceleration backend to request, feature-
// detected by the caller (KVM on Linux, HVF on macOS, WHPX on Windows, tcg
// as the universal fallback).
type Accelerator string

const (
	AccelKVM  Accelerator = "kvm"
	AccelHVF  Accelerator = "hvf"
	AccelWHPX Accelerator = "whpx"
	AccelTCG  Accelerator = "tcg"
)

// DetectAccelerator picks the best accelerator for the current host. Actual
// availability probing (e.g. /dev/kvm permissions) is left to Boot, which
// falls back to tcg if the chosen accelerator fails to initialize.
func DetectAccelerator() Accelerator {
	switch runtime.GOOS {
	case "linux":
		if _, err := os.Stat("/dev/kvm"); err == nil {
			return AccelKVM
		}
	case "darwin":
		return AccelHVF
	case "windows":
		return AccelWHPX
	}
	return AccelTCG
}

// Supervisor owns exactly one QEMU process, one overlay disk, and this VM's
// two sockets. All mutable fields are guarded by mu except state, which is
// accessed atomically so State() never blocks on a boot/shutdown in
// progress.
type Supervisor struct {
	cfg Config
	log *zap.Logger

	mu       sync.Mutex
	cmd      *exec.Cmd
	sshPort  int
	qmpSock  string
	crashErr error

	state int32 // State, accessed via atomic

	done chan struct{} // closed when the QEMU process has exited
}

// New constructs a Supervisor for one VM. Boot must be called exactly once.
func New(cfg Config, log *zap.Logger) *Supervisor {
	return &Supervisor{
		cfg:   cfg,
		log:   log.With(zap.String("vm", cfg.VMName)),
		done:  make(chan struct{}),
		state: int32(StateNotStarted),
	}
}

// State returns the Supervisor's current lifecycle state.
func (s *Supervisor) State() State {
	return State(atomic.LoadInt32(&s.state))
}

func (s *Supervisor) setState(st State) {
	atomic.StoreInt32(&s.state, int32(st))
}

// Done is closed when the QEMU process exits, whether cleanly or by crash.
func (s *Supervisor) Done() <-chan struct{} {
	return s.done
}

// CrashErr returns the error recorded on unexpected QEMU exit, if any. Only
// meaningful after Done is closed and State is crashed.
func (s *Supervisor) CrashErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.crashErr
}

// Boot materializes the overlay disk, builds the QEMU argv, starts the
// process and begins monitoring it. It returns once the process has been
// spawned; callers must call WaitDiskReady separately to know when SSH is
// reachable.
func (s *Supervisor) Boot(ctx context.Context) error {
	s.setState(StateBooting)

	if err := s.createOverlayDisk(ctx); err != nil {
		s.setState(StateCrashed)
		return errors.Wrapf(err, "vm %s: creating overlay disk", s.cfg.VMName)
	}

	sshPort, err := freeTCPPort()
	if err != nil {
		s.setState(StateCrashed)
		return errors.Wrapf(err, "vm %s: allocating ssh port", s.cfg.VMName)
	}
	s.mu.Lock()
	s.sshPort = sshPort
	s.qmpSock = s.cfg.SerialSock + ".qmp"
	s.mu.Unlock()

	if err := os.WriteFile(s.cfg.SSHPortFile, []byte(fmt.Sprintf("%d\n", sshPort)), 0o644); err != nil {
		s.setState(StateCrashed)
		return errors.Wrapf(err, "vm %s: writing ssh port file", s.cfg.VMName)
	}

	consoleLog, err := os.OpenFile(s.cfg.ConsoleLog, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		s.setState(StateCrashed)
		return errors.Wrapf(err, "vm %s: opening console log", s.cfg.VMName)
	}

	argv := s.buildArgv(sshPort)
	// Not bound to ctx: the process outlives Boot and is stopped by Shutdown.
	cmd := exec.Command(qemuBinary(), argv...)

	stdout, stdoutW := io.Pipe()
	stderr, stderrW := io.Pipe()
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	s.mu.Lock()
	s.cmd = cmd
	s.mu.Unlock()

	if err := cmd.Start(); err != nil {
		consoleLog.Close()
		s.setState(StateCrashed)
		return errors.Wrapf(err, "vm %s: starting hypervisor", s.cfg.VMName)
	}

	go forwardToLog(stdout, consoleLog, s.log)
	go forwardToLog(stderr, consoleLog, s.log)

	go func() {
		waitErr := cmd.Wait()
		stdoutW.Close()
		stderrW.Close()
		consoleLog.Close()

		s.mu.Lock()
		wasShuttingDown := s.State() == StateShuttingDown
		if !wasShuttingDown {
			s.crashErr = errors.Wrap(waitErr, "hypervisor exited unexpectedly")
		}
		s.mu.Unlock()

		if wasShuttingDown {
			s.setState(StateStopped)
		} else {
			s.setState(StateCrashed)
			s.log.Error("hypervisor exited unexpectedly", zap.Error(waitErr))
		}
		close(s.done)
	}()

	s.setState(StateRunning)
	return nil
}

func forwardToLog(r io.Reader, logFile *os.File, log *zap.Logger) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		fmt.Fprintln(logFile, line)
	}
	if err := scanner.Err(); err != nil {
		log.Debug("console stream closed", zap.Error(err))
	}
}

// WaitDiskReady blocks until the SSH port accepts a TCP connection, using
// fsnotify to wait up to 10s for the serial socket to appear first (the
// port file is already written by Boot; if the watch errors it goes
// straight to polling), or returns ctx's error if it is cancelled first.
func (s *Supervisor) WaitDiskReady(ctx context.Context) error {
	if w, err := fsnotify.NewWatcher(); err == nil {
		defer w.Close()
		if err := w.Add(filepath.Dir(s.cfg.SerialSock)); err == nil {
			waitForPath(ctx, w, s.cfg.SerialSock)
		}
	}

	addr := fmt.Sprintf("127.0.0.1:%d", s.sshPort)
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.done:
			return errors.Errorf("vm %s: hypervisor exited before ssh became ready", s.cfg.VMName)
		case <-ticker.C:
			conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
			if err == nil {
				conn.Close()
				return nil
			}
		}
	}
}

func waitForPath(ctx context.Context, w *fsnotify.Watcher, path string) {
	if _, err := os.Stat(path); err == nil {
		return
	}
	timeout := time.NewTimer(10 * time.Second)
	defer timeout.Stop()
	for {
		select {
		case ev := <-w.Events:
			if ev.Op&fsnotify.Create != 0 && ev.Name == path {
				return
			}
		case <-w.Errors:
			return
		case <-timeout.C:
			return
		case <-ctx.Done():
			return
		}
	}
}

// SSHPort returns the host-assigned SSH forward port chosen by Boot.
func (s *Supervisor) SSHPort() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sshPort
}

// Shutdown stops the VM. If graceful, it attempts an ACPI power-off via the
// QMP monitor, waits up to 30s, then escalates to SIGTERM then SIGKILL. If
// not graceful, it sends SIGTERM immediately and escalates to SIGKILL after
// 5s. Safe to call once Boot has returned; a no-op if already stopped.
func (s *Supervisor) Shutdown(ctx context.Context, graceful bool) error {
	s.mu.Lock()
	cmd := s.cmd
	s.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return nil
	}

	select {
	case <-s.done:
		return nil
	default:
	}

	s.setState(StateShuttingDown)

	var errs error
	if graceful {
		if err := s.acpiPowerOff(); err != nil {
			errs = multierr.Append(errs, errors.Wrap(err, "acpi power-off"))
		} else {
			select {
			case <-s.done:
				return errs
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
			}
		}
	}

	select {
	case <-s.done:
		return errs
	default:
	}
	if err := cmd.Process.Signal(sigterm()); err != nil {
		errs = multierr.Append(errs, errors.Wrap(err, "sigterm"))
	}

	waitFor := 5 * time.Second
	select {
	case <-s.done:
		return errs
	case <-time.After(waitFor):
	}

	select {
	case <-s.done:
		return errs
	default:
	}
	if err := cmd.Process.Kill(); err != nil {
		errs = multierr.Append(errs, errors.Wrap(err, "sigkill"))
	}
	<-s.done
	return errs
}

// Logs returns the path to the requested guest-side log file.
func (s *Supervisor) Logs(kind LogKind) (string, error) {
	dir := filepath.Dir(s.cfg.ConsoleLog)
	switch kind {
	case LogConsole:
		return s.cfg.ConsoleLog, nil
	case LogSSH:
		return filepath.Join(dir, "ssh.log"), nil
	case LogSystem:
		return filepath.Join(dir, "system.log"), nil
	default:
		return "", errors.Errorf("unknown log kind %q", kind)
	}
}

func qemuBinary() string {
	switch runtime.GOARCH {
	case "arm64":
		return "qemu-system-aarch64"
	default:
		return "qemu-system-x86_64"
	}
}

// binaryForArch maps a scenario.Arch to its QEMU system binary name. Boot
// does not call it; Boot uses qemuBinary, which follows the host's GOARCH.
func binaryForArch(a scenario.Arch) string {
	if a == scenario.ArchARM64 {
		return "qemu-system-aarch64"
	}
	return "qemu-system-x86_64"
}
