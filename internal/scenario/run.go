package scenario

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Run is one execution of a Scenario: an id, its on-disk directory tree
// under the XDG state root, and the resolved VM-specific paths inside it
// (spec.md §6's run directory layout).
type Run struct {
	ID        string
	Scenario  *Scenario
	Dir       string
	SourceHCL string // path to the original .hcl file, copied into Dir
}

// NewRunID produces a sortable, collision-resistant run id: a UTC timestamp
// followed by a short random suffix (the teacher's indirect uuid dependency,
// repurposed here since no Crossplane object names need generating).
func NewRunID(now time.Time) string {
	return fmt.Sprintf("%s-%s", now.UTC().Format("20060102-150405"), uuid.New().String()[:8])
}

// stateRoot resolves <state>/intar per spec.md §6: XDG_STATE_HOME if set,
// else $HOME/.local/state.
func stateRoot() (string, error) {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, "intar"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "resolving state root: no XDG_STATE_HOME or HOME")
	}
	return filepath.Join(home, ".local", "state", "intar"), nil
}

// NewRun allocates a fresh run directory tree for s and copies hclPath into
// it, returning the populated Run. The hypervisor, cloud-init builder and
// step runner create their own files underneath Dir as the run progresses.
func NewRun(s *Scenario, hclPath string, now time.Time) (*Run, error) {
	root, err := stateRoot()
	if err != nil {
		return nil, err
	}

	id := NewRunID(now)
	dir := filepath.Join(root, "runs", id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "creating run directory %s", dir)
	}

	for _, vm := range s.VMs {
		if err := os.MkdirAll(filepath.Join(dir, vm.Name), 0o755); err != nil {
			return nil, errors.Wrapf(err, "creating vm directory for %s", vm.Name)
		}
		if err := os.MkdirAll(filepath.Join(dir, "logs", vm.Name), 0o755); err != nil {
			return nil, errors.Wrapf(err, "creating log directory for %s", vm.Name)
		}
	}

	src, err := os.ReadFile(hclPath)
	if err != nil {
		return nil, errors.Wrapf(err, "reading scenario file %s", hclPath)
	}
	dst := filepath.Join(dir, "scenario.hcl")
	if err := os.WriteFile(dst, src, 0o644); err != nil {
		return nil, errors.Wrapf(err, "copying scenario file into %s", dst)
	}

	resultsPath := filepath.Join(dir, "results.ndjson")
	f, err := os.OpenFile(resultsPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "creating %s", resultsPath)
	}
	_ = f.Close()

	return &Run{ID: id, Scenario: s, Dir: dir, SourceHCL: dst}, nil
}

// VMDir returns <run_dir>/<vm>.
func (r *Run) VMDir(vm string) string { return filepath.Join(r.Dir, vm) }

// SeedImagePath returns <run_dir>/<vm>/seed.img.
func (r *Run) SeedImagePath(vm string) string { return filepath.Join(r.VMDir(vm), "seed.img") }

// DiskImagePath returns <run_dir>/<vm>/disk.qcow2.
func (r *Run) DiskImagePath(vm string) string { return filepath.Join(r.VMDir(vm), "disk.qcow2") }

// SerialSocketPath returns <run_dir>/<vm>-serial.sock.
func (r *Run) SerialSocketPath(vm string) string {
	return filepath.Join(r.Dir, vm+"-serial.sock")
}

// SSHPortFilePath returns <run_dir>/<vm>-ssh.port.
func (r *Run) SSHPortFilePath(vm string) string {
	return filepath.Join(r.Dir, vm+"-ssh.port")
}

// LogDir returns <run_dir>/logs/<vm>.
func (r *Run) LogDir(vm string) string { return filepath.Join(r.Dir, "logs", vm) }

// ConsoleLogPath returns <run_dir>/logs/<vm>/console.log.
func (r *Run) ConsoleLogPath(vm string) string { return filepath.Join(r.LogDir(vm), "console.log") }

// SSHLogPath returns <run_dir>/logs/<vm>/ssh.log.
func (r *Run) SSHLogPath(vm string) string { return filepath.Join(r.LogDir(vm), "ssh.log") }

// SystemLogPath returns <run_dir>/logs/<vm>/system.log, the path `intar
// logs` reads for the guest's system log. Nothing in intar writes this file.
func (r *Run) SystemLogPath(vm string) string { return filepath.Join(r.LogDir(vm), "system.log") }

// UserDataDebugPath returns <run_dir>/logs/<vm>/user-data.yaml.
func (r *Run) UserDataDebugPath(vm string) string {
	return filepath.Join(r.LogDir(vm), "user-data.yaml")
}

// SSHPrivateKeyPath returns <run_dir>/run-key.pem, the run-scoped SSH
// identity persisted at boot time so `intar ssh` can reconnect from a
// separate process invocation.
func (r *Run) SSHPrivateKeyPath() string { return filepath.Join(r.Dir, "run-key.pem") }

// ResultsPath returns <run_dir>/results.ndjson.
func (r *Run) ResultsPath() string { return filepath.Join(r.Dir, "results.ndjson") }

// LatestRunID returns the id of the run whose directory under root was most
// recently modified, used by
// `intar ssh`/`intar logs` when --run is omitted.
func LatestRunID() (string, error) {
	root, err := stateRoot()
	if err != nil {
		return "", err
	}
	runsDir := filepath.Join(root, "runs")
	entries, err := os.ReadDir(runsDir)
	if err != nil {
		return "", errors.Wrapf(err, "reading %s", runsDir)
	}

	var latest string
	var latestMod time.Time
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(latestMod) {
			latestMod = info.ModTime()
			latest = e.Name()
		}
	}
	if latest == "" {
		return "", errors.Errorf("no runs found under %s", runsDir)
	}
	return latest, nil
}

// RunDir returns <state>/intar/runs/<run_id> for a given run id.
func RunDir(runID string) (string, error) {
	root, err := stateRoot()
	if err != nil {
		return "", err
	}
	return filepath.Join(root, "runs", runID), nil
}
