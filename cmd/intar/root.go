package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/intar-dev/intar-cli/internal/orchestrator"
	"github.com/intar-dev/intar-cli/internal/scenario"
)

// dispatch routes the parsed kingpin command to its handler and returns the
// process exit code.
func dispatch(cmd string) int {
	var err error
	switch cmd {
	case startCmd.FullCommand():
		err = runStart()
	case listCmd.FullCommand():
		err = runList()
	case sshCmd.FullCommand():
		err = runSSH()
	case logsCmd.FullCommand():
		err = runLogs()
	default:
		err = errors.Errorf("unknown command %q", cmd)
	}
	if err == nil {
		return 0
	}
	fmt.Fprintln(os.Stderr, "intar:", err)
	return orchestrator.ExitCode(err)
}

// newLogger builds the CLI's structured logger, verbose in debug mode and
// otherwise quiet except for warnings and above.
func newLogger(verbose bool) *zap.Logger {
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	}
	log, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return log
}

// hostArch maps the process's GOARCH to the scenario package's Arch enum.
func hostArch() (scenario.Arch, error) {
	switch runtime.GOARCH {
	case "amd64":
		return scenario.ArchAMD64, nil
	case "arm64":
		return scenario.ArchARM64, nil
	default:
		return "", errors.Errorf("unsupported host architecture %q", runtime.GOARCH)
	}
}

// imageCacheDir resolves the directory base images are expected to already
// be staged in: --image-cache, else INTAR_IMAGE_CACHE, else
// <XDG_CACHE_HOME or ~/.cache>/intar/images.
func imageCacheDir(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	if dir := os.Getenv("INTAR_IMAGE_CACHE"); dir != "" {
		return dir, nil
	}
	if dir := os.Getenv("XDG_CACHE_HOME"); dir != "" {
		return filepath.Join(dir, "intar", "images"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "resolving image cache dir: no XDG_CACHE_HOME or HOME")
	}
	return filepath.Join(home, ".cache", "intar", "images"), nil
}

// resolveRunID returns runFlag if set, else the most recently modified run.
func resolveRunID(runFlag string) (string, error) {
	if runFlag != "" {
		return runFlag, nil
	}
	return scenario.LatestRunID()
}
