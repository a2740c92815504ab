package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intar-dev/intar-cli/internal/scenario"
)

func TestRunLogs_ReadsConsoleLogByDefault(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_STATE_HOME", "")

	runDir, err := scenario.RunDir("run-a")
	require.NoError(t, err)
	run := &scenario.Run{ID: "run-a", Dir: runDir}
	require.NoError(t, os.MkdirAll(filepath.Dir(run.ConsoleLogPath("web")), 0o755))
	require.NoError(t, os.WriteFile(run.ConsoleLogPath("web"), []byte("boot messages\n"), 0o644))

	*logsRunFlag = "run-a"
	*logsVM = "web"
	*logsType = "console"

	assert.NoError(t, runLogs())
}

func TestRunLogs_MissingFileErrors(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_STATE_HOME", "")

	*logsRunFlag = "run-missing"
	*logsVM = "web"
	*logsType = "console"

	assert.Error(t, runLogs())
}
