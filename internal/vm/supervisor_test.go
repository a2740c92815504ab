package vm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestState_String(t *testing.T) {
	assert.Equal(t, "not_started", StateNotStarted.String())
	assert.Equal(t, "booting", StateBooting.String())
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "shutting_down", StateShuttingDown.String())
	assert.Equal(t, "stopped", StateStopped.String())
	assert.Equal(t, "crashed", StateCrashed.String())
	assert.Equal(t, "unknown", State(99).String())
}

func TestNew_StartsNotStarted(t *testing.T) {
	sup := New(Config{VMName: "web"}, zap.NewNop())
	assert.Equal(t, StateNotStarted, sup.State())
}

func TestLogs_ReturnsConventionalPaths(t *testing.T) {
	sup := New(Config{VMName: "web", ConsoleLog: "/run/web/logs/console.log"}, zap.NewNop())

	console, err := sup.Logs(LogConsole)
	assert.NoError(t, err)
	assert.Equal(t, "/run/web/logs/console.log", console)

	ssh, err := sup.Logs(LogSSH)
	assert.NoError(t, err)
	assert.Equal(t, "/run/web/logs/ssh.log", ssh)

	system, err := sup.Logs(LogSystem)
	assert.NoError(t, err)
	assert.Equal(t, "/run/web/logs/system.log", system)

	_, err = sup.Logs(LogKind("bogus"))
	assert.Error(t, err)
}

func TestDetectAccelerator_ReturnsKnownValue(t *testing.T) {
	acc := DetectAccelerator()
	switch acc {
	case AccelKVM, AccelHVF, AccelWHPX, AccelTCG:
	default:
		t.Fatalf("unexpected accelerator %q", acc)
	}
}
