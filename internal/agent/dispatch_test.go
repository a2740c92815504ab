package agent

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intar-dev/intar-cli/internal/agentclient"
)

func fileExistsSpec(t *testing.T, path string, wantExists bool) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(map[string]any{
		"kind":   "file_exists",
		"path":   path,
		"exists": wantExists,
	})
	require.NoError(t, err)
	return raw
}

func TestDispatch_Ping(t *testing.T) {
	resp := Dispatch(agentclient.Request{Type: "ping"})
	assert.Equal(t, "pong", resp.Type)
	assert.GreaterOrEqual(t, resp.UptimeSecs, int64(0))
}

func TestDispatch_CheckProbe(t *testing.T) {
	dir := t.TempDir()
	present := filepath.Join(dir, "present")
	require.NoError(t, os.WriteFile(present, []byte("x"), 0o644))

	resp := Dispatch(agentclient.Request{
		Type:    "check_probe",
		ProbeID: "p1",
		Spec:    fileExistsSpec(t, present, true),
	})
	assert.Equal(t, "probe_result", resp.Type)
	assert.Equal(t, "p1", resp.ProbeID)
	assert.True(t, resp.Passed)
}

func TestDispatch_CheckProbe_Fails(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope")

	resp := Dispatch(agentclient.Request{
		Type:    "check_probe",
		ProbeID: "p1",
		Spec:    fileExistsSpec(t, missing, true),
	})
	assert.Equal(t, "probe_result", resp.Type)
	assert.False(t, resp.Passed)
	assert.Contains(t, resp.Message, "does not exist")
}

func TestDispatch_CheckProbe_InvalidSpec(t *testing.T) {
	resp := Dispatch(agentclient.Request{
		Type:    "check_probe",
		ProbeID: "bad",
		Spec:    json.RawMessage(`{"kind":"not_a_kind"}`),
	})
	assert.Equal(t, "probe_result", resp.Type)
	assert.False(t, resp.Passed)
	assert.Contains(t, resp.Message, "invalid probe spec")
}

func TestDispatch_CheckAll(t *testing.T) {
	dir := t.TempDir()
	present := filepath.Join(dir, "present")
	require.NoError(t, os.WriteFile(present, []byte("x"), 0o644))
	missing := filepath.Join(dir, "nope")

	resp := Dispatch(agentclient.Request{
		Type: "check_all",
		Probes: []agentclient.ProbeRequest{
			{ID: "a", Spec: fileExistsSpec(t, present, true)},
			{ID: "b", Spec: fileExistsSpec(t, missing, true)},
		},
	})
	assert.Equal(t, "all_results", resp.Type)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "a", resp.Results[0].ID)
	assert.True(t, resp.Results[0].Passed)
	assert.Equal(t, "b", resp.Results[1].ID)
	assert.False(t, resp.Results[1].Passed)
}

func TestDispatch_UnknownType(t *testing.T) {
	resp := Dispatch(agentclient.Request{Type: "bogus"})
	assert.Equal(t, "error", resp.Type)
	assert.Contains(t, resp.Message, "unknown request type")
}
