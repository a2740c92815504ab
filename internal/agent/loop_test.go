package agent

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/intar-dev/intar-cli/internal/agentclient"
)

// loopback is an io.ReadWriter backed by two independent buffers, so a
// Loop's reads (from in) and writes (to out) don't alias each other the way
// a single bytes.Buffer would.
type loopback struct {
	in  *bytes.Buffer
	out bytes.Buffer
}

func (l *loopback) Read(p []byte) (int, error)  { return l.in.Read(p) }
func (l *loopback) Write(p []byte) (int, error) { return l.out.Write(p) }

func TestLoop_Run_DispatchesOneReplyPerRequest(t *testing.T) {
	req1, err := json.Marshal(agentclient.Request{ReqID: 1, Type: "ping"})
	require.NoError(t, err)
	req2, err := json.Marshal(agentclient.Request{ReqID: 2, Type: "bogus"})
	require.NoError(t, err)

	device := &loopback{in: bytes.NewBufferString(string(req1) + "\n" + string(req2) + "\n")}
	l := New(device, zap.NewNop())
	require.NoError(t, l.Run())

	lines := bytes.Split(bytes.TrimRight(device.out.Bytes(), "\n"), []byte("\n"))
	require.Len(t, lines, 2)

	var resp1, resp2 agentclient.Response
	require.NoError(t, json.Unmarshal(lines[0], &resp1))
	require.NoError(t, json.Unmarshal(lines[1], &resp2))

	assert.Equal(t, 1, resp1.ReqID)
	assert.Equal(t, "pong", resp1.Type)
	assert.Equal(t, 2, resp2.ReqID)
	assert.Equal(t, "error", resp2.Type)
}

func TestLoop_Run_MalformedLineRepliesError(t *testing.T) {
	device := &loopback{in: bytes.NewBufferString("not json\n")}
	l := New(device, zap.NewNop())
	require.NoError(t, l.Run())

	var resp agentclient.Response
	require.NoError(t, json.Unmarshal(bytes.TrimRight(device.out.Bytes(), "\n"), &resp))
	assert.Equal(t, "error", resp.Type)
	assert.Contains(t, resp.Message, "malformed request")
}

func TestUptime_NonNegative(t *testing.T) {
	assert.GreaterOrEqual(t, Uptime(), int64(0))
}
