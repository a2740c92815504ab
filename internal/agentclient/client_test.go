package agentclient

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeAgent accepts one unix connection and answers requests with a
// caller-supplied handler, standing in for the guest agent the way
// ssh_test.go stands in for a real SSH server via interface seams.
func fakeAgent(t *testing.T, sockPath string, handle func(Request) Response) {
	t.Helper()
	ln, err := net.Listen("unix", sockPath)
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		scanner := bufio.NewScanner(conn)
		enc := json.NewEncoder(conn)
		for scanner.Scan() {
			var req Request
			if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
				continue
			}
			resp := handle(req)
			resp.ReqID = req.ReqID
			_ = enc.Encode(resp)
		}
	}()
}

func TestClient_Ping(t *testing.T) {
	dir := t.TempDir()
	sock := filepath.Join(dir, "agent.sock")
	fakeAgent(t, sock, func(req Request) Response {
		require.Equal(t, "ping", req.Type)
		return Response{Type: "pong", UptimeSecs: 42}
	})

	c := New(sock)
	defer c.Close()

	uptime, err := c.Ping(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(42), uptime)
}

func TestClient_CheckProbe(t *testing.T) {
	dir := t.TempDir()
	sock := filepath.Join(dir, "agent.sock")
	fakeAgent(t, sock, func(req Request) Response {
		require.Equal(t, "check_probe", req.Type)
		require.Equal(t, "p1", req.ProbeID)
		return Response{Type: "probe_result", ProbeID: req.ProbeID, Passed: true, Message: "ok"}
	})

	c := New(sock)
	defer c.Close()

	result, err := c.CheckProbe(context.Background(), "p1", json.RawMessage(`{"kind":"file_exists"}`))
	require.NoError(t, err)
	require.True(t, result.Passed)
	require.Equal(t, "p1", result.ID)
}

func TestClient_CheckAll(t *testing.T) {
	dir := t.TempDir()
	sock := filepath.Join(dir, "agent.sock")
	fakeAgent(t, sock, func(req Request) Response {
		require.Equal(t, "check_all", req.Type)
		require.Len(t, req.Probes, 2)
		return Response{Type: "all_results", Results: []ProbeResult{
			{ID: "a", Passed: true, Message: "ok"},
			{ID: "b", Passed: false, Message: "nope"},
		}}
	})

	c := New(sock)
	defer c.Close()

	results, err := c.CheckAll(context.Background(), []ProbeRequest{
		{ID: "a", Spec: json.RawMessage(`{}`)},
		{ID: "b", Spec: json.RawMessage(`{}`)},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.True(t, results[0].Passed)
	require.False(t, results[1].Passed)
}

func TestClient_ErrorResponse(t *testing.T) {
	dir := t.TempDir()
	sock := filepath.Join(dir, "agent.sock")
	fakeAgent(t, sock, func(req Request) Response {
		return Response{Type: "error", Message: "unknown probe kind"}
	})

	c := New(sock)
	defer c.Close()

	_, err := c.CheckProbe(context.Background(), "p1", json.RawMessage(`{}`))
	require.Error(t, err)
}

func TestClient_TimeoutRecyclesConnection(t *testing.T) {
	dir := t.TempDir()
	sock := filepath.Join(dir, "agent.sock")

	ln, err := net.Listen("unix", sock)
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		// Never respond; the client's Send must time out on its own.
		time.Sleep(2 * time.Second)
	}()

	c := New(sock)
	defer c.Close()

	_, err = c.Send(context.Background(), Request{Type: "ping"}, 50*time.Millisecond)
	require.Error(t, err)
	require.Empty(t, c.pending)
}

func TestClient_DialFailureIsTransportError(t *testing.T) {
	c := New(filepath.Join(os.TempDir(), "intar-agentclient-test-no-such-socket.sock"))
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := c.Ping(ctx)
	require.ErrorIs(t, err, ErrTransport)
}
