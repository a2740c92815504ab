// Package agentclient implements the host side of the virtio-serial
// JSON-RPC channel: newline-delimited JSON requests and responses over a
// unix-socket-backed chardev, with request-id demultiplexing and
// reconnect-with-backoff. There is no teacher equivalent — the teacher only
// ever speaks SSH/HTTP to its VMs — so this package applies the generic
// "wrap a raw transport with request bookkeeping" shape the teacher's
// generated REST client uses, to a hand-rolled protocol instead.
package agentclient

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
)

const (
	initialBackoff = 250 * time.Millisecond
	maxBackoff     = 5 * time.Second
	defaultTimeout = 30 * time.Second
)

// ErrTransport wraps EOF/timeout/malformed-JSON failures on the channel,
// classified as spec.md §7's TransportError.
var ErrTransport = errors.New("agent transport error")

// Request is an outbound host→guest message. Type is one of "ping",
// "check_probe", "check_all"; the remaining fields are populated per type.
// ReqID is a host-injected correlation field layered on top of spec.md §6's
// wire shapes so responses can be demultiplexed; the agent must echo it back
// unchanged on the matching Response.
type Request struct {
	ReqID   int             `json:"req_id"`
	Type    string          `json:"type"`
	ProbeID string          `json:"id,omitempty"`
	Spec    json.RawMessage `json:"spec,omitempty"`
	Probes  []ProbeRequest  `json:"probes,omitempty"`
}

// ProbeRequest is one entry in a check_all request's probe list.
type ProbeRequest struct {
	ID   string          `json:"id"`
	Spec json.RawMessage `json:"spec"`
}

// Response is an inbound guest→host message, keyed back to its Request by
// ReqID. Exactly one of the type-specific fields is meaningful, matching
// Type.
type Response struct {
	ReqID      int           `json:"req_id"`
	Type       string        `json:"type"` // "pong", "probe_result", "all_results", "error"
	UptimeSecs int64         `json:"uptime_secs,omitempty"`
	ProbeID    string        `json:"id,omitempty"`
	Passed     bool          `json:"passed,omitempty"`
	Message    string        `json:"message,omitempty"`
	Results    []ProbeResult `json:"results,omitempty"`
}

// ProbeResult is one entry in an all_results response.
type ProbeResult struct {
	ID      string `json:"id"`
	Passed  bool   `json:"passed"`
	Message string `json:"message"`
}

// Client maintains a reconnecting connection to one VM's virtio-serial
// socket. Requests issued on a single Client are delivered in order; no
// ordering guarantee holds across a reconnect (spec.md §4.5).
type Client struct {
	sockPath string

	mu      sync.Mutex
	conn    net.Conn
	writer  *json.Encoder
	pending map[int]chan Response
	nextID  int64

	closed chan struct{}
	once   sync.Once
}

// New returns a Client bound to sockPath. Dial happens lazily on first Send
// and again automatically after any transport error.
func New(sockPath string) *Client {
	return &Client{
		sockPath: sockPath,
		pending:  make(map[int]chan Response),
		closed:   make(chan struct{}),
	}
}

// Close stops any in-progress reconnect loop and closes the underlying
// connection, if any.
func (c *Client) Close() error {
	c.once.Do(func() { close(c.closed) })
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// ensureConn dials the socket if not already connected, retrying with
// exponential backoff starting at 250ms and capped at 5s, until ctx is
// cancelled or Close is called.
func (c *Client) ensureConn(ctx context.Context) (net.Conn, error) {
	c.mu.Lock()
	if c.conn != nil {
		conn := c.conn
		c.mu.Unlock()
		return conn, nil
	}
	c.mu.Unlock()

	backoff := initialBackoff
	for {
		select {
		case <-c.closed:
			return nil, errors.New("agentclient: closed")
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		conn, err := net.Dial("unix", c.sockPath)
		if err == nil {
			c.mu.Lock()
			c.conn = conn
			c.writer = json.NewEncoder(conn)
			c.mu.Unlock()
			go c.readLoop(conn)
			return conn, nil
		}

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-c.closed:
			return nil, errors.New("agentclient: closed")
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// readLoop demultiplexes responses to their pending request's channel until
// the connection errors or closes, then drops the connection so the next
// Send redials.
func (c *Client) readLoop(conn net.Conn) {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var resp Response
		if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
			continue // malformed line: drop it, the caller's request will time out
		}
		c.mu.Lock()
		ch, ok := c.pending[resp.ReqID]
		if ok {
			delete(c.pending, resp.ReqID)
		}
		c.mu.Unlock()
		if ok {
			ch <- resp
		}
	}
	c.recycle(conn)
}

func (c *Client) recycle(conn net.Conn) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
		c.writer = nil
	}
	c.mu.Unlock()
}

// Send issues req (assigning it the next monotonically increasing request
// id) and waits for its matching response, up to timeout (default 30s). On
// timeout the pending entry is dropped and the connection recycled so the
// next Send redials.
func (c *Client) Send(ctx context.Context, req Request, timeout time.Duration) (Response, error) {
	if timeout == 0 {
		timeout = defaultTimeout
	}

	conn, err := c.ensureConn(ctx)
	if err != nil {
		return Response{}, errors.Wrap(ErrTransport, err.Error())
	}

	id := int(atomic.AddInt64(&c.nextID, 1))
	req.ReqID = id

	ch := make(chan Response, 1)
	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return Response{}, errors.Wrap(ErrTransport, "connection recycled before send")
	}
	c.pending[id] = ch
	writer := c.writer
	c.mu.Unlock()

	if err := writer.Encode(req); err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		c.recycle(conn)
		return Response{}, errors.Wrap(ErrTransport, fmt.Sprintf("encoding request: %v", err))
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp := <-ch:
		return resp, nil
	case <-timer.C:
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		c.recycle(conn)
		return Response{}, errors.Wrapf(ErrTransport, "request %d timed out after %s", id, timeout)
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return Response{}, ctx.Err()
	}
}

// Ping sends {"type":"ping"} and returns the agent's reported uptime_secs
// once a pong is received.
func (c *Client) Ping(ctx context.Context) (uptimeSecs int64, err error) {
	resp, err := c.Send(ctx, Request{Type: "ping"}, defaultTimeout)
	if err != nil {
		return 0, err
	}
	if resp.Type != "pong" {
		return 0, errors.Wrapf(ErrTransport, "ping: unexpected response type %q", resp.Type)
	}
	return resp.UptimeSecs, nil
}

// CheckProbe sends a single check_probe request.
func (c *Client) CheckProbe(ctx context.Context, id string, spec json.RawMessage) (ProbeResult, error) {
	resp, err := c.Send(ctx, Request{Type: "check_probe", ProbeID: id, Spec: spec}, defaultTimeout)
	if err != nil {
		return ProbeResult{}, err
	}
	if resp.Type == "error" {
		return ProbeResult{}, errors.Errorf("agent error: %s", resp.Message)
	}
	if resp.Type != "probe_result" {
		return ProbeResult{}, errors.Wrapf(ErrTransport, "check_probe: unexpected response type %q", resp.Type)
	}
	return ProbeResult{ID: resp.ProbeID, Passed: resp.Passed, Message: resp.Message}, nil
}

// CheckAll sends a batched check_all request covering every probe in probes.
func (c *Client) CheckAll(ctx context.Context, probes []ProbeRequest) ([]ProbeResult, error) {
	resp, err := c.Send(ctx, Request{Type: "check_all", Probes: probes}, defaultTimeout)
	if err != nil {
		return nil, err
	}
	if resp.Type == "error" {
		return nil, errors.Errorf("agent error: %s", resp.Message)
	}
	if resp.Type != "all_results" {
		return nil, errors.Wrapf(ErrTransport, "check_all: unexpected response type %q", resp.Type)
	}
	return resp.Results, nil
}
