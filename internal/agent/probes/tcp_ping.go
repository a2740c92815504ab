package probes

import (
	"errors"
	"fmt"
	"net"
	"syscall"
	"time"

	"github.com/intar-dev/intar-cli/internal/probespec"
)

// evalTCPPing attempts a TCP connect to decide host liveness. "reachable"
// passes on a completed handshake or on ECONNREFUSED within the timeout
// (the host responded, it just isn't listening on that port); "unreachable"
// passes on timeout or no-route.
func evalTCPPing(spec *probespec.TCPPingSpec) (bool, string, error) {
	port := 1
	if spec.Port != nil {
		port = *spec.Port
	}
	timeout := 2000 * time.Millisecond
	if spec.TimeoutMillis != nil {
		timeout = time.Duration(*spec.TimeoutMillis) * time.Millisecond
	}
	wantState := probespec.TCPPingReachable
	if spec.State != nil {
		wantState = *spec.State
	}

	addr := fmt.Sprintf("%s:%d", spec.Host, port)
	conn, err := net.DialTimeout("tcp", addr, timeout)

	var reachable bool
	switch {
	case err == nil:
		conn.Close()
		reachable = true
	case isConnRefused(err):
		reachable = true
	default:
		reachable = false
	}

	actual := probespec.TCPPingUnreachable
	if reachable {
		actual = probespec.TCPPingReachable
	}

	if actual == wantState {
		return true, "ok", nil
	}
	return false, fmt.Sprintf("%s:%d is %s, want %s", spec.Host, port, actual, wantState), nil
}

func isConnRefused(err error) bool {
	var sysErr syscall.Errno
	if errors.As(err, &sysErr) {
		return sysErr == syscall.ECONNREFUSED
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return errors.As(opErr.Err, &sysErr) && sysErr == syscall.ECONNREFUSED
	}
	return false
}
