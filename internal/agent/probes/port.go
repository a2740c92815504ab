package probes

import (
	"fmt"
	"net"
	"time"

	"github.com/intar-dev/intar-cli/internal/probespec"
)

// evalPort checks whether a local port is listening (tcp, via connect) or
// free (udp, via bind). Default protocol is tcp.
func evalPort(spec *probespec.PortSpec) (bool, string, error) {
	proto := probespec.ProtoTCP
	if spec.Protocol != nil {
		proto = *spec.Protocol
	}

	addr := fmt.Sprintf("127.0.0.1:%d", spec.Port)

	switch proto {
	case probespec.ProtoTCP:
		conn, err := net.DialTimeout("tcp", addr, time.Second)
		listening := err == nil
		if conn != nil {
			conn.Close()
		}
		if listening == spec.Listening {
			return true, "ok", nil
		}
		if spec.Listening {
			return false, fmt.Sprintf("tcp port %d is not listening", spec.Port), nil
		}
		return false, fmt.Sprintf("tcp port %d is listening", spec.Port), nil

	case probespec.ProtoUDP:
		l, err := net.ListenPacket("udp", addr)
		bindSucceeded := err == nil
		if l != nil {
			l.Close()
		}
		listening := !bindSucceeded // something else is already bound
		if listening == spec.Listening {
			return true, "ok", nil
		}
		if spec.Listening {
			return false, fmt.Sprintf("udp port %d is free (nothing listening)", spec.Port), nil
		}
		return false, fmt.Sprintf("udp port %d is in use", spec.Port), nil

	default:
		return false, fmt.Sprintf("unknown protocol %q", proto), nil
	}
}
