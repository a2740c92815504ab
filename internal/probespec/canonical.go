package probespec

import "encoding/json"

// Canonical returns the canonical JSON wire form of spec: the kind-specific
// body merged with the "kind" discriminator, field order left to
// encoding/json. Parsing this output with Parse must yield a ProbeSpec deep-
// equal to spec (the round-trip invariant checked in parse_test.go).
func Canonical(spec ProbeSpec) (json.RawMessage, error) {
	var body any
	switch spec.Kind {
	case KindFileContent:
		body = spec.FileContent
	case KindFileExists:
		body = spec.FileExists
	case KindService:
		body = spec.Service
	case KindPort:
		body = spec.Port
	case KindTCPPing:
		body = spec.TCPPing
	case KindK8sNodesReady:
		body = spec.K8sNodesReady
	case KindK8sEndpointsNonEmpty:
		body = spec.K8sEndpoints
	case KindCommand:
		body = spec.Command
	case KindHTTP:
		body = spec.HTTP
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	var merged map[string]any
	if err := json.Unmarshal(raw, &merged); err != nil {
		return nil, err
	}
	merged["kind"] = spec.Kind

	return json.Marshal(merged)
}
