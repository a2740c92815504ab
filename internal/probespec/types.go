// Package probespec defines the probe kinds shared by the host (for
// validation before boot) and the guest agent (for evaluation). It is the
// single source of truth for probe shapes; no other package should
// unmarshal a raw probe spec directly.
package probespec

// KindTag identifies a probe's variant for dispatch.
type KindTag string

const (
	KindFileContent        KindTag = "file_content"
	KindFileExists         KindTag = "file_exists"
	KindService            KindTag = "service"
	KindPort               KindTag = "port"
	KindTCPPing            KindTag = "tcp_ping"
	KindK8sNodesReady      KindTag = "k8s_nodes_ready"
	KindK8sEndpointsNonEmpty KindTag = "k8s_endpoints_nonempty"
	KindCommand            KindTag = "command"
	KindHTTP               KindTag = "http"
)

// ServiceState is the set of states a service probe can check for.
type ServiceState string

const (
	ServiceRunning  ServiceState = "running"
	ServiceStopped  ServiceState = "stopped"
	ServiceEnabled  ServiceState = "enabled"
	ServiceDisabled ServiceState = "disabled"
)

// PortProtocol is the transport a port probe checks.
type PortProtocol string

const (
	ProtoTCP PortProtocol = "tcp"
	ProtoUDP PortProtocol = "udp"
)

// TCPPingState is the expected reachability outcome for a tcp_ping probe.
type TCPPingState string

const (
	TCPPingReachable   TCPPingState = "reachable"
	TCPPingUnreachable TCPPingState = "unreachable"
)

// FileContentSpec checks a file's bytes for a substring and/or a regex.
// At least one of Contains/Regex must be set; when both are set, both
// must match.
type FileContentSpec struct {
	Path     string  `json:"path"`
	Contains *string `json:"contains,omitempty"`
	Regex    *string `json:"regex,omitempty"`
}

// FileExistsSpec checks whether a path exists (symlinks followed).
type FileExistsSpec struct {
	Path   string `json:"path"`
	Exists bool   `json:"exists"`
}

// ServiceSpec checks a systemd unit's run/enablement state.
type ServiceSpec struct {
	Unit  string       `json:"unit"`
	State ServiceState `json:"state"`
}

// PortSpec checks whether a local port is listening (tcp) or free (udp).
type PortSpec struct {
	Port     int           `json:"port"`
	Protocol *PortProtocol `json:"protocol,omitempty"` // default tcp
	Listening bool         `json:"listening"`
}

// TCPPingSpec probes host liveness via a TCP connect attempt.
type TCPPingSpec struct {
	Host    string        `json:"host"`
	Port    *int          `json:"port,omitempty"`    // default 1
	TimeoutMillis *int    `json:"timeout_ms,omitempty"` // default 2000
	State   *TCPPingState `json:"state,omitempty"`   // default reachable
}

// K8sNodesReadySpec checks that at least ExpectedReady nodes report Ready.
type K8sNodesReadySpec struct {
	Kubeconfig    *string `json:"kubeconfig,omitempty"` // default /etc/rancher/k3s/k3s.yaml
	Context       *string `json:"context,omitempty"`
	ExpectedReady int     `json:"expected_ready"`
}

// K8sEndpointsNonEmptySpec checks that an Endpoints object has addresses.
type K8sEndpointsNonEmptySpec struct {
	Kubeconfig *string `json:"kubeconfig,omitempty"`
	Context    *string `json:"context,omitempty"`
	Namespace  string  `json:"namespace"`
	Name       string  `json:"name"`
}

// CommandSpec runs a shell command and checks its exit code and stdout.
type CommandSpec struct {
	Cmd            string  `json:"cmd"`
	ExitCode       int     `json:"exit_code"`
	StdoutContains *string `json:"stdout_contains,omitempty"`
}

// HTTPSpec issues a GET request and checks the final status and body.
type HTTPSpec struct {
	URL          string  `json:"url"`
	Status       int     `json:"status"`
	BodyContains *string `json:"body_contains,omitempty"`
}

// ProbeSpec is the parsed, validated, tagged-union probe definition. Exactly
// one of the kind-specific fields is non-nil, matching Kind.
type ProbeSpec struct {
	Kind KindTag `json:"kind"`

	FileContent      *FileContentSpec         `json:"-"`
	FileExists       *FileExistsSpec          `json:"-"`
	Service          *ServiceSpec             `json:"-"`
	Port             *PortSpec                `json:"-"`
	TCPPing          *TCPPingSpec             `json:"-"`
	K8sNodesReady    *K8sNodesReadySpec       `json:"-"`
	K8sEndpoints     *K8sEndpointsNonEmptySpec `json:"-"`
	Command          *CommandSpec             `json:"-"`
	HTTP             *HTTPSpec                `json:"-"`
}

// Kind returns the spec's dispatch tag.
func Kind(spec ProbeSpec) KindTag {
	return spec.Kind
}
