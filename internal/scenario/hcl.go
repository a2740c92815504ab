package scenario

import (
	"encoding/json"
	"fmt"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/intar-dev/intar-cli/internal/probespec"
	"github.com/pkg/errors"
)

// Parse decodes an HCL scenario file into a Scenario, applying the
// cross-reference invariants from spec.md §3. HCL grammar/diagnostics
// formatting is an external collaborator (spec.md §1); this function is the
// narrow seam the orchestrator calls.
//
// Only the probe-kind block shapes this package declares (file_content,
// file_exists, service, port, tcp_ping, k8s_nodes_ready,
// k8s_endpoints_nonempty, command, http) are accepted inside a `probe`
// block; anything else is a ScenarioInvalid-class error surfaced by Parse.
func Parse(raw []byte, filename string, hostArch Arch) (*Scenario, error) {
	hclFile, diags := hclparse.NewParser().ParseHCL(raw, filename)
	if diags.HasErrors() {
		return nil, errors.Wrap(diags, "parsing scenario HCL")
	}

	var top hclTop
	if diags := gohcl.DecodeBody(hclFile.Body, nil, &top); diags.HasErrors() {
		return nil, errors.Wrap(diags, "decoding scenario HCL")
	}

	s, err := top.toScenario()
	if err != nil {
		return nil, err
	}
	if err := s.Validate(hostArch); err != nil {
		return nil, err
	}
	return s, nil
}

// --- HCL-tagged decode tree -------------------------------------------------

type hclTop struct {
	Scenario hclScenario `hcl:"scenario,block"`
}

type hclScenario struct {
	Name        string       `hcl:"name,label"`
	Description string       `hcl:"description,optional"`
	Images      []hclImage   `hcl:"image,block"`
	Probes      []hclProbe   `hcl:"probe,block"`
	VMs         []hclVM      `hcl:"vm,block"`
}

type hclImage struct {
	ID      string      `hcl:"id,label"`
	Sources []hclSource `hcl:"source,block"`
}

type hclSource struct {
	Arch string `hcl:"arch"`
	URL  string `hcl:"url"`
	Hash string `hcl:"hash"`
}

type hclProbe struct {
	ID          string `hcl:"id,label"`
	Description string `hcl:"description,optional"`
	Phase       string `hcl:"phase,optional"`

	FileContent   *hclFileContent   `hcl:"file_content,block"`
	FileExists    *hclFileExists    `hcl:"file_exists,block"`
	Service       *hclService       `hcl:"service,block"`
	Port          *hclPort          `hcl:"port,block"`
	TCPPing       *hclTCPPing       `hcl:"tcp_ping,block"`
	K8sNodes      *hclK8sNodes      `hcl:"k8s_nodes_ready,block"`
	K8sEndpoints  *hclK8sEndpoints  `hcl:"k8s_endpoints_nonempty,block"`
	Command       *hclCommand       `hcl:"command,block"`
	HTTP          *hclHTTP          `hcl:"http,block"`
}

type hclFileContent struct {
	Path     string  `hcl:"path"`
	Contains *string `hcl:"contains,optional"`
	Regex    *string `hcl:"regex,optional"`
}
type hclFileExists struct {
	Path   string `hcl:"path"`
	Exists bool   `hcl:"exists"`
}
type hclService struct {
	Unit  string `hcl:"unit"`
	State string `hcl:"state"`
}
type hclPort struct {
	Port      int     `hcl:"port"`
	Protocol  *string `hcl:"protocol,optional"`
	Listening bool    `hcl:"listening"`
}
type hclTCPPing struct {
	Host      string  `hcl:"host"`
	Port      *int    `hcl:"port,optional"`
	TimeoutMs *int    `hcl:"timeout_ms,optional"`
	State     *string `hcl:"state,optional"`
}
type hclK8sNodes struct {
	Kubeconfig    *string `hcl:"kubeconfig,optional"`
	Context       *string `hcl:"context,optional"`
	ExpectedReady int     `hcl:"expected_ready"`
}
type hclK8sEndpoints struct {
	Kubeconfig *string `hcl:"kubeconfig,optional"`
	Context    *string `hcl:"context,optional"`
	Namespace  string  `hcl:"namespace"`
	Name       string  `hcl:"name"`
}
type hclCommand struct {
	Cmd            string  `hcl:"cmd"`
	ExitCode       int     `hcl:"exit_code"`
	StdoutContains *string `hcl:"stdout_contains,optional"`
}
type hclHTTP struct {
	URL          string  `hcl:"url"`
	Status       int     `hcl:"status"`
	BodyContains *string `hcl:"body_contains,optional"`
}

type hclVM struct {
	Name      string         `hcl:"name,label"`
	CPU       int            `hcl:"cpu"`
	Memory    int            `hcl:"memory"`
	Disk      int            `hcl:"disk"`
	Image     string         `hcl:"image"`
	Probes    []string       `hcl:"probes,optional"`
	CloudInit *hclCloudInit  `hcl:"cloud_init,block"`
	Steps     []hclStep      `hcl:"step,block"`
}

type hclCloudInit struct {
	Packages []string      `hcl:"packages,optional"`
	Users    []hclCIUser   `hcl:"user,block"`
}

type hclCIUser struct {
	Name  string `hcl:"name,label"`
	Sudo  bool   `hcl:"sudo,optional"`
	Shell string `hcl:"shell,optional"`
}

type hclStep struct {
	Name    string      `hcl:"name,label"`
	Actions []hclAction `hcl:"action,block"`
}

type hclAction struct {
	FileWrite  *hclActionFileWrite  `hcl:"file_write,block"`
	FileDelete *hclActionFileDelete `hcl:"file_delete,block"`
	Command    *hclActionCommand    `hcl:"command,block"`
	Systemctl  *hclActionSystemctl  `hcl:"systemctl,block"`
	K8sNS      *hclActionK8sNS      `hcl:"k8s_namespace,block"`
	K8sDeploy  *hclActionK8sDeploy  `hcl:"k8s_deployment,block"`
	K8sSvc     *hclActionK8sSvc     `hcl:"k8s_service,block"`
}

type hclActionFileWrite struct {
	Path        string  `hcl:"path"`
	Content     string  `hcl:"content"`
	Permissions *string `hcl:"permissions,optional"`
}
type hclActionFileDelete struct {
	Path string `hcl:"path"`
}
type hclActionCommand struct {
	Cmd string `hcl:"cmd"`
}
type hclActionSystemctl struct {
	Unit   string `hcl:"unit"`
	Action string `hcl:"action"`
}
type hclActionK8sNS struct {
	Name string `hcl:"name"`
}
type hclActionK8sDeploy struct {
	Name      string            `hcl:"name"`
	Namespace string            `hcl:"namespace"`
	Image     string            `hcl:"image"`
	Replicas  int               `hcl:"replicas,optional"`
	Labels    map[string]string `hcl:"labels,optional"`
	Selector  map[string]string `hcl:"selector,optional"`
}
type hclActionK8sSvc struct {
	Name      string            `hcl:"name"`
	Namespace string            `hcl:"namespace"`
	Selector  map[string]string `hcl:"selector,optional"`
	Port      int               `hcl:"port"`
	TargetPort int              `hcl:"target_port"`
}

// --- conversion --------------------------------------------------------

func (t hclTop) toScenario() (*Scenario, error) {
	s := &Scenario{
		Name:        t.Scenario.Name,
		Description: t.Scenario.Description,
		Images:      map[string]Image{},
		Probes:      map[string]ProbeDefinition{},
	}

	for _, img := range t.Scenario.Images {
		sources := make([]Source, 0, len(img.Sources))
		for _, src := range img.Sources {
			sources = append(sources, Source{Arch: Arch(src.Arch), URL: src.URL, Hash: src.Hash})
		}
		s.Images[img.ID] = Image{ID: img.ID, Sources: sources}
	}

	for _, p := range t.Scenario.Probes {
		spec, err := p.toProbeSpec()
		if err != nil {
			return nil, errors.Wrapf(err, "probe %q", p.ID)
		}
		s.Probes[p.ID] = ProbeDefinition{
			ID:          p.ID,
			Description: p.Description,
			Phase:       Phase(p.Phase),
			Spec:        spec,
		}
	}

	for _, vm := range t.Scenario.VMs {
		def, err := vm.toVMDefinition()
		if err != nil {
			return nil, errors.Wrapf(err, "vm %q", vm.Name)
		}
		s.VMs = append(s.VMs, def)
	}

	return s, nil
}

func (p hclProbe) toProbeSpec() (probespec.ProbeSpec, error) {
	var kind probespec.KindTag
	var body any

	switch {
	case p.FileContent != nil:
		kind = probespec.KindFileContent
		body = map[string]any{"path": p.FileContent.Path, "contains": p.FileContent.Contains, "regex": p.FileContent.Regex}
	case p.FileExists != nil:
		kind = probespec.KindFileExists
		body = map[string]any{"path": p.FileExists.Path, "exists": p.FileExists.Exists}
	case p.Service != nil:
		kind = probespec.KindService
		body = map[string]any{"unit": p.Service.Unit, "state": p.Service.State}
	case p.Port != nil:
		kind = probespec.KindPort
		body = map[string]any{"port": p.Port.Port, "protocol": p.Port.Protocol, "listening": p.Port.Listening}
	case p.TCPPing != nil:
		kind = probespec.KindTCPPing
		body = map[string]any{"host": p.TCPPing.Host, "port": p.TCPPing.Port, "timeout_ms": p.TCPPing.TimeoutMs, "state": p.TCPPing.State}
	case p.K8sNodes != nil:
		kind = probespec.KindK8sNodesReady
		body = map[string]any{"kubeconfig": p.K8sNodes.Kubeconfig, "context": p.K8sNodes.Context, "expected_ready": p.K8sNodes.ExpectedReady}
	case p.K8sEndpoints != nil:
		kind = probespec.KindK8sEndpointsNonEmpty
		body = map[string]any{"kubeconfig": p.K8sEndpoints.Kubeconfig, "context": p.K8sEndpoints.Context, "namespace": p.K8sEndpoints.Namespace, "name": p.K8sEndpoints.Name}
	case p.Command != nil:
		kind = probespec.KindCommand
		body = map[string]any{"cmd": p.Command.Cmd, "exit_code": p.Command.ExitCode, "stdout_contains": p.Command.StdoutContains}
	case p.HTTP != nil:
		kind = probespec.KindHTTP
		body = map[string]any{"url": p.HTTP.URL, "status": p.HTTP.Status, "body_contains": p.HTTP.BodyContains}
	default:
		return probespec.ProbeSpec{}, fmt.Errorf("probe %q declares no recognized probe kind block", p.ID)
	}

	raw, err := marshalWithKind(kind, body)
	if err != nil {
		return probespec.ProbeSpec{}, err
	}
	return probespec.Parse(raw)
}

func marshalWithKind(kind probespec.KindTag, body any) ([]byte, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	// Unset optional attributes are omitted rather than sent as null, which
	// the probe schema does not accept.
	for k, v := range m {
		if v == nil {
			delete(m, k)
		}
	}
	m["kind"] = kind
	return json.Marshal(m)
}

func (v hclVM) toVMDefinition() (VMDefinition, error) {
	def := VMDefinition{
		Name:      v.Name,
		CPU:       v.CPU,
		MemoryMiB: v.Memory,
		DiskGiB:   v.Disk,
		Image:     v.Image,
		Probes:    v.Probes,
	}

	if v.CloudInit != nil {
		block := &CloudInitBlock{Packages: v.CloudInit.Packages}
		for _, u := range v.CloudInit.Users {
			block.Users = append(block.Users, CloudInitUser{Name: u.Name, Sudo: u.Sudo, Shell: u.Shell})
		}
		def.CloudInit = block
	}

	for _, st := range v.Steps {
		step := Step{Name: st.Name}
		for _, a := range st.Actions {
			action, err := a.toAction()
			if err != nil {
				return VMDefinition{}, errors.Wrapf(err, "step %q", st.Name)
			}
			step.Actions = append(step.Actions, action)
		}
		def.Steps = append(def.Steps, step)
	}

	return def, nil
}

func (a hclAction) toAction() (Action, error) {
	switch {
	case a.FileWrite != nil:
		perms := uint32(0644)
		if a.FileWrite.Permissions != nil {
			var parsed uint32
			if _, err := fmt.Sscanf(*a.FileWrite.Permissions, "%o", &parsed); err != nil {
				return Action{}, errors.Wrapf(err, "invalid permissions %q", *a.FileWrite.Permissions)
			}
			perms = parsed
		}
		return Action{Kind: ActionFileWrite, Path: a.FileWrite.Path, Content: a.FileWrite.Content, Permissions: perms}, nil
	case a.FileDelete != nil:
		return Action{Kind: ActionFileDelete, Path: a.FileDelete.Path}, nil
	case a.Command != nil:
		return Action{Kind: ActionCommand, Cmd: a.Command.Cmd}, nil
	case a.Systemctl != nil:
		return Action{Kind: ActionSystemctl, Unit: a.Systemctl.Unit, SystemctlOp: SystemctlOp(a.Systemctl.Action)}, nil
	case a.K8sNS != nil:
		return Action{Kind: ActionK8sNamespace, Namespace: a.K8sNS.Name}, nil
	case a.K8sDeploy != nil:
		replicas := int32(1)
		if a.K8sDeploy.Replicas != 0 {
			replicas = int32(a.K8sDeploy.Replicas)
		}
		return Action{Kind: ActionK8sDeployment, K8sManifest: K8sManifest{
			Name: a.K8sDeploy.Name, Namespace: a.K8sDeploy.Namespace, Image: a.K8sDeploy.Image,
			Replicas: replicas, Labels: a.K8sDeploy.Labels, Selector: a.K8sDeploy.Selector,
		}}, nil
	case a.K8sSvc != nil:
		return Action{Kind: ActionK8sService, K8sManifest: K8sManifest{
			Name: a.K8sSvc.Name, Namespace: a.K8sSvc.Namespace, Selector: a.K8sSvc.Selector,
			Ports: []K8sPort{{Port: int32(a.K8sSvc.Port), TargetPort: int32(a.K8sSvc.TargetPort)}},
		}}, nil
	default:
		return Action{}, fmt.Errorf("action block declares no recognized action kind")
	}
}
