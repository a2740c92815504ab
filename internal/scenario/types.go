// Package scenario holds the declarative, immutable-after-parse description
// of a lab: images, VMs, provisioning steps and probes. HCL syntax itself is
// out of scope (spec.md §1); Parse is the narrow seam the orchestrator calls
// and the only place scenario.Scenario values come from.
package scenario

import (
	"fmt"

	"github.com/intar-dev/intar-cli/internal/probespec"
	"github.com/pkg/errors"
)

// Arch is a supported guest CPU architecture.
type Arch string

const (
	ArchAMD64 Arch = "amd64"
	ArchARM64 Arch = "arm64"
)

// Source is one architecture-specific download location for an Image.
type Source struct {
	Arch Arch
	URL  string
	Hash string // algorithm-tagged digest, e.g. "sha256:deadbeef..."
}

// Image is a named base disk image available in one or more architectures.
type Image struct {
	ID      string
	Sources []Source
}

// SourceFor returns the Source matching arch, if any.
func (i Image) SourceFor(arch Arch) (Source, bool) {
	for _, s := range i.Sources {
		if s.Arch == arch {
			return s, true
		}
	}
	return Source{}, false
}

// Phase is when a probe is scheduled relative to provisioning.
type Phase string

const (
	PhaseBoot Phase = "boot"
	PhasePost Phase = "post"
)

// ProbeDefinition names a testable predicate evaluated inside a guest.
type ProbeDefinition struct {
	ID          string
	Description string
	Phase       Phase // defaults to PhasePost when empty
	Spec        probespec.ProbeSpec
}

// EffectivePhase returns the probe's phase, defaulting to PhasePost.
func (p ProbeDefinition) EffectivePhase() Phase {
	if p.Phase == "" {
		return PhasePost
	}
	return p.Phase
}

// ActionKind tags an Action's variant.
type ActionKind string

const (
	ActionFileWrite     ActionKind = "file_write"
	ActionFileDelete    ActionKind = "file_delete"
	ActionCommand       ActionKind = "command"
	ActionSystemctl     ActionKind = "systemctl"
	ActionK8sNamespace  ActionKind = "k8s_namespace"
	ActionK8sDeployment ActionKind = "k8s_deployment"
	ActionK8sService    ActionKind = "k8s_service"
)

// SystemctlOp is one of the systemctl actions a Step can request.
type SystemctlOp string

const (
	SystemctlStart   SystemctlOp = "start"
	SystemctlStop    SystemctlOp = "stop"
	SystemctlRestart SystemctlOp = "restart"
	SystemctlEnable  SystemctlOp = "enable"
	SystemctlDisable SystemctlOp = "disable"
)

// Action is a single provisioning directive. Exactly one of the
// kind-specific fields is populated, matching Kind (a tagged union
// dispatched on Kind, not an interface — see SPEC_FULL.md §9).
type Action struct {
	Kind ActionKind

	// file_write
	Path        string
	Content     string
	Permissions uint32 // defaults to 0644 when zero

	// file_delete shares Path above.

	// command
	Cmd string

	// systemctl
	Unit        string
	SystemctlOp SystemctlOp

	// k8s_namespace
	Namespace string

	// k8s_deployment / k8s_service
	K8sManifest K8sManifest
}

// K8sManifest carries the minimal fields needed to render a Deployment or
// Service manifest for the Step Runner's "kubectl apply -f -" action.
type K8sManifest struct {
	Name      string
	Namespace string
	Labels    map[string]string
	Selector  map[string]string
	Image     string // deployment only
	Replicas  int32  // deployment only
	Ports     []K8sPort
}

// K8sPort is a container or service port.
type K8sPort struct {
	Name       string
	Port       int32
	TargetPort int32
}

// Step is a named, ordered sequence of Actions applied to one VM.
type Step struct {
	Name    string
	Actions []Action
}

// CloudInitBlock is a VM's extra cloud-init-time requests.
type CloudInitBlock struct {
	Packages []string
	Users    []CloudInitUser
}

// CloudInitUser is one additional login user requested at boot time.
type CloudInitUser struct {
	Name  string
	Sudo  bool
	Shell string
}

// VMDefinition describes one virtual machine in a Scenario.
type VMDefinition struct {
	Name      string // unique within the scenario
	CPU       int
	MemoryMiB int
	DiskGiB   int
	Image     string // Image.ID
	CloudInit *CloudInitBlock
	Steps     []Step
	Probes    []string // subset of ProbeDefinition.ID evaluated against this VM
}

// Scenario is the top-level, immutable-after-parse container.
type Scenario struct {
	Name        string
	Description string
	Images      map[string]Image
	Probes      map[string]ProbeDefinition
	VMs         []VMDefinition
}

// Validate checks the cross-reference invariants from spec.md §3: every
// VM's image names a declared Image, every probe id a VM references is
// declared, and every declared Image has a Source matching hostArch.
func (s Scenario) Validate(hostArch Arch) error {
	for _, vm := range s.VMs {
		if _, ok := s.Images[vm.Image]; !ok {
			return errors.Errorf("vm %q references undeclared image %q", vm.Name, vm.Image)
		}
		for _, pid := range vm.Probes {
			if _, ok := s.Probes[pid]; !ok {
				return errors.Errorf("vm %q references undeclared probe %q", vm.Name, pid)
			}
		}
	}
	for id, img := range s.Images {
		if _, ok := img.SourceFor(hostArch); !ok {
			return errors.Errorf("image %q has no source for host architecture %q", id, hostArch)
		}
		for _, src := range img.Sources {
			if !isTaggedDigest(src.Hash) {
				return errors.Errorf("image %q source %q has malformed hash %q", id, src.Arch, src.Hash)
			}
		}
	}
	return nil
}

func isTaggedDigest(hash string) bool {
	for i := 0; i < len(hash); i++ {
		if hash[i] == ':' {
			return i > 0 && i < len(hash)-1
		}
	}
	return false
}

// VMByName returns the named VM definition, if present.
func (s Scenario) VMByName(name string) (VMDefinition, bool) {
	for _, vm := range s.VMs {
		if vm.Name == name {
			return vm, true
		}
	}
	return VMDefinition{}, false
}

// ProbesForVM resolves a VM's declared probe ids to their ProbeDefinitions,
// in declaration order.
func (s Scenario) ProbesForVM(vm VMDefinition) ([]ProbeDefinition, error) {
	out := make([]ProbeDefinition, 0, len(vm.Probes))
	for _, id := range vm.Probes {
		def, ok := s.Probes[id]
		if !ok {
			return nil, fmt.Errorf("vm %q references undeclared probe %q", vm.Name, id)
		}
		out = append(out, def)
	}
	return out, nil
}
