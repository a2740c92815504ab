package scenario

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intar-dev/intar-cli/internal/probespec"
)

func validScenario() Scenario {
	return Scenario{
		Name: "lab",
		Images: map[string]Image{
			"ubuntu": {ID: "ubuntu", Sources: []Source{
				{Arch: ArchAMD64, URL: "https://example.test/ubuntu.qcow2", Hash: "sha256:deadbeef"},
			}},
		},
		Probes: map[string]ProbeDefinition{
			"svc-up": {ID: "svc-up", Phase: PhasePost, Spec: probespec.ProbeSpec{Kind: probespec.KindFileExists}},
		},
		VMs: []VMDefinition{
			{Name: "web", Image: "ubuntu", Probes: []string{"svc-up"}},
		},
	}
}

func TestScenario_Validate_OK(t *testing.T) {
	assert.NoError(t, validScenario().Validate(ArchAMD64))
}

func TestScenario_Validate_UndeclaredImage(t *testing.T) {
	s := validScenario()
	s.VMs[0].Image = "nope"
	assert.ErrorContains(t, s.Validate(ArchAMD64), "undeclared image")
}

func TestScenario_Validate_UndeclaredProbe(t *testing.T) {
	s := validScenario()
	s.VMs[0].Probes = []string{"missing"}
	assert.ErrorContains(t, s.Validate(ArchAMD64), "undeclared probe")
}

func TestScenario_Validate_NoSourceForHostArch(t *testing.T) {
	s := validScenario()
	assert.ErrorContains(t, s.Validate(ArchARM64), "no source for host architecture")
}

func TestScenario_Validate_MalformedHash(t *testing.T) {
	s := validScenario()
	img := s.Images["ubuntu"]
	img.Sources[0].Hash = "not-tagged"
	s.Images["ubuntu"] = img
	assert.ErrorContains(t, s.Validate(ArchAMD64), "malformed hash")
}

func TestScenario_VMByName(t *testing.T) {
	s := validScenario()
	vm, ok := s.VMByName("web")
	require.True(t, ok)
	assert.Equal(t, "ubuntu", vm.Image)

	_, ok = s.VMByName("missing")
	assert.False(t, ok)
}

func TestScenario_ProbesForVM(t *testing.T) {
	s := validScenario()
	defs, err := s.ProbesForVM(s.VMs[0])
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, "svc-up", defs[0].ID)
}

func TestScenario_ProbesForVM_UndeclaredProbe(t *testing.T) {
	s := validScenario()
	vm := s.VMs[0]
	vm.Probes = []string{"missing"}
	_, err := s.ProbesForVM(vm)
	assert.ErrorContains(t, err, "undeclared probe")
}

func TestProbeDefinition_EffectivePhase(t *testing.T) {
	assert.Equal(t, PhasePost, ProbeDefinition{}.EffectivePhase())
	assert.Equal(t, PhaseBoot, ProbeDefinition{Phase: PhaseBoot}.EffectivePhase())
}
