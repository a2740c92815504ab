package cloudinit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intar-dev/intar-cli/internal/scenario"
)

func twoVMScenario() *scenario.Scenario {
	return &scenario.Scenario{
		VMs: []scenario.VMDefinition{
			{Name: "web"},
			{Name: "db"},
		},
	}
}

func TestVMIndex(t *testing.T) {
	s := twoVMScenario()
	assert.Equal(t, 0, vmIndex(s, "web"))
	assert.Equal(t, 1, vmIndex(s, "db"))
	assert.Equal(t, -1, vmIndex(s, "missing"))
}

func TestSiblingHosts_ExcludesSelf(t *testing.T) {
	s := twoVMScenario()
	hosts := siblingHosts(s, "web")
	require.Len(t, hosts, 1)
	addr, ok := hosts["db"]
	require.True(t, ok)
	assert.Equal(t, AllocateAddress(1), addr)
	_, ok = hosts["web"]
	assert.False(t, ok)
}
