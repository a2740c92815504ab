package cloudinit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildNetworkConfig(t *testing.T) {
	cfg := buildNetworkConfig(0)
	assert.Equal(t, 2, cfg.Version)

	nat, ok := cfg.Ethernets["enp0s2"]
	require.True(t, ok)
	assert.True(t, nat.DHCP4)
	assert.Empty(t, nat.Addresses)

	cluster, ok := cfg.Ethernets["enp0s3"]
	require.True(t, ok)
	assert.False(t, cluster.DHCP4)
	require.Len(t, cluster.Addresses, 1)
	assert.Equal(t, "10.77.0.2/24", cluster.Addresses[0])
	assert.Equal(t, Gateway(), cluster.Gateway4)
}

func TestBuildNetworkConfig_IndexAffectsAddress(t *testing.T) {
	cfg := buildNetworkConfig(3)
	assert.Equal(t, "10.77.0.5/24", cfg.Ethernets["enp0s3"].Addresses[0])
}
