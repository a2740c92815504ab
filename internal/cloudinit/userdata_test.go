package cloudinit

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intar-dev/intar-cli/internal/scenario"
)

func TestBuildCloudConfig_AgentUnitInstalled(t *testing.T) {
	vm := scenario.VMDefinition{Name: "control-plane"}
	cfg := buildCloudConfig(vm, &scenario.Run{ID: "run1"}, []byte("fake-binary"), "ssh-ed25519 AAAA test", nil)

	require.Len(t, cfg.Users, 1)
	assert.Equal(t, "intar", cfg.Users[0].Name)
	assert.Contains(t, cfg.Users[0].SSHAuthorizedKeys, "ssh-ed25519 AAAA test")

	var foundBinary, foundUnit bool
	for _, wf := range cfg.WriteFiles {
		if wf.Path == "/usr/local/bin/intar-agent" {
			foundBinary = true
			assert.Equal(t, "base64", wf.Encoding)
		}
		if wf.Path == "/etc/systemd/system/intar-agent.service" {
			foundUnit = true
		}
	}
	assert.True(t, foundBinary)
	assert.True(t, foundUnit)
	assert.Contains(t, cfg.RunCmd, "systemctl enable --now intar-agent.service")
}

func TestBuildCloudConfig_SiblingHosts(t *testing.T) {
	vm := scenario.VMDefinition{Name: "worker"}
	siblings := map[string]net.IP{"control-plane": net.ParseIP("10.77.0.2")}
	cfg := buildCloudConfig(vm, &scenario.Run{ID: "run1"}, []byte("x"), "key", siblings)

	var found bool
	for _, wf := range cfg.WriteFiles {
		if wf.Path == "/etc/hosts.intar-siblings" {
			found = true
			assert.Contains(t, wf.Content, "10.77.0.2 control-plane")
		}
	}
	assert.True(t, found)
}

func TestBuildCloudConfig_BootTimeFileWrites(t *testing.T) {
	vm := scenario.VMDefinition{
		Name: "control-plane",
		Steps: []scenario.Step{
			{
				Name: "boot",
				Actions: []scenario.Action{
					{Kind: scenario.ActionFileWrite, Path: "/etc/intar-marker", Content: "hi", Permissions: 0o600},
				},
			},
			{
				Name: "configure",
				Actions: []scenario.Action{
					{Kind: scenario.ActionFileWrite, Path: "/etc/should-not-be-here", Content: "no"},
				},
			},
		},
	}
	cfg := buildCloudConfig(vm, &scenario.Run{ID: "run1"}, []byte("x"), "key", nil)

	var markerFound, otherFound bool
	for _, wf := range cfg.WriteFiles {
		if wf.Path == "/etc/intar-marker" {
			markerFound = true
			assert.Equal(t, "0600", wf.Permissions)
		}
		if wf.Path == "/etc/should-not-be-here" {
			otherFound = true
		}
	}
	assert.True(t, markerFound)
	assert.False(t, otherFound, "only the boot step's file writes belong in cloud-init")
}

func TestInstanceID_StableWithinRun(t *testing.T) {
	assert.Equal(t, instanceID("run1", "vm1"), instanceID("run1", "vm1"))
	assert.NotEqual(t, instanceID("run1", "vm1"), instanceID("run2", "vm1"))
}
