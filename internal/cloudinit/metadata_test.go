package cloudinit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInstanceID(t *testing.T) {
	assert.Equal(t, "run-20260101-web", instanceID("run-20260101", "web"))
}

func TestBuildMetaData(t *testing.T) {
	m := buildMetaData("run-20260101", "web")
	assert.Equal(t, "run-20260101-web", m.InstanceID)
	assert.Equal(t, "web", m.LocalHostname)
}
