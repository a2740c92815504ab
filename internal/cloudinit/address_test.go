package cloudinit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAllocateAddress(t *testing.T) {
	assert.Equal(t, "10.77.0.2", AllocateAddress(0).String())
	assert.Equal(t, "10.77.0.3", AllocateAddress(1).String())
	assert.Equal(t, "10.77.0.12", AllocateAddress(10).String())
}

func TestAllocateAddress_Deterministic(t *testing.T) {
	assert.Equal(t, AllocateAddress(5).String(), AllocateAddress(5).String())
}

func TestGateway(t *testing.T) {
	assert.Equal(t, "10.77.0.1", Gateway())
}
