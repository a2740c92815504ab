package cloudinit

// networkConfig is cloud-init's network-config v2 document: a user-mode NIC
// for outbound internet (DHCP from QEMU's built-in NAT) and a cluster NIC
// with a static address from the reserved /24.
type networkConfig struct {
	Version   int                     `yaml:"version"`
	Ethernets map[string]ethernetSpec `yaml:"ethernets"`
}

type ethernetSpec struct {
	DHCP4       bool     `yaml:"dhcp4,omitempty"`
	Addresses   []string `yaml:"addresses,omitempty"`
	Gateway4    string   `yaml:"gateway4,omitempty"`
}

// buildNetworkConfig renders the two-NIC layout for a VM at the given
// ordinal index.
func buildNetworkConfig(index int) networkConfig {
	addr := AllocateAddress(index)
	return networkConfig{
		Version: 2,
		Ethernets: map[string]ethernetSpec{
			"enp0s2": {DHCP4: true},
			"enp0s3": {
				Addresses: []string{addr.String() + "/24"},
				Gateway4:  Gateway(),
			},
		},
	}
}
