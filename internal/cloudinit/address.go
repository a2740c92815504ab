package cloudinit

import (
	"fmt"
	"net"
)

// clusterCIDR is the reserved /24 the cluster NIC draws static addresses
// from. .1 is reserved for the host side of the private network.
const clusterCIDR = "10.77.0.0/24"

// AllocateAddress returns the static IPv4 address assigned to the VM at the
// given ordinal position (its index in Scenario.VMs). Deterministic and
// pure, so it is testable without touching the network.
func AllocateAddress(index int) net.IP {
	_, ipNet, err := net.ParseCIDR(clusterCIDR)
	if err != nil {
		panic(err) // clusterCIDR is a compile-time constant
	}
	ip := append(net.IP{}, ipNet.IP.To4()...)
	ip[3] = byte(index + 2) // .1 reserved for the host
	return ip
}

// Netmask returns the dotted netmask for clusterCIDR.
func Netmask() string {
	_, ipNet, _ := net.ParseCIDR(clusterCIDR)
	mask := ipNet.Mask
	return fmt.Sprintf("%d.%d.%d.%d", mask[0], mask[1], mask[2], mask[3])
}

// Gateway returns the host-side address of the cluster network.
func Gateway() string {
	_, ipNet, _ := net.ParseCIDR(clusterCIDR)
	ip := append(net.IP{}, ipNet.IP.To4()...)
	ip[3] = 1
	return ip.String()
}
