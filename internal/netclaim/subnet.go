package netclaim

import (
	"fmt"
	"net/netip"
)

// SameSubnet reports whether two IPv4 addresses share the /prefixLen subnet.
// Invalid input yields false.
func SameSubnet(a, b string, prefixLen int) bool {
	addrA, errA := netip.ParseAddr(a)
	addrB, errB := netip.ParseAddr(b)
	if errA != nil || errB != nil {
		return false
	}
	prefix, err := addrA.Prefix(prefixLen)
	if err != nil {
		return false
	}
	return prefix.Contains(addrB)
}

// SubnetBroadcast computes the directed broadcast address of the subnet that
// contains ip.
func SubnetBroadcast(ip string, prefixLen int) (string, error) {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return "", fmt.Errorf("netclaim: invalid address %q: %w", ip, err)
	}
	if !addr.Is4() {
		return "", fmt.Errorf("netclaim: %q is not an IPv4 address", ip)
	}
	if prefixLen < 0 || prefixLen > 32 {
		return "", fmt.Errorf("netclaim: invalid prefix length %d", prefixLen)
	}

	b := addr.As4()
	hostBits := 32 - prefixLen
	v := uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
	if hostBits == 32 {
		v = ^uint32(0)
	} else {
		v |= (1 << hostBits) - 1
	}
	out := netip.AddrFrom4([4]byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)})
	return out.String(), nil
}
