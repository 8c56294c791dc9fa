package model

import (
	"encoding/binary"
	"fmt"
	"net"
)

// Subnet is a parsed IPv4 CIDR with the host-address arithmetic the
// allocator needs (spec §3 Subnet).
type Subnet struct {
	Network *net.IPNet
}

// ParseSubnet parses an IPv4 CIDR string into a Subnet.
func ParseSubnet(cidr string) (Subnet, error) {
	_, n, err := net.ParseCIDR(cidr)
	if err != nil {
		return Subnet{}, fmt.Errorf("parse subnet %q: %w", cidr, err)
	}
	if n.IP.To4() == nil {
		return Subnet{}, fmt.Errorf("parse subnet %q: only IPv4 is supported", cidr)
	}
	return Subnet{Network: n}, nil
}

func (s Subnet) String() string {
	return s.Network.String()
}

func (s Subnet) ones() int {
	ones, _ := s.Network.Mask.Size()
	return ones
}

// MaxHosts returns the number of usable host addresses (network and
// broadcast excluded), per spec §3/§8: a /32 yields 1 (there is no
// distinct broadcast to exclude when the whole subnet is a single host),
// and a /31 yields 2 (both of its addresses count as hosts).
func (s Subnet) MaxHosts() int {
	ones := s.ones()
	hostBits := 32 - ones
	if hostBits <= 0 {
		return 1
	}
	total := 1 << uint(hostBits)
	if total <= 2 {
		return total
	}
	return total - 2
}

// GenerateHostIP returns the index-th usable host address (1-based: index
// 1 is the first address after the network address; on a /31, which has
// no network or broadcast address, index 1 is the subnet's first address).
// Index 0 and any index beyond MaxHosts are refused. A /32 reports MaxHosts() == 1 (the
// single address the prefix names) but has no room to address a "first
// host after the network address" distinct from the network address
// itself, so every index is refused there (spec §8: "generateIp refuses
// index < 1 or index > 0").
func (s Subnet) GenerateHostIP(index int) (net.IP, error) {
	if s.ones() >= 32 {
		return nil, fmt.Errorf("generate-host-ip: subnet %s has no addressable host range", s)
	}
	if index < 1 || index > s.MaxHosts() {
		return nil, fmt.Errorf("generate-host-ip: index %d out of range [1,%d] for %s", index, s.MaxHosts(), s)
	}
	base := ip4ToUint32(s.Network.IP.To4())
	if s.ones() == 31 {
		return uint32ToIP4(base + uint32(index) - 1), nil
	}
	return uint32ToIP4(base + uint32(index)), nil
}

// IsSubnetOf reports whether s is contained within other.
func (s Subnet) IsSubnetOf(other Subnet) bool {
	ourOnes := s.ones()
	otherOnes := other.ones()
	if otherOnes > ourOnes {
		return false
	}
	return other.Network.Contains(s.Network.IP)
}

func ip4ToUint32(ip net.IP) uint32 {
	return binary.BigEndian.Uint32(ip.To4())
}

func uint32ToIP4(v uint32) net.IP {
	b := make(net.IP, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}
