// Package model is the in-memory mirror of what this plugin has configured
// on the local node (spec §3, §4.5, §9). It is owned top-down by
// composition: Cluster -> Node -> Netns -> Nic -> {Addr,Route,Neigh,Fdb}.
// Nothing below holds a back-pointer to its owner; every mutation re-derives
// the owning node from the request context instead.
package model

import "net"

// HostNetns is the reserved netns label for the root namespace.
const HostNetns = "host"

// Addr is a parsed IPv4 address with prefix (spec §3 Addr).
type Addr struct {
	CIDR string
	IP   net.IP
	Net  *net.IPNet
}

// ParseAddr parses a CIDR string into an Addr, round-tripping back to the
// same string via GetAddrCidr (spec §8 round-trip property).
func ParseAddr(cidr string) (Addr, error) {
	ip, ipNet, err := net.ParseCIDR(cidr)
	if err != nil {
		return Addr{}, err
	}
	ones, _ := ipNet.Mask.Size()
	return Addr{
		CIDR: cidr,
		IP:   ip,
		Net:  &net.IPNet{IP: ip, Mask: net.CIDRMask(ones, 32)},
	}, nil
}

// GetAddrCidr returns the address in its original CIDR form.
func (a Addr) GetAddrCidr() string {
	return a.CIDR
}

// Route is a Route entry (spec §3 Route); Dest == "" means the default
// route.
type Route struct {
	Dest string
	Via  string
	Dev  string
}

// Neigh is an ARP/ND cache entry (spec §3 Neigh).
type Neigh struct {
	Addr string
	MAC  string
	Dev  string
}

// Fdb is a bridge forwarding-table entry (spec §3 Fdb).
type Fdb struct {
	MAC    string
	Remote string
	Dev    string
}

// NicKind discriminates the polymorphic Nic variants of spec §3/§9.
type NicKind string

const (
	NicGeneric  NicKind = "generic"
	NicBridge   NicKind = "bridge"
	NicVeth     NicKind = "veth"
	NicVxlan    NicKind = "vxlan"
	NicVrf      NicKind = "vrf"
	NicUnderlay NicKind = "underlay"
)

// Nic is a single network interface this plugin knows about. The Kind
// discriminant controls cleanup policy: Destroyable (USER) Nics are torn
// down by DEL's teardown, non-destroyable (SYS) Nics — Underlay — are left alone
// at the link level (spec §3, §9).
type Nic struct {
	Name       string
	NetnsLabel string
	Kind       NicKind
	Up         bool

	// PeerName is set for Veth Nics.
	PeerName string
	// UnderlayAddr/UnderlayDev are set for Vxlan Nics.
	UnderlayAddr string
	UnderlayDev  string
	VNI          int
	// Table is set for Vrf Nics.
	Table int

	Addrs  []Addr
	Routes []Route
	Neighs []Neigh
	Fdbs   []Fdb
}

// Destroyable reports whether DEL's teardown should destroy the underlying kernel
// link (USER types) or leave it alone (SYS types, i.e. Underlay).
func (n *Nic) Destroyable() bool {
	return n.Kind != NicUnderlay
}

// Netns is a Linux network namespace, identified by its label ("host" for
// the root namespace, otherwise the owning container id).
type Netns struct {
	Name string
	Nics []*Nic
}

// NicByName returns the Nic with the given name, or nil.
func (n *Netns) NicByName(name string) *Nic {
	for _, nic := range n.Nics {
		if nic.Name == name {
			return nic
		}
	}
	return nil
}

// Node is one Linux host in the cluster.
type Node struct {
	Name         string
	Subnet       Subnet
	HasSubnet    bool
	UnderlayAddr net.IP
	UnderlayDev  string
	Netnss       map[string]*Netns
	GatewayAddr  net.IP
}

// NewNode returns an empty Node with its "host" namespace created.
func NewNode(name string) *Node {
	return &Node{
		Name:   name,
		Netnss: map[string]*Netns{HostNetns: {Name: HostNetns}},
	}
}

// NetnsByLabel returns the Netns for label, or nil.
func (n *Node) NetnsByLabel(label string) *Netns {
	return n.Netnss[label]
}

// HostNetnsObj returns the reserved root-namespace Netns.
func (n *Node) HostNetnsObj() *Netns {
	return n.Netnss[HostNetns]
}

// PodCount returns the number of non-host Netns entries, i.e. Pods.
func (n *Node) PodCount() int {
	count := 0
	for label := range n.Netnss {
		if label != HostNetns {
			count++
		}
	}
	return count
}

// Cluster is the mapping of node name to Node; it is rebuilt from Storage
// on every invocation and carries no cross-invocation in-memory state
// (spec §3, §4.5).
type Cluster struct {
	Nodes map[string]*Node
}

// NewCluster returns an empty Cluster.
func NewCluster() *Cluster {
	return &Cluster{Nodes: map[string]*Node{}}
}

// NodeByName returns the named Node, or nil if unmodeled.
func (c *Cluster) NodeByName(name string) *Node {
	return c.Nodes[name]
}
