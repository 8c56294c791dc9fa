// Package netlinkops is the Netlink capability of spec §4.1: a one-op-per
// kernel-object abstraction over links, veths, bridges, vxlans, vrfs,
// addresses, routes, neighbors, and fdb entries. Each mutating op is
// idempotent: add skips the kernel call (but reports success) when the
// object already exists; del tolerates the object already being absent.
package netlinkops

import (
	"net"

	"github.com/containernetworking/plugins/pkg/ns"
)

// NhFlag is the next-hop flag set on a route.
type NhFlag string

const (
	NhNone   NhFlag = "none"
	NhOnlink NhFlag = "onlink"
)

// BridgeSlaveMode selects whether SetBridgeSlave attaches or detaches a
// device from a bridge.
type BridgeSlaveMode string

const (
	SlaveBridge   BridgeSlaveMode = "bridge"
	SlaveNoMaster BridgeSlaveMode = "nomaster"
)

// NetOps is the abstract Netlink capability the rest of the core consumes.
// Ops with a targetNS parameter run in that netns; the zero value (nil)
// means the current namespace. LinkMoveToNetns needs a non-nil targetNS.
// The create ops, SetVxlanSlave, and the fdb ops take no netns and always
// run in the current namespace.
type NetOps interface {
	// link
	LinkDestroy(targetNS ns.NetNS, name string) error
	LinkExists(targetNS ns.NetNS, name string) bool
	LinkSetStatus(targetNS ns.NetNS, name string, up bool) error
	LinkIsInNetns(targetNS ns.NetNS, name string) bool
	LinkMoveToNetns(name string, targetNS ns.NetNS) error
	LinkRename(targetNS ns.NetNS, oldName, newName string) error
	LinkMAC(targetNS ns.NetNS, name string) (string, error)

	// veth
	VethCreate(hostName, peerName string, mtu int) error

	// bridge
	BridgeCreate(name string) error
	SetBridgeSlave(targetNS ns.NetNS, device string, mode BridgeSlaveMode, bridge string) error

	// vxlan
	VxlanCreate(name string, vni int, underlayAddr net.IP, underlayDev string, dstPort int) error
	SetVxlanSlave(device string, neighSuppress, learning bool) error

	// vrf
	VrfCreate(name string, table int) error

	// address
	AddrExists(targetNS ns.NetNS, device string, cidr string) bool
	SetAddr(targetNS ns.NetNS, add bool, device string, cidr string) error

	// route
	RouteExists(targetNS ns.NetNS, dest, via, dev string) bool
	SetRoute(targetNS ns.NetNS, add bool, dest, via, dev string, flag NhFlag) error

	// neigh (ARP)
	NeighExists(targetNS ns.NetNS, addr, mac, dev string) bool
	SetNeigh(targetNS ns.NetNS, add bool, addr, mac, dev string) error

	// fdb
	FdbExists(mac, dev, remote string) bool
	SetFdb(add bool, mac, dev, remote string) error
}
