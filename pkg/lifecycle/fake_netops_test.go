package lifecycle

import (
	"net"

	"github.com/containernetworking/plugins/pkg/ns"

	"github.com/ohno-cni/ohno/pkg/netlinkops"
)

// fakeNetOps is an in-memory netlinkops.NetOps, standing in for the kernel
// the way the teacher's own plugin tests fake their NetOps collaborator.
type fakeNetOps struct {
	links  map[string]bool
	addrs  map[string]bool
	routes map[string]bool
	slaves map[string]string
}

func newFakeNetOps() *fakeNetOps {
	return &fakeNetOps{
		links:  map[string]bool{},
		addrs:  map[string]bool{},
		routes: map[string]bool{},
		slaves: map[string]string{},
	}
}

func (f *fakeNetOps) LinkDestroy(_ ns.NetNS, name string) error { delete(f.links, name); return nil }
func (f *fakeNetOps) LinkExists(_ ns.NetNS, name string) bool   { return f.links[name] }
func (f *fakeNetOps) LinkSetStatus(_ ns.NetNS, name string, up bool) error {
	f.links[name] = true
	return nil
}
func (f *fakeNetOps) LinkIsInNetns(_ ns.NetNS, name string) bool { return f.links[name] }
func (f *fakeNetOps) LinkMoveToNetns(name string, _ ns.NetNS) error {
	f.links[name] = true
	return nil
}
func (f *fakeNetOps) LinkRename(_ ns.NetNS, oldName, newName string) error {
	delete(f.links, oldName)
	f.links[newName] = true
	return nil
}
func (f *fakeNetOps) LinkMAC(_ ns.NetNS, name string) (string, error) {
	return "00:11:22:33:44:55", nil
}

func (f *fakeNetOps) VethCreate(hostName, peerName string, mtu int) error {
	f.links[hostName] = true
	f.links[peerName] = true
	return nil
}

func (f *fakeNetOps) BridgeCreate(name string) error { f.links[name] = true; return nil }
func (f *fakeNetOps) SetBridgeSlave(_ ns.NetNS, device string, mode netlinkops.BridgeSlaveMode, bridge string) error {
	if mode == netlinkops.SlaveNoMaster {
		delete(f.slaves, device)
		return nil
	}
	f.slaves[device] = bridge
	return nil
}

func (f *fakeNetOps) VxlanCreate(name string, vni int, underlayAddr net.IP, underlayDev string, dstPort int) error {
	f.links[name] = true
	return nil
}
func (f *fakeNetOps) SetVxlanSlave(device string, neighSuppress, learning bool) error { return nil }

func (f *fakeNetOps) VrfCreate(name string, table int) error { f.links[name] = true; return nil }

func (f *fakeNetOps) AddrExists(_ ns.NetNS, device string, cidr string) bool {
	return f.addrs[device+"|"+cidr]
}
func (f *fakeNetOps) SetAddr(_ ns.NetNS, add bool, device string, cidr string) error {
	key := device + "|" + cidr
	if add {
		f.addrs[key] = true
	} else {
		delete(f.addrs, key)
	}
	return nil
}

func (f *fakeNetOps) RouteExists(_ ns.NetNS, dest, via, dev string) bool {
	return f.routes[dest+"|"+via+"|"+dev]
}
func (f *fakeNetOps) SetRoute(_ ns.NetNS, add bool, dest, via, dev string, flag netlinkops.NhFlag) error {
	key := dest + "|" + via + "|" + dev
	if add {
		f.routes[key] = true
	} else {
		delete(f.routes, key)
	}
	return nil
}

func (f *fakeNetOps) NeighExists(_ ns.NetNS, addr, mac, dev string) bool { return false }
func (f *fakeNetOps) SetNeigh(_ ns.NetNS, add bool, addr, mac, dev string) error { return nil }

func (f *fakeNetOps) FdbExists(mac, dev, remote string) bool { return false }
func (f *fakeNetOps) SetFdb(add bool, mac, dev, remote string) error { return nil }

// fakeNetNS is a no-op ns.NetNS, since lifecycle code only ever routes it
// through NetOps calls and closes it; it never dereferences the handle.
type fakeNetNS struct {
	path string
}

func (f *fakeNetNS) Do(toRun func(ns.NetNS) error) error { return toRun(f) }
func (f *fakeNetNS) Set() error                          { return nil }
func (f *fakeNetNS) Path() string                         { return f.path }
func (f *fakeNetNS) Fd() uintptr                          { return 0 }
func (f *fakeNetNS) Close() error                         { return nil }
