package dataplane

import (
	"net"

	"github.com/containernetworking/plugins/pkg/ns"

	"github.com/ohno-cni/ohno/pkg/netlinkops"
)

// fakeNetOps is an in-memory netlinkops.NetOps, standing in for the kernel
// the way the teacher's own plugin tests fake their NetOps collaborator.
type fakeNetOps struct {
	links   map[string]bool
	routes  map[string]bool
	neighs  map[string]bool
	fdbs    map[string]bool
	slaves  map[string]string
	vxlans  map[string]bool
	vrfs    map[string]bool
	bridges map[string]bool

	failSetNeigh bool
	failSetFdb   bool
}

func newFakeNetOps() *fakeNetOps {
	return &fakeNetOps{
		links:   map[string]bool{},
		routes:  map[string]bool{},
		neighs:  map[string]bool{},
		fdbs:    map[string]bool{},
		slaves:  map[string]string{},
		vxlans:  map[string]bool{},
		vrfs:    map[string]bool{},
		bridges: map[string]bool{},
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

func (f *fakeNetOps) BridgeCreate(name string) error {
	f.bridges[name] = true
	f.links[name] = true
	return nil
}
func (f *fakeNetOps) SetBridgeSlave(_ ns.NetNS, device string, mode netlinkops.BridgeSlaveMode, bridge string) error {
	if mode == netlinkops.SlaveNoMaster {
		delete(f.slaves, device)
		return nil
	}
	f.slaves[device] = bridge
	return nil
}

func (f *fakeNetOps) VxlanCreate(name string, vni int, underlayAddr net.IP, underlayDev string, dstPort int) error {
	f.vxlans[name] = true
	f.links[name] = true
	return nil
}
func (f *fakeNetOps) SetVxlanSlave(device string, neighSuppress, learning bool) error { return nil }

func (f *fakeNetOps) VrfCreate(name string, table int) error {
	f.vrfs[name] = true
	f.links[name] = true
	return nil
}

func (f *fakeNetOps) AddrExists(_ ns.NetNS, device string, cidr string) bool { return false }
func (f *fakeNetOps) SetAddr(_ ns.NetNS, add bool, device string, cidr string) error { return nil }

func routeKey(dest, via, dev string) string { return dest + "|" + via + "|" + dev }

func (f *fakeNetOps) RouteExists(_ ns.NetNS, dest, via, dev string) bool {
	return f.routes[routeKey(dest, via, dev)]
}
func (f *fakeNetOps) SetRoute(_ ns.NetNS, add bool, dest, via, dev string, flag netlinkops.NhFlag) error {
	key := routeKey(dest, via, dev)
	if add {
		f.routes[key] = true
	} else {
		delete(f.routes, key)
	}
	return nil
}

func neighKey(addr, mac, dev string) string { return addr + "|" + mac + "|" + dev }

func (f *fakeNetOps) NeighExists(_ ns.NetNS, addr, mac, dev string) bool {
	return f.neighs[neighKey(addr, mac, dev)]
}
func (f *fakeNetOps) SetNeigh(_ ns.NetNS, add bool, addr, mac, dev string) error {
	if f.failSetNeigh && add {
		return errFakeNetOps
	}
	key := neighKey(addr, mac, dev)
	if add {
		f.neighs[key] = true
	} else {
		delete(f.neighs, key)
	}
	return nil
}

func fdbKey(mac, dev, remote string) string { return mac + "|" + dev + "|" + remote }

func (f *fakeNetOps) FdbExists(mac, dev, remote string) bool { return f.fdbs[fdbKey(mac, dev, remote)] }
func (f *fakeNetOps) SetFdb(add bool, mac, dev, remote string) error {
	if f.failSetFdb && add {
		return errFakeNetOps
	}
	key := fdbKey(mac, dev, remote)
	if add {
		f.fdbs[key] = true
	} else {
		delete(f.fdbs, key)
	}
	return nil
}

type fakeNetOpsErr string

func (e fakeNetOpsErr) Error() string { return string(e) }

const errFakeNetOps = fakeNetOpsErr("fakeNetOps: simulated failure")
