//go:build linux

package netlinkops

import (
	"fmt"
	"net"

	"github.com/containernetworking/plugins/pkg/ns"
	"github.com/vishvananda/netlink"
	"k8s.io/klog/v2"
)

// LinuxNetOps is the vishvananda/netlink-backed implementation of NetOps.
type LinuxNetOps struct{}

// NewLinuxNetOps returns a NetOps implementation backed by native netlink
// bindings.
func NewLinuxNetOps() *LinuxNetOps {
	return &LinuxNetOps{}
}

// withNS runs fn inside targetNS, or in the current namespace when
// targetNS is nil.
func withNS(targetNS ns.NetNS, fn func() error) error {
	if targetNS == nil {
		return fn()
	}
	return targetNS.Do(func(_ ns.NetNS) error { return fn() })
}

func linkByName(name string) (netlink.Link, error) {
	link, err := netlink.LinkByName(name)
	if err != nil {
		return nil, fmt.Errorf("netlinkops: lookup link %q: %w", name, err)
	}
	return link, nil
}

func isNotExist(err error) bool {
	if err == nil {
		return false
	}
	_, ok := err.(netlink.LinkNotFoundError)
	return ok
}

func (o *LinuxNetOps) LinkDestroy(targetNS ns.NetNS, name string) error {
	return withNS(targetNS, func() error {
		link, err := netlink.LinkByName(name)
		if err != nil {
			if isNotExist(err) {
				return nil
			}
			return fmt.Errorf("netlinkops: lookup link %q for delete: %w", name, err)
		}
		if err := netlink.LinkDel(link); err != nil {
			return fmt.Errorf("netlinkops: delete link %q: %w", name, err)
		}
		return nil
	})
}

func (o *LinuxNetOps) LinkExists(targetNS ns.NetNS, name string) bool {
	exists := false
	_ = withNS(targetNS, func() error {
		_, err := netlink.LinkByName(name)
		exists = err == nil
		return nil
	})
	return exists
}

func (o *LinuxNetOps) LinkSetStatus(targetNS ns.NetNS, name string, up bool) error {
	return withNS(targetNS, func() error {
		link, err := linkByName(name)
		if err != nil {
			return err
		}
		if up {
			if err := netlink.LinkSetUp(link); err != nil {
				return fmt.Errorf("netlinkops: set link %q up: %w", name, err)
			}
			return nil
		}
		if err := netlink.LinkSetDown(link); err != nil {
			return fmt.Errorf("netlinkops: set link %q down: %w", name, err)
		}
		return nil
	})
}

func (o *LinuxNetOps) LinkIsInNetns(targetNS ns.NetNS, name string) bool {
	return o.LinkExists(targetNS, name)
}

func (o *LinuxNetOps) LinkMoveToNetns(name string, targetNS ns.NetNS) error {
	link, err := linkByName(name)
	if err != nil {
		return err
	}
	fd := int(targetNS.Fd())
	if err := netlink.LinkSetNsFd(link, fd); err != nil {
		return fmt.Errorf("netlinkops: move link %q to netns: %w", name, err)
	}
	return nil
}

func (o *LinuxNetOps) LinkRename(targetNS ns.NetNS, oldName, newName string) error {
	return withNS(targetNS, func() error {
		link, err := linkByName(oldName)
		if err != nil {
			return err
		}
		if err := netlink.LinkSetName(link, newName); err != nil {
			return fmt.Errorf("netlinkops: rename link %q to %q: %w", oldName, newName, err)
		}
		return nil
	})
}

func (o *LinuxNetOps) LinkMAC(targetNS ns.NetNS, name string) (string, error) {
	var mac string
	err := withNS(targetNS, func() error {
		link, err := linkByName(name)
		if err != nil {
			return err
		}
		mac = link.Attrs().HardwareAddr.String()
		return nil
	})
	return mac, err
}

func (o *LinuxNetOps) VethCreate(hostName, peerName string, mtu int) error {
	if o.LinkExists(nil, hostName) {
		return nil
	}
	veth := &netlink.Veth{
		LinkAttrs: netlink.LinkAttrs{Name: hostName, MTU: mtu},
		PeerName:  peerName,
	}
	if err := netlink.LinkAdd(veth); err != nil {
		return fmt.Errorf("netlinkops: create veth %s/%s: %w", hostName, peerName, err)
	}
	return nil
}

func (o *LinuxNetOps) BridgeCreate(name string) error {
	if o.LinkExists(nil, name) {
		return o.LinkSetStatus(nil, name, true)
	}
	br := &netlink.Bridge{LinkAttrs: netlink.LinkAttrs{Name: name}}
	if err := netlink.LinkAdd(br); err != nil {
		return fmt.Errorf("netlinkops: create bridge %q: %w", name, err)
	}
	return o.LinkSetStatus(nil, name, true)
}

func (o *LinuxNetOps) SetBridgeSlave(targetNS ns.NetNS, device string, mode BridgeSlaveMode, bridge string) error {
	return withNS(targetNS, func() error {
		link, err := linkByName(device)
		if err != nil {
			return err
		}
		switch mode {
		case SlaveBridge:
			master, err := linkByName(bridge)
			if err != nil {
				return err
			}
			if err := netlink.LinkSetMaster(link, master); err != nil {
				return fmt.Errorf("netlinkops: set %q master %q: %w", device, bridge, err)
			}
		case SlaveNoMaster:
			if err := netlink.LinkSetNoMaster(link); err != nil {
				return fmt.Errorf("netlinkops: clear master on %q: %w", device, err)
			}
		}
		return o.LinkSetStatus(nil, device, true)
	})
}

func (o *LinuxNetOps) VxlanCreate(name string, vni int, underlayAddr net.IP, underlayDev string, dstPort int) error {
	if o.LinkExists(nil, name) {
		return o.LinkSetStatus(nil, name, true)
	}
	vx := &netlink.Vxlan{
		LinkAttrs: netlink.LinkAttrs{Name: name},
		VxlanId:   vni,
		SrcAddr:   underlayAddr,
		Port:      dstPort,
		Learning:  true,
	}
	if underlayDev != "" {
		if dev, err := linkByName(underlayDev); err == nil {
			vx.VtepDevIndex = dev.Attrs().Index
		}
	}
	if err := netlink.LinkAdd(vx); err != nil {
		return fmt.Errorf("netlinkops: create vxlan %q: %w", name, err)
	}
	return o.LinkSetStatus(nil, name, true)
}

func (o *LinuxNetOps) SetVxlanSlave(device string, neighSuppress, learning bool) error {
	link, err := linkByName(device)
	if err != nil {
		return err
	}
	vx, ok := link.(*netlink.Vxlan)
	if !ok {
		return fmt.Errorf("netlinkops: %q is not a vxlan device", device)
	}
	if err := netlink.LinkSetLearning(vx, learning); err != nil {
		return fmt.Errorf("netlinkops: set learning on %q: %w", device, err)
	}
	if neighSuppress {
		if err := netlink.LinkSetBrNeighSuppress(vx, true); err != nil {
			klog.Warningf("netlinkops: neigh-suppress unsupported on %q: %v", device, err)
		}
	}
	return nil
}

func (o *LinuxNetOps) VrfCreate(name string, table int) error {
	if o.LinkExists(nil, name) {
		return o.LinkSetStatus(nil, name, true)
	}
	vrf := &netlink.Vrf{
		LinkAttrs: netlink.LinkAttrs{Name: name},
		Table:     uint32(table),
	}
	if err := netlink.LinkAdd(vrf); err != nil {
		return fmt.Errorf("netlinkops: create vrf %q: %w", name, err)
	}
	return o.LinkSetStatus(nil, name, true)
}

func (o *LinuxNetOps) AddrExists(targetNS ns.NetNS, device string, cidr string) bool {
	exists := false
	_ = withNS(targetNS, func() error {
		link, err := linkByName(device)
		if err != nil {
			return nil
		}
		addrs, err := netlink.AddrList(link, netlink.FAMILY_V4)
		if err != nil {
			return nil
		}
		for _, a := range addrs {
			if a.IPNet.String() == cidr {
				exists = true
				return nil
			}
		}
		return nil
	})
	return exists
}

func (o *LinuxNetOps) SetAddr(targetNS ns.NetNS, add bool, device string, cidr string) error {
	return withNS(targetNS, func() error {
		link, err := linkByName(device)
		if err != nil {
			return err
		}
		ip, ipNet, err := net.ParseCIDR(cidr)
		if err != nil {
			return fmt.Errorf("netlinkops: parse address %q: %w", cidr, err)
		}
		nladdr := &netlink.Addr{IPNet: &net.IPNet{IP: ip, Mask: ipNet.Mask}}
		if add {
			if o.AddrExists(nil, device, cidr) {
				return nil
			}
			if err := netlink.AddrAdd(link, nladdr); err != nil {
				return fmt.Errorf("netlinkops: add address %s to %q: %w", cidr, device, err)
			}
			return nil
		}
		if err := netlink.AddrDel(link, nladdr); err != nil {
			klog.V(4).Infof("netlinkops: delete address %s from %q: %v (tolerated)", cidr, device, err)
		}
		return nil
	})
}

func parseRouteDest(dest string) (*net.IPNet, error) {
	if dest == "" {
		return &net.IPNet{IP: net.IPv4zero, Mask: net.CIDRMask(0, 32)}, nil
	}
	_, ipNet, err := net.ParseCIDR(dest)
	if err != nil {
		return nil, fmt.Errorf("netlinkops: parse route dest %q: %w", dest, err)
	}
	return ipNet, nil
}

func buildRoute(dest, via, dev string, flag NhFlag) (*netlink.Route, error) {
	dst, err := parseRouteDest(dest)
	if err != nil {
		return nil, err
	}
	route := &netlink.Route{Dst: dst}
	if via != "" {
		route.Gw = net.ParseIP(via)
	}
	if dev != "" {
		link, err := linkByName(dev)
		if err != nil {
			return nil, err
		}
		route.LinkIndex = link.Attrs().Index
	}
	if flag == NhOnlink {
		route.Flags = int(netlink.FLAG_ONLINK)
	}
	return route, nil
}

func (o *LinuxNetOps) RouteExists(targetNS ns.NetNS, dest, via, dev string) bool {
	exists := false
	_ = withNS(targetNS, func() error {
		route, err := buildRoute(dest, via, dev, NhNone)
		if err != nil {
			return nil
		}
		routes, err := netlink.RouteListFiltered(netlink.FAMILY_V4, route, netlink.RT_FILTER_DST)
		if err != nil {
			return nil
		}
		exists = len(routes) > 0
		return nil
	})
	return exists
}

func (o *LinuxNetOps) SetRoute(targetNS ns.NetNS, add bool, dest, via, dev string, flag NhFlag) error {
	return withNS(targetNS, func() error {
		route, err := buildRoute(dest, via, dev, flag)
		if err != nil {
			return err
		}
		if add {
			if o.RouteExists(nil, dest, via, dev) {
				return nil
			}
			if err := netlink.RouteAdd(route); err != nil {
				return fmt.Errorf("netlinkops: add route %s via %s dev %s: %w", dest, via, dev, err)
			}
			return nil
		}
		if err := netlink.RouteDel(route); err != nil {
			klog.V(4).Infof("netlinkops: delete route %s via %s dev %s: %v (tolerated)", dest, via, dev, err)
		}
		return nil
	})
}

func (o *LinuxNetOps) NeighExists(targetNS ns.NetNS, addr, mac, dev string) bool {
	exists := false
	_ = withNS(targetNS, func() error {
		link, err := linkByName(dev)
		if err != nil {
			return nil
		}
		neighs, err := netlink.NeighList(link.Attrs().Index, netlink.FAMILY_V4)
		if err != nil {
			return nil
		}
		for _, n := range neighs {
			if n.IP.String() == addr && n.HardwareAddr.String() == mac {
				exists = true
				return nil
			}
		}
		return nil
	})
	return exists
}

func (o *LinuxNetOps) SetNeigh(targetNS ns.NetNS, add bool, addr, mac, dev string) error {
	return withNS(targetNS, func() error {
		link, err := linkByName(dev)
		if err != nil {
			return err
		}
		hwAddr, err := net.ParseMAC(mac)
		if err != nil {
			return fmt.Errorf("netlinkops: parse neigh mac %q: %w", mac, err)
		}
		neigh := &netlink.Neigh{
			LinkIndex:    link.Attrs().Index,
			State:        netlink.NUD_PERMANENT,
			IP:           net.ParseIP(addr),
			HardwareAddr: hwAddr,
		}
		if add {
			if o.NeighExists(nil, addr, mac, dev) {
				return nil
			}
			if err := netlink.NeighAdd(neigh); err != nil {
				return fmt.Errorf("netlinkops: add neigh %s/%s on %q: %w", addr, mac, dev, err)
			}
			return nil
		}
		if err := netlink.NeighDel(neigh); err != nil {
			klog.V(4).Infof("netlinkops: delete neigh %s/%s on %q: %v (tolerated)", addr, mac, dev, err)
		}
		return nil
	})
}

func (o *LinuxNetOps) FdbExists(mac, dev, remote string) bool {
	exists := false
	link, err := linkByName(dev)
	if err != nil {
		return false
	}
	neighs, err := netlink.NeighList(link.Attrs().Index, 0)
	if err != nil {
		return false
	}
	for _, n := range neighs {
		if n.HardwareAddr.String() == mac && n.IP.String() == remote {
			exists = true
			break
		}
	}
	return exists
}

func (o *LinuxNetOps) SetFdb(add bool, mac, dev, remote string) error {
	link, err := linkByName(dev)
	if err != nil {
		return err
	}
	hwAddr, err := net.ParseMAC(mac)
	if err != nil {
		return fmt.Errorf("netlinkops: parse fdb mac %q: %w", mac, err)
	}
	entry := &netlink.Neigh{
		LinkIndex:    link.Attrs().Index,
		Family:       netlink.FAMILY_V4,
		State:        netlink.NUD_PERMANENT,
		Flags:        netlink.NTF_SELF,
		HardwareAddr: hwAddr,
		IP:           net.ParseIP(remote),
	}
	if add {
		if o.FdbExists(mac, dev, remote) {
			return nil
		}
		if err := netlink.NeighAppend(entry); err != nil {
			return fmt.Errorf("netlinkops: add fdb %s/%s on %q: %w", mac, remote, dev, err)
		}
		return nil
	}
	if err := netlink.NeighDel(entry); err != nil {
		klog.V(4).Infof("netlinkops: delete fdb %s/%s on %q: %v (tolerated)", mac, remote, dev, err)
	}
	return nil
}
