package dataplane

import (
	"context"
	"fmt"
	"net"
	"sync"

	"k8s.io/klog/v2"

	"github.com/ohno-cni/ohno/pkg/clusterview"
	"github.com/ohno-cni/ohno/pkg/ipam"
	"github.com/ohno-cni/ohno/pkg/netlinkops"
	"github.com/ohno-cni/ohno/pkg/storage"
)

// VxlanDeviceName is the kernel VXLAN device every node's overlay traffic
// flows through (spec §4.9: "VXLAN device NAME_VXLAN").
const VxlanDeviceName = "vxlan0"

// DefaultVxlanDstPort is the standard VXLAN UDP destination port.
const DefaultVxlanDstPort = 4789

// vxlanPeer is the set of kernel objects installed for one remote node.
type vxlanPeer struct {
	subnet     string
	vtepAddr   string
	vtepMac    string
	internalIP string
}

// Vxlan is the VXLAN overlay dataplane strategy (spec §4.9): each node
// publishes its VTEP address and MAC into Storage, and for every peer with
// a subnet this strategy installs a route, an ARP entry, and an FDB entry
// keyed to the local VXLAN device.
type Vxlan struct {
	Cluster  clusterview.ClusterView
	IPAM     ipam.Allocator
	Storage  *storage.Storage
	NetOps   netlinkops.NetOps
	NodeName string

	UnderlayAddr net.IP
	UnderlayDev  string
	VNI          int
	DstPort      int

	mu    sync.Mutex
	cache map[string]vxlanPeer
}

// NewVxlan returns a Vxlan strategy for nodeName.
func NewVxlan(cluster clusterview.ClusterView, alloc ipam.Allocator, store *storage.Storage, netOps netlinkops.NetOps, nodeName string, underlayAddr net.IP, underlayDev string, vni int) *Vxlan {
	dstPort := DefaultVxlanDstPort
	return &Vxlan{
		Cluster:      cluster,
		IPAM:         alloc,
		Storage:      store,
		NetOps:       netOps,
		NodeName:     nodeName,
		UnderlayAddr: underlayAddr,
		UnderlayDev:  underlayDev,
		VNI:          vni,
		DstPort:      dstPort,
		cache:        map[string]vxlanPeer{},
	}
}

func (v *Vxlan) Name() string { return "vxlan" }

// EventHandler ensures the local VXLAN device exists, publishes this
// node's VTEP, and reconciles per-peer route/ARP/FDB triples (spec §4.9).
func (v *Vxlan) EventHandler(ctx context.Context) error {
	if err := v.NetOps.VxlanCreate(VxlanDeviceName, v.VNI, v.UnderlayAddr, v.UnderlayDev, v.DstPort); err != nil {
		return fmt.Errorf("dataplane/vxlan: ensure local vxlan device: %w", err)
	}

	mac, err := v.NetOps.LinkMAC(nil, VxlanDeviceName)
	if err != nil {
		return fmt.Errorf("dataplane/vxlan: read local vtep mac: %w", err)
	}
	if err := v.Storage.SetVTEP(ctx, v.NodeName, v.UnderlayAddr.String(), mac); err != nil {
		return fmt.Errorf("dataplane/vxlan: publish local vtep: %w", err)
	}

	_, hasLocal, err := v.IPAM.GetSubnet(ctx, v.NodeName)
	if err != nil {
		return err
	}

	nodes, err := v.Cluster.GetKubernetesDataAll(ctx)
	if err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	for name, data := range nodes {
		if name == v.NodeName {
			continue
		}
		peerSubnet, hasPeer, err := v.IPAM.GetSubnet(ctx, name)
		if err != nil || !hasPeer {
			continue
		}
		if _, cached := v.cache[name]; cached {
			continue
		}
		peerVtepAddr, peerVtepMac, ok, err := v.Storage.GetVTEP(ctx, name)
		if err != nil || !ok {
			continue
		}
		if err := v.addPeer(ctx, peerSubnet, peerVtepAddr, peerVtepMac, data.InternalIP); err != nil {
			klog.Errorf("dataplane/vxlan: add peer %s: %v", name, err)
			continue
		}
		v.cache[name] = vxlanPeer{subnet: peerSubnet, vtepAddr: peerVtepAddr, vtepMac: peerVtepMac, internalIP: data.InternalIP}
	}

	for name, peer := range v.cache {
		_, hasPeer, err := v.IPAM.GetSubnet(ctx, name)
		if err != nil {
			klog.Errorf("dataplane/vxlan: get subnet for %s: %v", name, err)
			continue
		}
		if hasLocal && hasPeer {
			continue
		}
		v.removePeer(peer)
		delete(v.cache, name)
	}

	return nil
}

// addPeer installs the route/ARP/FDB triple for one peer; on partial
// failure it removes whatever of the three already succeeded (spec §4.9).
func (v *Vxlan) addPeer(ctx context.Context, peerSubnet, peerVtepAddr, peerVtepMac, peerInternalIP string) error {
	if err := v.NetOps.SetRoute(nil, true, peerSubnet, peerVtepAddr, VxlanDeviceName, netlinkops.NhOnlink); err != nil {
		return fmt.Errorf("install route: %w", err)
	}
	if err := v.NetOps.SetNeigh(nil, true, peerVtepAddr, peerVtepMac, VxlanDeviceName); err != nil {
		_ = v.NetOps.SetRoute(nil, false, peerSubnet, peerVtepAddr, VxlanDeviceName, netlinkops.NhOnlink)
		return fmt.Errorf("install arp entry: %w", err)
	}
	if err := v.NetOps.SetFdb(true, peerVtepMac, VxlanDeviceName, peerInternalIP); err != nil {
		_ = v.NetOps.SetNeigh(nil, false, peerVtepAddr, peerVtepMac, VxlanDeviceName)
		_ = v.NetOps.SetRoute(nil, false, peerSubnet, peerVtepAddr, VxlanDeviceName, netlinkops.NhOnlink)
		return fmt.Errorf("install fdb entry: %w", err)
	}
	return nil
}

// removePeer removes all three kernel objects for a departed peer; every
// removal is attempted even if an earlier one failed (spec §4.9).
func (v *Vxlan) removePeer(peer vxlanPeer) {
	if err := v.NetOps.SetRoute(nil, false, peer.subnet, peer.vtepAddr, VxlanDeviceName, netlinkops.NhOnlink); err != nil {
		klog.Errorf("dataplane/vxlan: remove route %s: %v", peer.subnet, err)
	}
	if err := v.NetOps.SetNeigh(nil, false, peer.vtepAddr, peer.vtepMac, VxlanDeviceName); err != nil {
		klog.Errorf("dataplane/vxlan: remove arp entry %s: %v", peer.vtepAddr, err)
	}
	if err := v.NetOps.SetFdb(false, peer.vtepMac, VxlanDeviceName, peer.internalIP); err != nil {
		klog.Errorf("dataplane/vxlan: remove fdb entry %s: %v", peer.vtepMac, err)
	}
}
