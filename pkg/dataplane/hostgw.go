package dataplane

import (
	"context"
	"sync"

	"k8s.io/klog/v2"

	"github.com/ohno-cni/ohno/pkg/clusterview"
	"github.com/ohno-cni/ohno/pkg/ipam"
	"github.com/ohno-cni/ohno/pkg/netlinkops"
)

// HostGW is the host-gateway dataplane strategy (spec §4.9): for every
// other node that already owns a subnet, install a static route to that
// node's podCIDR via its underlay address. L2 adjacency between nodes is
// assumed, as the mode's name implies.
type HostGW struct {
	Cluster  clusterview.ClusterView
	IPAM     ipam.Allocator
	NetOps   netlinkops.NetOps
	NodeName string

	mu    sync.Mutex
	cache map[string]string // peer node name -> installed podCIDR
}

// NewHostGW returns a HostGW strategy for nodeName.
func NewHostGW(cluster clusterview.ClusterView, alloc ipam.Allocator, netOps netlinkops.NetOps, nodeName string) *HostGW {
	return &HostGW{
		Cluster:  cluster,
		IPAM:     alloc,
		NetOps:   netOps,
		NodeName: nodeName,
		cache:    map[string]string{},
	}
}

func (h *HostGW) Name() string { return "host-gw" }

// EventHandler installs a route for every new peer subnet and removes
// routes for peers (or itself) that no longer have a subnet, per spec §4.9
// and the Open Question in spec §9 resolved there: remove when either side
// has lost its subnet.
func (h *HostGW) EventHandler(ctx context.Context) error {
	_, hasLocal, err := h.IPAM.GetSubnet(ctx, h.NodeName)
	if err != nil {
		return err
	}

	nodes, err := h.Cluster.GetKubernetesDataAll(ctx)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for name, data := range nodes {
		if name == h.NodeName {
			continue
		}
		peerSubnet, hasPeer, err := h.IPAM.GetSubnet(ctx, name)
		if err != nil {
			klog.Errorf("dataplane/host-gw: get subnet for %s: %v", name, err)
			continue
		}
		if !hasPeer {
			continue
		}
		if _, cached := h.cache[name]; cached {
			continue
		}
		if err := h.NetOps.SetRoute(nil, true, peerSubnet, data.InternalIP, "", netlinkops.NhNone); err != nil {
			klog.Errorf("dataplane/host-gw: install route to %s via %s: %v", peerSubnet, data.InternalIP, err)
			continue
		}
		h.cache[name] = peerSubnet
		klog.V(2).Infof("dataplane/host-gw: installed route %s via %s (node %s)", peerSubnet, data.InternalIP, name)
	}

	for name, cachedSubnet := range h.cache {
		_, hasPeer, err := h.IPAM.GetSubnet(ctx, name)
		if err != nil {
			klog.Errorf("dataplane/host-gw: get subnet for %s: %v", name, err)
			continue
		}
		if hasLocal && hasPeer {
			continue
		}
		via := ""
		if data, ok := nodes[name]; ok {
			via = data.InternalIP
		}
		if err := h.NetOps.SetRoute(nil, false, cachedSubnet, via, "", netlinkops.NhNone); err != nil {
			klog.Errorf("dataplane/host-gw: remove route %s: %v", cachedSubnet, err)
		}
		delete(h.cache, name)
		klog.V(2).Infof("dataplane/host-gw: removed route %s (node %s gone)", cachedSubnet, name)
	}

	return nil
}
