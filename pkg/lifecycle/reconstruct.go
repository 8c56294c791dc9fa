package lifecycle

import (
	"context"
	"fmt"

	"github.com/ohno-cni/ohno/pkg/cniconfig"
	"github.com/ohno-cni/ohno/pkg/model"
	"github.com/ohno-cni/ohno/pkg/storage"
)

// reconstruct rebuilds a partial in-memory Cluster from Storage for the
// current node only, read-only, so that successive ADDs can be idempotent
// and DEL can find what ADD created (spec §4.5).
func reconstruct(ctx context.Context, store *storage.Storage, cfg *cniconfig.Config, nodeName, underlayDev string) (*model.Cluster, error) {
	cluster := model.NewCluster()

	subnetCIDR, ok, err := store.GetNodeSubnet(ctx, nodeName)
	if err != nil {
		return nil, fmt.Errorf("reconstruct: get node subnet: %w", err)
	}
	if !ok {
		// First ADD on this node: nothing to reconstruct.
		return cluster, nil
	}

	subnet, err := model.ParseSubnet(subnetCIDR)
	if err != nil {
		return nil, fmt.Errorf("reconstruct: parse node subnet: %w", err)
	}

	node := model.NewNode(nodeName)
	node.Subnet = subnet
	node.HasSubnet = true
	cluster.Nodes[nodeName] = node

	pods, err := store.ListPods(ctx, nodeName)
	if err != nil {
		return nil, fmt.Errorf("reconstruct: list pods: %w", err)
	}

	for _, podName := range pods {
		netnsLabel := model.HostNetns
		if podName != model.HostNetns {
			label, ok, err := store.GetPodNetns(ctx, nodeName, podName)
			if err != nil {
				return nil, fmt.Errorf("reconstruct: get netns for pod %s: %w", podName, err)
			}
			if ok {
				netnsLabel = label
			}
		}
		netns, ok := node.Netnss[netnsLabel]
		if !ok {
			netns = &model.Netns{Name: netnsLabel}
			node.Netnss[netnsLabel] = netns
		}

		nicNames, err := store.ListNics(ctx, nodeName, podName)
		if err != nil {
			return nil, fmt.Errorf("reconstruct: list nics for pod %s: %w", podName, err)
		}
		for _, nicName := range nicNames {
			nic := classifyNic(cfg, podName, nicName, underlayDev)
			nic.NetnsLabel = netnsLabel

			cidrs, err := store.ListAddrs(ctx, nodeName, podName, nicName)
			if err != nil {
				return nil, fmt.Errorf("reconstruct: list addrs for nic %s: %w", nicName, err)
			}
			for _, cidr := range cidrs {
				addr, err := model.ParseAddr(cidr)
				if err != nil {
					return nil, fmt.Errorf("reconstruct: parse addr %q: %w", cidr, err)
				}
				nic.Addrs = append(nic.Addrs, addr)
				if nic.Kind == model.NicBridge && node.GatewayAddr == nil {
					node.GatewayAddr = addr.IP
				}
			}

			routes, err := store.ListRoutes(ctx, nodeName, podName, nicName)
			if err != nil {
				return nil, fmt.Errorf("reconstruct: list routes for nic %s: %w", nicName, err)
			}
			nic.Routes = routes

			netns.Nics = append(netns.Nics, nic)
		}
	}

	return cluster, nil
}

// classifyNic picks the correct Nic variant for a persisted nic name:
// Underlay if it belongs to the host pod and matches the machine's
// underlay device, Bridge if it matches the configured bridge name,
// generic otherwise (spec §4.5 step 2).
func classifyNic(cfg *cniconfig.Config, podName, nicName, underlayDev string) *model.Nic {
	kind := model.NicGeneric
	switch {
	case podName == model.HostNetns && nicName == underlayDev:
		kind = model.NicUnderlay
	case nicName == cfg.Bridge:
		kind = model.NicBridge
	}
	return &model.Nic{Name: nicName, Kind: kind}
}
