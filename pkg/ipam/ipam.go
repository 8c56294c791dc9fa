// Package ipam is the IP Address Management allocator of spec §4.3: it
// hands out per-node subnets and per-Pod addresses over the KV store
// without collisions across concurrent invocations on many nodes.
package ipam

import (
	"context"
	"fmt"

	"github.com/ohno-cni/ohno/pkg/clusterview"
	"github.com/ohno-cni/ohno/pkg/model"
	"github.com/ohno-cni/ohno/pkg/storage"
	"k8s.io/klog/v2"
)

// Allocator is the IPAM capability the lifecycle engine and dataplane
// strategies consume.
type Allocator interface {
	AllocateSubnet(ctx context.Context, node string) (string, error)
	ReleaseSubnet(ctx context.Context, node, cidr string)
	GetSubnet(ctx context.Context, node string) (string, bool, error)
	AllocateIP(ctx context.Context, node string) (string, error)
	ReleaseIP(ctx context.Context, node, addr string)
}

// KVAllocator is the storage-backed Allocator implementation.
type KVAllocator struct {
	storage *storage.Storage
	cluster clusterview.ClusterView
}

// New returns an Allocator over storage, consulting cluster for per-node
// podCIDR assignment.
func New(store *storage.Storage, cluster clusterview.ClusterView) *KVAllocator {
	return &KVAllocator{storage: store, cluster: cluster}
}

// AllocateSubnet is idempotent: if the node already owns a subnet, it is
// returned unchanged. Otherwise the node's podCIDR is read from the
// cluster view, appended to the cluster-wide list (the commit point), then
// recorded as the node's own subnet; if that second write fails the append
// is rolled back with a del-token (spec §4.3).
func (a *KVAllocator) AllocateSubnet(ctx context.Context, node string) (string, error) {
	if existing, ok, err := a.storage.GetNodeSubnet(ctx, node); err != nil {
		return "", err
	} else if ok {
		return existing, nil
	}

	data, err := a.cluster.GetKubernetesData(ctx, node)
	if err != nil {
		return "", fmt.Errorf("ipam: read podCIDR for %s: %w", node, err)
	}
	if data.PodCIDR == "" {
		return "", fmt.Errorf("ipam: node %s has no podCIDR", node)
	}

	if err := a.storage.AddSubnet(ctx, data.PodCIDR); err != nil {
		return "", fmt.Errorf("ipam: commit cluster-wide subnet %s: %w", data.PodCIDR, err)
	}
	if err := a.storage.SetNodeSubnet(ctx, node, data.PodCIDR); err != nil {
		a.storage.RemoveSubnet(ctx, data.PodCIDR)
		return "", fmt.Errorf("ipam: record node subnet %s for %s: %w", data.PodCIDR, node, err)
	}
	return data.PodCIDR, nil
}

// ReleaseSubnet is best-effort: failures are logged, never returned, since
// callers invoke it during teardown paths that must not fail (spec §4.3,
// §4.7).
func (a *KVAllocator) ReleaseSubnet(ctx context.Context, node, cidr string) {
	if err := a.storage.DeleteNodeSubnet(ctx, node); err != nil {
		klog.Errorf("ipam: release node subnet for %s: %v", node, err)
	}
	if err := a.storage.RemoveSubnet(ctx, cidr); err != nil {
		klog.Errorf("ipam: release cluster-wide subnet %s: %v", cidr, err)
	}
}

// GetSubnet returns the subnet owned by node, if any.
func (a *KVAllocator) GetSubnet(ctx context.Context, node string) (string, bool, error) {
	return a.storage.GetNodeSubnet(ctx, node)
}

// AllocateIP enumerates host indices 1..MaxHosts() in order, skipping
// addresses already recorded in use, and appends the first free one. It
// requires the node subnet to already exist (spec §4.3).
//
// Note: the spec's stated enumeration bound (max-hosts-2) matches
// MaxHosts() already excluding network/broadcast, so the usable range here
// is 1..MaxHosts(); the "-2" in spec prose describes the same set relative
// to the subnet's raw address count.
func (a *KVAllocator) AllocateIP(ctx context.Context, node string) (string, error) {
	cidr, ok, err := a.storage.GetNodeSubnet(ctx, node)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("ipam: node %s has no subnet", node)
	}
	subnet, err := model.ParseSubnet(cidr)
	if err != nil {
		return "", err
	}

	used, err := a.storage.ListAddresses(ctx, node)
	if err != nil {
		return "", err
	}
	inUse := make(map[string]bool, len(used))
	for _, a := range used {
		inUse[a] = true
	}

	ones, _ := subnet.Network.Mask.Size()
	for i := 1; i <= subnet.MaxHosts(); i++ {
		ip, err := subnet.GenerateHostIP(i)
		if err != nil {
			return "", err
		}
		candidate := fmt.Sprintf("%s/%d", ip.String(), ones)
		if inUse[candidate] {
			continue
		}
		if err := a.storage.AddAddress(ctx, node, candidate); err != nil {
			return "", err
		}
		return candidate, nil
	}
	return "", fmt.Errorf("ipam: subnet %s on node %s is exhausted", cidr, node)
}

// ReleaseIP frees addr on node.
func (a *KVAllocator) ReleaseIP(ctx context.Context, node, addr string) {
	if err := a.storage.RemoveAddress(ctx, node, addr); err != nil {
		klog.Errorf("ipam: release address %s on %s: %v", addr, node, err)
	}
}
