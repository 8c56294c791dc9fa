package dataplane

import (
	"context"

	"github.com/ohno-cni/ohno/pkg/clusterview"
)

type fakeCluster struct {
	nodes map[string]clusterview.NodeData
}

func (f *fakeCluster) GetKubernetesData(_ context.Context, node string) (clusterview.NodeData, error) {
	return f.nodes[node], nil
}

func (f *fakeCluster) GetKubernetesDataAll(_ context.Context) (map[string]clusterview.NodeData, error) {
	return f.nodes, nil
}

func (f *fakeCluster) Test(_ context.Context) error { return nil }

// fakeAllocator reports a fixed subnet per node, simulating the piece of
// IPAM's Allocator interface the dataplane strategies actually call.
type fakeAllocator struct {
	subnets map[string]string
}

func (f *fakeAllocator) AllocateSubnet(_ context.Context, node string) (string, error) {
	return f.subnets[node], nil
}
func (f *fakeAllocator) ReleaseSubnet(_ context.Context, node, cidr string) {}
func (f *fakeAllocator) GetSubnet(_ context.Context, node string) (string, bool, error) {
	cidr, ok := f.subnets[node]
	return cidr, ok, nil
}
func (f *fakeAllocator) AllocateIP(_ context.Context, node string) (string, error) { return "", nil }
func (f *fakeAllocator) ReleaseIP(_ context.Context, node, addr string)            {}
