package dataplane

import (
	"context"
	"testing"

	"github.com/ohno-cni/ohno/pkg/clusterview"
)

func TestHostGWInstallsRouteForNewPeer(t *testing.T) {
	ctx := context.Background()
	netOps := newFakeNetOps()
	alloc := &fakeAllocator{subnets: map[string]string{
		"node-a": "10.244.0.0/24",
		"node-b": "10.244.1.0/24",
	}}
	cluster := &fakeCluster{nodes: map[string]clusterview.NodeData{
		"node-a": {Name: "node-a", InternalIP: "192.168.1.1"},
		"node-b": {Name: "node-b", InternalIP: "192.168.1.2"},
	}}

	hg := NewHostGW(cluster, alloc, netOps, "node-a")
	if err := hg.EventHandler(ctx); err != nil {
		t.Fatalf("EventHandler: %v", err)
	}

	if !netOps.RouteExists(nil, "10.244.1.0/24", "192.168.1.2", "") {
		t.Fatalf("expected a route to peer node-b's subnet")
	}
	if netOps.RouteExists(nil, "10.244.0.0/24", "192.168.1.1", "") {
		t.Fatalf("did not expect a route installed for the local node")
	}
}

func TestHostGWRemovesRouteWhenPeerLosesSubnet(t *testing.T) {
	ctx := context.Background()
	netOps := newFakeNetOps()
	alloc := &fakeAllocator{subnets: map[string]string{
		"node-a": "10.244.0.0/24",
		"node-b": "10.244.1.0/24",
	}}
	cluster := &fakeCluster{nodes: map[string]clusterview.NodeData{
		"node-a": {Name: "node-a", InternalIP: "192.168.1.1"},
		"node-b": {Name: "node-b", InternalIP: "192.168.1.2"},
	}}
	hg := NewHostGW(cluster, alloc, netOps, "node-a")
	if err := hg.EventHandler(ctx); err != nil {
		t.Fatalf("EventHandler: %v", err)
	}
	if !netOps.RouteExists(nil, "10.244.1.0/24", "192.168.1.2", "") {
		t.Fatalf("expected route to exist before the peer loses its subnet")
	}

	delete(alloc.subnets, "node-b")
	if err := hg.EventHandler(ctx); err != nil {
		t.Fatalf("EventHandler: %v", err)
	}
	if netOps.RouteExists(nil, "10.244.1.0/24", "192.168.1.2", "") {
		t.Fatalf("expected the route to node-b to be removed once it lost its subnet")
	}
}

func TestHostGWRemovesAllPeerRoutesWhenLocalLosesSubnet(t *testing.T) {
	ctx := context.Background()
	netOps := newFakeNetOps()
	alloc := &fakeAllocator{subnets: map[string]string{
		"node-a": "10.244.0.0/24",
		"node-b": "10.244.1.0/24",
	}}
	cluster := &fakeCluster{nodes: map[string]clusterview.NodeData{
		"node-a": {Name: "node-a", InternalIP: "192.168.1.1"},
		"node-b": {Name: "node-b", InternalIP: "192.168.1.2"},
	}}
	hg := NewHostGW(cluster, alloc, netOps, "node-a")
	if err := hg.EventHandler(ctx); err != nil {
		t.Fatalf("EventHandler: %v", err)
	}

	delete(alloc.subnets, "node-a")
	if err := hg.EventHandler(ctx); err != nil {
		t.Fatalf("EventHandler: %v", err)
	}
	if netOps.RouteExists(nil, "10.244.1.0/24", "192.168.1.2", "") {
		t.Fatalf("expected every peer route to be removed once the local node lost its subnet")
	}
}

func TestHostGWName(t *testing.T) {
	hg := NewHostGW(nil, nil, nil, "node-a")
	if hg.Name() != "host-gw" {
		t.Fatalf("Name() = %q, want host-gw", hg.Name())
	}
}
