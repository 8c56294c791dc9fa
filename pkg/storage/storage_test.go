package storage

import (
	"context"
	"testing"

	"github.com/ohno-cni/ohno/pkg/kvclient"
	"github.com/ohno-cni/ohno/pkg/model"
)

func newTestStorage() *Storage {
	return New(kvclient.NewMemClient())
}

func TestSubnetLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage()

	if _, ok, err := s.GetNodeSubnet(ctx, "node-a"); err != nil || ok {
		t.Fatalf("GetNodeSubnet before Set: ok=%v err=%v", ok, err)
	}
	if err := s.SetNodeSubnet(ctx, "node-a", "10.0.0.0/24"); err != nil {
		t.Fatalf("SetNodeSubnet: %v", err)
	}
	if err := s.AddSubnet(ctx, "10.0.0.0/24"); err != nil {
		t.Fatalf("AddSubnet: %v", err)
	}

	cidr, ok, err := s.GetNodeSubnet(ctx, "node-a")
	if err != nil || !ok || cidr != "10.0.0.0/24" {
		t.Fatalf("GetNodeSubnet = %q ok=%v err=%v", cidr, ok, err)
	}

	subnets, err := s.ListSubnets(ctx)
	if err != nil || len(subnets) != 1 {
		t.Fatalf("ListSubnets = %v err=%v", subnets, err)
	}

	if err := s.DeleteNodeSubnet(ctx, "node-a"); err != nil {
		t.Fatalf("DeleteNodeSubnet: %v", err)
	}
	if err := s.RemoveSubnet(ctx, "10.0.0.0/24"); err != nil {
		t.Fatalf("RemoveSubnet: %v", err)
	}
	if _, ok, _ := s.GetNodeSubnet(ctx, "node-a"); ok {
		t.Fatalf("subnet should be gone after DeleteNodeSubnet")
	}
}

func TestAddressLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage()

	if err := s.AddAddress(ctx, "node-a", "10.0.0.1/24"); err != nil {
		t.Fatalf("AddAddress: %v", err)
	}
	if err := s.AddAddress(ctx, "node-a", "10.0.0.2/24"); err != nil {
		t.Fatalf("AddAddress: %v", err)
	}
	addrs, err := s.ListAddresses(ctx, "node-a")
	if err != nil || len(addrs) != 2 {
		t.Fatalf("ListAddresses = %v err=%v", addrs, err)
	}

	if err := s.RemoveAddress(ctx, "node-a", "10.0.0.1/24"); err != nil {
		t.Fatalf("RemoveAddress: %v", err)
	}
	addrs, _ = s.ListAddresses(ctx, "node-a")
	if len(addrs) != 1 || addrs[0] != "10.0.0.2/24" {
		t.Fatalf("ListAddresses after remove = %v", addrs)
	}
}

func TestPodLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage()

	if err := s.AddPod(ctx, "node-a", "cid-1", "netns-1"); err != nil {
		t.Fatalf("AddPod: %v", err)
	}

	pods, err := s.ListPods(ctx, "node-a")
	if err != nil || len(pods) != 1 || pods[0] != "cid-1" {
		t.Fatalf("ListPods = %v err=%v", pods, err)
	}

	netns, ok, err := s.GetPodNetns(ctx, "node-a", "cid-1")
	if err != nil || !ok || netns != "netns-1" {
		t.Fatalf("GetPodNetns = %q ok=%v err=%v", netns, ok, err)
	}

	cid, ok, err := s.GetNetnsPod(ctx, "node-a", "netns-1")
	if err != nil || !ok || cid != "cid-1" {
		t.Fatalf("GetNetnsPod = %q ok=%v err=%v", cid, ok, err)
	}

	if err := s.AddNic(ctx, "node-a", "cid-1", "eth0"); err != nil {
		t.Fatalf("AddNic: %v", err)
	}
	if err := s.AddAddr(ctx, "node-a", "cid-1", "eth0", "10.0.0.5/24"); err != nil {
		t.Fatalf("AddAddr: %v", err)
	}
	route := model.Route{Dest: "", Via: "10.0.0.1", Dev: "eth0"}
	if err := s.AddRoute(ctx, "node-a", "cid-1", "eth0", route); err != nil {
		t.Fatalf("AddRoute: %v", err)
	}

	if err := s.DelPod(ctx, "node-a", "cid-1"); err != nil {
		t.Fatalf("DelPod: %v", err)
	}

	if pods, _ := s.ListPods(ctx, "node-a"); len(pods) != 0 {
		t.Fatalf("ListPods after DelPod = %v, want empty", pods)
	}
	if _, ok, _ := s.GetNetnsPod(ctx, "node-a", "netns-1"); ok {
		t.Fatalf("netns-to-pod mapping should be gone after DelPod")
	}
}

func TestEncodeDecodeRoute(t *testing.T) {
	r := model.Route{Dest: "10.0.0.0/24", Via: "10.0.0.1", Dev: "eth0"}
	encoded := EncodeRoute(r)
	decoded, err := DecodeRoute(encoded)
	if err != nil {
		t.Fatalf("DecodeRoute: %v", err)
	}
	if decoded != r {
		t.Fatalf("DecodeRoute(EncodeRoute(r)) = %+v, want %+v", decoded, r)
	}

	if _, err := DecodeRoute("not-a-valid-route"); err == nil {
		t.Fatalf("expected error decoding a malformed route")
	}
}

func TestNicLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage()

	if err := s.AddNic(ctx, "node-a", "cid-1", "eth0"); err != nil {
		t.Fatalf("AddNic: %v", err)
	}
	if err := s.AddNic(ctx, "node-a", "cid-1", "veth-x"); err != nil {
		t.Fatalf("AddNic: %v", err)
	}
	nics, err := s.ListNics(ctx, "node-a", "cid-1")
	if err != nil || len(nics) != 2 {
		t.Fatalf("ListNics = %v err=%v", nics, err)
	}

	if err := s.AddAddr(ctx, "node-a", "cid-1", "eth0", "10.0.0.5/24"); err != nil {
		t.Fatalf("AddAddr: %v", err)
	}
	if err := s.DelNic(ctx, "node-a", "cid-1", "eth0"); err != nil {
		t.Fatalf("DelNic: %v", err)
	}
	nics, _ = s.ListNics(ctx, "node-a", "cid-1")
	if len(nics) != 1 || nics[0] != "veth-x" {
		t.Fatalf("ListNics after DelNic = %v", nics)
	}
	addrs, err := s.ListAddrs(ctx, "node-a", "cid-1", "eth0")
	if err != nil || len(addrs) != 0 {
		t.Fatalf("ListAddrs for deleted nic = %v err=%v", addrs, err)
	}
}

func TestVTEPPublication(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage()

	if _, _, ok, err := s.GetVTEP(ctx, "node-a"); err != nil || ok {
		t.Fatalf("GetVTEP before publish: ok=%v err=%v", ok, err)
	}
	if err := s.SetVTEP(ctx, "node-a", "192.168.1.10", "aa:bb:cc:dd:ee:ff"); err != nil {
		t.Fatalf("SetVTEP: %v", err)
	}
	addr, mac, ok, err := s.GetVTEP(ctx, "node-a")
	if err != nil || !ok || addr != "192.168.1.10" || mac != "aa:bb:cc:dd:ee:ff" {
		t.Fatalf("GetVTEP = %q %q ok=%v err=%v", addr, mac, ok, err)
	}
}

func TestDump(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage()
	if err := s.SetNodeSubnet(ctx, "node-a", "10.0.0.0/24"); err != nil {
		t.Fatalf("SetNodeSubnet: %v", err)
	}
	dump, err := s.Dump(ctx)
	if err != nil {
		t.Fatalf("Dump: %v", err)
	}
	if dump == "" {
		t.Fatalf("Dump returned empty output with data present")
	}
}
