package cniresult

import (
	"net"
	"testing"
)

func TestBuildAddResult(t *testing.T) {
	podAddr := &net.IPNet{IP: net.ParseIP("10.244.0.5"), Mask: net.CIDRMask(24, 32)}
	gateway := net.ParseIP("10.244.0.1")

	result := BuildAddResult("0.3.1", "eth0", "/var/run/netns/pod-1", podAddr, gateway)

	if result.CNIVersion != "0.3.1" {
		t.Fatalf("CNIVersion = %q", result.CNIVersion)
	}
	if len(result.Interfaces) != 1 || result.Interfaces[0].Name != "eth0" {
		t.Fatalf("Interfaces = %+v", result.Interfaces)
	}
	if result.Interfaces[0].Sandbox != "/var/run/netns/pod-1" {
		t.Fatalf("Sandbox = %q", result.Interfaces[0].Sandbox)
	}
	if len(result.IPs) != 1 || !result.IPs[0].Address.IP.Equal(podAddr.IP) {
		t.Fatalf("IPs = %+v", result.IPs)
	}
	if !result.IPs[0].Gateway.Equal(gateway) {
		t.Fatalf("Gateway = %v, want %v", result.IPs[0].Gateway, gateway)
	}
	if len(result.Routes) != 1 || !result.Routes[0].GW.Equal(gateway) {
		t.Fatalf("Routes = %+v", result.Routes)
	}
	if result.Routes[0].Dst.String() != "0.0.0.0/0" {
		t.Fatalf("default route destination = %s, want 0.0.0.0/0", result.Routes[0].Dst.String())
	}
}

func TestBuildVersionResult(t *testing.T) {
	result := BuildVersionResult("0.3.1")
	if result["cniVersion"] != "0.3.1" {
		t.Fatalf("cniVersion = %v", result["cniVersion"])
	}
	versions, ok := result["supportedVersions"].([]string)
	if !ok || len(versions) == 0 {
		t.Fatalf("supportedVersions = %v", result["supportedVersions"])
	}
}
