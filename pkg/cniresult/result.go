// Package cniresult builds the CNI result JSON written to stdout on a
// successful ADD (spec §6).
package cniresult

import (
	"net"

	"github.com/containernetworking/cni/pkg/types"
	current "github.com/containernetworking/cni/pkg/types/100"
)

// BuildAddResult returns the CNI result for a successful ADD: the Pod
// address, the gateway, the interface name, and the sandbox (netns path).
func BuildAddResult(cniVersion, ifName, sandbox string, podAddr *net.IPNet, gateway net.IP) *current.Result {
	containerInterfaceIndex := 0
	return &current.Result{
		CNIVersion: cniVersion,
		Interfaces: []*current.Interface{
			{Name: ifName, Sandbox: sandbox},
		},
		IPs: []*current.IPConfig{
			{
				Address:   *podAddr,
				Gateway:   gateway,
				Interface: &containerInterfaceIndex,
			},
		},
		Routes: []*types.Route{
			{
				Dst: net.IPNet{IP: net.IPv4zero, Mask: net.CIDRMask(0, 32)},
				GW:  gateway,
			},
		},
	}
}

// BuildVersionResult returns the response for the VERSION command.
func BuildVersionResult(cniVersion string) map[string]interface{} {
	return map[string]interface{}{
		"cniVersion":        cniVersion,
		"supportedVersions": []string{"0.3.0", "0.3.1", "0.4.0"},
	}
}
