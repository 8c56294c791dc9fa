//go:build linux

// Package underlay identifies the node name and underlay device/address
// triple (spec §4.6 step 1), shared by both the plugin and the daemon
// entrypoints.
package underlay

import (
	"fmt"
	"net"
	"os"

	"github.com/vishvananda/netlink"
)

// Identify reads the hostname, the default-route device, and that
// device's primary IPv4 address — the underlay triple spec §4.6 step 1
// requires before any other ADD/DEL work.
func Identify() (nodeName, underlayDev, underlayAddr string, err error) {
	nodeName, err = os.Hostname()
	if err != nil {
		return "", "", "", fmt.Errorf("identify node: read hostname: %w", err)
	}

	dev, addr, err := defaultRouteUnderlay()
	if err != nil {
		return "", "", "", err
	}
	return nodeName, dev, addr, nil
}

// defaultRouteUnderlay finds the device carrying the default IPv4 route
// and that device's first IPv4 address.
func defaultRouteUnderlay() (dev, addr string, err error) {
	routes, err := netlink.RouteList(nil, netlink.FAMILY_V4)
	if err != nil {
		return "", "", fmt.Errorf("identify node: list routes: %w", err)
	}
	var linkIndex int
	found := false
	for _, r := range routes {
		if r.Dst == nil {
			linkIndex = r.LinkIndex
			found = true
			break
		}
	}
	if !found {
		return "", "", fmt.Errorf("identify node: no default route found")
	}

	link, err := netlink.LinkByIndex(linkIndex)
	if err != nil {
		return "", "", fmt.Errorf("identify node: lookup default route device: %w", err)
	}

	addrs, err := netlink.AddrList(link, netlink.FAMILY_V4)
	if err != nil {
		return "", "", fmt.Errorf("identify node: list addresses on %s: %w", link.Attrs().Name, err)
	}
	for _, a := range addrs {
		if ip4 := a.IP.To4(); ip4 != nil {
			return link.Attrs().Name, (net.IP(ip4)).String(), nil
		}
	}
	return "", "", fmt.Errorf("identify node: device %s has no IPv4 address", link.Attrs().Name)
}
