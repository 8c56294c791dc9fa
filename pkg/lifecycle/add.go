package lifecycle

import (
	"context"
	"fmt"
	"net"

	"github.com/containernetworking/cni/pkg/skel"
	current "github.com/containernetworking/cni/pkg/types/100"
	"github.com/containernetworking/plugins/pkg/ns"
	"k8s.io/klog/v2"

	"github.com/ohno-cni/ohno/pkg/cniconfig"
	"github.com/ohno-cni/ohno/pkg/cnienv"
	"github.com/ohno-cni/ohno/pkg/cnierror"
	"github.com/ohno-cni/ohno/pkg/cniresult"
	"github.com/ohno-cni/ohno/pkg/model"
	"github.com/ohno-cni/ohno/pkg/netlinkops"
)

// Add performs CNI ADD: subnet/address allocation, bridge+veth wiring,
// default route installation, and result reporting (spec §4.6).
func (e *Engine) Add(ctx context.Context, args *skel.CmdArgs) (*current.Result, error) {
	env := cnienv.FromArgs(cnienv.CommandAdd, args)

	cluster, err := reconstruct(ctx, e.Storage, e.Config, e.NodeName, e.UnderlayDev)
	if err != nil {
		return nil, cnierror.New(e.Config.CNIVersion, cnierror.CodeInternal, "reconstruct cluster failed", err.Error())
	}

	node := cluster.NodeByName(e.NodeName)
	if node == nil {
		node, err = e.ensureNode(ctx)
		if err != nil {
			return nil, cnierror.New(e.Config.CNIVersion, cnierror.CodeInternal, "ensure node failed", err.Error())
		}
		cluster.Nodes[e.NodeName] = node
	}

	targetNS, err := e.openNS(env.NetnsPath)
	if err != nil {
		return nil, cnierror.New(e.Config.CNIVersion, cnierror.CodeIO, "open target netns failed", err.Error())
	}
	defer targetNS.Close()

	if err := e.ensurePodNetns(ctx, node, env.ContainerID, env.NetnsPath); err != nil {
		return nil, err
	}

	hostVeth, needsPlug, err := e.ensurePodNic(ctx, node, env.ContainerID, env.IfName, targetNS)
	if err != nil {
		return nil, cnierror.New(e.Config.CNIVersion, cnierror.CodeInternal, "ensure pod nic failed", err.Error())
	}

	if needsPlug {
		if err := e.plugHostEnd(hostVeth); err != nil {
			return nil, cnierror.New(e.Config.CNIVersion, cnierror.CodeInternal, "attach host veth to bridge failed", err.Error())
		}
	}

	podAddr, err := e.configurePodNetwork(ctx, node, env.ContainerID, env.IfName, targetNS)
	if err != nil {
		return nil, cnierror.New(e.Config.CNIVersion, cnierror.CodeInternal, "configure pod network failed", err.Error())
	}

	return cniresult.BuildAddResult(e.Config.CNIVersion, env.IfName, env.NetnsPath, podAddr, node.GatewayAddr), nil
}

func (e *Engine) openNS(path string) (ns.NetNS, error) {
	if e.OpenNS != nil {
		return e.OpenNS(path)
	}
	return ns.GetNS(path)
}

// ensureNode allocates a node subnet and gateway, creates the host bridge,
// and registers the underlay device, per spec §4.6 step 3.
func (e *Engine) ensureNode(ctx context.Context) (*model.Node, error) {
	var subnetCIDR string
	var err error
	switch e.Config.IPAM.Mode {
	case cniconfig.ModeVXLAN:
		subnetCIDR = e.Config.IPAM.Subnet
	default:
		subnetCIDR, err = e.IPAM.AllocateSubnet(ctx, e.NodeName)
		if err != nil {
			return nil, fmt.Errorf("allocate node subnet: %w", err)
		}
	}
	if e.Config.IPAM.Mode == cniconfig.ModeVXLAN {
		if err := e.Storage.SetNodeSubnet(ctx, e.NodeName, subnetCIDR); err != nil {
			return nil, fmt.Errorf("record node subnet: %w", err)
		}
	}

	gatewayCIDR, err := e.IPAM.AllocateIP(ctx, e.NodeName)
	if err != nil {
		return nil, fmt.Errorf("allocate gateway address: %w", err)
	}
	gatewayIP, _, err := net.ParseCIDR(gatewayCIDR)
	if err != nil {
		return nil, fmt.Errorf("parse gateway address %q: %w", gatewayCIDR, err)
	}

	if err := e.NetOps.BridgeCreate(e.Config.Bridge); err != nil {
		return nil, fmt.Errorf("create bridge: %w", err)
	}
	if err := e.NetOps.SetAddr(nil, true, e.Config.Bridge, gatewayCIDR); err != nil {
		return nil, fmt.Errorf("assign gateway to bridge: %w", err)
	}
	if err := e.NetOps.LinkSetStatus(nil, e.Config.Bridge, true); err != nil {
		return nil, fmt.Errorf("set bridge up: %w", err)
	}

	if err := e.Storage.AddPod(ctx, e.NodeName, model.HostNetns, model.HostNetns); err != nil {
		return nil, fmt.Errorf("persist host pod: %w", err)
	}
	if err := e.Storage.AddNic(ctx, e.NodeName, model.HostNetns, e.Config.Bridge); err != nil {
		return nil, fmt.Errorf("persist bridge nic: %w", err)
	}
	if err := e.Storage.AddAddr(ctx, e.NodeName, model.HostNetns, e.Config.Bridge, gatewayCIDR); err != nil {
		return nil, fmt.Errorf("persist gateway address: %w", err)
	}
	if e.UnderlayDev != "" {
		if err := e.Storage.AddNic(ctx, e.NodeName, model.HostNetns, e.UnderlayDev); err != nil {
			return nil, fmt.Errorf("persist underlay nic: %w", err)
		}
	}

	node := model.NewNode(e.NodeName)
	subnet, err := model.ParseSubnet(subnetCIDR)
	if err != nil {
		return nil, fmt.Errorf("parse node subnet %q: %w", subnetCIDR, err)
	}
	node.Subnet = subnet
	node.HasSubnet = true
	node.GatewayAddr = gatewayIP
	node.UnderlayDev = e.UnderlayDev
	node.UnderlayAddr = net.ParseIP(e.UnderlayAddr)

	bridgeNic := &model.Nic{Name: e.Config.Bridge, NetnsLabel: model.HostNetns, Kind: model.NicBridge, Up: true}
	addr, err := model.ParseAddr(gatewayCIDR)
	if err == nil {
		bridgeNic.Addrs = append(bridgeNic.Addrs, addr)
	}
	node.HostNetnsObj().Nics = append(node.HostNetnsObj().Nics, bridgeNic)
	if e.UnderlayDev != "" {
		node.HostNetnsObj().Nics = append(node.HostNetnsObj().Nics, &model.Nic{
			Name: e.UnderlayDev, NetnsLabel: model.HostNetns, Kind: model.NicUnderlay,
		})
	}
	return node, nil
}

// ensurePodNetns binds containerID to its netns label, failing with
// Unsupported-Field if a different container already occupies it (spec
// §4.6 step 4; a CRI anomaly).
func (e *Engine) ensurePodNetns(ctx context.Context, node *model.Node, containerID, netnsPath string) error {
	label := containerID
	existingCID, occupied, err := e.Storage.GetNetnsPod(ctx, e.NodeName, label)
	if err != nil {
		return cnierror.New(e.Config.CNIVersion, cnierror.CodeInternal, "check netns occupancy failed", err.Error())
	}
	if occupied && existingCID != containerID {
		return cnierror.New(e.Config.CNIVersion, cnierror.CodeUnsupportedField, "netns already bound to a different container",
			fmt.Sprintf("netns %s bound to %s, requested for %s", label, existingCID, containerID))
	}
	if occupied {
		return nil
	}
	if err := e.Storage.AddPod(ctx, e.NodeName, containerID, label); err != nil {
		return cnierror.New(e.Config.CNIVersion, cnierror.CodeInternal, "persist pod netns failed", err.Error())
	}
	if node.Netnss[label] == nil {
		node.Netnss[label] = &model.Netns{Name: label}
	}
	return nil
}

// ensurePodNic ensures the Pod has a veth interface under the requested
// name (spec §4.6 step 5): reuse and rename an existing-but-renamed
// interface, or create a new veth pair, move the peer into the Pod netns,
// rename it, and bring it up. needsPlug reports whether the caller still
// needs to attach a host-side veth to the bridge.
func (e *Engine) ensurePodNic(ctx context.Context, node *model.Node, containerID, ifName string, targetNS ns.NetNS) (hostName string, needsPlug bool, err error) {
	netns := node.Netnss[containerID]
	if netns != nil {
		if existing := netns.NicByName(ifName); existing != nil {
			for _, addr := range existing.Addrs {
				if !node.Subnet.Network.Contains(addr.IP) {
					return "", false, fmt.Errorf("existing pod address %s is outside node subnet %s", addr.CIDR, node.Subnet)
				}
			}
			if !e.NetOps.LinkIsInNetns(targetNS, ifName) {
				if err := e.NetOps.LinkRename(targetNS, existing.Name, ifName); err != nil {
					return "", false, fmt.Errorf("rename existing pod link: %w", err)
				}
			}
			return "", false, nil
		}
	}

	hostName = hostVethName(containerID)
	peerName, err := peerVethTempName()
	if err != nil {
		return "", false, fmt.Errorf("generate peer veth name: %w", err)
	}

	if err := e.NetOps.VethCreate(hostName, peerName, 0); err != nil {
		return "", false, fmt.Errorf("create veth pair: %w", err)
	}
	if err := e.NetOps.LinkMoveToNetns(peerName, targetNS); err != nil {
		return "", false, fmt.Errorf("move peer veth to pod netns: %w", err)
	}
	if err := e.NetOps.LinkRename(targetNS, peerName, ifName); err != nil {
		return "", false, fmt.Errorf("rename peer veth in pod netns: %w", err)
	}
	if err := e.NetOps.LinkSetStatus(targetNS, ifName, true); err != nil {
		return "", false, fmt.Errorf("bring pod link up: %w", err)
	}

	if err := e.Storage.AddNic(ctx, e.NodeName, containerID, hostName); err != nil {
		return "", false, fmt.Errorf("persist host veth: %w", err)
	}
	if err := e.Storage.AddNic(ctx, e.NodeName, containerID, ifName); err != nil {
		return "", false, fmt.Errorf("persist pod veth: %w", err)
	}
	return hostName, true, nil
}

// plugHostEnd sets the host-side veth as a bridge slave (spec §4.6 step 6).
func (e *Engine) plugHostEnd(hostVethName string) error {
	return e.NetOps.SetBridgeSlave(nil, hostVethName, netlinkops.SlaveBridge, e.Config.Bridge)
}

// configurePodNetwork allocates a Pod address, installs it and the default
// route, and persists both (spec §4.6 step 7). If the named nic already
// carries an address recorded from a prior ADD, that address is reused
// instead of allocating a new one, so a repeated ADD for the same
// container+ifname stays idempotent.
func (e *Engine) configurePodNetwork(ctx context.Context, node *model.Node, containerID, ifName string, targetNS ns.NetNS) (*net.IPNet, error) {
	if netns := node.Netnss[containerID]; netns != nil {
		if existing := netns.NicByName(ifName); existing != nil && len(existing.Addrs) > 0 {
			cidr := existing.Addrs[0].CIDR
			ip, ipNet, err := net.ParseCIDR(cidr)
			if err != nil {
				return nil, fmt.Errorf("parse existing pod address %q: %w", cidr, err)
			}
			return &net.IPNet{IP: ip, Mask: ipNet.Mask}, nil
		}
	}

	addrCIDR, err := e.IPAM.AllocateIP(ctx, e.NodeName)
	if err != nil {
		return nil, fmt.Errorf("allocate pod address: %w", err)
	}
	ip, ipNet, err := net.ParseCIDR(addrCIDR)
	if err != nil {
		return nil, fmt.Errorf("parse pod address %q: %w", addrCIDR, err)
	}
	podAddr := &net.IPNet{IP: ip, Mask: ipNet.Mask}

	if err := e.NetOps.SetAddr(targetNS, true, ifName, addrCIDR); err != nil {
		return nil, fmt.Errorf("assign pod address: %w", err)
	}
	gateway := node.GatewayAddr.String()
	if err := e.NetOps.SetRoute(targetNS, true, "", gateway, ifName, netlinkops.NhNone); err != nil {
		return nil, fmt.Errorf("add default route: %w", err)
	}

	if err := e.Storage.AddAddr(ctx, e.NodeName, containerID, ifName, addrCIDR); err != nil {
		return nil, fmt.Errorf("persist pod address: %w", err)
	}
	if err := e.Storage.AddRoute(ctx, e.NodeName, containerID, ifName, model.Route{Dest: "", Via: gateway, Dev: ifName}); err != nil {
		return nil, fmt.Errorf("persist pod route: %w", err)
	}

	klog.V(2).Infof("lifecycle: configured pod %s nic %s with %s via %s", containerID, ifName, addrCIDR, gateway)
	return podAddr, nil
}
