package lifecycle

import (
	"context"

	"github.com/containernetworking/cni/pkg/skel"
	"k8s.io/klog/v2"

	"github.com/ohno-cni/ohno/pkg/cnienv"
	"github.com/ohno-cni/ohno/pkg/model"
)

// Del performs CNI DEL: it tears down every kernel object and storage row
// this plugin created for one Pod, and — when that was the node's last Pod
// — the host bridge and the node's subnet too. Per spec §4.7, DEL never
// raises an error to its caller: every failure is logged and swallowed, so
// that kubelet's repeated DEL calls against a half-gone sandbox always
// succeed.
func (e *Engine) Del(ctx context.Context, args *skel.CmdArgs) {
	env := cnienv.FromArgs(cnienv.CommandDel, args)

	cluster, err := reconstruct(ctx, e.Storage, e.Config, e.NodeName, e.UnderlayDev)
	if err != nil {
		klog.Errorf("lifecycle: del %s: reconstruct cluster failed: %v", env.ContainerID, err)
		return
	}

	node := cluster.NodeByName(e.NodeName)
	if node == nil {
		klog.V(2).Infof("lifecycle: del %s: node %s has no recorded state, nothing to do", env.ContainerID, e.NodeName)
		return
	}

	netnsLabel, ok, err := e.Storage.GetPodNetns(ctx, e.NodeName, env.ContainerID)
	if err != nil {
		klog.Errorf("lifecycle: del %s: get pod netns failed: %v", env.ContainerID, err)
		return
	}
	if !ok {
		klog.V(2).Infof("lifecycle: del %s: pod not recorded on node %s, nothing to do", env.ContainerID, e.NodeName)
		return
	}

	netns := node.Netnss[netnsLabel]
	if netns != nil {
		e.teardownNetns(ctx, netns, env.ContainerID)
	}

	if err := e.Storage.DelPod(ctx, e.NodeName, env.ContainerID); err != nil {
		klog.Errorf("lifecycle: del %s: remove pod storage rows failed: %v", env.ContainerID, err)
	}
	delete(node.Netnss, netnsLabel)

	if node.PodCount() == 0 {
		e.teardownNode(ctx, node)
	}
}

// teardownNetns removes every address and route recorded against each nic
// in netns, destroys the destroyable nics' kernel links, and leaves
// non-destroyable (Underlay) nics untouched at the link level — in that
// order, per spec §4.7 step 4: "remove addresses, remove routes, destroy
// the USER link; persist deletions in that order". Finally it removes the
// nic's own entry from the pod's nic list, so that after teardownNetns
// returns no storage row remains under
// /ohno/node/<node>/pod/<pod>/nic/<nic>/... for any nic in netns.
func (e *Engine) teardownNetns(ctx context.Context, netns *model.Netns, pod string) {
	for _, nic := range netns.Nics {
		for _, addr := range nic.Addrs {
			e.IPAM.ReleaseIP(ctx, e.NodeName, addr.CIDR)
			if err := e.Storage.RemoveAddr(ctx, e.NodeName, pod, nic.Name, addr.CIDR); err != nil {
				klog.Errorf("lifecycle: del %s: remove addr %s on nic %s failed: %v", pod, addr.CIDR, nic.Name, err)
			}
		}
		for _, route := range nic.Routes {
			if err := e.Storage.RemoveRoute(ctx, e.NodeName, pod, nic.Name, route); err != nil {
				klog.Errorf("lifecycle: del %s: remove route on nic %s failed: %v", pod, nic.Name, err)
			}
		}
		if nic.Destroyable() {
			if err := e.NetOps.LinkDestroy(nil, nic.Name); err != nil {
				klog.Errorf("lifecycle: del %s: destroy nic %s failed: %v", pod, nic.Name, err)
			}
		}
		if err := e.Storage.DelNic(ctx, e.NodeName, pod, nic.Name); err != nil {
			klog.Errorf("lifecycle: del %s: remove nic %s storage rows failed: %v", pod, nic.Name, err)
		}
	}
}

// teardownNode runs once a node's last Pod has been removed: it destroys
// the host bridge (and any other destroyable host nics), releases the
// node's subnet, and removes the host pod's storage rows (spec §4.7).
func (e *Engine) teardownNode(ctx context.Context, node *model.Node) {
	host := node.HostNetnsObj()
	if host != nil {
		e.teardownNetns(ctx, host, model.HostNetns)
	}
	if err := e.Storage.DelPod(ctx, e.NodeName, model.HostNetns); err != nil {
		klog.Errorf("lifecycle: teardown node %s: remove host pod storage failed: %v", e.NodeName, err)
	}
	if node.HasSubnet {
		e.IPAM.ReleaseSubnet(ctx, e.NodeName, node.Subnet.String())
	}
	klog.V(2).Infof("lifecycle: teardown node %s: last pod removed, node state released", e.NodeName)
}
