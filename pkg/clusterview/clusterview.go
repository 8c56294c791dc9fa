// Package clusterview is the read-only view of the Kubernetes API server
// (spec §4.8): node name, internal IP, and podCIDR, plus a health probe.
package clusterview

import (
	"context"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/klog/v2"
)

// NodeData is the subset of a Kubernetes Node object this plugin needs.
type NodeData struct {
	Name       string
	InternalIP string
	PodCIDR    string
}

// ClusterView is the capability the IPAM allocator and dataplane
// strategies consume; its only collaborator with the outside world is the
// Kubernetes API server.
type ClusterView interface {
	// GetKubernetesData reads the named node.
	GetKubernetesData(ctx context.Context, nodeName string) (NodeData, error)
	// GetKubernetesDataAll reads every node in the cluster.
	GetKubernetesDataAll(ctx context.Context) (map[string]NodeData, error)
	// Test reports whether the api-server is reachable and authorized.
	Test(ctx context.Context) error
}

// ClientsetView implements ClusterView over a typed client-go Interface,
// grounded on the pattern in jiayi-1994-zstack-ovn-kubernetes's
// NodeController: a plain kubernetes.Interface rather than a full
// controller-runtime manager, since this capability only ever does
// point reads.
type ClientsetView struct {
	clientset kubernetes.Interface
}

// New wraps an already-constructed client-go Interface (built by
// NewInClusterConfig or NewHostConfig).
func New(clientset kubernetes.Interface) *ClientsetView {
	return &ClientsetView{clientset: clientset}
}

func toNodeData(n *corev1.Node) NodeData {
	data := NodeData{Name: n.Name}
	for _, addr := range n.Status.Addresses {
		if addr.Type == corev1.NodeInternalIP {
			data.InternalIP = addr.Address
			break
		}
	}
	if len(n.Spec.PodCIDRs) > 0 {
		data.PodCIDR = n.Spec.PodCIDRs[0]
	} else {
		data.PodCIDR = n.Spec.PodCIDR
	}
	if data.InternalIP == "" {
		klog.Warningf("clusterview: node %s has no InternalIP address", n.Name)
	}
	if data.PodCIDR == "" {
		klog.Warningf("clusterview: node %s has no podCIDR", n.Name)
	}
	return data
}

func (c *ClientsetView) GetKubernetesData(ctx context.Context, nodeName string) (NodeData, error) {
	node, err := c.clientset.CoreV1().Nodes().Get(ctx, nodeName, metaGetOptions())
	if err != nil {
		return NodeData{}, fmt.Errorf("clusterview: get node %s: %w", nodeName, err)
	}
	return toNodeData(node), nil
}

func (c *ClientsetView) GetKubernetesDataAll(ctx context.Context) (map[string]NodeData, error) {
	list, err := c.clientset.CoreV1().Nodes().List(ctx, metaListOptions())
	if err != nil {
		return nil, fmt.Errorf("clusterview: list nodes: %w", err)
	}
	out := make(map[string]NodeData, len(list.Items))
	for i := range list.Items {
		data := toNodeData(&list.Items[i])
		out[data.Name] = data
	}
	return out, nil
}

func (c *ClientsetView) Test(ctx context.Context) error {
	body, err := c.clientset.Discovery().RESTClient().Get().AbsPath("/healthz").DoRaw(ctx)
	if err != nil {
		return fmt.Errorf("clusterview: healthz probe failed: %w", err)
	}
	klog.V(4).Infof("clusterview: healthz response %q", string(body))
	return nil
}
