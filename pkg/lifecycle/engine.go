// Package lifecycle is the plugin entry-point state machine (spec §4.6,
// §4.7): it transforms one opaque invocation (container id, netns path,
// desired ifname) into a persistent, idempotent, crash-consistent set of
// kernel network objects, never leaving half-built state on success.
package lifecycle

import (
	"github.com/containernetworking/plugins/pkg/ns"

	"github.com/ohno-cni/ohno/pkg/cniconfig"
	"github.com/ohno-cni/ohno/pkg/clusterview"
	"github.com/ohno-cni/ohno/pkg/ipam"
	"github.com/ohno-cni/ohno/pkg/netlinkops"
	"github.com/ohno-cni/ohno/pkg/storage"
)

// Engine is the lifecycle engine: it composes IPAM, Storage, the object
// model, ClusterView, and the Netlink capability to implement ADD and DEL.
type Engine struct {
	Config  *cniconfig.Config
	NetOps  netlinkops.NetOps
	IPAM    ipam.Allocator
	Storage *storage.Storage
	Cluster clusterview.ClusterView

	// NodeName, UnderlayDev, UnderlayAddr identify this node (spec §4.6
	// step 1): hostname, the default-route device, and that device's
	// primary IPv4.
	NodeName     string
	UnderlayDev  string
	UnderlayAddr string

	// OpenNS opens a netns handle by path; overridable in tests.
	OpenNS func(path string) (ns.NetNS, error)
}
