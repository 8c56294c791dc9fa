// Package storage is the persistent object index of spec §4.4: a pure
// persistence facade over the KV client encoding the schema of spec §3,
// rooted at /ohno.
package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/ohno-cni/ohno/pkg/kvclient"
	"github.com/ohno-cni/ohno/pkg/model"
)

const root = "/ohno"

// Storage persists every object the plugin created, keyed by
// (node, pod, nic), as enumerated in spec §3.
type Storage struct {
	kv kvclient.Client
}

// New returns a Storage facade over the given KV client.
func New(kv kvclient.Client) *Storage {
	return &Storage{kv: kv}
}

func subnetsKey() string                       { return root + "/subnets" }
func nodeSubnetKey(node string) string         { return fmt.Sprintf("%s/subnets/%s", root, node) }
func addressesKey(node string) string          { return fmt.Sprintf("%s/addresses/%s", root, node) }
func nodePodsKey(node string) string           { return fmt.Sprintf("%s/node/%s/pod", root, node) }
func netnsPodKey(node, netns string) string    { return fmt.Sprintf("%s/node/%s/netns/%s/pod", root, node, netns) }
func podNetnsKey(node, pod string) string      { return fmt.Sprintf("%s/node/%s/pod/%s/netns", root, node, pod) }
func podNicKey(node, pod string) string        { return fmt.Sprintf("%s/node/%s/pod/%s/nic", root, node, pod) }
func nicAddrKey(node, pod, nic string) string  { return fmt.Sprintf("%s/node/%s/pod/%s/nic/%s/addr", root, node, pod, nic) }
func nicRouteKey(node, pod, nic string) string { return fmt.Sprintf("%s/node/%s/pod/%s/nic/%s/route", root, node, pod, nic) }
func vtepAddrKey(node string) string           { return fmt.Sprintf("%s/node/%s/vtep/addr", root, node) }
func vtepMacKey(node string) string            { return fmt.Sprintf("%s/node/%s/vtep/mac", root, node) }

// --- cluster-wide subnet list ---------------------------------------------

// AddSubnet appends cidr to the cluster-wide subnet list.
func (s *Storage) AddSubnet(ctx context.Context, cidr string) error {
	return s.kv.Append(ctx, subnetsKey(), cidr)
}

// RemoveSubnet removes cidr from the cluster-wide subnet list.
func (s *Storage) RemoveSubnet(ctx context.Context, cidr string) error {
	return s.kv.DelToken(ctx, subnetsKey(), cidr)
}

// ListSubnets returns every allocated subnet cluster-wide.
func (s *Storage) ListSubnets(ctx context.Context) ([]string, error) {
	return s.kv.List(ctx, subnetsKey())
}

// --- per-node subnet -------------------------------------------------------

// SetNodeSubnet records the one subnet owned by node.
func (s *Storage) SetNodeSubnet(ctx context.Context, node, cidr string) error {
	return s.kv.Put(ctx, nodeSubnetKey(node), cidr)
}

// GetNodeSubnet returns the subnet owned by node, if any.
func (s *Storage) GetNodeSubnet(ctx context.Context, node string) (string, bool, error) {
	return s.kv.Get(ctx, nodeSubnetKey(node))
}

// DeleteNodeSubnet removes node's subnet record.
func (s *Storage) DeleteNodeSubnet(ctx context.Context, node string) error {
	return s.kv.Del(ctx, nodeSubnetKey(node))
}

// --- per-node address list --------------------------------------------------

// AddAddress records one allocated host IP on node.
func (s *Storage) AddAddress(ctx context.Context, node, addr string) error {
	return s.kv.Append(ctx, addressesKey(node), addr)
}

// RemoveAddress releases one allocated host IP on node.
func (s *Storage) RemoveAddress(ctx context.Context, node, addr string) error {
	return s.kv.DelToken(ctx, addressesKey(node), addr)
}

// ListAddresses returns every allocated host IP on node.
func (s *Storage) ListAddresses(ctx context.Context, node string) ([]string, error) {
	return s.kv.List(ctx, addressesKey(node))
}

// --- pods on a node ---------------------------------------------------------

// AddPod records container id cid as a pod on node, bound to netns label.
func (s *Storage) AddPod(ctx context.Context, node, cid, netnsLabel string) error {
	if err := s.kv.Append(ctx, nodePodsKey(node), cid); err != nil {
		return err
	}
	if err := s.kv.Put(ctx, podNetnsKey(node, cid), netnsLabel); err != nil {
		return err
	}
	return s.kv.Put(ctx, netnsPodKey(node, netnsLabel), cid)
}

// DelPod removes cid's netns bindings, its nic list, and its entry in
// node's pod list. Per-nic addr/route rows are not removed here; DelNic
// removes those.
func (s *Storage) DelPod(ctx context.Context, node, cid string) error {
	netnsLabel, ok, err := s.GetPodNetns(ctx, node, cid)
	if err != nil {
		return err
	}
	if ok {
		if err := s.kv.Del(ctx, netnsPodKey(node, netnsLabel)); err != nil {
			return err
		}
	}
	if err := s.kv.Del(ctx, podNetnsKey(node, cid)); err != nil {
		return err
	}
	if err := s.kv.Del(ctx, podNicKey(node, cid)); err != nil {
		return err
	}
	return s.kv.DelToken(ctx, nodePodsKey(node), cid)
}

// ListPods returns every pod (container id) on node.
func (s *Storage) ListPods(ctx context.Context, node string) ([]string, error) {
	return s.kv.List(ctx, nodePodsKey(node))
}

// GetPodNetns returns the netns label bound to cid.
func (s *Storage) GetPodNetns(ctx context.Context, node, cid string) (string, bool, error) {
	return s.kv.Get(ctx, podNetnsKey(node, cid))
}

// GetNetnsPod returns the container id occupying netnsLabel, if any.
func (s *Storage) GetNetnsPod(ctx context.Context, node, netnsLabel string) (string, bool, error) {
	return s.kv.Get(ctx, netnsPodKey(node, netnsLabel))
}

// --- nics on a pod -----------------------------------------------------------

// AddNic records nic as belonging to cid on node.
func (s *Storage) AddNic(ctx context.Context, node, cid, nic string) error {
	return s.kv.Append(ctx, podNicKey(node, cid), nic)
}

// DelNic removes nic from cid's nic list and its addr/route rows.
func (s *Storage) DelNic(ctx context.Context, node, cid, nic string) error {
	if err := s.kv.Del(ctx, nicAddrKey(node, cid, nic)); err != nil {
		return err
	}
	if err := s.kv.Del(ctx, nicRouteKey(node, cid, nic)); err != nil {
		return err
	}
	return s.kv.DelToken(ctx, podNicKey(node, cid), nic)
}

// ListNics returns every nic name recorded for cid on node.
func (s *Storage) ListNics(ctx context.Context, node, cid string) ([]string, error) {
	return s.kv.List(ctx, podNicKey(node, cid))
}

// --- addresses/routes on a nic ------------------------------------------------

// AddAddr records addr (CIDR) on the named nic.
func (s *Storage) AddAddr(ctx context.Context, node, cid, nic, addr string) error {
	return s.kv.Append(ctx, nicAddrKey(node, cid, nic), addr)
}

// RemoveAddr removes addr (CIDR) from the named nic.
func (s *Storage) RemoveAddr(ctx context.Context, node, cid, nic, addr string) error {
	return s.kv.DelToken(ctx, nicAddrKey(node, cid, nic), addr)
}

// ListAddrs returns every CIDR recorded on the named nic.
func (s *Storage) ListAddrs(ctx context.Context, node, cid, nic string) ([]string, error) {
	return s.kv.List(ctx, nicAddrKey(node, cid, nic))
}

// EncodeRoute renders a route as the "dest-via-dev" scalar form.
func EncodeRoute(r model.Route) string {
	return strings.Join([]string{r.Dest, r.Via, r.Dev}, "-")
}

// DecodeRoute parses the "dest-via-dev" scalar form, asserting a
// three-part split as spec §4.4 requires.
func DecodeRoute(encoded string) (model.Route, error) {
	parts := strings.Split(encoded, "-")
	if len(parts) != 3 {
		return model.Route{}, fmt.Errorf("storage: route encoding %q does not decode to three parts", encoded)
	}
	return model.Route{Dest: parts[0], Via: parts[1], Dev: parts[2]}, nil
}

// AddRoute records route on the named nic.
func (s *Storage) AddRoute(ctx context.Context, node, cid, nic string, route model.Route) error {
	return s.kv.Append(ctx, nicRouteKey(node, cid, nic), EncodeRoute(route))
}

// RemoveRoute removes route from the named nic.
func (s *Storage) RemoveRoute(ctx context.Context, node, cid, nic string, route model.Route) error {
	return s.kv.DelToken(ctx, nicRouteKey(node, cid, nic), EncodeRoute(route))
}

// ListRoutes returns every route recorded on the named nic.
func (s *Storage) ListRoutes(ctx context.Context, node, cid, nic string) ([]model.Route, error) {
	encoded, err := s.kv.List(ctx, nicRouteKey(node, cid, nic))
	if err != nil {
		return nil, err
	}
	routes := make([]model.Route, 0, len(encoded))
	for _, e := range encoded {
		r, err := DecodeRoute(e)
		if err != nil {
			return nil, err
		}
		routes = append(routes, r)
	}
	return routes, nil
}

// --- vxlan VTEP publication (spec §4.9 vxlan strategy) ----------------------

// SetVTEP publishes node's VXLAN tunnel endpoint address and MAC, read back
// by peers' reconciliation loops.
func (s *Storage) SetVTEP(ctx context.Context, node, addr, mac string) error {
	if err := s.kv.Put(ctx, vtepAddrKey(node), addr); err != nil {
		return err
	}
	return s.kv.Put(ctx, vtepMacKey(node), mac)
}

// GetVTEP reads a peer's published VTEP address and MAC, if any.
func (s *Storage) GetVTEP(ctx context.Context, node string) (addr, mac string, ok bool, err error) {
	addr, ok, err = s.kv.Get(ctx, vtepAddrKey(node))
	if err != nil || !ok {
		return "", "", false, err
	}
	mac, ok, err = s.kv.Get(ctx, vtepMacKey(node))
	if err != nil || !ok {
		return "", "", false, err
	}
	return addr, mac, true, nil
}

// Dump renders every key under /ohno for diagnostics.
func (s *Storage) Dump(ctx context.Context) (string, error) {
	return s.kv.Dump(ctx, root)
}
