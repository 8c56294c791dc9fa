package dataplane

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/ohno-cni/ohno/pkg/netlinkops"
)

// Evpn is the BGP-EVPN dataplane strategy (spec §4.9): the BGP/EVPN
// control plane is external to this process, so EventHandler only performs
// one-shot local environment setup (VRF, L3/L2 bridges, VTEP) — there is
// no per-peer reconciliation loop.
type Evpn struct {
	NetOps netlinkops.NetOps

	VrfName     string
	VrfTable    int
	BridgeL3    string
	BridgeL2    string
	VtepName    string
	VNI         int
	DstPort     int
	UnderlayIP  net.IP
	UnderlayDev string

	once sync.Once
	err  error
}

func (e *Evpn) Name() string { return "evpn" }

// EventHandler runs the one-shot setup on its first call and returns the
// cached result (nil or the original error) on every subsequent call.
func (e *Evpn) EventHandler(ctx context.Context) error {
	e.once.Do(func() {
		e.err = e.setup()
	})
	return e.err
}

func (e *Evpn) setup() error {
	dstPort := e.DstPort
	if dstPort == 0 {
		dstPort = DefaultVxlanDstPort
	}

	if err := e.NetOps.VrfCreate(e.VrfName, e.VrfTable); err != nil {
		return fmt.Errorf("dataplane/evpn: create vrf %s: %w", e.VrfName, err)
	}
	if err := e.NetOps.BridgeCreate(e.BridgeL3); err != nil {
		return fmt.Errorf("dataplane/evpn: create l3 bridge %s: %w", e.BridgeL3, err)
	}
	if err := e.NetOps.SetBridgeSlave(nil, e.BridgeL3, netlinkops.SlaveBridge, e.VrfName); err != nil {
		return fmt.Errorf("dataplane/evpn: attach l3 bridge %s to vrf %s: %w", e.BridgeL3, e.VrfName, err)
	}
	if err := e.NetOps.BridgeCreate(e.BridgeL2); err != nil {
		return fmt.Errorf("dataplane/evpn: create l2 bridge %s: %w", e.BridgeL2, err)
	}
	if err := e.NetOps.SetBridgeSlave(nil, e.BridgeL2, netlinkops.SlaveBridge, e.BridgeL3); err != nil {
		return fmt.Errorf("dataplane/evpn: attach l2 bridge %s to l3 bridge %s: %w", e.BridgeL2, e.BridgeL3, err)
	}
	if err := e.NetOps.VxlanCreate(e.VtepName, e.VNI, e.UnderlayIP, e.UnderlayDev, dstPort); err != nil {
		return fmt.Errorf("dataplane/evpn: create vtep %s: %w", e.VtepName, err)
	}
	if err := e.NetOps.SetBridgeSlave(nil, e.VtepName, netlinkops.SlaveBridge, e.BridgeL2); err != nil {
		return fmt.Errorf("dataplane/evpn: attach vtep %s to l2 bridge %s: %w", e.VtepName, e.BridgeL2, err)
	}
	if err := e.NetOps.SetVxlanSlave(e.VtepName, true, false); err != nil {
		return fmt.Errorf("dataplane/evpn: set vtep %s flags: %w", e.VtepName, err)
	}
	return nil
}
