// Package dataplane implements the per-mode route/neighbor/FDB strategies
// of spec §4.9: host-gw, vxlan, and evpn. Each Strategy is driven by
// pkg/scheduler, which calls EventHandler on a fixed interval.
package dataplane

import "context"

// Strategy converges the local kernel dataplane for one mode. EventHandler
// must be safe to call repeatedly and must be idempotent: a second call
// with unchanged cluster state performs no kernel mutation (spec §8 S4).
type Strategy interface {
	// Name identifies the strategy, used to name the reconciliation worker
	// (spec §4.10).
	Name() string
	// EventHandler runs one reconciliation tick.
	EventHandler(ctx context.Context) error
}
