// Command ohno-agent is the per-node reconciliation daemon: it picks the
// dataplane strategy named by the local CNI configuration and runs it on a
// fixed interval until signaled to stop (spec §1, §4.9, §4.10, §6).
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	"github.com/ohno-cni/ohno/pkg/clusterview"
	"github.com/ohno-cni/ohno/pkg/cniconfig"
	"github.com/ohno-cni/ohno/pkg/dataplane"
	"github.com/ohno-cni/ohno/pkg/ipam"
	"github.com/ohno-cni/ohno/pkg/kvclient"
	"github.com/ohno-cni/ohno/pkg/logsetup"
	"github.com/ohno-cni/ohno/pkg/netlinkops"
	"github.com/ohno-cni/ohno/pkg/scheduler"
	"github.com/ohno-cni/ohno/pkg/storage"
	"github.com/ohno-cni/ohno/pkg/underlay"
)

// cniNetConfPath is where the daemon reads the network's dataplane mode
// from (spec §6: "Reads /etc/cni/net.d/ohno.json (daemon strategy
// selection)").
const cniNetConfPath = "/etc/cni/net.d/ohno.json"

const (
	defaultVNI      = 42
	defaultVrfTable = 100
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var logLevel string
	var apiserver string
	var insecure bool
	var interval int

	cmd := &cobra.Command{
		Use:   "ohno-agent",
		Short: "ohno-agent reconciles inter-node routes for the ohno CNI plugin",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(logLevel, apiserver, insecure, interval)
		},
	}
	cmd.Flags().StringVar(&logLevel, "loglevel", "info", "log verbosity (debug, info, warn, error)")
	cmd.Flags().StringVar(&apiserver, "apiserver", "", "Kubernetes api-server URL (defaults to the kubelet's own kubeconfig)")
	cmd.Flags().BoolVar(&insecure, "insecure", false, "skip api-server CA verification")
	cmd.Flags().IntVar(&interval, "interval", 5, "reconciliation interval in seconds")
	return cmd
}

func run(logLevel, apiserver string, insecure bool, interval int) error {
	logsetup.ToStderr(logLevel)
	defer klog.Flush()

	netConf, err := loadNetConf()
	if err != nil {
		return fmt.Errorf("ohno-agent: %w", err)
	}

	nodeName, underlayDev, underlayAddr, err := underlay.Identify()
	if err != nil {
		return fmt.Errorf("ohno-agent: %w", err)
	}

	if apiserver == "" {
		apiserver, err = clusterview.HostAPIServerURL()
		if err != nil {
			return fmt.Errorf("ohno-agent: resolve api-server address: %w", err)
		}
	}
	clientset, err := clusterview.NewHostConfig(apiserver, !insecure)
	if err != nil {
		return fmt.Errorf("ohno-agent: build cluster view: %w", err)
	}
	cluster := clusterview.New(clientset)
	if err := cluster.Test(context.Background()); err != nil {
		return fmt.Errorf("ohno-agent: api-server unreachable: %w", err)
	}

	kv, err := kvclient.New(kvclient.ConfigFromEnv())
	if err != nil {
		return fmt.Errorf("ohno-agent: dial kv store: %w", err)
	}
	store := storage.New(kv)
	alloc := ipam.New(store, cluster)
	netOps := netlinkops.NewLinuxNetOps()

	strategy, err := buildStrategy(netConf, cluster, alloc, store, netOps, nodeName, underlayDev, underlayAddr)
	if err != nil {
		return fmt.Errorf("ohno-agent: %w", err)
	}

	sched := scheduler.New(strategy, time.Duration(interval)*time.Second)
	sched.Start(nodeName)
	klog.Infof("ohno-agent: started %s reconciliation for node %s", strategy.Name(), nodeName)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	<-sigCh
	klog.Infof("ohno-agent: shutdown signal received, stopping")
	sched.Stop()
	return nil
}

func loadNetConf() (*cniconfig.Config, error) {
	data, err := os.ReadFile(cniNetConfPath)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", cniNetConfPath, err)
	}
	return cniconfig.Parse(data)
}

// buildStrategy picks the dataplane.Strategy named by the network's
// configured mode (spec §4.9).
func buildStrategy(cfg *cniconfig.Config, cluster clusterview.ClusterView, alloc ipam.Allocator, store *storage.Storage, netOps netlinkops.NetOps, nodeName, underlayDev, underlayAddr string) (dataplane.Strategy, error) {
	switch cfg.IPAM.Mode {
	case cniconfig.ModeHostGW:
		return dataplane.NewHostGW(cluster, alloc, netOps, nodeName), nil
	case cniconfig.ModeVXLAN:
		return dataplane.NewVxlan(cluster, alloc, store, netOps, nodeName, net.ParseIP(underlayAddr), underlayDev, defaultVNI), nil
	case cniconfig.ModeEVPN:
		return &dataplane.Evpn{
			NetOps:      netOps,
			VrfName:     "ohno-vrf",
			VrfTable:    defaultVrfTable,
			BridgeL3:    "ohno-l3",
			BridgeL2:    "ohno-l2",
			VtepName:    dataplane.VxlanDeviceName,
			VNI:         defaultVNI,
			UnderlayIP:  net.ParseIP(underlayAddr),
			UnderlayDev: underlayDev,
		}, nil
	default:
		return nil, fmt.Errorf("unknown dataplane mode %q", cfg.IPAM.Mode)
	}
}
