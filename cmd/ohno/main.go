// Command ohno is the ohno CNI plugin: invoked once per Pod lifecycle
// event by the container runtime, it allocates a subnet to the node,
// assigns the Pod an address, wires a veth pair into the host bridge, and
// installs the Pod's default route (spec §1, §4.6, §4.7, §6).
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/containernetworking/cni/pkg/skel"
	"k8s.io/klog/v2"

	"github.com/ohno-cni/ohno/pkg/clusterview"
	"github.com/ohno-cni/ohno/pkg/cniconfig"
	"github.com/ohno-cni/ohno/pkg/cnienv"
	"github.com/ohno-cni/ohno/pkg/cnierror"
	"github.com/ohno-cni/ohno/pkg/cniresult"
	"github.com/ohno-cni/ohno/pkg/ipam"
	"github.com/ohno-cni/ohno/pkg/kvclient"
	"github.com/ohno-cni/ohno/pkg/lifecycle"
	"github.com/ohno-cni/ohno/pkg/logsetup"
	"github.com/ohno-cni/ohno/pkg/netlinkops"
	"github.com/ohno-cni/ohno/pkg/storage"
	"github.com/ohno-cni/ohno/pkg/underlay"
)

const supportedCNIVersion = "0.3.1"

func main() {
	if len(os.Args) > 1 && os.Args[1] == "--get-conf" {
		if err := writeDefaultConfig("ohno.json"); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	command := os.Getenv("CNI_COMMAND")

	if command == string(cnienv.CommandVerify) {
		_ = json.NewEncoder(os.Stdout).Encode(cniresult.BuildVersionResult(supportedCNIVersion))
		os.Exit(0)
	}

	stdin, err := io.ReadAll(os.Stdin)
	if err != nil {
		fail(cnierror.New("", cnierror.CodeIO, "failed to read stdin config", err.Error()), command)
	}

	cfg, err := cniconfig.Parse(stdin)
	if err != nil {
		fail(cnierror.Coerce("", err), command)
	}
	logsetup.ToFile(cfg.Log, cfg.LogLevel)
	defer klog.Flush()

	cmd := cnienv.Command(command)
	if cmd.NotSupported() {
		fail(cnierror.NotSupported(cfg.CNIVersion, command), command)
	}

	args := &skel.CmdArgs{
		ContainerID: os.Getenv("CNI_CONTAINERID"),
		Netns:       os.Getenv("CNI_NETNS"),
		IfName:      os.Getenv("CNI_IFNAME"),
		StdinData:   stdin,
	}
	if args.ContainerID == "" || args.Netns == "" || args.IfName == "" {
		fail(cnierror.New(cfg.CNIVersion, cnierror.CodeEnvVar, "missing required CNI environment variable",
			"CNI_CONTAINERID, CNI_NETNS, and CNI_IFNAME are all required"), command)
	}

	engine, err := buildEngine(cfg)
	if err != nil {
		fail(cnierror.Coerce(cfg.CNIVersion, err), command)
	}

	ctx := context.Background()

	switch cmd {
	case cnienv.CommandAdd:
		result, err := engine.Add(ctx, args)
		if err != nil {
			fail(cnierror.Coerce(cfg.CNIVersion, err), command)
		}
		if err := result.Print(); err != nil {
			fail(cnierror.New(cfg.CNIVersion, cnierror.CodeIO, "failed to write result", err.Error()), command)
		}
		os.Exit(0)
	case cnienv.CommandDel:
		engine.Del(ctx, args)
		os.Exit(0)
	default:
		fail(cnierror.New(cfg.CNIVersion, cnierror.CodeUnsupportedField, "unknown CNI command", command), command)
	}
}

// fail writes the CNI error JSON to stderr and exits: 1 for every command
// except DEL, which per spec §4.7/§6 always exits 0.
func fail(err *cnierror.Error, command string) {
	_ = err.WriteTo(os.Stderr)
	if command == string(cnienv.CommandDel) {
		os.Exit(0)
	}
	os.Exit(1)
}

// writeDefaultConfig implements the "--get-conf" sentinel of spec §6.
func writeDefaultConfig(path string) error {
	data, err := json.MarshalIndent(cniconfig.Default(), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal default config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// buildEngine wires the Netlink, KV, IPAM, Storage, and ClusterView
// capabilities into a lifecycle.Engine (spec §4.6's composition).
func buildEngine(cfg *cniconfig.Config) (*lifecycle.Engine, error) {
	nodeName, underlayDev, underlayAddr, err := underlay.Identify()
	if err != nil {
		return nil, fmt.Errorf("identify node: %w", err)
	}

	kv, err := kvclient.New(kvclient.ConfigFromEnv())
	if err != nil {
		return nil, fmt.Errorf("dial kv store: %w", err)
	}
	store := storage.New(kv)

	cluster, err := buildClusterView(cfg)
	if err != nil {
		return nil, fmt.Errorf("build cluster view: %w", err)
	}

	alloc := ipam.New(store, cluster)
	netOps := netlinkops.NewLinuxNetOps()

	return &lifecycle.Engine{
		Config:       cfg,
		NetOps:       netOps,
		IPAM:         alloc,
		Storage:      store,
		Cluster:      cluster,
		NodeName:     nodeName,
		UnderlayDev:  underlayDev,
		UnderlayAddr: underlayAddr,
	}, nil
}

// buildClusterView picks the in-Pod or on-host client-go wiring per spec
// §4.8/§6, reading the api-server address out of the environment (in-Pod)
// or the kubelet's own kubeconfig (on-host). The CNI plugin normally runs
// on the host, not inside a Pod, but InPod is checked anyway so the same
// binary works when deployed with hostNetwork.
func buildClusterView(cfg *cniconfig.Config) (clusterview.ClusterView, error) {
	if clusterview.InPod() {
		apiserver := fmt.Sprintf("https://%s:%s", os.Getenv("KUBERNETES_SERVICE_HOST"), os.Getenv("KUBERNETES_SERVICE_PORT"))
		clientset, err := clusterview.NewInClusterConfig(apiserver, cfg.SSL)
		if err != nil {
			return nil, err
		}
		return clusterview.New(clientset), nil
	}

	apiserver, err := clusterview.HostAPIServerURL()
	if err != nil {
		return nil, fmt.Errorf("resolve host api-server address: %w", err)
	}
	clientset, err := clusterview.NewHostConfig(apiserver, cfg.SSL)
	if err != nil {
		return nil, err
	}
	return clusterview.New(clientset), nil
}
