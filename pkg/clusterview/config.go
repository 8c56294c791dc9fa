package clusterview

import (
	"fmt"
	"os"
	"path/filepath"

	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

const (
	saDir         = "/var/run/secrets/kubernetes.io/serviceaccount"
	saTokenFile   = saDir + "/token"
	saCAFile      = saDir + "/ca.crt"
	kubeletConf   = "/etc/kubernetes/kubelet.conf"
	hostCAFile    = "/etc/kubernetes/pki/ca.crt"
	tokenCacheDir = "/var/run/ohno"
	tokenCacheOut = tokenCacheDir + "/token"
)

// InPod reports whether the process is running inside a Pod, i.e. the
// service-account volume is mounted.
func InPod() bool {
	_, err := os.Stat(saTokenFile)
	return err == nil
}

// NewInClusterConfig builds a client-go Interface from the mounted
// service-account token and CA (spec §4.8, §6). When ssl is false, CA
// pinning is skipped. The token is also cached to /var/run/ohno/token for
// host-side tooling that needs it, per spec §6's filesystem contract.
func NewInClusterConfig(apiserver string, ssl bool) (kubernetes.Interface, error) {
	token, err := os.ReadFile(saTokenFile)
	if err != nil {
		return nil, fmt.Errorf("clusterview: read service-account token: %w", err)
	}
	if err := cacheToken(token); err != nil {
		return nil, err
	}

	cfg := &rest.Config{
		Host:        apiserver,
		BearerToken: string(token),
	}
	if ssl {
		cfg.TLSClientConfig = rest.TLSClientConfig{CAFile: saCAFile}
	} else {
		cfg.TLSClientConfig = rest.TLSClientConfig{Insecure: true}
	}
	return kubernetes.NewForConfig(cfg)
}

// NewHostConfig builds a client-go Interface for the on-host daemon,
// reading the kubelet's own config/CA paths (spec §4.8, §6).
func NewHostConfig(apiserver string, ssl bool) (kubernetes.Interface, error) {
	cfg := &rest.Config{Host: apiserver}
	if ssl {
		if _, err := os.Stat(hostCAFile); err != nil {
			return nil, fmt.Errorf("clusterview: host CA file missing: %w", err)
		}
		cfg.TLSClientConfig = rest.TLSClientConfig{CAFile: hostCAFile}
	} else {
		cfg.TLSClientConfig = rest.TLSClientConfig{Insecure: true}
	}
	return kubernetes.NewForConfig(cfg)
}

func cacheToken(token []byte) error {
	if err := os.MkdirAll(tokenCacheDir, 0o700); err != nil {
		return fmt.Errorf("clusterview: create token cache dir: %w", err)
	}
	if err := os.WriteFile(tokenCacheOut, token, 0o600); err != nil {
		return fmt.Errorf("clusterview: write token cache: %w", err)
	}
	return nil
}

// HostAPIServerURL reads the api-server address out of the current
// context of the kubelet's own kubeconfig, so host-side callers (the
// daemon, and the plugin itself when invoked on the host) need not be told
// the address separately (spec §6: "/etc/kubernetes/kubelet.conf").
func HostAPIServerURL() (string, error) {
	cfg, err := clientcmd.LoadFromFile(kubeletConf)
	if err != nil {
		return "", fmt.Errorf("clusterview: load kubelet config: %w", err)
	}
	context, ok := cfg.Contexts[cfg.CurrentContext]
	if !ok {
		return "", fmt.Errorf("clusterview: kubelet config has no current context")
	}
	cluster, ok := cfg.Clusters[context.Cluster]
	if !ok {
		return "", fmt.Errorf("clusterview: kubelet config has no cluster %q", context.Cluster)
	}
	return cluster.Server, nil
}

// KubeletConfPath and HostCAPath expose the host kubeconfig and CA paths
// this package reads.
func KubeletConfPath() string { return kubeletConf }
func HostCAPath() string      { return filepath.Clean(hostCAFile) }
