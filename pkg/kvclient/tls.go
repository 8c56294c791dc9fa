package kvclient

import (
	"crypto/tls"

	"go.etcd.io/etcd/client/pkg/v3/transport"
)

// loadTLS builds a *tls.Config from the configured CA/cert/key files. Any
// of the three may be empty; an empty cert/key pair still yields a usable
// client-CA-only config.
func loadTLS(caFile, certFile, keyFile string) (*tls.Config, error) {
	info := transport.TLSInfo{
		CertFile:      certFile,
		KeyFile:       keyFile,
		TrustedCAFile: caFile,
	}
	return info.ClientConfig()
}
