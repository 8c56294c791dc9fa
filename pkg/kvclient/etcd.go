package kvclient

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"k8s.io/klog/v2"
)

// Config configures the etcd-backed client. Constructed explicitly rather
// than through process-wide environment variables (spec §9: "global KV
// environment variables -> explicit config").
type Config struct {
	Endpoints []string
	CAFile    string
	CertFile  string
	KeyFile   string
	Timeout   time.Duration
}

// EtcdClient is the etcd clientv3-backed implementation of Client.
type EtcdClient struct {
	cli *clientv3.Client
	to  time.Duration
}

// New dials etcd and returns a ready Client.
func New(cfg Config) (*EtcdClient, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, fmt.Errorf("kvclient: at least one endpoint is required")
	}
	to := cfg.Timeout
	if to == 0 {
		to = 5 * time.Second
	}

	etcdCfg := clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: to,
	}
	if cfg.CertFile != "" || cfg.KeyFile != "" || cfg.CAFile != "" {
		tlsInfo, err := loadTLS(cfg.CAFile, cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("kvclient: load tls: %w", err)
		}
		etcdCfg.TLS = tlsInfo
	}

	cli, err := clientv3.New(etcdCfg)
	if err != nil {
		return nil, fmt.Errorf("kvclient: dial etcd: %w", err)
	}
	return &EtcdClient{cli: cli, to: to}, nil
}

// ConfigFromEnv builds a Config from the process environment. The CNI
// configuration JSON of spec §6 has no etcd-specific stanza, so both
// entrypoints locate the KV store the way host-level daemons normally do:
// OHNO_ETCD_ENDPOINTS (comma-separated, default "127.0.0.1:2379") and the
// optional OHNO_ETCD_CAFILE/CERTFILE/KEYFILE trio.
func ConfigFromEnv() Config {
	endpoints := []string{"127.0.0.1:2379"}
	if v := os.Getenv("OHNO_ETCD_ENDPOINTS"); v != "" {
		endpoints = strings.Split(v, ",")
	}
	return Config{
		Endpoints: endpoints,
		CAFile:    os.Getenv("OHNO_ETCD_CAFILE"),
		CertFile:  os.Getenv("OHNO_ETCD_CERTFILE"),
		KeyFile:   os.Getenv("OHNO_ETCD_KEYFILE"),
		Timeout:   5 * time.Second,
	}
}

// Close releases the underlying etcd connection.
func (c *EtcdClient) Close() error {
	return c.cli.Close()
}

func (c *EtcdClient) ctx(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, c.to)
}

func (c *EtcdClient) Put(parent context.Context, key, value string) error {
	ctx, cancel := c.ctx(parent)
	defer cancel()
	_, err := c.cli.Put(ctx, key, value)
	if err != nil {
		return fmt.Errorf("kvclient: put %s: %w", key, err)
	}
	return nil
}

func (c *EtcdClient) Get(parent context.Context, key string) (string, bool, error) {
	ctx, cancel := c.ctx(parent)
	defer cancel()
	resp, err := c.cli.Get(ctx, key)
	if err != nil {
		return "", false, fmt.Errorf("kvclient: get %s: %w", key, err)
	}
	if len(resp.Kvs) == 0 {
		return "", false, nil
	}
	return string(resp.Kvs[0].Value), true, nil
}

func (c *EtcdClient) GetPrefix(parent context.Context, prefix string) (map[string]string, error) {
	ctx, cancel := c.ctx(parent)
	defer cancel()
	resp, err := c.cli.Get(ctx, prefix, clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("kvclient: get-prefix %s: %w", prefix, err)
	}
	out := make(map[string]string, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		out[string(kv.Key)] = string(kv.Value)
	}
	return out, nil
}

func (c *EtcdClient) Append(parent context.Context, key, token string) error {
	current, _, err := c.Get(parent, key)
	if err != nil {
		return err
	}
	updated, changed := appendToken(current, token)
	if !changed {
		return nil
	}
	return c.Put(parent, key, updated)
}

func (c *EtcdClient) Del(parent context.Context, key string) error {
	ctx, cancel := c.ctx(parent)
	defer cancel()
	_, err := c.cli.Delete(ctx, key)
	if err != nil {
		return fmt.Errorf("kvclient: del %s: %w", key, err)
	}
	return nil
}

func (c *EtcdClient) DelToken(parent context.Context, key, token string) error {
	current, ok, err := c.Get(parent, key)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	updated, found, empty := removeToken(current, token)
	if !found {
		return nil
	}
	if empty {
		return c.Del(parent, key)
	}
	return c.Put(parent, key, updated)
}

func (c *EtcdClient) List(parent context.Context, key string) ([]string, error) {
	value, ok, err := c.Get(parent, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return SplitList(value), nil
}

func (c *EtcdClient) Dump(parent context.Context, prefix string) (string, error) {
	entries, err := c.GetPrefix(parent, prefix)
	if err != nil {
		return "", err
	}
	klog.V(4).Infof("kvclient: dumped %d keys under %s", len(entries), prefix)
	return formatDump(prefix, entries), nil
}
