package kvclient

import (
	"context"
	"strings"
	"sync"
)

// MemClient is an in-memory Client, used by package tests in place of a
// real etcd cluster (the teacher's own plugin_test.go fakes its
// NetOps/Allocator collaborators the same way).
type MemClient struct {
	mu   sync.Mutex
	data map[string]string
}

// NewMemClient returns an empty in-memory Client.
func NewMemClient() *MemClient {
	return &MemClient{data: map[string]string{}}
}

func (m *MemClient) Put(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *MemClient) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *MemClient) GetPrefix(_ context.Context, prefix string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[string]string{}
	for k, v := range m.data {
		if strings.HasPrefix(k, prefix) {
			out[k] = v
		}
	}
	return out, nil
}

func (m *MemClient) Append(_ context.Context, key, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	updated, changed := appendToken(m.data[key], token)
	if changed {
		m.data[key] = updated
	}
	return nil
}

func (m *MemClient) Del(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *MemClient) DelToken(_ context.Context, key, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	value, ok := m.data[key]
	if !ok {
		return nil
	}
	updated, found, empty := removeToken(value, token)
	if !found {
		return nil
	}
	if empty {
		delete(m.data, key)
		return nil
	}
	m.data[key] = updated
	return nil
}

func (m *MemClient) List(_ context.Context, key string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return SplitList(m.data[key]), nil
}

func (m *MemClient) Dump(_ context.Context, prefix string) (string, error) {
	entries, err := m.GetPrefix(context.Background(), prefix)
	if err != nil {
		return "", err
	}
	return formatDump(prefix, entries), nil
}
