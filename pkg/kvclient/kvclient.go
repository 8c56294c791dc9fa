// Package kvclient is the KV store capability of spec §4.2: Put/Get/
// Get-prefix/Append/Del/Del-token/List/Dump, with list values encoded as a
// comma-separated scalar.
package kvclient

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Separator is the token separator for list-valued scalars.
const Separator = ","

// Client is the narrow KV capability the rest of the core consumes.
// Concurrent invocations on distinct nodes are safe because every mutating
// key is scoped by /ohno/.../<node>/...; the single cluster-wide key
// /ohno/subnets is the only contention point, and correctness there hinges
// on the store serializing concurrent writes to that one key.
type Client interface {
	// Put writes or overwrites key with value.
	Put(ctx context.Context, key, value string) error
	// Get reads a single value; ok is false if key is absent.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	// GetPrefix returns every key under prefix.
	GetPrefix(ctx context.Context, prefix string) (map[string]string, error)
	// Append adds token to the comma-separated scalar at key (set-append
	// semantics: a no-op if token is already present). Absence behaves as
	// Put.
	Append(ctx context.Context, key, token string) error
	// Del removes key entirely.
	Del(ctx context.Context, key string) error
	// DelToken removes one token from the comma-separated scalar at key;
	// if that empties the scalar, the key itself is deleted.
	DelToken(ctx context.Context, key, token string) error
	// List splits the scalar at key by the separator; absence yields nil.
	List(ctx context.Context, key string) ([]string, error)
	// Dump renders every key under prefix for diagnostics.
	Dump(ctx context.Context, prefix string) (string, error)
}

// SplitList splits a stored scalar into tokens, skipping empties produced
// by a leading/trailing/doubled separator.
func SplitList(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, Separator)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// JoinList re-joins tokens into the stored scalar form.
func JoinList(tokens []string) string {
	return strings.Join(tokens, Separator)
}

// appendToken adds token to value's token list if absent, returning the
// updated scalar and whether a change was made.
func appendToken(value, token string) (string, bool) {
	tokens := SplitList(value)
	for _, t := range tokens {
		if t == token {
			return value, false
		}
	}
	tokens = append(tokens, token)
	return JoinList(tokens), true
}

// removeToken removes token from value's token list, returning the updated
// scalar, whether the token was present, and whether the result is empty.
func removeToken(value, token string) (string, bool, bool) {
	tokens := SplitList(value)
	out := tokens[:0:0]
	found := false
	for _, t := range tokens {
		if t == token {
			found = true
			continue
		}
		out = append(out, t)
	}
	return JoinList(out), found, len(out) == 0
}

// sortedKeys is a small formatting helper for Dump implementations.
func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// formatDump renders a prefix scan the way etcdctl's "get --prefix" output
// reads: one "key\nvalue\n" pair per entry, keys sorted.
func formatDump(prefix string, entries map[string]string) string {
	var b strings.Builder
	for _, k := range sortedKeys(entries) {
		fmt.Fprintf(&b, "%s\n%s\n", k, entries[k])
	}
	return b.String()
}
