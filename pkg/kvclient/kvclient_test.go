package kvclient

import (
	"context"
	"testing"
)

func TestSplitListJoinList(t *testing.T) {
	cases := []struct {
		name  string
		value string
		want  []string
	}{
		{"empty", "", nil},
		{"single", "a", []string{"a"}},
		{"multi", "a,b,c", []string{"a", "b", "c"}},
		{"leading sep", ",a,b", []string{"a", "b"}},
		{"doubled sep", "a,,b", []string{"a", "b"}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := SplitList(c.value)
			if len(got) != len(c.want) {
				t.Fatalf("SplitList(%q) = %v, want %v", c.value, got, c.want)
			}
			for i := range got {
				if got[i] != c.want[i] {
					t.Fatalf("SplitList(%q) = %v, want %v", c.value, got, c.want)
				}
			}
		})
	}
}

func TestAppendTokenIsSetSemantics(t *testing.T) {
	v, changed := appendToken("", "a")
	if !changed || v != "a" {
		t.Fatalf("append to empty: got %q changed=%v", v, changed)
	}
	v, changed = appendToken(v, "b")
	if !changed || v != "a,b" {
		t.Fatalf("append b: got %q changed=%v", v, changed)
	}
	v, changed = appendToken(v, "a")
	if changed || v != "a,b" {
		t.Fatalf("re-append a should be a no-op: got %q changed=%v", v, changed)
	}
}

func TestRemoveToken(t *testing.T) {
	v, found, empty := removeToken("a,b,c", "b")
	if !found || empty || v != "a,c" {
		t.Fatalf("removeToken(b) = %q found=%v empty=%v", v, found, empty)
	}
	v, found, empty = removeToken("a", "a")
	if !found || !empty || v != "" {
		t.Fatalf("removeToken last token: %q found=%v empty=%v", v, found, empty)
	}
	_, found, _ = removeToken("a,b", "z")
	if found {
		t.Fatalf("removeToken of absent token reported found")
	}
}

func TestMemClientPutGetDel(t *testing.T) {
	ctx := context.Background()
	c := NewMemClient()

	if _, ok, err := c.Get(ctx, "k"); err != nil || ok {
		t.Fatalf("Get on empty store: ok=%v err=%v", ok, err)
	}
	if err := c.Put(ctx, "k", "v"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	v, ok, err := c.Get(ctx, "k")
	if err != nil || !ok || v != "v" {
		t.Fatalf("Get after Put: v=%q ok=%v err=%v", v, ok, err)
	}
	if err := c.Del(ctx, "k"); err != nil {
		t.Fatalf("Del: %v", err)
	}
	if _, ok, _ := c.Get(ctx, "k"); ok {
		t.Fatalf("Get after Del: still present")
	}
}

func TestMemClientAppendAndDelToken(t *testing.T) {
	ctx := context.Background()
	c := NewMemClient()

	if err := c.Append(ctx, "list", "a"); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := c.Append(ctx, "list", "b"); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := c.Append(ctx, "list", "a"); err != nil {
		t.Fatalf("Append dup: %v", err)
	}
	got, err := c.List(ctx, "list")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("List = %v, want [a b]", got)
	}

	if err := c.DelToken(ctx, "list", "a"); err != nil {
		t.Fatalf("DelToken: %v", err)
	}
	got, _ = c.List(ctx, "list")
	if len(got) != 1 || got[0] != "b" {
		t.Fatalf("List after DelToken(a) = %v, want [b]", got)
	}

	if err := c.DelToken(ctx, "list", "b"); err != nil {
		t.Fatalf("DelToken last: %v", err)
	}
	if _, ok, _ := c.Get(ctx, "list"); ok {
		t.Fatalf("key should be gone once the last token is removed")
	}
}

func TestMemClientGetPrefixAndDump(t *testing.T) {
	ctx := context.Background()
	c := NewMemClient()
	_ = c.Put(ctx, "/ohno/node/a/subnet", "10.0.0.0/24")
	_ = c.Put(ctx, "/ohno/node/b/subnet", "10.0.1.0/24")
	_ = c.Put(ctx, "/ohno/subnets", "10.0.0.0/24,10.0.1.0/24")

	entries, err := c.GetPrefix(ctx, "/ohno/node/")
	if err != nil {
		t.Fatalf("GetPrefix: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("GetPrefix returned %d entries, want 2", len(entries))
	}

	dump, err := c.Dump(ctx, "/ohno/node/")
	if err != nil {
		t.Fatalf("Dump: %v", err)
	}
	if dump == "" {
		t.Fatalf("Dump returned empty string")
	}
}
