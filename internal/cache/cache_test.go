package cache

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func newLocalCache(t *testing.T) *Cache {
	t.Helper()
	return New(Config{Enabled: true, LocalSize: 16, LocalTTL: time.Minute}, nil, nil)
}

func TestPutGetRoundTrip(t *testing.T) {
	c := newLocalCache(t)
	ctx := context.Background()

	c.Put(ctx, "queries", "k1", []byte("v1"), 0)
	got, ok := c.Get(ctx, "queries", "k1")
	if !ok || string(got) != "v1" {
		t.Fatalf("got (%q, %v)", got, ok)
	}

	c.Invalidate(ctx, "queries", "k1")
	if _, ok := c.Get(ctx, "queries", "k1"); ok {
		t.Fatal("expected miss after invalidate")
	}
}

func TestDisabledCacheIsNoop(t *testing.T) {
	c := New(Config{Enabled: false}, nil, nil)
	ctx := context.Background()
	c.Put(ctx, "queries", "k1", []byte("v1"), 0)
	if _, ok := c.Get(ctx, "queries", "k1"); ok {
		t.Fatal("disabled cache must not serve hits")
	}
}

func TestGetJSONDropsMalformedEntry(t *testing.T) {
	c := newLocalCache(t)
	ctx := context.Background()

	c.Put(ctx, "queries", "bad", []byte("{not json"), 0)
	var out map[string]string
	if c.GetJSON(ctx, "queries", "bad", &out) {
		t.Fatal("malformed entry must read as miss")
	}
	if _, ok := c.Get(ctx, "queries", "bad"); ok {
		t.Fatal("malformed entry must be dropped")
	}
}

func TestGetOrBuildSingleFlight(t *testing.T) {
	c := newLocalCache(t)
	ctx := context.Background()

	var builds int32
	build := func(context.Context) ([]byte, error) {
		atomic.AddInt32(&builds, 1)
		time.Sleep(20 * time.Millisecond)
		return []byte("built"), nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			val, err := c.GetOrBuild(ctx, "queries", "shared", 0, build)
			if err != nil || string(val) != "built" {
				t.Errorf("GetOrBuild: (%q, %v)", val, err)
			}
		}()
	}
	wg.Wait()

	if n := atomic.LoadInt32(&builds); n != 1 {
		t.Fatalf("expected exactly one build, got %d", n)
	}
}

func TestGetOrBuildPropagatesBuildError(t *testing.T) {
	c := newLocalCache(t)
	wantErr := errors.New("boom")
	_, err := c.GetOrBuild(context.Background(), "queries", "k", 0, func(context.Context) ([]byte, error) {
		return nil, wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("got %v", err)
	}
}

func TestPolicyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	content := "classes:\n  queries: distributed\n  custom-class: both\n"
	if err := writeFile(path, content); err != nil {
		t.Fatalf("write: %v", err)
	}

	policy, err := LoadPolicy(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if policy.TierFor("queries") != TierDistributed {
		t.Fatal("queries should be distributed")
	}
	if policy.TierFor("custom-class") != TierBoth {
		t.Fatal("custom-class should be both")
	}
	// Unlisted classes keep their defaults.
	if policy.TierFor("metrics") != TierLocal {
		t.Fatal("metrics default should survive")
	}
}

func TestPolicyFileRejectsUnknownTier(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	if err := writeFile(path, "classes:\n  queries: turbo\n"); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadPolicy(path); err == nil {
		t.Fatal("expected error for unknown tier name")
	}
}
