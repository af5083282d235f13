package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestGetReturnsValueUntilTTLElapses(t *testing.T) {
	mc := NewMemoryCache(WithMemoryMaxSize(16))
	defer mc.Close()
	ctx := context.Background()

	if err := mc.Set(ctx, "exchange:symbol=BTC", "42000.5", 50*time.Millisecond); err != nil {
		t.Fatalf("set: %v", err)
	}

	var got string
	if err := mc.Get(ctx, "exchange:symbol=BTC", &got); err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != "42000.5" {
		t.Fatalf("got %q", got)
	}

	time.Sleep(60 * time.Millisecond)
	if err := mc.Get(ctx, "exchange:symbol=BTC", &got); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected miss after ttl, got %v", err)
	}
}

func TestDeleteByPatternRemovesOnlyMatchingKeys(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	_ = mc.Set(ctx, "onchain:a", 1, time.Minute)
	_ = mc.Set(ctx, "onchain:b", 2, time.Minute)
	_ = mc.Set(ctx, "sentiment:a", 3, time.Minute)

	if err := mc.DeleteByPattern(ctx, "onchain:*"); err != nil {
		t.Fatalf("delete by pattern: %v", err)
	}

	var v int
	if err := mc.Get(ctx, "onchain:a", &v); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("onchain:a should be gone, got %v", err)
	}
	if err := mc.Get(ctx, "sentiment:a", &v); err != nil {
		t.Fatalf("sentiment:a should survive: %v", err)
	}
}

func TestCleanupExpiredIsIdempotent(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	_ = mc.Set(ctx, "k1", 1, 10*time.Millisecond)
	_ = mc.Set(ctx, "k2", 2, time.Minute)
	time.Sleep(20 * time.Millisecond)

	if n := mc.CleanupExpired(ctx); n != 1 {
		t.Fatalf("first sweep removed %d, want 1", n)
	}
	if n := mc.CleanupExpired(ctx); n != 0 {
		t.Fatalf("second sweep removed %d, want 0", n)
	}
}

func TestMetricsTracksHitsAndMisses(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	_ = mc.Set(ctx, "k", "v", time.Minute)
	var s string
	_ = mc.Get(ctx, "k", &s)
	_ = mc.Get(ctx, "k", &s)
	_ = mc.Get(ctx, "absent", &s)

	m := mc.Metrics()
	if m.Hits != 2 || m.Misses != 1 {
		t.Fatalf("hits=%d misses=%d, want 2/1", m.Hits, m.Misses)
	}
	if m.Entries != 1 {
		t.Fatalf("entries = %d, want 1", m.Entries)
	}
}

func TestLRUEvictionAtCapacity(t *testing.T) {
	mc := NewMemoryCache(WithMemoryMaxSize(2))
	defer mc.Close()
	ctx := context.Background()

	_ = mc.Set(ctx, "a", 1, time.Minute)
	time.Sleep(time.Millisecond)
	_ = mc.Set(ctx, "b", 2, time.Minute)

	var v int
	_ = mc.Get(ctx, "a", &v) // touch a so b is the LRU
	time.Sleep(time.Millisecond)
	_ = mc.Set(ctx, "c", 3, time.Minute)

	if err := mc.Get(ctx, "b", &v); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("b should have been evicted, got %v", err)
	}
	if err := mc.Get(ctx, "a", &v); err != nil {
		t.Fatalf("a should survive: %v", err)
	}
}

func TestProviderKeyIsOrderInsensitive(t *testing.T) {
	k1 := ProviderKey("exchange", map[string]string{"symbol": "BTC", "tf": "fast"})
	k2 := ProviderKey("exchange", map[string]string{"tf": "fast", "symbol": "BTC"})
	if k1 != k2 {
		t.Fatalf("keys differ: %q vs %q", k1, k2)
	}
}
