package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestBadger(t *testing.T) *BadgerCache {
	t.Helper()
	bc, err := NewBadgerCache(WithBadgerPath(t.TempDir()))
	if err != nil {
		t.Fatalf("open badger: %v", err)
	}
	t.Cleanup(func() { _ = bc.Close() })
	return bc
}

func TestBadgerRoundTrip(t *testing.T) {
	bc := newTestBadger(t)
	ctx := context.Background()

	type payload struct {
		Price float64 `json:"price"`
	}
	if err := bc.Set(ctx, "exchange:symbol=ETH", payload{Price: 3120.25}, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}

	var got payload
	if err := bc.Get(ctx, "exchange:symbol=ETH", &got); err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Price != 3120.25 {
		t.Fatalf("price = %v", got.Price)
	}
}

func TestBadgerExpiry(t *testing.T) {
	bc := newTestBadger(t)
	ctx := context.Background()

	if err := bc.Set(ctx, "k", "v", 50*time.Millisecond); err != nil {
		t.Fatalf("set: %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	var s string
	if err := bc.Get(ctx, "k", &s); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected miss after ttl, got %v", err)
	}
}

func TestBadgerDeleteByPattern(t *testing.T) {
	bc := newTestBadger(t)
	ctx := context.Background()

	_ = bc.Set(ctx, "sentiment:a", 1, time.Minute)
	_ = bc.Set(ctx, "sentiment:b", 2, time.Minute)
	_ = bc.Set(ctx, "onchain:a", 3, time.Minute)

	if err := bc.DeleteByPattern(ctx, "sentiment:*"); err != nil {
		t.Fatalf("delete by pattern: %v", err)
	}

	var v int
	if err := bc.Get(ctx, "sentiment:a", &v); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("sentiment:a should be gone, got %v", err)
	}
	if err := bc.Get(ctx, "onchain:a", &v); err != nil {
		t.Fatalf("onchain:a should survive: %v", err)
	}
}
