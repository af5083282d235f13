package cache

import (
	"context"
	"time"
)

// LayeredCache implements a two-level cache: L1 in-memory, L2 any
// persistent Store (disk or Redis).
type LayeredCache struct {
	memCache *MemoryCache
	backing  Store
}

// NewLayeredCache creates a layered cache over the given backing store.
func NewLayeredCache(backing Store, opts ...LayeredOption) *LayeredCache {
	cfg := &LayeredConfig{
		MemoryMaxSize: 1000,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return &LayeredCache{
		memCache: NewMemoryCache(WithMemoryMaxSize(cfg.MemoryMaxSize)),
		backing:  backing,
	}
}

func (lc *LayeredCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	// Write-through: backing store first, then memory.
	if err := lc.backing.Set(ctx, key, value, ttl); err != nil {
		return err
	}
	_ = lc.memCache.Set(ctx, key, value, ttl)
	return nil
}

func (lc *LayeredCache) Get(ctx context.Context, key string, dest interface{}) error {
	if err := lc.memCache.Get(ctx, key, dest); err == nil {
		return nil
	}
	if err := lc.backing.Get(ctx, key, dest); err != nil {
		return err
	}
	// Promote for next time. The backing store owns the authoritative
	// expiry, so the L1 copy gets a short TTL rather than none.
	_ = lc.memCache.Set(ctx, key, dest, time.Minute)
	return nil
}

func (lc *LayeredCache) Delete(ctx context.Context, keys ...string) error {
	_ = lc.memCache.Delete(ctx, keys...)
	return lc.backing.Delete(ctx, keys...)
}

func (lc *LayeredCache) DeleteByPattern(ctx context.Context, pattern string) error {
	_ = lc.memCache.DeleteByPattern(ctx, pattern)
	return lc.backing.DeleteByPattern(ctx, pattern)
}

func (lc *LayeredCache) Exists(ctx context.Context, keys ...string) (bool, error) {
	return lc.backing.Exists(ctx, keys...)
}

func (lc *LayeredCache) CleanupExpired(ctx context.Context) int {
	n := lc.memCache.CleanupExpired(ctx)
	return n + lc.backing.CleanupExpired(ctx)
}

// Metrics reports the backing store's view; L1 is a read accelerator.
func (lc *LayeredCache) Metrics() Metrics {
	return lc.backing.Metrics()
}

// Close closes both layers.
func (lc *LayeredCache) Close() error {
	_ = lc.memCache.Close()
	return lc.backing.Close()
}
