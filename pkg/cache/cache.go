package cache

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	ErrCacheMiss = errors.New("cache: key not found")
)

// Metrics is an observability snapshot. Counters never affect read/write
// correctness.
type Metrics struct {
	Hits     uint64        `json:"hits"`
	Misses   uint64        `json:"misses"`
	Expired  uint64        `json:"expired"`
	Entries  int           `json:"entries"`
	MeanAge  time.Duration `json:"mean_age"`
	HitRatio float64       `json:"hit_ratio"`
}

// Store defines cache operations. A Get never returns an expired entry:
// missing and expired are indistinguishable to callers.
type Store interface {
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
	Delete(ctx context.Context, keys ...string) error
	// DeleteByPattern removes all keys matching a prefix or trailing-*
	// wildcard pattern.
	DeleteByPattern(ctx context.Context, pattern string) error
	Exists(ctx context.Context, keys ...string) (bool, error)
	// CleanupExpired sweeps expired entries. Idempotent and safe to run
	// concurrently with reads. Returns the number of entries removed.
	CleanupExpired(ctx context.Context) int
	Metrics() Metrics
	Close() error
}

func (m Metrics) withRatio() Metrics {
	total := m.Hits + m.Misses
	if total > 0 {
		m.HitRatio = float64(m.Hits) / float64(total)
	}
	return m
}

// matchPattern reports whether key matches a prefix or trailing-* pattern.
func matchPattern(key, pattern string) bool {
	if pattern == "" {
		return false
	}
	pattern = strings.TrimSuffix(pattern, "*")
	return strings.HasPrefix(key, pattern)
}
