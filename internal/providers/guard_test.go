package providers

import (
	"context"
	"errors"
	"testing"
	"time"

	"PerpHelm/internal/domain/models"
	"PerpHelm/internal/domain/repository"
	"PerpHelm/internal/domain/service"
	"PerpHelm/internal/service/ratelimit"
	"PerpHelm/pkg/cache"
	"PerpHelm/pkg/logger"
	"PerpHelm/pkg/metrics"
	"PerpHelm/pkg/retry"
)

type stubSource struct {
	name  string
	err   error
	calls int
}

func (s *stubSource) Name() string { return s.name }

func (s *stubSource) Timescales() []repository.Timescale {
	return []repository.Timescale{repository.TimescaleFast, repository.TimescaleMedium}
}

func (s *stubSource) Fetch(context.Context, *service.FetchRequest) (*models.ProviderResponse, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &models.ProviderResponse{
		Payload:    map[string]float64{"value": float64(s.calls)},
		Timestamp:  time.Now(),
		Confidence: 1,
	}, nil
}

func newTestGuard(t *testing.T, src Source, cfg GuardConfig) *Guard {
	t.Helper()
	log, err := logger.New(&logger.Config{Level: "error", Format: "console", Output: "stdout"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	store := cache.NewMemoryCache()
	t.Cleanup(func() { store.Close() })
	return NewGuard(src, store, ratelimit.New(), metrics.New(), log, cfg)
}

func baseConfig() GuardConfig {
	return GuardConfig{
		CacheTTL:         time.Minute,
		FailureThreshold: 3,
		Cooldown:         30 * time.Second,
		MaxAttempts:      3,
		InitialDelay:     time.Millisecond,
		BackoffFactor:    2,
		MaxDelay:         5 * time.Millisecond,
		RateCapacity:     100,
		RateRefillPerSec: 100,
	}
}

func TestFreshResultIsCachedForSubsequentFetches(t *testing.T) {
	src := &stubSource{name: "exchange"}
	g := newTestGuard(t, src, baseConfig())
	req := &service.FetchRequest{Symbol: "BTC-PERP", Timescale: repository.TimescaleFast}

	first, err := g.Fetch(context.Background(), req)
	if err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	if first.IsCached {
		t.Fatal("first fetch must be fresh")
	}

	second, err := g.Fetch(context.Background(), req)
	if err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	if !second.IsCached {
		t.Fatal("second fetch within TTL must be served from cache")
	}
	if src.calls != 1 {
		t.Fatalf("source calls = %d, want 1", src.calls)
	}
	if second.Payload["value"] != 1 {
		t.Fatalf("cached payload = %v, want the first result", second.Payload["value"])
	}
}

func TestOpenBreakerFailsFastWithoutCallingSource(t *testing.T) {
	src := &stubSource{name: "onchain", err: errors.New("upstream 500")}
	g := newTestGuard(t, src, baseConfig())
	req := &service.FetchRequest{Symbol: "BTC-PERP", Timescale: repository.TimescaleMedium}

	// Exhausts the retry budget and trips the threshold.
	if _, err := g.Fetch(context.Background(), req); err == nil {
		t.Fatal("expected fetch error")
	}
	if src.calls != 3 {
		t.Fatalf("source calls = %d, want 3 attempts", src.calls)
	}
	if g.Healthy() {
		t.Fatal("guard must report unhealthy with the breaker open")
	}

	_, err := g.Fetch(context.Background(), req)
	if !errors.Is(err, retry.ErrCircuitOpen) {
		t.Fatalf("err = %v, want circuit open", err)
	}
	if src.calls != 3 {
		t.Fatalf("open breaker must not reach the source, calls = %d", src.calls)
	}
}

func TestRateLimitDeniesWithoutTouchingBreaker(t *testing.T) {
	cfg := baseConfig()
	cfg.RateCapacity = 1
	cfg.RateRefillPerSec = 0.001
	src := &stubSource{name: "sentiment"}
	g := newTestGuard(t, src, cfg)

	if _, err := g.Fetch(context.Background(), &service.FetchRequest{Symbol: "BTC-PERP"}); err != nil {
		t.Fatalf("first fetch: %v", err)
	}

	// Different symbol misses the cache and hits the empty bucket.
	_, err := g.Fetch(context.Background(), &service.FetchRequest{Symbol: "ETH-PERP"})
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("err = %v, want rate limited", err)
	}
	if !g.Healthy() {
		t.Fatal("rate limiting is not a provider fault")
	}
}

func TestStatusAggregatesBreakerAndCacheCounters(t *testing.T) {
	src := &stubSource{name: "exchange"}
	g := newTestGuard(t, src, baseConfig())
	req := &service.FetchRequest{Symbol: "BTC-PERP", Timescale: repository.TimescaleFast}

	// One miss-then-fetch, one hit.
	if _, err := g.Fetch(context.Background(), req); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if _, err := g.Fetch(context.Background(), req); err != nil {
		t.Fatalf("fetch: %v", err)
	}

	st := g.Status()
	if !st.Healthy {
		t.Fatal("healthy guard must report healthy")
	}
	if st.BreakerState != "closed" {
		t.Fatalf("breaker state = %q, want closed", st.BreakerState)
	}
	if st.CacheHits != 1 || st.CacheMisses != 1 {
		t.Fatalf("cache counters = %d/%d, want 1 hit and 1 miss", st.CacheHits, st.CacheMisses)
	}
}

func TestStatusReportsOpenBreaker(t *testing.T) {
	src := &stubSource{name: "onchain", err: errors.New("upstream 500")}
	g := newTestGuard(t, src, baseConfig())

	if _, err := g.Fetch(context.Background(), &service.FetchRequest{Symbol: "BTC-PERP"}); err == nil {
		t.Fatal("expected fetch error")
	}

	st := g.Status()
	if st.Healthy {
		t.Fatal("open breaker must report unhealthy")
	}
	if st.BreakerState != "open" {
		t.Fatalf("breaker state = %q, want open", st.BreakerState)
	}
}

func TestInvalidateSymbolDropsCachedEntries(t *testing.T) {
	src := &stubSource{name: "exchange"}
	g := newTestGuard(t, src, baseConfig())
	req := &service.FetchRequest{Symbol: "BTC-PERP", Timescale: repository.TimescaleFast}

	if _, err := g.Fetch(context.Background(), req); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if err := g.InvalidateSymbol(context.Background()); err != nil {
		t.Fatalf("invalidate: %v", err)
	}

	resp, err := g.Fetch(context.Background(), req)
	if err != nil {
		t.Fatalf("refetch: %v", err)
	}
	if resp.IsCached {
		t.Fatal("invalidated entry must be refetched")
	}
	if src.calls != 2 {
		t.Fatalf("source calls = %d, want 2", src.calls)
	}
}
