package providers

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"PerpHelm/internal/domain/models"
	"PerpHelm/internal/domain/repository"
	"PerpHelm/internal/domain/service"
	"PerpHelm/internal/service/ratelimit"
	"PerpHelm/pkg/breaker"
	"PerpHelm/pkg/cache"
	"PerpHelm/pkg/logger"
	"PerpHelm/pkg/metrics"
	"PerpHelm/pkg/retry"
)

// ErrRateLimited is returned when the provider's local token bucket is
// empty. Rate limiting is not a provider fault, so it never counts
// toward the circuit breaker.
var ErrRateLimited = errors.New("provider rate limited")

// Source produces a fresh payload for one provider category. Sources
// carry no resilience logic of their own.
type Source interface {
	Name() string
	Fetch(ctx context.Context, req *service.FetchRequest) (*models.ProviderResponse, error)
	Timescales() []repository.Timescale
}

// GuardConfig bundles the per-provider resilience settings.
type GuardConfig struct {
	CacheTTL         time.Duration
	FailureThreshold int
	Cooldown         time.Duration
	MaxAttempts      int
	InitialDelay     time.Duration
	BackoffFactor    float64
	MaxDelay         time.Duration
	RateCapacity     float64
	RateRefillPerSec float64
}

// Guard wraps a Source with cache, circuit breaker, retry and rate
// limiting. Each provider gets its own guard so one failing upstream
// cannot exhaust the budget of the others.
type Guard struct {
	source  Source
	cache   cache.Store
	ttl     time.Duration
	breaker *breaker.Breaker
	retry   *retry.Policy
	limiter *ratelimit.Limiter
	rateCap float64
	rateRef float64
	metrics *metrics.Recorder
	log     *logger.Logger

	cacheHits   atomic.Uint64
	cacheMisses atomic.Uint64
}

// NewGuard builds a guarded provider around source.
func NewGuard(source Source, store cache.Store, limiter *ratelimit.Limiter, rec *metrics.Recorder, log *logger.Logger, cfg GuardConfig) *Guard {
	return &Guard{
		source: source,
		cache:  store,
		ttl:    cfg.CacheTTL,
		breaker: breaker.New(
			breaker.WithFailureThreshold(cfg.FailureThreshold),
			breaker.WithCooldown(cfg.Cooldown),
		),
		retry: retry.New(
			retry.WithMaxAttempts(cfg.MaxAttempts),
			retry.WithBackoff(cfg.InitialDelay, cfg.BackoffFactor, cfg.MaxDelay),
		),
		limiter: limiter,
		rateCap: cfg.RateCapacity,
		rateRef: cfg.RateRefillPerSec,
		metrics: rec,
		log:     log,
	}
}

func (g *Guard) Name() string            { return g.source.Name() }
func (g *Guard) CacheTTL() time.Duration { return g.ttl }

// Timescales reports the source's timescale membership.
func (g *Guard) Timescales() []repository.Timescale { return g.source.Timescales() }

// Healthy reports whether the breaker currently admits requests.
func (g *Guard) Healthy() bool {
	return g.breaker.State() != breaker.StateOpen
}

// BreakerState exposes the current breaker state for health reporting.
func (g *Guard) BreakerState() breaker.State { return g.breaker.State() }

// Status aggregates breaker state and cache counters for this provider.
func (g *Guard) Status() service.ProviderStatus {
	return service.ProviderStatus{
		Healthy:      g.Healthy(),
		BreakerState: string(g.breaker.State()),
		CacheHits:    g.cacheHits.Load(),
		CacheMisses:  g.cacheMisses.Load(),
	}
}

// Fetch returns the cached payload when fresh, otherwise fetches from
// the source under the breaker and retry policy and caches the result.
func (g *Guard) Fetch(ctx context.Context, req *service.FetchRequest) (*models.ProviderResponse, error) {
	key := g.cacheKey(req)

	if g.cache != nil {
		var cached models.ProviderResponse
		if err := g.cache.Get(ctx, key, &cached); err == nil {
			cached.IsCached = true
			cached.CacheAge = time.Since(cached.Timestamp)
			g.cacheHits.Add(1)
			g.metrics.RecordCacheOp(g.Name(), "hit")
			g.metrics.RecordFetch(g.Name(), string(req.Timescale), "cached")
			return &cached, nil
		}
		g.cacheMisses.Add(1)
		g.metrics.RecordCacheOp(g.Name(), "miss")
	}

	if !g.limiter.Allow(g.Name(), g.rateCap, g.rateRef) {
		g.metrics.RecordFetch(g.Name(), string(req.Timescale), "rate_limited")
		return nil, fmt.Errorf("%s: %w", g.Name(), ErrRateLimited)
	}

	started := time.Now()
	var resp *models.ProviderResponse
	err := g.retry.Do(ctx, g.breaker, func(ctx context.Context) error {
		var fetchErr error
		resp, fetchErr = g.source.Fetch(ctx, req)
		return fetchErr
	})
	g.metrics.RecordLatency("provider_fetch", time.Since(started).Seconds())
	g.metrics.RecordBreakerState(g.Name(), breakerStateValue(g.breaker.State()))

	if err != nil {
		g.metrics.RecordFetch(g.Name(), string(req.Timescale), "error")
		if errors.Is(err, retry.ErrCircuitOpen) {
			g.metrics.RecordError("circuit_open")
		} else {
			g.metrics.RecordError("provider_fetch")
		}
		g.log.Warn("provider fetch failed",
			logger.String("provider", g.Name()),
			logger.String("timescale", string(req.Timescale)),
			logger.Error(err))
		return nil, fmt.Errorf("%s: %w", g.Name(), err)
	}

	if resp.Timestamp.IsZero() {
		resp.Timestamp = time.Now()
	}
	resp.Source = g.Name()

	if g.cache != nil {
		if setErr := g.cache.Set(ctx, key, resp, g.ttl); setErr != nil {
			g.log.Warn("cache write failed",
				logger.String("provider", g.Name()),
				logger.Error(setErr))
		}
	}

	g.metrics.RecordFetch(g.Name(), string(req.Timescale), "success")
	return resp, nil
}

func (g *Guard) cacheKey(req *service.FetchRequest) string {
	params := map[string]string{
		"symbol":    req.Symbol,
		"timescale": string(req.Timescale),
	}
	for k, v := range req.Params {
		params[k] = v
	}
	return cache.ProviderKey(g.Name(), params)
}

// InvalidateSymbol drops every cached entry for this provider.
func (g *Guard) InvalidateSymbol(ctx context.Context) error {
	if g.cache == nil {
		return nil
	}
	return g.cache.DeleteByPattern(ctx, cache.ProviderPattern(g.Name()))
}

func breakerStateValue(s breaker.State) float64 {
	switch s {
	case breaker.StateClosed:
		return 0
	case breaker.StateOpen:
		return 1
	default:
		return 2
	}
}
