package usecase

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PerpHelm/internal/domain/models"
	"PerpHelm/internal/domain/repository"
	"PerpHelm/internal/domain/service"
	"PerpHelm/pkg/metrics"
)

// fakeProvider is a scriptable DataProvider. Membership defaults to all
// timescales.
type fakeProvider struct {
	name    string
	payload map[string]float64
	err     error
	delay   time.Duration
	block   chan struct{} // when set, Fetch waits for close
	scales  []repository.Timescale
	calls   int64
}

func (p *fakeProvider) Name() string            { return p.name }
func (p *fakeProvider) CacheTTL() time.Duration { return time.Second }
func (p *fakeProvider) Healthy() bool           { return p.err == nil }

func (p *fakeProvider) Timescales() []repository.Timescale {
	if p.scales != nil {
		return p.scales
	}
	return []repository.Timescale{repository.TimescaleFast, repository.TimescaleMedium, repository.TimescaleSlow}
}

func (p *fakeProvider) Fetch(ctx context.Context, _ *service.FetchRequest) (*models.ProviderResponse, error) {
	atomic.AddInt64(&p.calls, 1)
	if p.block != nil {
		select {
		case <-p.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if p.err != nil {
		return nil, p.err
	}
	return &models.ProviderResponse{
		Payload:    p.payload,
		Timestamp:  time.Now(),
		Source:     p.name,
		Confidence: 1,
	}, nil
}

func newTestOrchestrator(t *testing.T, providers ...service.DataProvider) *SignalOrchestrator {
	t.Helper()
	return NewSignalOrchestrator(providers, OrchestratorTimeouts{
		Fast:   200 * time.Millisecond,
		Medium: 500 * time.Millisecond,
		Slow:   time.Second,
	}, metrics.New(), testLogger(t))
}

func TestPartialBatchWhenOneProviderFails(t *testing.T) {
	o := newTestOrchestrator(t,
		&fakeProvider{name: "exchange", payload: map[string]float64{"mark_price": 50000}},
		&fakeProvider{name: "sentiment", err: errors.New("upstream down")},
	)

	batch, err := o.CollectSignals(context.Background(), "BTC-PERP", repository.TimescaleMedium)
	require.NoError(t, err, "a failed provider degrades the batch, never fails it")

	assert.True(t, batch.Partial())
	assert.Contains(t, batch.Responses, "exchange")
	assert.Contains(t, batch.Errors, "sentiment")
	assert.Contains(t, batch.Summary, "1/2 providers ok")

	v, ok := batch.Scalar("exchange", "mark_price")
	require.True(t, ok)
	assert.Equal(t, 50000.0, v)
}

func TestSlowProviderBoundedByTimescaleTimeout(t *testing.T) {
	o := newTestOrchestrator(t,
		&fakeProvider{name: "exchange", payload: map[string]float64{"mark_price": 50000}},
		&fakeProvider{name: "onchain", delay: 5 * time.Second, payload: map[string]float64{}},
	)

	var wg sync.WaitGroup
	results := make([]*models.SignalBatch, 3)
	start := time.Now()
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			b, err := o.CollectSignals(context.Background(), "BTC-PERP", repository.TimescaleFast)
			assert.NoError(t, err)
			results[i] = b
		}(i)
	}
	wg.Wait()
	elapsed := time.Since(start)

	assert.Less(t, elapsed, 2*time.Second, "all callers return within the fast budget, not the slow provider's")
	for _, b := range results {
		require.NotNil(t, b)
		assert.Contains(t, b.Responses, "exchange")
		assert.Contains(t, b.Errors, "onchain")
	}
}

func TestConcurrentCallersShareOneCollection(t *testing.T) {
	release := make(chan struct{})
	p := &fakeProvider{name: "exchange", payload: map[string]float64{"mark_price": 1}, block: release}
	o := newTestOrchestrator(t, p)

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := o.CollectSignals(context.Background(), "BTC-PERP", repository.TimescaleSlow)
			assert.NoError(t, err)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int64(1), atomic.LoadInt64(&p.calls), "identical in-flight requests coalesce")
}

func TestCollectConcurrentReturnsEveryTimescale(t *testing.T) {
	o := newTestOrchestrator(t,
		&fakeProvider{name: "exchange", payload: map[string]float64{"mark_price": 2}},
	)

	batches, err := o.CollectConcurrent(context.Background(), "BTC-PERP")
	require.NoError(t, err)
	require.Len(t, batches, 3)
	for _, ts := range []repository.Timescale{repository.TimescaleFast, repository.TimescaleMedium, repository.TimescaleSlow} {
		require.Contains(t, batches, ts)
		assert.Equal(t, string(ts), batches[ts].Timescale)
	}
}

func TestCollectUsesOnlyTimescaleMembers(t *testing.T) {
	slowOnly := &fakeProvider{name: "onchain", payload: map[string]float64{"exchange_netflow": -120}, scales: []repository.Timescale{repository.TimescaleSlow}}
	o := newTestOrchestrator(t,
		&fakeProvider{name: "exchange", payload: map[string]float64{"mark_price": 50000}},
		slowOnly,
	)

	batch, err := o.CollectSignals(context.Background(), "BTC-PERP", repository.TimescaleFast)
	require.NoError(t, err)
	assert.NotContains(t, batch.Responses, "onchain")
	assert.NotContains(t, batch.Errors, "onchain")
	assert.Equal(t, int64(0), atomic.LoadInt64(&slowOnly.calls), "non-members are never fetched")

	batch, err = o.CollectSignals(context.Background(), "BTC-PERP", repository.TimescaleSlow)
	require.NoError(t, err)
	assert.Contains(t, batch.Responses, "onchain")
}

func TestInvalidTimescaleRejected(t *testing.T) {
	o := newTestOrchestrator(t, &fakeProvider{name: "exchange", payload: map[string]float64{}})
	_, err := o.CollectSignals(context.Background(), "BTC-PERP", repository.Timescale("hourly"))
	assert.Error(t, err)
}

func TestBuildRegimeSignalsFlattensBatch(t *testing.T) {
	o := newTestOrchestrator(t,
		&fakeProvider{name: "exchange", payload: map[string]float64{
			"mark_price":           50000,
			"price_change_24h_pct": 3.2,
			"funding_rate_bps":     12,
		}},
		&fakeProvider{name: "computed", payload: map[string]float64{"realized_vol": 0.6}},
	)

	batch, err := o.CollectSignals(context.Background(), "BTC-PERP", repository.TimescaleMedium)
	require.NoError(t, err)

	s := BuildRegimeSignals("BTC-PERP", batch)
	assert.Equal(t, 50000.0, s.Price)
	assert.Equal(t, 3.2, s.Change24hPct)
	assert.Equal(t, 12.0, s.FundingRateBps)
	assert.Equal(t, 0.6, s.RealizedVol)
	assert.Equal(t, 50000.0, s.Raw["exchange.mark_price"])
}

func TestHealthStatusReflectsProviders(t *testing.T) {
	o := newTestOrchestrator(t,
		&fakeProvider{name: "exchange"},
		&fakeProvider{name: "sentiment", err: errors.New("down")},
	)
	health := o.HealthStatus()
	assert.True(t, health["exchange"].Healthy)
	assert.False(t, health["sentiment"].Healthy)
}
