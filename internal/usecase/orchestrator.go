package usecase

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"PerpHelm/internal/domain/models"
	"PerpHelm/internal/domain/repository"
	"PerpHelm/internal/domain/service"
	"PerpHelm/pkg/logger"
	"PerpHelm/pkg/metrics"
)

// OrchestratorTimeouts bounds one collection cycle per timescale.
type OrchestratorTimeouts struct {
	Fast   time.Duration
	Medium time.Duration
	Slow   time.Duration
}

// SignalOrchestrator fans one collection request out to every registered
// provider concurrently and merges whatever came back before the
// timescale deadline. A failed provider degrades the batch, it never
// fails it.
type SignalOrchestrator struct {
	providers []service.DataProvider
	timeouts  OrchestratorTimeouts
	group     singleflight.Group
	metrics   *metrics.Recorder
	log       *logger.Logger
}

func NewSignalOrchestrator(providers []service.DataProvider, timeouts OrchestratorTimeouts, rec *metrics.Recorder, log *logger.Logger) *SignalOrchestrator {
	return &SignalOrchestrator{
		providers: providers,
		timeouts:  timeouts,
		metrics:   rec,
		log:       log,
	}
}

// CollectSignals gathers one batch for a symbol at a timescale.
// Concurrent callers asking for the same symbol and timescale share a
// single in-flight collection.
func (o *SignalOrchestrator) CollectSignals(ctx context.Context, symbol string, ts repository.Timescale) (*models.SignalBatch, error) {
	key := symbol + ":" + string(ts)
	v, err, shared := o.group.Do(key, func() (interface{}, error) {
		return o.collect(ctx, symbol, ts)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		o.metrics.RecordCacheOp("orchestrator", "coalesced")
	}
	return v.(*models.SignalBatch), nil
}

// CollectConcurrent runs independent collections for several timescales
// at once and returns every batch that completed.
func (o *SignalOrchestrator) CollectConcurrent(ctx context.Context, symbol string, scales ...repository.Timescale) (map[repository.Timescale]*models.SignalBatch, error) {
	if len(scales) == 0 {
		scales = []repository.Timescale{repository.TimescaleFast, repository.TimescaleMedium, repository.TimescaleSlow}
	}

	type item struct {
		ts    repository.Timescale
		batch *models.SignalBatch
		err   error
	}

	ch := make(chan item, len(scales))
	var wg sync.WaitGroup
	for _, ts := range scales {
		wg.Add(1)
		go func(ts repository.Timescale) {
			defer wg.Done()
			b, err := o.CollectSignals(ctx, symbol, ts)
			ch <- item{ts: ts, batch: b, err: err}
		}(ts)
	}
	wg.Wait()
	close(ch)

	out := make(map[repository.Timescale]*models.SignalBatch, len(scales))
	var firstErr error
	for it := range ch {
		if it.err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("collect %s: %w", it.ts, it.err)
			}
			continue
		}
		out[it.ts] = it.batch
	}
	if len(out) == 0 && firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}

func (o *SignalOrchestrator) collect(ctx context.Context, symbol string, ts repository.Timescale) (*models.SignalBatch, error) {
	if !repository.IsValidTimescale(ts) {
		return nil, fmt.Errorf("orchestrator: invalid timescale %q", ts)
	}

	ctx, cancel := context.WithTimeout(ctx, o.timeout(ts))
	defer cancel()

	started := time.Now()

	members := o.membersOf(ts)
	if len(members) == 0 {
		return nil, fmt.Errorf("orchestrator: no providers serve timescale %q", ts)
	}

	type item struct {
		name string
		resp *models.ProviderResponse
		err  error
	}

	ch := make(chan item, len(members))
	var wg sync.WaitGroup
	for _, p := range members {
		wg.Add(1)
		go func(p service.DataProvider) {
			defer wg.Done()
			resp, err := p.Fetch(ctx, &service.FetchRequest{Symbol: symbol, Timescale: ts})
			ch <- item{name: p.Name(), resp: resp, err: err}
		}(p)
	}
	wg.Wait()
	close(ch)

	batch := &models.SignalBatch{
		Timescale:   string(ts),
		Responses:   make(map[string]*models.ProviderResponse, len(members)),
		Errors:      make(map[string]string),
		CollectedAt: time.Now(),
	}
	for it := range ch {
		if it.err != nil {
			batch.Errors[it.name] = it.err.Error()
			continue
		}
		batch.Responses[it.name] = it.resp
	}
	batch.Summary = summarize(batch)

	o.metrics.RecordLatency("collect_"+string(ts), time.Since(started).Seconds())
	if batch.Partial() {
		o.log.Warn("partial signal batch",
			logger.String("symbol", symbol),
			logger.String("timescale", string(ts)),
			logger.Int("failed", len(batch.Errors)),
			logger.String("summary", batch.Summary))
	}
	return batch, nil
}

func (o *SignalOrchestrator) membersOf(ts repository.Timescale) []service.DataProvider {
	out := make([]service.DataProvider, 0, len(o.providers))
	for _, p := range o.providers {
		if service.ServesTimescale(p, ts) {
			out = append(out, p)
		}
	}
	return out
}

func (o *SignalOrchestrator) timeout(ts repository.Timescale) time.Duration {
	switch ts {
	case repository.TimescaleFast:
		return o.timeouts.Fast
	case repository.TimescaleSlow:
		return o.timeouts.Slow
	default:
		return o.timeouts.Medium
	}
}

// HealthStatus aggregates breaker state and cache counters per provider.
// Providers without that detail degrade to the boolean health bit.
func (o *SignalOrchestrator) HealthStatus() map[string]service.ProviderStatus {
	out := make(map[string]service.ProviderStatus, len(o.providers))
	for _, p := range o.providers {
		if sr, ok := p.(service.StatusReporter); ok {
			out[p.Name()] = sr.Status()
			continue
		}
		out[p.Name()] = service.ProviderStatus{Healthy: p.Healthy()}
	}
	return out
}

func summarize(b *models.SignalBatch) string {
	if !b.Partial() {
		return fmt.Sprintf("%d/%d providers ok", len(b.Responses), len(b.Responses))
	}
	failed := make([]string, 0, len(b.Errors))
	for name := range b.Errors {
		failed = append(failed, name)
	}
	sort.Strings(failed)
	total := len(b.Responses) + len(b.Errors)
	return fmt.Sprintf("%d/%d providers ok, failed: %s", len(b.Responses), total, strings.Join(failed, ", "))
}

// BuildRegimeSignals flattens a batch into the classifier input.
func BuildRegimeSignals(symbol string, b *models.SignalBatch) *models.RegimeSignals {
	raw := make(map[string]float64)
	for provider, resp := range b.Responses {
		for name, v := range resp.Payload {
			raw[provider+"."+name] = v
		}
	}

	s := &models.RegimeSignals{
		Symbol:      symbol,
		Raw:         raw,
		CollectedAt: b.CollectedAt,
	}
	if v, ok := b.Scalar("exchange", "mark_price"); ok {
		s.Price = v
	}
	if v, ok := b.Scalar("exchange", "price_change_24h_pct"); ok {
		s.Change24hPct = v
	}
	if v, ok := b.Scalar("exchange", "funding_rate_bps"); ok {
		s.FundingRateBps = v
	}
	if v, ok := b.Scalar("exchange", "open_interest"); ok {
		s.OpenInterest = v
	}
	if v, ok := b.Scalar("exchange", "orderbook_imbalance"); ok {
		s.OrderBookImbalance = v
	}
	if v, ok := b.Scalar("exchange", "basis_bps"); ok {
		s.BasisBps = v
	}
	if v, ok := b.Scalar("computed", "realized_vol"); ok {
		s.RealizedVol = v
	}
	if v, ok := b.Scalar("sentiment", "social_score"); ok {
		s.SentimentScore = v
	}
	return s
}
