package providers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"PerpHelm/internal/domain/models"
	"PerpHelm/internal/domain/repository"
	"PerpHelm/internal/domain/service"
	"PerpHelm/internal/services/features"
)

// ComputedSource derives features from the live tick stream instead of
// calling an upstream API: realized volatility, short-window momentum,
// VWAP deviation and tick rate. It fails like any other provider when
// the window has not accumulated enough data.
type ComputedSource struct {
	mu         sync.RWMutex
	windows    map[string][]models.Tick
	windowSize int
}

func NewComputedSource(windowSize int) *ComputedSource {
	if windowSize <= 0 {
		windowSize = 600
	}
	return &ComputedSource{
		windows:    make(map[string][]models.Tick),
		windowSize: windowSize,
	}
}

func (s *ComputedSource) Name() string { return "computed" }

// Timescales: tick-window features decay too fast for the slow loop.
func (s *ComputedSource) Timescales() []repository.Timescale {
	return []repository.Timescale{repository.TimescaleFast, repository.TimescaleMedium}
}

// Observe appends a tick to the symbol's rolling window.
func (s *ComputedSource) Observe(tick models.Tick) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w := append(s.windows[tick.Symbol], tick)
	if len(w) > s.windowSize {
		w = w[len(w)-s.windowSize:]
	}
	s.windows[tick.Symbol] = w
}

// WindowLen reports the current window size for a symbol.
func (s *ComputedSource) WindowLen(symbol string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.windows[symbol])
}

const minWindowTicks = 30

func (s *ComputedSource) Fetch(ctx context.Context, req *service.FetchRequest) (*models.ProviderResponse, error) {
	s.mu.RLock()
	window := s.windows[req.Symbol]
	ticks := make([]models.Tick, len(window))
	copy(ticks, window)
	s.mu.RUnlock()

	if len(ticks) < minWindowTicks {
		return nil, fmt.Errorf("computed: window for %s has %d ticks, need %d", req.Symbol, len(ticks), minWindowTicks)
	}

	prices := make([]float64, len(ticks))
	for i, t := range ticks {
		prices[i] = t.Price
	}

	returns := features.LogReturns(prices)
	rate := features.TickRate(ticks)
	interval := 1.0
	if rate > 0 {
		interval = 1.0 / rate
	}
	vol := features.RealizedVolatility(returns, len(returns), features.SamplesPerYearForInterval(interval))
	vwap := features.VWAP(ticks)
	last := prices[len(prices)-1]

	vwapDevPct := 0.0
	if vwap > 0 {
		vwapDevPct = (last - vwap) / vwap * 100
	}

	// Confidence grows with window fill.
	confidence := float64(len(ticks)) / float64(s.windowSize)
	if confidence > 1 {
		confidence = 1
	}

	return &models.ProviderResponse{
		Payload: map[string]float64{
			"realized_vol":  vol,
			"momentum_pct":  features.Momentum(prices) * 100,
			"vwap":          vwap,
			"vwap_dev_pct":  vwapDevPct,
			"tick_rate":     rate,
			"last_price":    last,
			"window_ticks":  float64(len(ticks)),
		},
		Timestamp:  time.Now(),
		Confidence: confidence,
	}, nil
}
