package models

import "time"

// ProviderResponse is one provider's contribution to a collection cycle.
// Owned transiently by the orchestrator per call.
type ProviderResponse struct {
	Payload    map[string]float64 `json:"payload"`
	Timestamp  time.Time          `json:"timestamp"`
	Source     string             `json:"source"`
	Confidence float64            `json:"confidence"` // always in [0,1]
	IsCached   bool               `json:"is_cached"`
	CacheAge   time.Duration      `json:"cache_age"`
}

// SignalBatch is the merged result of one timescale collection. Failed
// providers appear in Errors; the batch itself never fails wholesale.
type SignalBatch struct {
	Timescale   string                       `json:"timescale"`
	Responses   map[string]*ProviderResponse `json:"responses"`
	Errors      map[string]string            `json:"errors,omitempty"`
	Summary     string                       `json:"summary,omitempty"`
	CollectedAt time.Time                    `json:"collected_at"`
}

// Partial reports whether any provider degraded this cycle.
func (b *SignalBatch) Partial() bool {
	return len(b.Errors) > 0
}

// Scalar returns a named signal from a provider, or (0, false) when the
// provider failed or didn't report it.
func (b *SignalBatch) Scalar(provider, name string) (float64, bool) {
	r, ok := b.Responses[provider]
	if !ok || r == nil {
		return 0, false
	}
	v, ok := r.Payload[name]
	return v, ok
}

// RegimeSignals is the price-context aggregate handed to the classifier.
// Assembled fresh each cycle, never persisted.
type RegimeSignals struct {
	Symbol             string             `json:"symbol"`
	Price              float64            `json:"price"`
	Change24hPct       float64            `json:"change_24h_pct"`
	RealizedVol        float64            `json:"realized_vol"`
	FundingRateBps     float64            `json:"funding_rate_bps"`
	OpenInterest       float64            `json:"open_interest"`
	OrderBookImbalance float64            `json:"orderbook_imbalance"`
	SentimentScore     float64            `json:"sentiment_score"`
	BasisBps           float64            `json:"basis_bps"`
	Raw                map[string]float64 `json:"raw,omitempty"`
	CollectedAt        time.Time          `json:"collected_at"`
}

// Tick is a single streamed mark-price observation.
type Tick struct {
	Symbol    string  `json:"symbol"`
	Timestamp int64   `json:"timestamp"` // unix seconds
	Price     float64 `json:"price"`
	Volume    float64 `json:"volume"`
}
