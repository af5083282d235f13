package service

import (
	"context"
	"time"

	"PerpHelm/internal/domain/models"
	"PerpHelm/internal/domain/repository"
)

// FetchRequest describes one signal fetch from a data provider.
type FetchRequest struct {
	Symbol    string
	Timescale repository.Timescale
	Params    map[string]string
}

// DataProvider fetches one category of market signal. Implementations
// own their failure handling: circuit breaker, retry and cache policy
// are internal to the provider, callers only see the final outcome.
type DataProvider interface {
	Name() string
	Fetch(ctx context.Context, req *FetchRequest) (*models.ProviderResponse, error)
	CacheTTL() time.Duration
	Timescales() []repository.Timescale
	Healthy() bool
}

// ProviderStatus aggregates one provider's resilience state for health
// reporting.
type ProviderStatus struct {
	Healthy      bool   `json:"healthy"`
	BreakerState string `json:"breaker_state,omitempty"`
	CacheHits    uint64 `json:"cache_hits"`
	CacheMisses  uint64 `json:"cache_misses"`
}

// StatusReporter is implemented by providers that carry breaker and
// cache detail beyond the boolean health bit.
type StatusReporter interface {
	Status() ProviderStatus
}

// ServesTimescale reports whether p is a member of the ts provider set.
func ServesTimescale(p DataProvider, ts repository.Timescale) bool {
	for _, s := range p.Timescales() {
		if s == ts {
			return true
		}
	}
	return false
}

// RegimeClassifier turns a snapshot of market signals into a regime
// label with a confidence score.
type RegimeClassifier interface {
	Classify(ctx context.Context, signals *models.RegimeSignals) (*models.RegimeClassification, error)
}
