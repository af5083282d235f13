package repository

import (
	"context"

	"PerpHelm/internal/domain/models"
)

// Metrics records operational counters and gauges for the pipeline.
type Metrics interface {
	RecordFetch(provider string, timescale string, result string)
	RecordError(kind string)
	RecordCacheOp(provider string, outcome string)
	RecordBreakerState(provider string, state float64)
	RecordTripwire(trigger string, severity string)
	RecordDecision(outcome string)
	RecordRegimeChange()
	RecordPlanAge(seconds float64)
	RecordOpportunityCost(bps float64)
	RecordLatency(op string, seconds float64)
}

// EventPublisher emits audit events to the durable event bus.
type EventPublisher interface {
	PublishAudit(ctx context.Context, eventType string, payload any) error
	Close() error
}

// HistoryStore persists regime classifications and plan post-mortems
// for later analysis.
type HistoryStore interface {
	SaveClassification(ctx context.Context, symbol string, c *models.RegimeClassification) error
	SavePostMortem(ctx context.Context, pm *models.PostMortem) error
	RecentClassifications(ctx context.Context, symbol string, limit int) ([]*models.RegimeClassification, error)
	Close() error
}

// StateStore persists governor state across restarts.
type StateStore interface {
	LoadGovernorState(ctx context.Context) (*models.GovernorState, error)
	SaveGovernorState(ctx context.Context, state *models.GovernorState) error
	Close() error
}

// MarketStream delivers live ticks from an exchange feed.
type MarketStream interface {
	Subscribe(symbols ...string) error
	Ticks() <-chan models.Tick
	Start(ctx context.Context) error
	Close() error
}
