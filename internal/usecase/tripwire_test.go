package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PerpHelm/internal/domain/models"
	"PerpHelm/pkg/metrics"
)

func newTestTripwires(t *testing.T) *TripwireService {
	t.Helper()
	return NewTripwireService(TripwireConfig{
		MinMarginRatio:     0.1,
		LiqProximityPct:    0.15,
		DailyLossLimitPct:  0.05,
		MaxDataStaleness:   90 * time.Second,
		MaxAPIFailureCount: 5,
		PlanInvalidation:   true,
		JournalSize:        8,
	}, nil, metrics.New(), testLogger(t))
}

func healthyState() *models.AccountState {
	return &models.AccountState{
		Equity:                  decimal.NewFromInt(100000),
		MarginRatio:             0.5,
		OpenPositions:           1,
		LiquidationProximityPct: 0.8,
		LastDataAt:              time.Now(),
		Timestamp:               time.Now(),
	}
}

func TestHealthyAccountFiresNothing(t *testing.T) {
	s := newTestTripwires(t)
	fired := s.CheckAllTripwires(context.Background(), healthyState(), nil)
	assert.Empty(t, fired)
}

func TestMarginBreachFiresCritical(t *testing.T) {
	s := newTestTripwires(t)
	state := healthyState()
	state.MarginRatio = 0.05

	fired := s.CheckAllTripwires(context.Background(), state, nil)
	require.Len(t, fired, 1)
	assert.Equal(t, models.SeverityCritical, fired[0].Severity)
	assert.Equal(t, "margin_ratio", fired[0].Trigger)
	assert.Equal(t, models.ActionCutSizeToFloor, fired[0].Action)
}

func TestAllRulesEvaluatedEvenWhenSeveralFire(t *testing.T) {
	s := newTestTripwires(t)
	state := healthyState()
	state.MarginRatio = 0.05
	state.LastDataAt = time.Now().Add(-5 * time.Minute)
	state.APIFailureStreak = 7

	fired := s.CheckAllTripwires(context.Background(), state, nil)
	require.Len(t, fired, 3, "one rule firing must not mask the others")

	actions := make(map[string]models.TripwireAction)
	for _, ev := range fired {
		actions[ev.Trigger] = ev.Action
	}
	assert.Equal(t, models.ActionCutSizeToFloor, actions["margin_ratio"])
	assert.Equal(t, models.ActionFreezeNewRisk, actions["data_staleness"])
	assert.Equal(t, models.ActionFreezeNewRisk, actions["api_failure_streak"])
}

func TestLiquidationProximityFiresAtZeroWithOpenPosition(t *testing.T) {
	s := newTestTripwires(t)
	state := healthyState()
	state.LiquidationProximityPct = 0 // sitting exactly at the liquidation price

	fired := s.CheckAllTripwires(context.Background(), state, nil)
	require.Len(t, fired, 1)
	assert.Equal(t, "liquidation_proximity", fired[0].Trigger)
	assert.Equal(t, models.SeverityCritical, fired[0].Severity)

	// A flat account carries no liquidation risk at any proximity value.
	state.OpenPositions = 0
	assert.Empty(t, s.CheckAllTripwires(context.Background(), state, nil))
}

func TestDailyLossLimitAgainstSessionBaseline(t *testing.T) {
	s := newTestTripwires(t)
	s.ResetDailyTracking(decimal.NewFromInt(100000))

	state := healthyState()
	state.Equity = decimal.NewFromInt(94000) // down 6%

	fired := s.CheckAllTripwires(context.Background(), state, nil)
	require.Len(t, fired, 1)
	assert.Equal(t, "daily_loss_limit", fired[0].Trigger)
	assert.Equal(t, models.ActionFreezeNewRisk, fired[0].Action)

	// Rebasing clears the breach.
	s.ResetDailyTracking(decimal.NewFromInt(94000))
	fired = s.CheckAllTripwires(context.Background(), state, nil)
	assert.Empty(t, fired)
}

func TestPlanInvalidationTriggerFires(t *testing.T) {
	s := newTestTripwires(t)
	plan := &models.StrategyPlanCard{
		ID:   "p1",
		Name: "carry",
		InvalidationTriggers: []models.PlanTrigger{
			{Metric: "funding_rate_bps", Op: "below", Threshold: 2, Reason: "carry gone"},
		},
	}
	state := healthyState()
	state.Signals = map[string]float64{"funding_rate_bps": -1}

	fired := s.CheckAllTripwires(context.Background(), state, plan)
	require.Len(t, fired, 1)
	assert.Equal(t, models.ActionInvalidatePlan, fired[0].Action)
	assert.Equal(t, models.CategoryPlanInvalidation, fired[0].Category)
}

func TestJournalIsBounded(t *testing.T) {
	s := newTestTripwires(t)
	state := healthyState()
	state.MarginRatio = 0.01

	for i := 0; i < 20; i++ {
		s.CheckAllTripwires(context.Background(), state, nil)
	}
	assert.Len(t, s.Journal(100), 8)
}
