package usecase

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PerpHelm/internal/domain/models"
	"PerpHelm/pkg/metrics"
)

func newTestScorekeeper(t *testing.T) *PlanScorekeeper {
	t.Helper()
	return NewPlanScorekeeper(nil, metrics.New(), testLogger(t))
}

func trackedPlan() *models.StrategyPlanCard {
	return &models.StrategyPlanCard{
		ID:          "live-1",
		Name:        "trend-long",
		Allocations: map[string]float64{"BTC-PERP": 1},
	}
}

func TestOpportunityCostPositiveWhenShadowOutperforms(t *testing.T) {
	k := newTestScorekeeper(t)
	k.StartTrackingPlan(trackedPlan(), decimal.NewFromInt(100000))

	shadow := &models.StrategyPlanCard{
		ID:          "alt-1",
		Name:        "eth-rotation",
		Allocations: map[string]float64{"ETH-PERP": 1},
	}
	marks := map[string]decimal.Decimal{"ETH-PERP": decimal.NewFromInt(100)}
	require.NoError(t, k.AddShadowPortfolio(shadow, decimal.NewFromInt(100000), marks))

	// Live flat, shadow instrument up 10%.
	k.UpdateMetrics(&models.AccountState{
		Equity:     decimal.NewFromInt(100000),
		MarkPrices: map[string]decimal.Decimal{"ETH-PERP": decimal.NewFromInt(110)},
	})

	cost, err := k.OpportunityCostVs("alt-1")
	require.NoError(t, err)
	assert.InDelta(t, 1000.0, cost, 0.5, "10%% outperformance is ~1000bps")
}

func TestOpportunityCostNearZeroWhenPerformanceMatches(t *testing.T) {
	k := newTestScorekeeper(t)
	k.StartTrackingPlan(trackedPlan(), decimal.NewFromInt(100000))

	shadow := &models.StrategyPlanCard{
		ID:          "alt-1",
		Name:        "same-exposure",
		Allocations: map[string]float64{"BTC-PERP": 1},
	}
	marks := map[string]decimal.Decimal{"BTC-PERP": decimal.NewFromInt(50000)}
	require.NoError(t, k.AddShadowPortfolio(shadow, decimal.NewFromInt(100000), marks))

	// Both books up 2%.
	k.UpdateMetrics(&models.AccountState{
		Equity:     decimal.NewFromInt(102000),
		MarkPrices: map[string]decimal.Decimal{"BTC-PERP": decimal.NewFromInt(51000)},
	})

	cost, err := k.OpportunityCostVs("alt-1")
	require.NoError(t, err)
	assert.InDelta(t, 0.0, cost, 0.5)
}

func TestLiveMetricsTrackDrawdownAndHitRate(t *testing.T) {
	k := newTestScorekeeper(t)
	k.StartTrackingPlan(trackedPlan(), decimal.NewFromInt(100000))

	k.UpdateMetrics(&models.AccountState{
		Equity:      decimal.NewFromInt(105000),
		CycleTrades: 4,
		CycleWins:   3,
	})
	k.UpdateMetrics(&models.AccountState{
		Equity:      decimal.NewFromInt(99750),
		CycleTrades: 2,
		CycleWins:   0,
	})

	m := k.LiveMetrics()
	require.NotNil(t, m)
	assert.Equal(t, 6, m.Trades)
	assert.InDelta(t, 0.5, m.HitRate, 1e-9)
	assert.InDelta(t, -25.0, m.ReturnBps(), 0.5)
	assert.InDelta(t, 0.05, m.MaxDrawdownPct, 1e-3, "drawdown measured from the peak")
}

func TestFinalizePlanProducesPostMortemAndClearsTracking(t *testing.T) {
	k := newTestScorekeeper(t)
	k.StartTrackingPlan(trackedPlan(), decimal.NewFromInt(100000))
	k.UpdateMetrics(&models.AccountState{Equity: decimal.NewFromInt(101000)})

	pm, err := k.FinalizePlan(context.Background(), "regime change")
	require.NoError(t, err)
	assert.Equal(t, "live-1", pm.PlanID)
	assert.Contains(t, pm.Summary, "trend-long")
	assert.Contains(t, pm.Summary, "regime change")

	assert.Nil(t, k.LiveMetrics())
	_, err = k.FinalizePlan(context.Background(), "again")
	assert.Error(t, err)
}

func TestEstimateWithoutShadowErrors(t *testing.T) {
	k := newTestScorekeeper(t)
	k.StartTrackingPlan(trackedPlan(), decimal.NewFromInt(100000))
	_, err := k.OpportunityCostVs("missing")
	assert.Error(t, err)
	_, err = k.EstimateOpportunityCost()
	assert.Error(t, err, "no shadows means nothing to compare against")
}

func TestEstimateUsesBestShadow(t *testing.T) {
	k := newTestScorekeeper(t)
	k.StartTrackingPlan(trackedPlan(), decimal.NewFromInt(100000))

	weak := &models.StrategyPlanCard{
		ID:          "alt-weak",
		Name:        "sol-rotation",
		Allocations: map[string]float64{"SOL-PERP": 1},
	}
	strong := &models.StrategyPlanCard{
		ID:          "alt-strong",
		Name:        "eth-rotation",
		Allocations: map[string]float64{"ETH-PERP": 1},
	}
	marks := map[string]decimal.Decimal{
		"SOL-PERP": decimal.NewFromInt(200),
		"ETH-PERP": decimal.NewFromInt(100),
	}
	require.NoError(t, k.AddShadowPortfolio(weak, decimal.NewFromInt(100000), marks))
	require.NoError(t, k.AddShadowPortfolio(strong, decimal.NewFromInt(100000), marks))

	// Live flat, weak shadow down 5%, strong shadow up 10%.
	k.UpdateMetrics(&models.AccountState{
		Equity: decimal.NewFromInt(100000),
		MarkPrices: map[string]decimal.Decimal{
			"SOL-PERP": decimal.NewFromInt(190),
			"ETH-PERP": decimal.NewFromInt(110),
		},
	})

	cost, err := k.EstimateOpportunityCost()
	require.NoError(t, err)
	assert.InDelta(t, 1000.0, cost, 0.5, "the best shadow sets the opportunity cost, not an arbitrary one")
}
