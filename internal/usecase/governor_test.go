package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PerpHelm/internal/domain/models"
	"PerpHelm/pkg/metrics"
)

func newTestGovernor(t *testing.T) *StrategyGovernor {
	t.Helper()
	g, err := NewStrategyGovernor(GovernorConfig{
		CooldownAfterChange: 45 * time.Minute,
		MinimumDwell:        2 * time.Hour,
		MinAdvantageBps:     50,
		PartialRotationPct:  0.25,
	}, nil, nil, metrics.New(), testLogger(t))
	require.NoError(t, err)
	return g
}

func proposal(name string, expected, cost float64) *models.PlanChangeProposal {
	return &models.PlanChangeProposal{
		Candidate: &models.StrategyPlanCard{
			Name:        name,
			Allocations: map[string]float64{"BTC-PERP": 1},
		},
		Reason:               "test",
		ExpectedAdvantageBps: expected,
		ChangeCostBps:        cost,
	}
}

func TestProposalRejectedWhenNetAdvantageBelowHurdle(t *testing.T) {
	g := newTestGovernor(t)

	d := g.EvaluateChangeProposal(context.Background(), proposal("alt", 40, 10))
	assert.False(t, d.Approved)
	assert.InDelta(t, 30.0, d.NetAdvantageBps, 1e-9)
	assert.Contains(t, d.Reason, "below required")
}

func TestProposalApprovedWhenNetAdvantageClearsHurdle(t *testing.T) {
	g := newTestGovernor(t)

	d := g.EvaluateChangeProposal(context.Background(), proposal("alt", 80, 10))
	assert.True(t, d.Approved)
	assert.InDelta(t, 70.0, d.NetAdvantageBps, 1e-9)

	require.NoError(t, g.ActivatePlan(context.Background(), d))
	state := g.State()
	require.NotNil(t, state.ActivePlan)
	assert.Equal(t, "alt", state.ActivePlan.Name)
	assert.NotEmpty(t, state.ActivePlan.ID)
}

func TestCooldownRejectionCitesCooldown(t *testing.T) {
	g := newTestGovernor(t)

	first := g.EvaluateChangeProposal(context.Background(), proposal("first", 100, 10))
	require.True(t, first.Approved)
	require.NoError(t, g.ActivatePlan(context.Background(), first))

	second := g.EvaluateChangeProposal(context.Background(), proposal("second", 500, 0))
	assert.False(t, second.Approved, "huge advantage cannot bypass cooldown")
	assert.Contains(t, second.Reason, "cooldown")
}

func TestDwellGateAfterCooldownExpires(t *testing.T) {
	g := newTestGovernor(t)
	base := time.Now()
	g.SetClock(func() time.Time { return base })

	first := g.EvaluateChangeProposal(context.Background(), proposal("first", 100, 10))
	require.True(t, first.Approved)
	require.NoError(t, g.ActivatePlan(context.Background(), first))

	// Past cooldown but under minimum dwell.
	g.SetClock(func() time.Time { return base.Add(time.Hour) })
	d := g.EvaluateChangeProposal(context.Background(), proposal("second", 200, 0))
	assert.False(t, d.Approved)
	assert.Contains(t, d.Reason, "dwell")

	// Past both gates.
	g.SetClock(func() time.Time { return base.Add(3 * time.Hour) })
	d = g.EvaluateChangeProposal(context.Background(), proposal("second", 200, 0))
	assert.True(t, d.Approved)
}

func TestRotationAdvancesInBoundedSteps(t *testing.T) {
	g := newTestGovernor(t)
	base := time.Now()
	g.SetClock(func() time.Time { return base })

	first := g.EvaluateChangeProposal(context.Background(), proposal("old", 100, 10))
	require.True(t, first.Approved)
	require.NoError(t, g.ActivatePlan(context.Background(), first))

	g.SetClock(func() time.Time { return base.Add(3 * time.Hour) })
	second := g.EvaluateChangeProposal(context.Background(), &models.PlanChangeProposal{
		Candidate: &models.StrategyPlanCard{
			Name:        "new",
			Allocations: map[string]float64{"ETH-PERP": 1},
		},
		ExpectedAdvantageBps: 200,
	})
	require.True(t, second.Approved)
	require.NoError(t, g.ActivatePlan(context.Background(), second))

	// Rotation starts fully in the outgoing plan.
	alloc := g.EffectiveAllocations()
	assert.InDelta(t, 1.0, alloc["BTC-PERP"], 1e-9)
	assert.InDelta(t, 0.0, alloc["ETH-PERP"], 1e-9)

	assert.InDelta(t, 0.25, g.AdvanceRotation(), 1e-9)
	alloc = g.EffectiveAllocations()
	assert.InDelta(t, 0.75, alloc["BTC-PERP"], 1e-9)
	assert.InDelta(t, 0.25, alloc["ETH-PERP"], 1e-9)

	for i := 0; i < 3; i++ {
		g.AdvanceRotation()
	}
	alloc = g.EffectiveAllocations()
	assert.InDelta(t, 1.0, alloc["ETH-PERP"], 1e-9, "rotation completes after four steps")
	_, ok := alloc["BTC-PERP"]
	assert.False(t, ok)
}

func TestHaltBlocksReviewUntilAcknowledged(t *testing.T) {
	g := newTestGovernor(t)

	require.NoError(t, g.Halt(context.Background(), "daily loss limit"))
	d := g.EvaluateChangeProposal(context.Background(), proposal("alt", 500, 0))
	assert.False(t, d.Approved)
	assert.Contains(t, d.Reason, "halted")

	require.NoError(t, g.AcknowledgeHalt(context.Background(), "ops"))
	d = g.EvaluateChangeProposal(context.Background(), proposal("alt", 500, 0))
	assert.True(t, d.Approved)

	assert.Error(t, g.AcknowledgeHalt(context.Background(), "ops"), "double ack is an error")
}

func TestForcedChangeBypassesGates(t *testing.T) {
	g := newTestGovernor(t)

	first := g.EvaluateChangeProposal(context.Background(), proposal("first", 100, 10))
	require.True(t, first.Approved)
	require.NoError(t, g.ActivatePlan(context.Background(), first))

	// Inside cooldown, a forced change still lands and takes effect
	// immediately.
	plan := &models.StrategyPlanCard{Name: "defensive", Allocations: map[string]float64{"CASH": 1}}
	require.NoError(t, g.ForcePlanChange(context.Background(), plan, "tripwire: margin_ratio"))

	state := g.State()
	assert.Equal(t, "defensive", state.ActivePlan.Name)
	alloc := g.EffectiveAllocations()
	assert.InDelta(t, 1.0, alloc["CASH"], 1e-9)
}
