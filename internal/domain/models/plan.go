package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PlanTrigger is one plan-specific invalidation condition, checked by the
// tripwire service when enabled.
type PlanTrigger struct {
	Metric    string  `json:"metric"` // signal name, e.g. "funding_rate_bps"
	Op        string  `json:"op"`     // "above" or "below"
	Threshold float64 `json:"threshold"`
	Reason    string  `json:"reason,omitempty"`
}

// Fires reports whether the observed value violates the trigger.
func (t PlanTrigger) Fires(value float64) bool {
	switch t.Op {
	case "above":
		return value > t.Threshold
	case "below":
		return value < t.Threshold
	default:
		return false
	}
}

// StrategyPlanCard describes one approved allocation plan. Exactly one plan
// is active at any time.
type StrategyPlanCard struct {
	ID                   string             `json:"id"`
	Name                 string             `json:"name"`
	Regime               Regime             `json:"regime,omitempty"`
	Allocations          map[string]float64 `json:"allocations"` // instrument -> target weight
	InvalidationTriggers []PlanTrigger      `json:"invalidation_triggers,omitempty"`
	CreatedAt            time.Time          `json:"created_at"`
}

// PlanChangeProposal is a candidate replacement for the active plan.
type PlanChangeProposal struct {
	Candidate            *StrategyPlanCard `json:"candidate"`
	Reason               string            `json:"reason"`
	ExpectedAdvantageBps float64           `json:"expected_advantage_bps"`
	ChangeCostBps        float64           `json:"change_cost_bps"`
}

// NetAdvantageBps is the expected benefit net of switching cost.
func (p *PlanChangeProposal) NetAdvantageBps() float64 {
	return p.ExpectedAdvantageBps - p.ChangeCostBps
}

// Decision is the governor's verdict on a proposal. A rejection is a normal
// outcome, not an error.
type Decision struct {
	Approved        bool      `json:"approved"`
	Forced          bool      `json:"forced,omitempty"` // tripwire override path
	Reason          string    `json:"reason"`
	NetAdvantageBps float64   `json:"net_advantage_bps"`
	EvaluatedAt     time.Time `json:"evaluated_at"`
}

// GovernorState is the persisted governor snapshot, loaded at startup and
// written on every plan activation.
type GovernorState struct {
	ActivePlan    *StrategyPlanCard `json:"active_plan,omitempty"`
	PlanStartAt   time.Time         `json:"plan_start_at"`
	LastChangeAt  time.Time         `json:"last_change_at"`
	CooldownUntil time.Time         `json:"cooldown_until"`
	Halted        bool              `json:"halted"`
	HaltReason    string            `json:"halt_reason,omitempty"`
}

// PlanMetrics accumulates live performance for the active plan. Mutated
// incrementally, one update per cycle.
type PlanMetrics struct {
	PlanID          string          `json:"plan_id"`
	StartedAt       time.Time       `json:"started_at"`
	InitialValue    decimal.Decimal `json:"initial_value"`
	CurrentValue    decimal.Decimal `json:"current_value"`
	PnL             decimal.Decimal `json:"pnl"`
	PeakValue       decimal.Decimal `json:"peak_value"`
	MaxDrawdownPct  float64         `json:"max_drawdown_pct"`
	Trades          int             `json:"trades"`
	Wins            int             `json:"wins"`
	HitRate         float64         `json:"hit_rate"`
	SlippageBpsMean float64         `json:"slippage_bps_mean"`
	Cycles          int             `json:"cycles"`
}

// ReturnBps is the plan return relative to its initial value, in basis points.
func (m *PlanMetrics) ReturnBps() float64 {
	if m.InitialValue.IsZero() {
		return 0
	}
	ratio := m.CurrentValue.Sub(m.InitialValue).Div(m.InitialValue)
	bps, _ := ratio.Mul(decimal.NewFromInt(10000)).Float64()
	return bps
}

// PostMortem is the immutable summary produced when a plan ends.
type PostMortem struct {
	PlanID      string      `json:"plan_id"`
	Summary     string      `json:"summary"`
	Final       PlanMetrics `json:"final"`
	FinalizedAt time.Time   `json:"finalized_at"`
}
