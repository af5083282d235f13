package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TripwireSeverity classifies how urgent a fired tripwire is.
type TripwireSeverity string

const (
	SeverityWarning  TripwireSeverity = "warning"
	SeverityCritical TripwireSeverity = "critical"
)

// TripwireCategory groups tripwires by what they protect.
type TripwireCategory string

const (
	CategoryAccountSafety    TripwireCategory = "account_safety"
	CategoryPlanInvalidation TripwireCategory = "plan_invalidation"
	CategoryOperational      TripwireCategory = "operational"
)

// TripwireAction is the mandated response to a fired tripwire.
type TripwireAction string

const (
	ActionFreezeNewRisk      TripwireAction = "FREEZE_NEW_RISK"
	ActionCutSizeToFloor     TripwireAction = "CUT_SIZE_TO_FLOOR"
	ActionEscalateToSlowLoop TripwireAction = "ESCALATE_TO_SLOW_LOOP"
	ActionInvalidatePlan     TripwireAction = "INVALIDATE_PLAN"
)

// TripwireEvent is emitted per check when a rule fires. Ephemeral: journaled
// and published for audit, never load-bearing state.
type TripwireEvent struct {
	Severity  TripwireSeverity       `json:"severity"`
	Category  TripwireCategory       `json:"category"`
	Trigger   string                 `json:"trigger"`
	Action    TripwireAction         `json:"action"`
	Timestamp time.Time              `json:"timestamp"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// AccountState is the per-cycle account and data-health snapshot handed to
// the tripwire service and scorekeeper by the enclosing cycle driver.
type AccountState struct {
	Equity                  decimal.Decimal            `json:"equity"`
	DailyPnL                decimal.Decimal            `json:"daily_pnl"`
	MarginRatio             float64                    `json:"margin_ratio"`
	OpenPositions           int                        `json:"open_positions"`
	LiquidationProximityPct float64                    `json:"liquidation_proximity_pct"`
	MarkPrices              map[string]decimal.Decimal `json:"mark_prices,omitempty"`
	Signals                 map[string]float64         `json:"signals,omitempty"`
	LastDataAt              time.Time                  `json:"last_data_at"`
	APIFailureStreak        int                        `json:"api_failure_streak"`
	CycleTrades             int                        `json:"cycle_trades"`
	CycleWins               int                        `json:"cycle_wins"`
	CycleSlippageBps        float64                    `json:"cycle_slippage_bps"`
	Timestamp               time.Time                  `json:"timestamp"`
}
