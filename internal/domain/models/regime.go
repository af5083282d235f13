package models

import "time"

// Regime is a discrete market-condition label.
type Regime string

const (
	RegimeTrendingBull  Regime = "trending-bull"
	RegimeTrendingBear  Regime = "trending-bear"
	RegimeRangeBound    Regime = "range-bound"
	RegimeCarryFriendly Regime = "carry-friendly"
	RegimeEventRisk     Regime = "event-risk"
	RegimeUnknown       Regime = "unknown"
)

// IsValidRegime returns true for a known regime label.
func IsValidRegime(r Regime) bool {
	switch r {
	case RegimeTrendingBull, RegimeTrendingBear, RegimeRangeBound,
		RegimeCarryFriendly, RegimeEventRisk, RegimeUnknown:
		return true
	default:
		return false
	}
}

// RegimeClassification is one classifier verdict. A bounded rolling history
// of these drives hysteresis confirmation.
type RegimeClassification struct {
	Regime     Regime         `json:"regime"`
	Confidence float64        `json:"confidence"`
	Timestamp  time.Time      `json:"timestamp"`
	Reasoning  string         `json:"reasoning"`
	Signals    *RegimeSignals `json:"signals,omitempty"`
}

// MacroEvent is a scheduled high-uncertainty event (CPI print, FOMC, large
// unlock). Confirmation progress is suppressed inside its lock window.
type MacroEvent struct {
	Name string    `json:"name"`
	At   time.Time `json:"at"`
}
