package repository

// Timescale names one of the three decision loops.
type Timescale string

const (
	TimescaleFast   Timescale = "fast"
	TimescaleMedium Timescale = "medium"
	TimescaleSlow   Timescale = "slow"
)

// IsValidTimescale returns true if ts is a supported timescale.
func IsValidTimescale(ts Timescale) bool {
	switch ts {
	case TimescaleFast, TimescaleMedium, TimescaleSlow:
		return true
	default:
		return false
	}
}

// DefaultTimescale returns the default timescale.
func DefaultTimescale() Timescale { return TimescaleMedium }

// NormalizeTimescale converts a raw string to a valid timescale (or default).
func NormalizeTimescale(s string) Timescale {
	if s == "" {
		return DefaultTimescale()
	}
	ts := Timescale(s)
	if IsValidTimescale(ts) {
		return ts
	}
	return DefaultTimescale()
}
