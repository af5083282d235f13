package features

import (
	"math"

	"PerpHelm/internal/domain/models"
)

// LogReturns computes log returns r_t = ln(P_t / P_{t-1}) over a
// price series. Returns a slice of length len(prices)-1, or nil if
// there is insufficient data.
func LogReturns(prices []float64) []float64 {
	if len(prices) < 2 {
		return nil
	}
	out := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		prev := prices[i-1]
		cur := prices[i]
		if prev <= 0 || cur <= 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, math.Log(cur/prev))
	}
	return out
}

// RealizedVolatility computes annualized realized volatility over the
// latest window of log returns.
func RealizedVolatility(logReturns []float64, window int, samplesPerYear float64) float64 {
	if window <= 1 || len(logReturns) < window {
		return 0
	}
	sum := 0.0
	sum2 := 0.0
	for i := len(logReturns) - window; i < len(logReturns); i++ {
		r := logReturns[i]
		sum += r
		sum2 += r * r
	}
	n := float64(window)
	mean := sum / n
	variance := (sum2 - n*mean*mean) / (n - 1)
	if variance < 0 {
		variance = 0
	}
	return math.Sqrt(variance * samplesPerYear)
}

// Momentum returns the percent change between the first and last price.
func Momentum(prices []float64) float64 {
	if len(prices) < 2 || prices[0] <= 0 {
		return 0
	}
	return (prices[len(prices)-1] - prices[0]) / prices[0]
}

// VWAP computes the volume-weighted average price of a tick window.
// Falls back to the simple mean when no volume is reported.
func VWAP(ticks []models.Tick) float64 {
	if len(ticks) == 0 {
		return 0
	}
	var pv, vol float64
	for _, t := range ticks {
		pv += t.Price * t.Volume
		vol += t.Volume
	}
	if vol > 0 {
		return pv / vol
	}
	sum := 0.0
	for _, t := range ticks {
		sum += t.Price
	}
	return sum / float64(len(ticks))
}

// TickRate returns ticks per second over the window span.
func TickRate(ticks []models.Tick) float64 {
	if len(ticks) < 2 {
		return 0
	}
	span := ticks[len(ticks)-1].Timestamp - ticks[0].Timestamp
	if span <= 0 {
		return 0
	}
	return float64(len(ticks)-1) / float64(span)
}

// SamplesPerYearForInterval converts a sampling interval in seconds to
// an annualization factor.
func SamplesPerYearForInterval(seconds float64) float64 {
	if seconds <= 0 {
		return 365 * 24 * 60 * 60
	}
	return 365 * 24 * 60 * 60 / seconds
}
