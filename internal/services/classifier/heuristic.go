package classifier

import (
	"context"
	"fmt"
	"math"
	"time"

	"PerpHelm/internal/domain/models"
)

// Heuristic thresholds tuned for daily-change and annualized-vol inputs.
const (
	trendChangePct   = 2.0
	highVolAnnual    = 1.2
	calmVolAnnual    = 0.45
	carryFundingBps  = 8.0
	rangeChangePct   = 0.8
)

// HeuristicClassifier scores regimes from raw signals with fixed rules.
// It serves as the fallback when no external classifier is configured.
type HeuristicClassifier struct{}

func NewHeuristicClassifier() *HeuristicClassifier { return &HeuristicClassifier{} }

func (c *HeuristicClassifier) Classify(_ context.Context, s *models.RegimeSignals) (*models.RegimeClassification, error) {
	if s == nil {
		return nil, fmt.Errorf("heuristic classify: nil signals")
	}

	regime, confidence, reasoning := c.score(s)
	return &models.RegimeClassification{
		Regime:     regime,
		Confidence: confidence,
		Timestamp:  time.Now(),
		Reasoning:  reasoning,
		Signals:    s,
	}, nil
}

func (c *HeuristicClassifier) score(s *models.RegimeSignals) (models.Regime, float64, string) {
	change := s.Change24hPct
	vol := s.RealizedVol

	// Vol spikes dominate direction.
	if vol >= highVolAnnual {
		conf := clamp(0.5+vol-highVolAnnual, 0.5, 0.95)
		return models.RegimeEventRisk, conf,
			fmt.Sprintf("realized vol %.2f above event threshold %.2f", vol, highVolAnnual)
	}

	if change >= trendChangePct {
		conf := clamp(0.5+change/10, 0.5, 0.95)
		if s.OrderBookImbalance > 0 {
			conf = clamp(conf+0.1, 0, 0.95)
		}
		return models.RegimeTrendingBull, conf,
			fmt.Sprintf("24h change %.2f%% with positive book imbalance %.2f", change, s.OrderBookImbalance)
	}
	if change <= -trendChangePct {
		conf := clamp(0.5-change/10, 0.5, 0.95)
		if s.OrderBookImbalance < 0 {
			conf = clamp(conf+0.1, 0, 0.95)
		}
		return models.RegimeTrendingBear, conf,
			fmt.Sprintf("24h change %.2f%% with negative book imbalance %.2f", change, s.OrderBookImbalance)
	}

	// Flat tape with rich funding favors carry.
	if math.Abs(change) < rangeChangePct && math.Abs(s.FundingRateBps) >= carryFundingBps && vol < calmVolAnnual {
		conf := clamp(0.5+math.Abs(s.FundingRateBps)/100, 0.5, 0.9)
		return models.RegimeCarryFriendly, conf,
			fmt.Sprintf("funding %.1fbps with calm vol %.2f", s.FundingRateBps, vol)
	}

	if math.Abs(change) < rangeChangePct {
		conf := clamp(0.6-math.Abs(change)/4, 0.4, 0.8)
		return models.RegimeRangeBound, conf,
			fmt.Sprintf("24h change %.2f%% inside range band", change)
	}

	return models.RegimeUnknown, 0.3, "no rule matched with sufficient margin"
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
