package classifier

import (
	"context"
	"testing"

	"PerpHelm/internal/domain/models"
)

func classify(t *testing.T, s *models.RegimeSignals) *models.RegimeClassification {
	t.Helper()
	c, err := NewHeuristicClassifier().Classify(context.Background(), s)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	return c
}

func TestVolSpikeClassifiesEventRisk(t *testing.T) {
	c := classify(t, &models.RegimeSignals{
		Symbol:       "BTC-PERP",
		Change24hPct: 4.0,
		RealizedVol:  1.5,
	})
	if c.Regime != models.RegimeEventRisk {
		t.Fatalf("regime = %s, want event-risk; vol outranks direction", c.Regime)
	}
	if c.Confidence < 0.5 {
		t.Fatalf("confidence = %v, want >= 0.5", c.Confidence)
	}
}

func TestStrongMoveWithAlignedBookClassifiesTrend(t *testing.T) {
	up := classify(t, &models.RegimeSignals{
		Symbol:             "BTC-PERP",
		Change24hPct:       3.5,
		RealizedVol:        0.6,
		OrderBookImbalance: 0.3,
	})
	if up.Regime != models.RegimeTrendingBull {
		t.Fatalf("regime = %s, want trending-bull", up.Regime)
	}

	down := classify(t, &models.RegimeSignals{
		Symbol:             "BTC-PERP",
		Change24hPct:       -3.5,
		RealizedVol:        0.6,
		OrderBookImbalance: -0.3,
	})
	if down.Regime != models.RegimeTrendingBear {
		t.Fatalf("regime = %s, want trending-bear", down.Regime)
	}
}

func TestFlatTapeWithRichFundingClassifiesCarry(t *testing.T) {
	c := classify(t, &models.RegimeSignals{
		Symbol:         "BTC-PERP",
		Change24hPct:   0.2,
		RealizedVol:    0.3,
		FundingRateBps: 12,
	})
	if c.Regime != models.RegimeCarryFriendly {
		t.Fatalf("regime = %s, want carry-friendly", c.Regime)
	}
}

func TestFlatTapeWithoutFundingClassifiesRange(t *testing.T) {
	c := classify(t, &models.RegimeSignals{
		Symbol:       "BTC-PERP",
		Change24hPct: 0.3,
		RealizedVol:  0.5,
	})
	if c.Regime != models.RegimeRangeBound {
		t.Fatalf("regime = %s, want range-bound", c.Regime)
	}
}

func TestAmbiguousSignalsClassifyUnknownWithLowConfidence(t *testing.T) {
	c := classify(t, &models.RegimeSignals{
		Symbol:       "BTC-PERP",
		Change24hPct: 1.5, // between range band and trend threshold
		RealizedVol:  0.7,
	})
	if c.Regime != models.RegimeUnknown {
		t.Fatalf("regime = %s, want unknown", c.Regime)
	}
	if c.Confidence >= 0.5 {
		t.Fatalf("confidence = %v, want < 0.5", c.Confidence)
	}
}

func TestNilSignalsRejected(t *testing.T) {
	if _, err := NewHeuristicClassifier().Classify(context.Background(), nil); err == nil {
		t.Fatal("expected error for nil signals")
	}
}
