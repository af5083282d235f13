package features

import (
	"math"
	"testing"

	"PerpHelm/internal/domain/models"
)

func TestLogReturnsLengthAndSign(t *testing.T) {
	prices := []float64{100, 110, 99}
	r := LogReturns(prices)
	if len(r) != 2 {
		t.Fatalf("len = %d, want 2", len(r))
	}
	if r[0] <= 0 {
		t.Fatalf("up move should give positive return, got %v", r[0])
	}
	if r[1] >= 0 {
		t.Fatalf("down move should give negative return, got %v", r[1])
	}
	if LogReturns([]float64{100}) != nil {
		t.Fatal("single price has no returns")
	}
}

func TestLogReturnsSkipsNonPositivePrices(t *testing.T) {
	r := LogReturns([]float64{100, 0, 100})
	if r[0] != 0 || r[1] != 0 {
		t.Fatalf("non-positive prices should yield zero returns, got %v", r)
	}
}

func TestRealizedVolatilityOfConstantSeriesIsZero(t *testing.T) {
	returns := make([]float64, 50)
	if v := RealizedVolatility(returns, 50, 365*24*60); v != 0 {
		t.Fatalf("constant series vol = %v, want 0", v)
	}
}

func TestRealizedVolatilityScalesWithDispersion(t *testing.T) {
	small := make([]float64, 50)
	large := make([]float64, 50)
	for i := range small {
		sign := 1.0
		if i%2 == 0 {
			sign = -1
		}
		small[i] = sign * 0.001
		large[i] = sign * 0.01
	}
	perYear := 365.0 * 24 * 60
	vs := RealizedVolatility(small, 50, perYear)
	vl := RealizedVolatility(large, 50, perYear)
	if vl <= vs {
		t.Fatalf("larger swings must give larger vol: %v <= %v", vl, vs)
	}
	if math.Abs(vl/vs-10) > 0.5 {
		t.Fatalf("vol should scale roughly linearly, ratio = %v", vl/vs)
	}
}

func TestVWAPWeightsByVolume(t *testing.T) {
	ticks := []models.Tick{
		{Symbol: "BTC", Timestamp: 1, Price: 100, Volume: 3},
		{Symbol: "BTC", Timestamp: 2, Price: 200, Volume: 1},
	}
	if v := VWAP(ticks); math.Abs(v-125) > 1e-9 {
		t.Fatalf("vwap = %v, want 125", v)
	}
}

func TestVWAPFallsBackToMeanWithoutVolume(t *testing.T) {
	ticks := []models.Tick{
		{Symbol: "BTC", Timestamp: 1, Price: 100},
		{Symbol: "BTC", Timestamp: 2, Price: 200},
	}
	if v := VWAP(ticks); math.Abs(v-150) > 1e-9 {
		t.Fatalf("vwap fallback = %v, want 150", v)
	}
}

func TestTickRate(t *testing.T) {
	ticks := []models.Tick{
		{Timestamp: 100}, {Timestamp: 102}, {Timestamp: 104},
	}
	if r := TickRate(ticks); math.Abs(r-0.5) > 1e-9 {
		t.Fatalf("rate = %v, want 0.5", r)
	}
	if TickRate(ticks[:1]) != 0 {
		t.Fatal("single tick has no rate")
	}
}

func TestMomentum(t *testing.T) {
	if m := Momentum([]float64{100, 105}); math.Abs(m-0.05) > 1e-9 {
		t.Fatalf("momentum = %v, want 0.05", m)
	}
}
