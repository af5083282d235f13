package repository

import (
	"context"
	"testing"
	"time"

	"PerpHelm/internal/domain/models"
)

func TestGovernorStateSurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	store, err := NewBadgerStateStore(dir, false)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	loaded, err := store.LoadGovernorState(context.Background())
	if err != nil {
		t.Fatalf("load empty: %v", err)
	}
	if loaded != nil {
		t.Fatal("fresh store must report no state")
	}

	want := &models.GovernorState{
		ActivePlan: &models.StrategyPlanCard{
			ID:          "p1",
			Name:        "trend-long",
			Allocations: map[string]float64{"BTC-PERP": 0.6, "ETH-PERP": 0.4},
		},
		PlanStartAt:   time.Now().Add(-time.Hour).Truncate(time.Second),
		CooldownUntil: time.Now().Add(30 * time.Minute).Truncate(time.Second),
		Halted:        true,
		HaltReason:    "daily loss limit",
	}
	if err := store.SaveGovernorState(context.Background(), want); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := NewBadgerStateStore(dir, false)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.LoadGovernorState(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got == nil {
		t.Fatal("state lost across restart")
	}
	if got.ActivePlan == nil || got.ActivePlan.ID != "p1" {
		t.Fatalf("active plan = %+v, want p1", got.ActivePlan)
	}
	if !got.Halted || got.HaltReason != "daily loss limit" {
		t.Fatalf("halt flags lost: %+v", got)
	}
	if got.ActivePlan.Allocations["BTC-PERP"] != 0.6 {
		t.Fatalf("allocations = %v", got.ActivePlan.Allocations)
	}
}

func TestInMemoryStateStore(t *testing.T) {
	store, err := NewBadgerStateStore("", true)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()

	if err := store.SaveGovernorState(context.Background(), &models.GovernorState{Halted: true}); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := store.LoadGovernorState(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got == nil || !got.Halted {
		t.Fatalf("got %+v", got)
	}
}
