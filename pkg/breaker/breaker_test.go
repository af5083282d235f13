package breaker

import (
	"testing"
	"time"
)

func TestOpensAfterConsecutiveFailures(t *testing.T) {
	b := New(WithFailureThreshold(3), WithCooldown(time.Minute))

	for i := 0; i < 2; i++ {
		b.RecordFailure()
		if !b.CanAttempt() {
			t.Fatalf("breaker opened after %d failures", i+1)
		}
	}
	b.RecordFailure()
	if b.CanAttempt() {
		t.Fatalf("expected open after threshold")
	}
	if got := b.State(); got != StateOpen {
		t.Fatalf("state = %s, want open", got)
	}
}

func TestSuccessResetsFailureStreak(t *testing.T) {
	b := New(WithFailureThreshold(3), WithCooldown(time.Minute))

	b.RecordFailure()
	b.RecordFailure()
	b.RecordSuccess()
	b.RecordFailure()
	b.RecordFailure()
	if !b.CanAttempt() {
		t.Fatalf("streak should have reset on success")
	}
}

func TestHalfOpenAfterCooldown(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	b := New(WithFailureThreshold(1), WithCooldown(30*time.Second))
	b.SetClock(func() time.Time { return now })

	b.RecordFailure()
	if b.CanAttempt() {
		t.Fatalf("expected open")
	}

	now = now.Add(31 * time.Second)
	if !b.CanAttempt() {
		t.Fatalf("expected half-open probe after cooldown")
	}

	// One success closes.
	b.RecordSuccess()
	if got := b.State(); got != StateClosed {
		t.Fatalf("state = %s, want closed", got)
	}
}

func TestHalfOpenFailureReopens(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	b := New(WithFailureThreshold(1), WithCooldown(30*time.Second))
	b.SetClock(func() time.Time { return now })

	b.RecordFailure()
	now = now.Add(time.Minute)
	if !b.CanAttempt() {
		t.Fatalf("expected half-open probe")
	}

	b.RecordFailure()
	if b.CanAttempt() {
		t.Fatalf("half-open failure must reopen immediately")
	}
}
