package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"PerpHelm/pkg/breaker"
)

func TestSucceedsAfterTransientFailures(t *testing.T) {
	p := New(WithMaxAttempts(3), WithBackoff(time.Millisecond, 2, 10*time.Millisecond))

	calls := 0
	err := p.Do(context.Background(), nil, func(context.Context) error {
		calls++
		if calls < 3 {
			return fmt.Errorf("transient %d", calls)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestExhaustionCarriesLastError(t *testing.T) {
	p := New(WithMaxAttempts(2), WithBackoff(time.Millisecond, 2, 10*time.Millisecond))

	last := errors.New("upstream 503")
	err := p.Do(context.Background(), nil, func(context.Context) error { return last })

	var ex *ExhaustedError
	if !errors.As(err, &ex) {
		t.Fatalf("expected ExhaustedError, got %v", err)
	}
	if ex.Attempts != 2 {
		t.Fatalf("attempts = %d, want 2", ex.Attempts)
	}
	if !errors.Is(err, last) {
		t.Fatalf("exhausted error should wrap last cause")
	}
}

func TestOpenBreakerFailsFastWithoutConsumingAttempts(t *testing.T) {
	p := New(WithMaxAttempts(3), WithBackoff(time.Millisecond, 2, 10*time.Millisecond))
	br := breaker.New(breaker.WithFailureThreshold(1), breaker.WithCooldown(time.Minute))
	br.RecordFailure() // opens

	calls := 0
	err := p.Do(context.Background(), br, func(context.Context) error {
		calls++
		return nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if calls != 0 {
		t.Fatalf("op must not run while circuit is open")
	}
}

func TestBreakerRecordsOutcomes(t *testing.T) {
	p := New(WithMaxAttempts(2), WithBackoff(time.Millisecond, 2, 10*time.Millisecond))
	br := breaker.New(breaker.WithFailureThreshold(2), breaker.WithCooldown(time.Minute))

	_ = p.Do(context.Background(), br, func(context.Context) error {
		return errors.New("boom")
	})
	if br.CanAttempt() {
		t.Fatalf("two recorded failures should have opened the breaker")
	}
}

func TestExternalCancellationDoesNotTripBreaker(t *testing.T) {
	p := New(WithMaxAttempts(3), WithBackoff(time.Millisecond, 2, 10*time.Millisecond))
	br := breaker.New(breaker.WithFailureThreshold(1), breaker.WithCooldown(time.Minute))

	ctx, cancel := context.WithCancel(context.Background())
	err := p.Do(ctx, br, func(c context.Context) error {
		cancel()
		return c.Err()
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	if got := br.State(); got != breaker.StateClosed {
		t.Fatalf("breaker state = %s, want closed after external cancel", got)
	}
}
