package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"PerpHelm/pkg/breaker"
)

// ErrCircuitOpen is returned without consuming any retry budget when the
// wrapping breaker rejects the call.
var ErrCircuitOpen = errors.New("retry: circuit open")

// ExhaustedError reports that all attempts failed, carrying the last cause.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retry: %d attempts exhausted: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// Option configures a Policy.
type Option func(*Policy)

// Policy executes a fallible operation with exponential backoff.
type Policy struct {
	maxAttempts   int
	initialDelay  time.Duration
	backoffFactor float64
	maxDelay      time.Duration
}

// New creates a retry policy.
func New(opts ...Option) *Policy {
	p := &Policy{
		maxAttempts:   3,
		initialDelay:  200 * time.Millisecond,
		backoffFactor: 2.0,
		maxDelay:      5 * time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// WithMaxAttempts sets the attempt budget.
func WithMaxAttempts(n int) Option {
	return func(p *Policy) {
		if n > 0 {
			p.maxAttempts = n
		}
	}
}

// WithBackoff sets initial delay, multiplier, and delay cap.
func WithBackoff(initial time.Duration, factor float64, max time.Duration) Option {
	return func(p *Policy) {
		if initial > 0 {
			p.initialDelay = initial
		}
		if factor >= 1 {
			p.backoffFactor = factor
		}
		if max > 0 {
			p.maxDelay = max
		}
	}
}

// Do runs op up to MaxAttempts times, waiting initial*factor^attempt between
// failures (capped). When br reports open, Do fails immediately with
// ErrCircuitOpen and does not consume an attempt. Breaker bookkeeping covers
// genuine op failures only: an error caused by ctx expiring is returned as-is
// so an externally cancelled call cannot trip a healthy provider open.
func (p *Policy) Do(ctx context.Context, br *breaker.Breaker, op func(context.Context) error) error {
	var last error
	for attempt := 0; attempt < p.maxAttempts; attempt++ {
		if br != nil && !br.CanAttempt() {
			return ErrCircuitOpen
		}

		err := op(ctx)
		if err == nil {
			if br != nil {
				br.RecordSuccess()
			}
			return nil
		}

		if ctx.Err() != nil {
			// External cancellation, not a provider-side failure.
			return fmt.Errorf("retry: attempt %d cancelled: %w", attempt+1, err)
		}

		if br != nil {
			br.RecordFailure()
		}
		last = err

		if attempt == p.maxAttempts-1 {
			break
		}
		select {
		case <-time.After(p.delay(attempt)):
		case <-ctx.Done():
			return fmt.Errorf("retry: backoff interrupted: %w", ctx.Err())
		}
	}
	return &ExhaustedError{Attempts: p.maxAttempts, Err: last}
}

func (p *Policy) delay(attempt int) time.Duration {
	d := time.Duration(float64(p.initialDelay) * math.Pow(p.backoffFactor, float64(attempt)))
	if d > p.maxDelay {
		d = p.maxDelay
	}
	return d
}
