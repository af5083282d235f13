package breaker

import (
	"sync"
	"time"
)

// State represents the circuit breaker state.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

// Option configures a Breaker.
type Option func(*Config)

// Config holds breaker configuration.
type Config struct {
	FailureThreshold int
	Cooldown         time.Duration
}

// WithFailureThreshold sets consecutive failures needed to open.
func WithFailureThreshold(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.FailureThreshold = n
		}
	}
}

// WithCooldown sets how long the breaker stays open before probing.
func WithCooldown(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.Cooldown = d
		}
	}
}

// Breaker is a per-provider failure state machine. It only gates calls;
// retrying is the caller's concern.
type Breaker struct {
	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time

	threshold int
	cooldown  time.Duration

	now func() time.Time // test hook
}

// New creates a closed breaker.
func New(opts ...Option) *Breaker {
	cfg := &Config{
		FailureThreshold: 5,
		Cooldown:         30 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return &Breaker{
		state:     StateClosed,
		threshold: cfg.FailureThreshold,
		cooldown:  cfg.Cooldown,
		now:       time.Now,
	}
}

// CanAttempt reports whether a call may proceed. While open, it returns
// false until the cooldown elapses, at which point the breaker moves to
// half-open and admits a single probe.
func (b *Breaker) CanAttempt() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed, StateHalfOpen:
		return true
	case StateOpen:
		if b.now().Sub(b.openedAt) >= b.cooldown {
			b.state = StateHalfOpen
			return true
		}
		return false
	}
	return false
}

// RecordSuccess resets the failure count; a half-open breaker closes.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	if b.state == StateHalfOpen {
		b.state = StateClosed
	}
}

// RecordFailure counts a genuine provider failure. A half-open breaker
// re-opens immediately; a closed one opens after the threshold.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateHalfOpen {
		b.open()
		return
	}
	b.failures++
	if b.state == StateClosed && b.failures >= b.threshold {
		b.open()
	}
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()

	// Report half-open once cooldown has elapsed so health status
	// matches what the next CanAttempt would see.
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.cooldown {
		return StateHalfOpen
	}
	return b.state
}

// Failures returns the consecutive failure count.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

func (b *Breaker) open() {
	b.state = StateOpen
	b.openedAt = b.now()
	b.failures = 0
}

// SetClock overrides the time source for tests.
func (b *Breaker) SetClock(now func() time.Time) {
	b.mu.Lock()
	b.now = now
	b.mu.Unlock()
}
