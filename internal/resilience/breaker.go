// Package resilience protects callers from a failing upstream.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"
)

// CircuitState represents the state of a circuit breaker.
type CircuitState string

const (
	CircuitClosed   CircuitState = "CLOSED"
	CircuitOpen     CircuitState = "OPEN"
	CircuitHalfOpen CircuitState = "HALF_OPEN"
)

// ErrCircuitOpen is returned while the breaker is rejecting calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// BreakerConfig holds circuit breaker configuration.
type BreakerConfig struct {
	// FailureThreshold consecutive failures open the circuit. Zero disables
	// the breaker.
	FailureThreshold int
	// Cooldown is how long the circuit stays open before one probe call is
	// let through.
	Cooldown time.Duration
}

// Breaker fails calls fast after repeated upstream failures. A single probe
// is allowed after the cooldown; its outcome closes or re-opens the circuit.
// Cancellation by the caller's context is not counted as a failure.
type Breaker struct {
	name   string
	config BreakerConfig
	now    func() time.Time

	mu        sync.Mutex
	state     CircuitState
	failures  int
	openedAt  time.Time
	probing   bool
	rejected  int64
	lastError error

	onStateChange func(from, to CircuitState, lastErr error)
}

// NewBreaker creates a closed breaker.
func NewBreaker(name string, config BreakerConfig) *Breaker {
	if config.Cooldown <= 0 {
		config.Cooldown = 15 * time.Second
	}
	return &Breaker{
		name:   name,
		config: config,
		now:    time.Now,
		state:  CircuitClosed,
	}
}

// SetClock replaces the time source.
func (b *Breaker) SetClock(now func() time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.now = now
}

// SetOnStateChange registers fn to run after a recorded call moves the
// circuit to a new state. fn runs on the caller's goroutine, outside the
// breaker's lock. A nil fn removes the hook.
func (b *Breaker) SetOnStateChange(fn func(from, to CircuitState, lastErr error)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onStateChange = fn
}

// Execute runs fn unless the circuit is open.
func (b *Breaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := b.allow(); err != nil {
		return err
	}
	err := fn(ctx)
	b.record(ctx, err)
	return err
}

// Call runs fn with breaker protection and returns its value.
func Call[T any](ctx context.Context, b *Breaker, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := b.Execute(ctx, func(ctx context.Context) error {
		v, err := fn(ctx)
		out = v
		return err
	})
	return out, err
}

func (b *Breaker) allow() error {
	if b.config.FailureThreshold <= 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case CircuitOpen:
		if b.now().Sub(b.openedAt) < b.config.Cooldown {
			b.rejected++
			return ErrCircuitOpen
		}
		b.state = CircuitHalfOpen
		b.probing = true
		return nil
	case CircuitHalfOpen:
		if b.probing {
			b.rejected++
			return ErrCircuitOpen
		}
		b.probing = true
	}
	return nil
}

func (b *Breaker) record(ctx context.Context, err error) {
	if b.config.FailureThreshold <= 0 {
		return
	}

	b.mu.Lock()
	from := b.state
	if b.state == CircuitHalfOpen {
		b.probing = false
	}

	switch {
	case err == nil:
		b.state = CircuitClosed
		b.failures = 0
		b.lastError = nil
	case ctx.Err() != nil && errors.Is(err, ctx.Err()) && !errors.Is(err, context.DeadlineExceeded):
		// The caller gave up; says nothing about the upstream.
	default:
		b.lastError = err
		b.failures++
		if b.state == CircuitHalfOpen || b.failures >= b.config.FailureThreshold {
			b.state = CircuitOpen
			b.openedAt = b.now()
		}
	}

	to, lastErr, hook := b.state, b.lastError, b.onStateChange
	b.mu.Unlock()

	if hook != nil && to != from {
		hook(from, to, lastErr)
	}
}

// State returns the current circuit state.
func (b *Breaker) State() CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Stats is a snapshot of breaker counters.
type Stats struct {
	Name      string       `json:"name"`
	State     CircuitState `json:"state"`
	Failures  int          `json:"consecutive_failures"`
	Rejected  int64        `json:"rejected"`
	OpenedAt  time.Time    `json:"opened_at,omitempty"`
	LastError string       `json:"last_error,omitempty"`
}

// Stats returns breaker statistics.
func (b *Breaker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := Stats{
		Name:     b.name,
		State:    b.state,
		Failures: b.failures,
		Rejected: b.rejected,
		OpenedAt: b.openedAt,
	}
	if b.lastError != nil {
		s.LastError = b.lastError.Error()
	}
	return s
}
