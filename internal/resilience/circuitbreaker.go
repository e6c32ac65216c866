// Package resilience guards upstream providers with circuit breakers.
//
// [CircuitBreaker] is a three-state breaker (closed, open, half-open). [LLM]
// and [TTS] wrap a provider so every call passes through a breaker and is
// recorded in the provider metrics. Calls are never retried: a failed call
// is reported to the caller as is.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned when the breaker rejects a call without making it.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen rejects calls with [ErrCircuitOpen] until the reset timeout
	// elapses.
	StateOpen

	// StateHalfOpen lets a limited number of probe calls through. Enough
	// successes close the breaker; any failure re-opens it.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig holds tuning knobs for a [CircuitBreaker].
type CircuitBreakerConfig struct {
	// Name labels log lines, for example "llm" or "tts".
	Name string

	// MaxFailures is the number of consecutive failures that opens the
	// breaker. Default: 5.
	MaxFailures int

	// ResetTimeout is how long the breaker stays open. Default: 30s.
	ResetTimeout time.Duration

	// HalfOpenMax is the number of successful probes needed to close again.
	// Default: 1.
	HalfOpenMax int

	// IsFailure decides whether an error counts against the breaker. When nil
	// [CountsAsFailure] is used.
	IsFailure func(error) bool
}

// CountsAsFailure is the default failure classifier. Caller cancellation is
// not the upstream's fault and does not count.
func CountsAsFailure(err error) bool {
	return err != nil && !errors.Is(err, context.Canceled)
}

// CircuitBreaker implements the three-state circuit breaker pattern.
// It is safe for concurrent use.
type CircuitBreaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration
	halfOpenMax  int
	isFailure    func(error) bool

	mu              sync.Mutex
	state           State
	consecutiveFail int
	lastFailure     time.Time
	halfOpenCalls   int
	halfOpenOK      int
}

// NewCircuitBreaker creates a [CircuitBreaker]. Zero-value fields take their
// documented defaults.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 1
	}
	if cfg.IsFailure == nil {
		cfg.IsFailure = CountsAsFailure
	}
	return &CircuitBreaker{
		name:         cfg.Name,
		maxFailures:  cfg.MaxFailures,
		resetTimeout: cfg.ResetTimeout,
		halfOpenMax:  cfg.HalfOpenMax,
		isFailure:    cfg.IsFailure,
	}
}

// Execute runs fn if the breaker allows it and returns fn's error unchanged.
// When the breaker rejects the call fn is not invoked and [ErrCircuitOpen] is
// returned.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	probe, err := cb.admit()
	if err != nil {
		return err
	}

	err = fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.isFailure(err) {
		cb.recordFailure(probe)
	} else {
		cb.recordSuccess(probe)
	}
	return err
}

// admit reports whether a call may proceed and whether it is a half-open probe.
func (cb *CircuitBreaker) admit() (probe bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if time.Since(cb.lastFailure) < cb.resetTimeout {
			return false, ErrCircuitOpen
		}
		cb.state = StateHalfOpen
		cb.halfOpenCalls = 0
		cb.halfOpenOK = 0
		slog.Info("circuit breaker half-open", "name", cb.name)
	case StateHalfOpen:
		if cb.halfOpenCalls >= cb.halfOpenMax {
			return false, ErrCircuitOpen
		}
	}

	if cb.state == StateHalfOpen {
		cb.halfOpenCalls++
		return true, nil
	}
	return false, nil
}

// recordFailure must be called with cb.mu held.
func (cb *CircuitBreaker) recordFailure(probe bool) {
	cb.lastFailure = time.Now()

	if probe || cb.state == StateHalfOpen {
		cb.state = StateOpen
		cb.consecutiveFail = cb.maxFailures
		slog.Warn("circuit breaker re-opened", "name", cb.name)
		return
	}

	cb.consecutiveFail++
	if cb.consecutiveFail >= cb.maxFailures && cb.state == StateClosed {
		cb.state = StateOpen
		slog.Warn("circuit breaker opened",
			"name", cb.name,
			"consecutive_failures", cb.consecutiveFail)
	}
}

// recordSuccess must be called with cb.mu held.
func (cb *CircuitBreaker) recordSuccess(probe bool) {
	if !probe {
		if cb.state == StateClosed {
			cb.consecutiveFail = 0
		}
		return
	}
	if cb.state != StateHalfOpen {
		return
	}
	cb.halfOpenOK++
	if cb.halfOpenOK >= cb.halfOpenMax {
		cb.state = StateClosed
		cb.consecutiveFail = 0
		slog.Info("circuit breaker closed", "name", cb.name)
	}
}

// State returns the current state. An open breaker whose reset timeout has
// elapsed reports [StateHalfOpen]; the transition itself happens on the next
// call.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen && time.Since(cb.lastFailure) >= cb.resetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

// Reset forces the breaker back to [StateClosed].
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.state = StateClosed
	cb.consecutiveFail = 0
	cb.halfOpenCalls = 0
	cb.halfOpenOK = 0
	slog.Info("circuit breaker reset", "name", cb.name)
}

// call runs fn through cb and returns its result.
func call[T any](cb *CircuitBreaker, fn func() (T, error)) (T, error) {
	var out T
	err := cb.Execute(func() error {
		var err error
		out, err = fn()
		return err
	})
	return out, err
}
