package batchq

import (
	"time"
)

// State represents the current state of the circuit breaker.
type State int

const (
	// StateClosed is the normal operating state where dispatches proceed.
	StateClosed State = iota
	// StateOpen is when recent failures block new dispatches.
	StateOpen
	// StateHalfOpen is when the reset window has elapsed and dispatches are
	// permitted again until the next failure.
	StateHalfOpen
)

// String returns a human-readable representation of the state.
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

// CircuitBreaker gates batch dispatch on the count of consecutive consumer
// failures.
//
// After failureThreshold failures without an intervening success the breaker
// opens. Once more than resetTimeout has passed since the last failure it
// becomes half-open and admits attempts again; there is no limit on how many
// attempts a half-open breaker admits. The next Failure restarts the reset
// window and the next Success closes it.
//
// CircuitBreaker is NOT safe for concurrent use. A Queue only touches it while
// holding its buffer lock, so a breaker must not be shared between queues or
// driven directly while a queue owns it.
//
// A nil *CircuitBreaker permits every attempt.
//
// Example:
//
//	breaker := batchq.NewCircuitBreaker(3, 10*time.Second, batchq.RealClock)
//
//	queue, err := batchq.NewBuilder[string]().
//		Consumer(consumer).
//		CircuitBreaker(breaker).
//		Build()
type CircuitBreaker struct {
	clock            Clock
	lastFailure      time.Time
	resetTimeout     time.Duration
	failureThreshold int
	failureCount     int
	state            State
}

// NewCircuitBreaker creates a closed breaker that opens after failureThreshold
// consecutive failures and half-opens resetTimeout after the last one.
// A nil clock falls back to RealClock.
func NewCircuitBreaker(failureThreshold int, resetTimeout time.Duration, clock Clock) *CircuitBreaker {
	if clock == nil {
		clock = RealClock
	}
	return &CircuitBreaker{
		clock:            clock,
		resetTimeout:     resetTimeout,
		failureThreshold: failureThreshold,
		state:            StateClosed,
	}
}

// Success clears the failure history and closes the breaker.
func (cb *CircuitBreaker) Success() {
	if cb == nil {
		return
	}
	cb.failureCount = 0
	cb.lastFailure = time.Time{}
	cb.state = StateClosed
}

// Failure records a failed dispatch at the current time.
func (cb *CircuitBreaker) Failure() {
	if cb == nil {
		return
	}
	cb.failureCount++
	cb.lastFailure = cb.clock.Now()
}

// CanAttempt reports whether a new dispatch may start.
func (cb *CircuitBreaker) CanAttempt() bool {
	if cb == nil {
		return true
	}
	return cb.evalState() != StateOpen
}

// State re-evaluates and returns the current state.
func (cb *CircuitBreaker) State() State {
	if cb == nil {
		return StateClosed
	}
	return cb.evalState()
}

// Failures returns the number of failures since the last success.
func (cb *CircuitBreaker) Failures() int {
	if cb == nil {
		return 0
	}
	return cb.failureCount
}

func (cb *CircuitBreaker) evalState() State {
	switch {
	case cb.failureCount < cb.failureThreshold:
		cb.state = StateClosed
	case cb.clock.Now().Sub(cb.lastFailure) > cb.resetTimeout:
		cb.state = StateHalfOpen
	default:
		cb.state = StateOpen
	}
	return cb.state
}
