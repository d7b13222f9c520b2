package batchq

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/zoobzio/clockz"
)

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half-open"},
		{State(42), "unknown"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.state.String())
	}
}

func TestCircuitBreaker_OpensAtThreshold(t *testing.T) {
	clock := clockz.NewFakeClock()
	cb := NewCircuitBreaker(3, 10*time.Second, clock)

	assert.Equal(t, StateClosed, cb.State())
	assert.True(t, cb.CanAttempt())

	cb.Failure()
	cb.Failure()
	assert.Equal(t, StateClosed, cb.State())
	assert.True(t, cb.CanAttempt())
	assert.Equal(t, 2, cb.Failures())

	cb.Failure()
	assert.Equal(t, StateOpen, cb.State())
	assert.False(t, cb.CanAttempt())
}

func TestCircuitBreaker_HalfOpensStrictlyAfterResetTimeout(t *testing.T) {
	clock := clockz.NewFakeClock()
	cb := NewCircuitBreaker(1, 10*time.Second, clock)

	cb.Failure()
	assert.Equal(t, StateOpen, cb.State())

	clock.Advance(10 * time.Second)
	assert.Equal(t, StateOpen, cb.State())
	assert.False(t, cb.CanAttempt())

	clock.Advance(time.Nanosecond)
	assert.Equal(t, StateHalfOpen, cb.State())
	assert.True(t, cb.CanAttempt())

	// Half-open has no attempt limit.
	assert.True(t, cb.CanAttempt())
	assert.True(t, cb.CanAttempt())
}

func TestCircuitBreaker_FailureWhileHalfOpenReopens(t *testing.T) {
	clock := clockz.NewFakeClock()
	cb := NewCircuitBreaker(2, time.Second, clock)

	cb.Failure()
	cb.Failure()
	clock.Advance(2 * time.Second)
	assert.Equal(t, StateHalfOpen, cb.State())

	cb.Failure()
	assert.Equal(t, StateOpen, cb.State())
	assert.Equal(t, 3, cb.Failures())

	clock.Advance(time.Second + time.Millisecond)
	assert.Equal(t, StateHalfOpen, cb.State())
}

func TestCircuitBreaker_SuccessCloses(t *testing.T) {
	clock := clockz.NewFakeClock()
	cb := NewCircuitBreaker(2, time.Second, clock)

	cb.Failure()
	cb.Failure()
	assert.Equal(t, StateOpen, cb.State())

	cb.Success()
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, 0, cb.Failures())
	assert.True(t, cb.CanAttempt())

	// The count restarts from zero.
	cb.Failure()
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_SuccessResetsConsecutiveCount(t *testing.T) {
	cb := NewCircuitBreaker(3, time.Minute, clockz.NewFakeClock())

	cb.Failure()
	cb.Failure()
	cb.Success()
	cb.Failure()
	cb.Failure()

	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_NilPermitsEverything(t *testing.T) {
	var cb *CircuitBreaker

	cb.Failure()
	cb.Failure()
	cb.Success()

	assert.True(t, cb.CanAttempt())
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, 0, cb.Failures())
}

func TestCircuitBreaker_NilClockUsesRealClock(t *testing.T) {
	cb := NewCircuitBreaker(1, time.Hour, nil)

	cb.Failure()
	assert.Equal(t, StateOpen, cb.State())
}
