// Package testing provides test utilities for batchq.
package testing

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// Respond decides the outcome of one consumer call. call counts from 1.
type Respond[E any] func(ctx context.Context, call int, items []E) (bool, error)

// Succeed accepts every batch.
func Succeed[E any]() Respond[E] {
	return func(context.Context, int, []E) (bool, error) { return true, nil }
}

// Fail rejects every batch without an error.
func Fail[E any]() Respond[E] {
	return func(context.Context, int, []E) (bool, error) { return false, nil }
}

// FailWith resolves every batch with err.
func FailWith[E any](err error) Respond[E] {
	return func(context.Context, int, []E) (bool, error) { return false, err }
}

// FailFirst rejects the first n calls and accepts the rest.
func FailFirst[E any](n int) Respond[E] {
	return func(_ context.Context, call int, _ []E) (bool, error) { return call > n, nil }
}

// Block never returns on its own; it waits for ctx and reports its error.
func Block[E any]() Respond[E] {
	return func(ctx context.Context, _ int, _ []E) (bool, error) {
		<-ctx.Done()
		return false, ctx.Err()
	}
}

// Recorder is a consumer that records every batch it receives and answers
// according to its Respond function.
type Recorder[E any] struct {
	mu      sync.Mutex
	batches [][]E
	respond Respond[E]
	calls   chan []E
	count   atomic.Int64
}

// NewRecorder creates a Recorder that accepts every batch.
func NewRecorder[E any]() *Recorder[E] {
	return &Recorder[E]{
		respond: Succeed[E](),
		calls:   make(chan []E, 1024),
	}
}

// RespondWith replaces the outcome function.
func (r *Recorder[E]) RespondWith(fn Respond[E]) *Recorder[E] {
	r.mu.Lock()
	r.respond = fn
	r.mu.Unlock()
	return r
}

// ConsumeBatch implements batchq.Consumer.
func (r *Recorder[E]) ConsumeBatch(ctx context.Context, items []E) (bool, error) {
	call := int(r.count.Add(1))

	copied := make([]E, len(items))
	copy(copied, items)

	r.mu.Lock()
	r.batches = append(r.batches, copied)
	respond := r.respond
	r.mu.Unlock()

	r.calls <- copied
	return respond(ctx, call, items)
}

// Calls returns the number of ConsumeBatch calls so far.
func (r *Recorder[E]) Calls() int {
	return int(r.count.Load())
}

// Batches returns a copy of every batch received, in call order.
func (r *Recorder[E]) Batches() [][]E {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([][]E, len(r.batches))
	copy(out, r.batches)
	return out
}

// Next waits for the next ConsumeBatch call and returns its batch. It fails
// the test if no call arrives within timeout.
func (r *Recorder[E]) Next(t *testing.T, timeout time.Duration) []E {
	t.Helper()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case batch := <-r.calls:
		return batch
	case <-timer.C:
		t.Fatalf("no batch received within %s", timeout)
		return nil
	}
}

// ExpectNone fails the test if a ConsumeBatch call arrives within wait.
func (r *Recorder[E]) ExpectNone(t *testing.T, wait time.Duration) {
	t.Helper()

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case batch := <-r.calls:
		t.Fatalf("unexpected batch: %v", batch)
	case <-timer.C:
	}
}

// Eventually polls cond until it holds or timeout passes.
func Eventually(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("condition not met within %s: %s", timeout, msg)
}
