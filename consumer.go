package batchq

import "context"

// Consumer processes batches carved from a Queue.
//
// ConsumeBatch is called once per dispatched batch on a pool worker and may
// run concurrently with other calls, up to the queue's consumer parallelism.
// The items slice is owned by the consumer. Items are in the order they were
// taken from the buffer, but no ordering holds across batches.
//
// Outcomes:
//   - (true, nil): the batch was processed.
//   - (false, nil): the batch was not processed; its items go back to the
//     buffer.
//   - (_, err): as (false, nil), and err is reported to the FailureListener.
//
// ctx is cancelled when the consume timeout expires or the queue shuts down.
// Honoring it is up to the consumer; the queue stops waiting either way.
type Consumer[E any] interface {
	ConsumeBatch(ctx context.Context, items []E) (bool, error)
}

// ConsumerFunc adapts an ordinary function to the Consumer interface.
type ConsumerFunc[E any] func(ctx context.Context, items []E) (bool, error)

// ConsumeBatch calls f(ctx, items).
func (f ConsumerFunc[E]) ConsumeBatch(ctx context.Context, items []E) (bool, error) {
	return f(ctx, items)
}

// FailureListener is notified of every dispatch that resolves with an error,
// including consume timeouts. The error is a *DispatchError. It runs on the
// goroutine that resolved the dispatch and should return quickly.
type FailureListener func(err error)
