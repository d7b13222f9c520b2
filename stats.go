package batchq

import (
	"sync/atomic"
	"time"
)

// Stats is a point-in-time snapshot of a queue's counters.
//
//nolint:govet // fieldalignment: logical field grouping preferred over memory optimization
type Stats struct {
	Offered    int64 // Items accepted by Offer.
	Rejected   int64 // Offer calls that returned false.
	Dispatched int64 // Batches handed to the worker pool.
	Succeeded  int64 // Batches the consumer processed.
	Failed     int64 // Batches that resolved false or with an error.
	TimedOut   int64 // Subset of Failed that hit the consume timeout.
	Requeued   int64 // Items returned to the buffer after a failure.

	Buffered     int       // Items waiting in the buffer.
	InFlight     int       // Items in batches that have not resolved.
	BreakerState State     // Breaker state at snapshot time.
	LastDispatch time.Time // When the most recent batch was dispatched.
}

type counters struct {
	offered      atomic.Int64
	rejected     atomic.Int64
	dispatched   atomic.Int64
	succeeded    atomic.Int64
	failed       atomic.Int64
	timedOut     atomic.Int64
	requeued     atomic.Int64
	lastDispatch AtomicTime
}

func (c *counters) snapshot() Stats {
	return Stats{
		Offered:      c.offered.Load(),
		Rejected:     c.rejected.Load(),
		Dispatched:   c.dispatched.Load(),
		Succeeded:    c.succeeded.Load(),
		Failed:       c.failed.Load(),
		TimedOut:     c.timedOut.Load(),
		Requeued:     c.requeued.Load(),
		LastDispatch: c.lastDispatch.Load(),
	}
}
