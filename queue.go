package batchq

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/panjf2000/ants/v2"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Queue is a bounded buffer that hands batches of items to a Consumer.
//
// A batch is dispatched when either:
//   - an Offer brings the buffer to BatchSize items, or
//   - the periodic flush fires, every FlushTimeout, with a non-empty buffer.
//
// A size-triggered dispatch restarts the flush period. Both triggers are
// gated by the optional CircuitBreaker; while it is open, items accumulate
// until Capacity is reached and Offer starts returning false.
//
// Each batch runs on a worker pool of ConsumerParallelism goroutines. The
// queue never waits for a dispatch: the first of {consumer result, consume
// timeout} resolves it, exactly once. A failed or timed out batch goes back
// to the end of the buffer and is picked up by a later dispatch, so retried
// items may be delivered after items offered later.
//
// Locking: mu (the buffer lock) guards the buffer, the in-flight count and
// every breaker call. timerMu guards the flush ticker and is never held
// together with mu. Consumer calls, timeouts and the FailureListener run
// without either lock.
//
// Example:
//
//	queue, err := batchq.NewBuilder[string]().
//		Capacity(10000).
//		BatchSize(5).
//		FlushTimeout(5 * time.Second).
//		ConsumeTimeout(time.Minute).
//		ConsumerParallelism(10).
//		Consumer(sink).
//		CircuitBreaker(batchq.NewCircuitBreaker(3, 10*time.Second, batchq.RealClock)).
//		Build()
//	if err != nil {
//		return err
//	}
//	defer queue.Shutdown()
//
//	if !queue.Offer("hello") {
//		// full or shut down: apply backpressure
//	}
type Queue[E any] struct { //nolint:govet // logical field grouping preferred over memory optimization
	name      string
	cfg       Config
	consumer  Consumer[E]
	onFailure FailureListener
	breaker   *CircuitBreaker
	clock     Clock
	logger    *zap.Logger

	pool   *ants.Pool
	ctx    context.Context
	cancel context.CancelFunc
	closed atomic.Bool

	// Buffer lock.
	mu       sync.Mutex
	buffer   []E
	inFlight int

	// Timer lock.
	timerMu   sync.Mutex
	flush     Ticker
	flushStop chan struct{}

	// Bumped under mu by every size-triggered carve. A tick from a ticker
	// started under an older generation does not flush.
	flushGen atomic.Uint64

	// Pending consume timeouts, stopped on resolution or shutdown.
	watchMu   sync.Mutex
	watchdogs map[uint64]*dispatch[E]
	nextID    uint64

	stats counters
}

// dispatch is the in-flight state of one batch.
type dispatch[E any] struct {
	id       uint64
	batch    []E
	cancel   context.CancelFunc
	watchdog Timer
	resolved atomic.Bool
}

func newQueue[E any](b *Builder[E]) (*Queue[E], error) {
	q := &Queue[E]{
		name:      b.name,
		cfg:       b.cfg,
		consumer:  b.consumer,
		onFailure: b.onFailure,
		breaker:   b.breaker,
		clock:     b.clock,
		logger:    b.logger,
		watchdogs: make(map[uint64]*dispatch[E]),
	}

	pool, err := ants.NewPool(
		q.cfg.ConsumerParallelism,
		ants.WithPanicHandler(q.handleWorkerPanic),
		ants.WithLogger(poolLogger{q.logger}),
	)
	if err != nil {
		return nil, errors.Wrap(err, "batchq: create worker pool")
	}
	q.pool = pool
	q.ctx, q.cancel = context.WithCancel(context.Background())

	q.timerMu.Lock()
	q.startFlushLocked()
	q.timerMu.Unlock()

	q.logger.Info("queue started",
		zap.String("queue", q.name),
		zap.Int("capacity", q.cfg.Capacity),
		zap.Int("batch_size", q.cfg.BatchSize),
		zap.Duration("flush_timeout", q.cfg.FlushTimeout),
		zap.Duration("consume_timeout", q.cfg.ConsumeTimeout),
		zap.Int("consumer_parallelism", q.cfg.ConsumerParallelism),
	)

	return q, nil
}

// Offer adds item to the queue. It returns false without side effects when
// the queue is full or has been shut down; the caller decides whether to
// retry, drop or push back.
//
// Full means buffered plus in-flight items reach Capacity, so Offer can
// reject while the buffer itself is empty. Counting in-flight items keeps
// room for failed batches to return to the buffer without exceeding
// Capacity.
//
// If the item brings the buffer to BatchSize and the breaker permits, a batch
// is dispatched and the flush period restarts. Offer never waits for the
// consumer.
func (q *Queue[E]) Offer(item E) bool {
	var batch []E

	q.mu.Lock()
	if q.closed.Load() || len(q.buffer)+q.inFlight >= q.cfg.Capacity {
		q.mu.Unlock()
		q.stats.rejected.Add(1)
		return false
	}

	q.buffer = append(q.buffer, item)
	if len(q.buffer) >= q.cfg.BatchSize && q.breaker.CanAttempt() {
		batch = q.carveLocked(q.cfg.BatchSize)
		q.flushGen.Add(1)
	}
	q.mu.Unlock()

	q.stats.offered.Add(1)

	if batch != nil {
		q.dispatch(batch)
		q.resetFlush()
	}
	return true
}

// Flush dispatches up to BatchSize buffered items now, as the periodic flush
// would. It does not restart the flush period. It returns the number of items
// dispatched, which is zero when the buffer is empty, the breaker is open or
// the queue is shut down.
func (q *Queue[E]) Flush() int {
	q.mu.Lock()
	batch := q.takeFlushLocked()
	q.mu.Unlock()

	return q.dispatchFlush(batch)
}

// Shutdown stops accepting items and tears down the flush ticker, the pending
// consume timeouts and the worker pool. Consumer calls in progress are
// cancelled through their context but not waited for, and their outcomes are
// discarded. Buffered items are dropped. Calling Shutdown more than once is a
// no-op.
func (q *Queue[E]) Shutdown() {
	q.mu.Lock()
	if q.closed.Load() {
		q.mu.Unlock()
		return
	}
	q.closed.Store(true)
	buffered, inFlight := len(q.buffer), q.inFlight
	q.mu.Unlock()

	q.timerMu.Lock()
	q.stopFlushLocked()
	q.timerMu.Unlock()

	q.cancel()

	q.watchMu.Lock()
	for id, d := range q.watchdogs {
		d.watchdog.Stop()
		delete(q.watchdogs, id)
	}
	q.watchMu.Unlock()

	q.pool.Release()

	q.logger.Info("queue shut down",
		zap.String("queue", q.name),
		zap.Int("abandoned_buffered", buffered),
		zap.Int("abandoned_in_flight", inFlight),
	)
}

// Len returns the number of buffered items, excluding in-flight batches.
func (q *Queue[E]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.buffer)
}

// InFlight returns the number of items in dispatched batches that have not
// resolved yet.
func (q *Queue[E]) InFlight() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.inFlight
}

// BreakerState returns the state of the queue's circuit breaker. A queue
// without a breaker always reports StateClosed.
func (q *Queue[E]) BreakerState() State {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.breaker.State()
}

// Stats returns a snapshot of the queue's counters.
func (q *Queue[E]) Stats() Stats {
	stats := q.stats.snapshot()

	q.mu.Lock()
	stats.Buffered = len(q.buffer)
	stats.InFlight = q.inFlight
	stats.BreakerState = q.breaker.State()
	q.mu.Unlock()

	return stats
}

// Name returns the queue name used in logs and errors.
func (q *Queue[E]) Name() string {
	return q.name
}

// carveLocked removes the first n items from the buffer and returns them as
// a detached batch. The caller holds mu.
func (q *Queue[E]) carveLocked(n int) []E {
	batch := make([]E, n)
	copy(batch, q.buffer[:n])

	rest := copy(q.buffer, q.buffer[n:])
	clear(q.buffer[rest:])
	q.buffer = q.buffer[:rest]

	q.inFlight += n
	return batch
}

// evalFlush is the periodic flush body for a ticker started at generation
// gen. It does nothing once a size-triggered dispatch has superseded gen.
func (q *Queue[E]) evalFlush(gen uint64) int {
	q.mu.Lock()
	if gen != q.flushGen.Load() {
		q.mu.Unlock()
		return 0
	}
	batch := q.takeFlushLocked()
	q.mu.Unlock()

	return q.dispatchFlush(batch)
}

// takeFlushLocked carves up to BatchSize items if a flush may run. The
// caller holds mu.
func (q *Queue[E]) takeFlushLocked() []E {
	if q.closed.Load() || len(q.buffer) == 0 || !q.breaker.CanAttempt() {
		return nil
	}
	return q.carveLocked(min(q.cfg.BatchSize, len(q.buffer)))
}

func (q *Queue[E]) dispatchFlush(batch []E) int {
	if batch == nil {
		return 0
	}
	q.dispatch(batch)
	return len(batch)
}

// startFlushLocked schedules the periodic flush, first firing FlushTimeout
// from now. The caller holds timerMu.
func (q *Queue[E]) startFlushLocked() {
	gen := q.flushGen.Load()
	ticker := q.clock.NewTicker(q.cfg.FlushTimeout)
	stop := make(chan struct{})
	q.flush, q.flushStop = ticker, stop

	go q.runFlush(ticker, stop, gen)
}

// stopFlushLocked cancels the periodic flush. The caller holds timerMu.
func (q *Queue[E]) stopFlushLocked() {
	if q.flush == nil {
		return
	}
	q.flush.Stop()
	close(q.flushStop)
	q.flush, q.flushStop = nil, nil
}

// resetFlush replaces the periodic flush with a fresh one.
func (q *Queue[E]) resetFlush() {
	q.timerMu.Lock()
	defer q.timerMu.Unlock()

	if q.closed.Load() {
		return
	}
	q.stopFlushLocked()
	q.startFlushLocked()
}

func (q *Queue[E]) runFlush(ticker Ticker, stop <-chan struct{}, gen uint64) {
	for {
		select {
		case <-stop:
			return
		case <-ticker.C():
			// A tick may race with a reset; the replaced ticker must not flush.
			select {
			case <-stop:
				return
			default:
			}
			q.evalFlush(gen)
		}
	}
}

// dispatch hands batch to the worker pool and arms its consume timeout.
func (q *Queue[E]) dispatch(batch []E) {
	ctx, cancel := context.WithCancel(q.ctx)
	d := &dispatch[E]{batch: batch, cancel: cancel}

	q.watchMu.Lock()
	if q.closed.Load() {
		q.watchMu.Unlock()
		cancel()
		return
	}
	q.nextID++
	d.id = q.nextID
	d.watchdog = q.clock.AfterFunc(q.cfg.ConsumeTimeout, func() { q.expire(d) })
	q.watchdogs[d.id] = d
	q.watchMu.Unlock()

	q.stats.dispatched.Add(1)
	q.stats.lastDispatch.Store(q.clock.Now())
	q.logger.Debug("dispatching batch",
		zap.String("queue", q.name),
		zap.Uint64("dispatch", d.id),
		zap.Int("size", len(batch)),
	)

	// Submit blocks while every worker is busy; the caller must not.
	go q.submit(ctx, d)
}

func (q *Queue[E]) submit(ctx context.Context, d *dispatch[E]) {
	err := q.pool.Submit(func() {
		// Timed out or shut down while waiting for a worker.
		if ctx.Err() != nil {
			return
		}
		ok, err := q.consume(ctx, d.batch)
		q.resolve(d, ok, err, false)
	})
	if err != nil {
		q.logger.Debug("batch abandoned",
			zap.String("queue", q.name),
			zap.Uint64("dispatch", d.id),
			zap.Error(err),
		)
	}
}

func (q *Queue[E]) consume(ctx context.Context, batch []E) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			ok, err = false, errors.Errorf("batchq: consumer panic: %v", r)
		}
	}()
	return q.consumer.ConsumeBatch(ctx, batch)
}

// expire is the watchdog callback. It runs inside the clock's timer
// machinery, where calling back into the clock is not allowed, so the
// timeout is resolved on its own goroutine.
func (q *Queue[E]) expire(d *dispatch[E]) {
	err := errors.Wrapf(ErrConsumeTimeout, "no result after %s", q.cfg.ConsumeTimeout)
	go q.resolve(d, false, err, true)
}

// resolve handles the outcome of d. Only the first call for a dispatch has
// any effect. fired is set when the watchdog itself reports the timeout.
func (q *Queue[E]) resolve(d *dispatch[E], ok bool, err error, fired bool) {
	if !d.resolved.CompareAndSwap(false, true) {
		return
	}

	q.watchMu.Lock()
	if w, found := q.watchdogs[d.id]; found {
		if !fired {
			w.watchdog.Stop()
		}
		delete(q.watchdogs, d.id)
	}
	q.watchMu.Unlock()
	d.cancel()

	if q.closed.Load() {
		return
	}

	if err != nil {
		dispatchErr := newDispatchError(d.batch, err, q.name, q.clock.Now())
		if IsTimeout(err) {
			q.stats.timedOut.Add(1)
		}
		q.logger.Warn("batch failed",
			zap.String("queue", q.name),
			zap.Uint64("dispatch", d.id),
			zap.Int("size", len(d.batch)),
			zap.Error(err),
		)
		if q.onFailure != nil {
			q.onFailure(dispatchErr)
		}
		ok = false
	}

	q.mu.Lock()
	if q.closed.Load() {
		q.mu.Unlock()
		return
	}
	q.inFlight -= len(d.batch)
	before := q.breaker.State()
	if ok {
		q.breaker.Success()
	} else {
		q.buffer = append(q.buffer, d.batch...)
		q.breaker.Failure()
	}
	after := q.breaker.State()
	q.mu.Unlock()

	if ok {
		q.stats.succeeded.Add(1)
	} else {
		q.stats.failed.Add(1)
		q.stats.requeued.Add(int64(len(d.batch)))
		if err == nil {
			q.logger.Warn("batch rejected by consumer",
				zap.String("queue", q.name),
				zap.Uint64("dispatch", d.id),
				zap.Int("size", len(d.batch)),
				zap.Error(ErrConsumerRejected),
			)
		}
	}

	if before != after {
		q.logger.Info("circuit breaker state changed",
			zap.String("queue", q.name),
			zap.Stringer("from", before),
			zap.Stringer("to", after),
		)
	}
}

func (q *Queue[E]) handleWorkerPanic(p any) {
	q.logger.Error("worker panic", zap.String("queue", q.name), zap.Any("panic", p))
}

// poolLogger routes worker pool diagnostics to zap.
type poolLogger struct {
	logger *zap.Logger
}

func (l poolLogger) Printf(format string, args ...any) {
	l.logger.Sugar().Debugf(format, args...)
}

