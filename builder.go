package batchq

import (
	"time"

	"go.uber.org/zap"
)

// Builder collects the parameters of a Queue. Start from NewBuilder, chain
// setters and finish with Build, which validates everything at once.
//
// Example:
//
//	queue, err := batchq.NewBuilder[Event]().
//		Capacity(10000).
//		BatchSize(100).
//		FlushTimeout(time.Second).
//		Consumer(batchq.ConsumerFunc[Event](writeEvents)).
//		FailureListener(func(err error) { log.Print(err) }).
//		Build()
type Builder[E any] struct { //nolint:govet // logical field grouping preferred over memory optimization
	cfg       Config
	consumer  Consumer[E]
	onFailure FailureListener
	breaker   *CircuitBreaker
	clock     Clock
	logger    *zap.Logger
	name      string
}

// NewBuilder returns a builder preloaded with the defaults from DefaultConfig,
// the real clock, a no-op logger and no breaker.
func NewBuilder[E any]() *Builder[E] {
	return &Builder[E]{
		cfg:    DefaultConfig(),
		clock:  RealClock,
		logger: zap.NewNop(),
		name:   "batching-queue",
	}
}

// New builds a queue from cfg and consumer with default wiring.
func New[E any](cfg Config, consumer Consumer[E]) (*Queue[E], error) {
	return NewBuilder[E]().Config(cfg).Consumer(consumer).Build()
}

// Config replaces all numeric parameters at once.
func (b *Builder[E]) Config(cfg Config) *Builder[E] {
	b.cfg = cfg
	return b
}

// Capacity sets the maximum number of items held by the queue.
func (b *Builder[E]) Capacity(capacity int) *Builder[E] {
	b.cfg.Capacity = capacity
	return b
}

// BatchSize sets the number of items that triggers a dispatch.
func (b *Builder[E]) BatchSize(size int) *Builder[E] {
	b.cfg.BatchSize = size
	return b
}

// FlushTimeout sets the period of the inactivity flush.
func (b *Builder[E]) FlushTimeout(timeout time.Duration) *Builder[E] {
	b.cfg.FlushTimeout = timeout
	return b
}

// ConsumeTimeout sets how long a single consumer call may take.
func (b *Builder[E]) ConsumeTimeout(timeout time.Duration) *Builder[E] {
	b.cfg.ConsumeTimeout = timeout
	return b
}

// ConsumerParallelism sets the worker pool size.
func (b *Builder[E]) ConsumerParallelism(workers int) *Builder[E] {
	b.cfg.ConsumerParallelism = workers
	return b
}

// Consumer sets the batch consumer. Required.
func (b *Builder[E]) Consumer(consumer Consumer[E]) *Builder[E] {
	b.consumer = consumer
	return b
}

// FailureListener sets the callback for dispatches that resolve with an error.
func (b *Builder[E]) FailureListener(listener FailureListener) *Builder[E] {
	b.onFailure = listener
	return b
}

// CircuitBreaker sets the breaker gating dispatch. The queue takes ownership:
// the breaker must not be used elsewhere afterwards.
func (b *Builder[E]) CircuitBreaker(breaker *CircuitBreaker) *Builder[E] {
	b.breaker = breaker
	return b
}

// Clock sets the time source for flushes and consume timeouts.
func (b *Builder[E]) Clock(clock Clock) *Builder[E] {
	if clock != nil {
		b.clock = clock
	}
	return b
}

// Logger sets the logger. Nil keeps the no-op logger.
func (b *Builder[E]) Logger(logger *zap.Logger) *Builder[E] {
	if logger != nil {
		b.logger = logger
	}
	return b
}

// Name sets the queue name used in logs and errors.
func (b *Builder[E]) Name(name string) *Builder[E] {
	b.name = name
	return b
}

// Build validates the parameters and starts the queue. It returns a
// *ConfigError naming the first invalid parameter.
func (b *Builder[E]) Build() (*Queue[E], error) {
	if err := b.cfg.Validate(); err != nil {
		return nil, err
	}
	if b.consumer == nil {
		cfgErr := newConfigError("consumer", "must not be nil")
		cfgErr.Err = ErrNilConsumer
		return nil, cfgErr
	}
	return newQueue(b)
}
