package batchq

import (
	"math"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
)

// Defaults applied by NewBuilder.
const (
	// DefaultCapacity leaves the buffer effectively unbounded.
	DefaultCapacity = math.MaxInt
	// DefaultBatchSize is the number of items that triggers a dispatch.
	DefaultBatchSize = 10
	// DefaultFlushTimeout effectively disables time-triggered flushes.
	DefaultFlushTimeout = time.Duration(math.MaxInt64)
	// DefaultConsumeTimeout bounds a single consumer call.
	DefaultConsumeTimeout = 60 * time.Second
	// DefaultConsumerParallelism is the worker pool size.
	DefaultConsumerParallelism = 5
)

// Config holds the numeric parameters of a Queue. Every field must be
// positive.
type Config struct {
	// Capacity bounds the number of items held by the queue, counting both
	// buffered items and items in batches that have not resolved yet.
	Capacity int `yaml:"capacity" validate:"gt=0"`

	// BatchSize is the maximum number of items per dispatch. Reaching it
	// triggers a dispatch immediately.
	BatchSize int `yaml:"batch_size" validate:"gt=0"`

	// FlushTimeout is the period of the inactivity flush. A size-triggered
	// dispatch restarts the period.
	FlushTimeout time.Duration `yaml:"flush_timeout" validate:"gt=0"`

	// ConsumeTimeout bounds how long the queue waits for one consumer call.
	ConsumeTimeout time.Duration `yaml:"consume_timeout" validate:"gt=0"`

	// ConsumerParallelism is the number of workers running consumer calls.
	ConsumerParallelism int `yaml:"consumer_parallelism" validate:"gt=0"`
}

// DefaultConfig returns the builder defaults.
func DefaultConfig() Config {
	return Config{
		Capacity:            DefaultCapacity,
		BatchSize:           DefaultBatchSize,
		FlushTimeout:        DefaultFlushTimeout,
		ConsumeTimeout:      DefaultConsumeTimeout,
		ConsumerParallelism: DefaultConsumerParallelism,
	}
}

var validate = validator.New()

// Validate checks every field and returns a *ConfigError for the first one
// out of range.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return errors.Wrap(err, "batchq: validate config")
	}

	fe := fieldErrs[0]
	cfgErr := newConfigError(lowerFirst(fe.StructField()), "should be > "+fe.Param())
	cfgErr.Err = fe
	return cfgErr
}

func lowerFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToLower(r)) + s[size:]
}
