package batchq

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
)

var (
	// ErrConsumeTimeout is the cause of every dispatch that did not resolve
	// within the configured consume timeout.
	ErrConsumeTimeout = errors.New("batchq: consume timed out")

	// ErrNilConsumer is reported when a queue is built without a consumer.
	ErrNilConsumer = errors.New("batchq: consumer must not be nil")

	// ErrConsumerRejected marks a batch the consumer reported as not processed
	// without returning an error.
	ErrConsumerRejected = errors.New("batchq: consumer rejected batch")
)

// ConfigError is returned from queue construction when a parameter is out of
// range. Field names the offending parameter.
type ConfigError struct {
	Field  string
	Reason string
	Err    error
}

func newConfigError(field, reason string) *ConfigError {
	return &ConfigError{Field: field, Reason: reason}
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("batchq: invalid %s: %s", e.Field, e.Reason)
}

// Unwrap returns the underlying cause, if any.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// DispatchError describes a dispatch that resolved with an error. It carries
// the batch so a FailureListener can tell which items were affected. The
// items are returned to the buffer after the listener returns.
//
//nolint:govet // fieldalignment: struct layout optimized for readability
type DispatchError[E any] struct {
	// Batch is a copy of the items that were handed to the consumer.
	Batch []E

	// Err is the consumer error, or a wrapped ErrConsumeTimeout.
	Err error

	// QueueName identifies the queue that dispatched the batch.
	QueueName string

	// Timestamp records when the dispatch resolved.
	Timestamp time.Time
}

func newDispatchError[E any](batch []E, err error, queueName string, at time.Time) *DispatchError[E] {
	return &DispatchError[E]{
		Batch:     append([]E(nil), batch...),
		Err:       err,
		QueueName: queueName,
		Timestamp: at,
	}
}

// Error implements the error interface.
func (de *DispatchError[E]) Error() string {
	return fmt.Sprintf("%s: dispatch of %d items failed: %v", de.QueueName, len(de.Batch), de.Err)
}

// Unwrap returns the underlying error, enabling errors.Is and errors.As.
func (de *DispatchError[E]) Unwrap() error {
	return de.Err
}

// IsTimeout reports whether err was caused by a consume timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrConsumeTimeout)
}
