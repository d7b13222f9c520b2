package batchq

import (
	"sync/atomic"
	"time"
)

// AtomicTime holds a time.Time that can be read and written concurrently.
// The zero value reports the zero time.
type AtomicTime struct {
	nanos atomic.Int64
}

// Store records t. Storing the zero time clears the value.
func (at *AtomicTime) Store(t time.Time) {
	if t.IsZero() {
		at.nanos.Store(0)
		return
	}
	at.nanos.Store(t.UnixNano())
}

// Load returns the stored time, or the zero time if nothing was stored.
func (at *AtomicTime) Load() time.Time {
	nanos := at.nanos.Load()
	if nanos == 0 {
		return time.Time{}
	}
	return time.Unix(0, nanos)
}

// IsZero reports whether no time is stored.
func (at *AtomicTime) IsZero() bool {
	return at.nanos.Load() == 0
}
