// Package batchq provides an in-process, bounded batching queue. Producers
// offer single items; the queue groups them into batches and hands each
// batch to a Consumer on a bounded worker pool.
//
// Time is injected through Clock so flush and timeout behavior can be
// driven deterministically in tests.
package batchq

import "github.com/zoobzio/clockz"

// Clock provides time operations for deterministic testing.
type Clock = clockz.Clock

// Timer represents a single event timer.
type Timer = clockz.Timer

// Ticker delivers ticks at intervals.
type Ticker = clockz.Ticker

// RealClock is the default Clock using standard time.
var RealClock Clock = clockz.RealClock
