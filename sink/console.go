// Package sink provides batchq consumers that deliver string batches to a
// destination: a writer, a Kafka topic or a Redis list.
package sink

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/zoobzio/batchq"
)

// PoisonMessage is the single-item batch Console refuses. Sending it by hand
// exercises the failure listener, the retry path and the breaker.
const PoisonMessage = "error"

// ErrPoisonBatch is returned by Console for a batch holding only PoisonMessage.
var ErrPoisonBatch = errors.New("sink: error is incorrect")

// Console prints every batch on one line as "15:04:05.000: [a, b, c]".
type Console struct {
	mu     sync.Mutex
	out    io.Writer
	clock  batchq.Clock
	logger *zap.Logger
}

var _ batchq.Consumer[string] = (*Console)(nil)

// NewConsole creates a Console writing to out. A nil clock uses the real
// clock and a nil logger discards diagnostics.
func NewConsole(out io.Writer, clock batchq.Clock, logger *zap.Logger) *Console {
	if clock == nil {
		clock = batchq.RealClock
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Console{out: out, clock: clock, logger: logger}
}

// ConsumeBatch implements batchq.Consumer.
func (c *Console) ConsumeBatch(_ context.Context, items []string) (bool, error) {
	line := fmt.Sprintf("%s: [%s]\n", c.clock.Now().Format("15:04:05.000"), strings.Join(items, ", "))

	c.mu.Lock()
	_, err := io.WriteString(c.out, line)
	c.mu.Unlock()
	if err != nil {
		return false, errors.Wrap(err, "sink: console write")
	}

	if len(items) == 1 && items[0] == PoisonMessage {
		c.logger.Debug("poison batch", zap.Strings("items", items))
		return false, ErrPoisonBatch
	}
	return true, nil
}
