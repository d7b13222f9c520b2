package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/zoobzio/batchq"
)

// Queue is what the HTTP API needs from a queue.
type Queue interface {
	Offerer
	Stats() batchq.Stats
}

var _ Queue = (*batchq.Queue[string])(nil)

type messagesRequest struct {
	Messages []string `json:"messages" binding:"required,min=1"`
}

type messagesResponse struct {
	Accepted int `json:"accepted"`
	Rejected int `json:"rejected"`
}

type statsResponse struct {
	Offered      int64      `json:"offered"`
	Rejected     int64      `json:"rejected"`
	Dispatched   int64      `json:"dispatched"`
	Succeeded    int64      `json:"succeeded"`
	Failed       int64      `json:"failed"`
	TimedOut     int64      `json:"timed_out"`
	Requeued     int64      `json:"requeued"`
	Buffered     int        `json:"buffered"`
	InFlight     int        `json:"in_flight"`
	Breaker      string     `json:"breaker"`
	LastDispatch *time.Time `json:"last_dispatch,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// HTTP serves the ingest API:
//
//	POST /v1/messages  {"messages": ["a", "b"]}  -> 202 {"accepted": 2, "rejected": 0}
//	GET  /v1/stats                               -> 200 queue counters
//
// A POST where every message is rejected answers 429 so clients back off.
type HTTP struct {
	queue  Queue
	logger *zap.Logger
	engine *gin.Engine
	server *http.Server
}

// NewHTTP builds the API for queue, to be served on addr.
func NewHTTP(addr string, queue Queue, logger *zap.Logger) *HTTP {
	if logger == nil {
		logger = zap.NewNop()
	}

	h := &HTTP{queue: queue, logger: logger}

	engine := gin.New()
	engine.Use(gin.Recovery(), h.accessLog())
	v1 := engine.Group("/v1")
	v1.POST("/messages", h.postMessages)
	v1.GET("/stats", h.getStats)

	h.engine = engine
	h.server = &http.Server{
		Addr:              addr,
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return h
}

// Handler returns the routed handler, for tests and embedding.
func (h *HTTP) Handler() http.Handler {
	return h.engine
}

// Serve listens until ctx is cancelled, then shuts down gracefully.
func (h *HTTP) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		h.logger.Info("http server listening", zap.String("addr", h.server.Addr))
		errCh <- h.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "server: http")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.server.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "server: http shutdown")
	}
	return nil
}

func (h *HTTP) postMessages(c *gin.Context) {
	var req messagesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	var res messagesResponse
	for _, msg := range req.Messages {
		if h.queue.Offer(msg) {
			res.Accepted++
		} else {
			res.Rejected++
		}
	}

	if res.Accepted == 0 {
		h.logger.Warn("messages rejected", zap.Int("count", res.Rejected))
		c.JSON(http.StatusTooManyRequests, res)
		return
	}
	c.JSON(http.StatusAccepted, res)
}

func (h *HTTP) getStats(c *gin.Context) {
	s := h.queue.Stats()
	var last *time.Time
	if !s.LastDispatch.IsZero() {
		last = &s.LastDispatch
	}
	c.JSON(http.StatusOK, statsResponse{
		Offered:      s.Offered,
		Rejected:     s.Rejected,
		Dispatched:   s.Dispatched,
		Succeeded:    s.Succeeded,
		Failed:       s.Failed,
		TimedOut:     s.TimedOut,
		Requeued:     s.Requeued,
		Buffered:     s.Buffered,
		InFlight:     s.InFlight,
		Breaker:      s.BreakerState.String(),
		LastDispatch: last,
	})
}

func (h *HTTP) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		h.logger.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
