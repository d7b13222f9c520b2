// Package server exposes a batchq queue over the network: a line-oriented
// TCP listener for interactive use with telnet or nc, and an HTTP ingest API.
package server

import (
	"bufio"
	"context"
	"net"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/zoobzio/batchq"
)

// Greeting is written to every accepted connection.
const Greeting = "Connected!\n"

// maxLineSize bounds a single message.
const maxLineSize = 64 * 1024

// Offerer accepts messages. *batchq.Queue[string] satisfies it.
type Offerer interface {
	Offer(item string) bool
}

var _ Offerer = (*batchq.Queue[string])(nil)

// Line reads newline-delimited messages from TCP clients and offers each
// non-empty, trimmed line to a queue. A rejected message is logged and
// dropped; the client is not told.
type Line struct {
	listener net.Listener
	queue    Offerer
	logger   *zap.Logger

	closed atomic.Bool
	wg     sync.WaitGroup
	mu     sync.Mutex
	conns  map[net.Conn]struct{}
}

// Listen binds addr, e.g. ":10033". Call Serve to start accepting.
func Listen(addr string, queue Offerer, logger *zap.Logger) (*Line, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "server: listen %s", addr)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Line{
		listener: ln,
		queue:    queue,
		logger:   logger,
		conns:    make(map[net.Conn]struct{}),
	}, nil
}

// Addr returns the bound address.
func (s *Line) Addr() net.Addr {
	return s.listener.Addr()
}

// Serve accepts connections until ctx is cancelled or Close is called, then
// waits for the connection handlers to return. It returns nil on a clean
// stop.
func (s *Line) Serve(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { _ = s.Close() })
	defer stop()

	s.logger.Info("line server listening", zap.Stringer("addr", s.Addr()))

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.closed.Load() {
				s.wg.Wait()
				return nil
			}
			return errors.Wrap(err, "server: accept")
		}

		if !s.track(conn) {
			_ = conn.Close()
			continue
		}
		s.wg.Add(1)
		go s.handle(conn)
	}
}

// Close stops the listener and closes open connections.
func (s *Line) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := s.listener.Close()

	s.mu.Lock()
	for conn := range s.conns {
		_ = conn.Close()
	}
	s.mu.Unlock()

	return err
}

func (s *Line) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Line) handle(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		_ = conn.Close()
	}()

	remote := conn.RemoteAddr().String()
	s.logger.Info("accepted connection", zap.String("remote", remote))

	if _, err := conn.Write([]byte(Greeting)); err != nil {
		s.logger.Debug("greeting failed", zap.String("remote", remote), zap.Error(err))
		return
	}

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 4096), maxLineSize)
	for scanner.Scan() {
		msg := strings.TrimSpace(scanner.Text())
		if msg == "" {
			continue
		}
		if !s.queue.Offer(msg) {
			s.logger.Warn("message rejected", zap.String("remote", remote), zap.String("message", msg))
		}
	}

	if err := scanner.Err(); err != nil && !s.closed.Load() {
		s.logger.Debug("connection read failed", zap.String("remote", remote), zap.Error(err))
	}
	s.logger.Info("connection closed", zap.String("remote", remote))
}
