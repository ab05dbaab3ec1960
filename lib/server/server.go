// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package server serves the envelope protocol on a stream socket.
//
// Each accepted connection gets one worker goroutine and one
// [session.Session]. The worker reads a frame, dispatches it, and
// writes the response before reading the next frame, so a client sees
// its responses in request order. Workers are independent: a handler
// blocked on the database delays only its own client.
//
// Handlers run with a context detached from the connection, so a
// transaction in flight finishes even if the client disconnects or
// the server begins shutting down; the worker notices afterwards.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bureau-foundation/mapforge/lib/dispatch"
	"github.com/bureau-foundation/mapforge/lib/envelope"
	"github.com/bureau-foundation/mapforge/lib/session"
)

// Defaults for Config.
const (
	DefaultIdleTimeout  = 5 * time.Minute
	DefaultWriteTimeout = 30 * time.Second
)

// Config holds the parameters for creating a Server.
type Config struct {
	Registry *dispatch.Registry

	// MaxFrameSize caps one request. Defaults to
	// envelope.DefaultMaxFrameSize.
	MaxFrameSize int

	// IdleTimeout closes a connection that sends nothing for this long.
	IdleTimeout time.Duration

	// WriteTimeout bounds writing one response.
	WriteTimeout time.Duration

	Logger *slog.Logger
}

// Server accepts connections and runs one worker per connection.
type Server struct {
	registry     *dispatch.Registry
	maxFrameSize int
	idleTimeout  time.Duration
	writeTimeout time.Duration
	logger       *slog.Logger

	nextConnectionID atomic.Uint64

	// mu guards closing and connections. Workers arm their read
	// deadline under mu so shutdown cannot be overtaken by a fresh
	// deadline.
	mu          sync.Mutex
	closing     bool
	connections map[net.Conn]struct{}

	// activeConnections tracks workers for graceful shutdown.
	activeConnections sync.WaitGroup
}

// New creates a Server.
func New(cfg Config) (*Server, error) {
	if cfg.Registry == nil {
		return nil, errors.New("server: Registry is required")
	}
	server := &Server{
		registry:     cfg.Registry,
		maxFrameSize: cfg.MaxFrameSize,
		idleTimeout:  cfg.IdleTimeout,
		writeTimeout: cfg.WriteTimeout,
		logger:       cfg.Logger,
		connections:  make(map[net.Conn]struct{}),
	}
	if server.maxFrameSize <= 0 {
		server.maxFrameSize = envelope.DefaultMaxFrameSize
	}
	if server.idleTimeout <= 0 {
		server.idleTimeout = DefaultIdleTimeout
	}
	if server.writeTimeout <= 0 {
		server.writeTimeout = DefaultWriteTimeout
	}
	if server.logger == nil {
		server.logger = slog.New(slog.DiscardHandler)
	}
	return server, nil
}

// Listen opens a listener. For "unix" any stale socket file at address
// is removed first; the listener unlinks it again on Close.
func Listen(network, address string) (net.Listener, error) {
	if network == "unix" {
		if err := os.Remove(address); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("removing stale socket %s: %w", address, err)
		}
	}
	listener, err := net.Listen(network, address)
	if err != nil {
		return nil, fmt.Errorf("listening on %s %s: %w", network, address, err)
	}
	return listener, nil
}

// Serve accepts connections on listener until ctx is cancelled, then
// closes the listener, closes idle connections, and waits for in-flight
// requests to be answered. Serve takes ownership of listener.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	defer listener.Close()

	// Unblock Accept when the context is cancelled.
	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	s.logger.Info("server listening",
		"network", listener.Addr().Network(),
		"address", listener.Addr().String(),
	)

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			if errors.Is(err, net.ErrClosed) {
				break
			}
			s.logger.Error("accept failed", "error", err)
			continue
		}

		if !s.track(conn) {
			conn.Close()
			break
		}
		s.activeConnections.Add(1)
		go func() {
			defer s.activeConnections.Done()
			defer s.untrack(conn)
			s.handleConnection(ctx, conn)
		}()
	}

	s.shutdown()
	s.activeConnections.Wait()
	s.logger.Info("server stopped")
	return nil
}

func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.connections[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.connections, conn)
}

// shutdown stops workers at their next read. A worker that is waiting
// for a request returns immediately; one that is dispatching finishes
// and writes its response first.
func (s *Server) shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closing = true
	for conn := range s.connections {
		conn.SetReadDeadline(time.Now())
	}
}

// armRead sets the read deadline for the next request, unless the
// server is shutting down.
func (s *Server) armRead(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	conn.SetReadDeadline(time.Now().Add(s.idleTimeout))
	return true
}

// handleConnection runs the request loop for one client.
func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	caller := session.New(s.nextConnectionID.Add(1), remoteAddress(conn))
	logger := s.logger.With("connection_id", caller.ConnectionID)
	logger.Debug("connection opened", "remote", caller.RemoteAddr)

	dispatchContext := context.WithoutCancel(ctx)
	requests := 0
	defer func() {
		logger.Debug("connection closed", "requests", requests, "username", caller.Username)
	}()

	for s.armRead(conn) {
		request, err := envelope.ReadFrame(conn, s.maxFrameSize)
		if err != nil {
			if !s.answerReadError(conn, logger, err) {
				return
			}
			continue
		}
		requests++

		response := s.registry.Dispatch(dispatchContext, caller, request)

		conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
		if err := envelope.WriteFrame(conn, response); err != nil {
			logger.Debug("failed to write response", "error", err)
			return
		}
	}
}

// answerReadError handles a failed ReadFrame. It reports whether the
// connection can continue.
func (s *Server) answerReadError(conn net.Conn, logger *slog.Logger, err error) bool {
	switch {
	case errors.Is(err, io.EOF):
		return false
	case errors.Is(err, os.ErrDeadlineExceeded):
		logger.Debug("connection idle or server stopping")
		return false
	case envelope.IsStreamBroken(err):
		logger.Info("dropping connection after unreadable frame", "error", err)
		return false
	}

	// The frame was delimited but its envelope was not usable.
	logger.Info("rejecting malformed envelope", "error", err)
	response := envelope.DecodeFailure(err)
	conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	if writeErr := envelope.WriteFrame(conn, response); writeErr != nil {
		logger.Debug("failed to write decode error", "error", writeErr)
		return false
	}
	return true
}

func remoteAddress(conn net.Conn) string {
	if address := conn.RemoteAddr(); address != nil && address.String() != "" {
		return address.String()
	}
	return conn.LocalAddr().Network()
}
