// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package proactor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	hullerrors "github.com/absmach/hullserver/pkg/errors"
	"github.com/absmach/hullserver/pkg/handler"
	"github.com/absmach/hullserver/pkg/protocol"
	"github.com/google/uuid"
)

// Mode names this serving strategy in handler contexts, logs and metrics.
const Mode = "proactor"

// ServerConfig holds the proactor server configuration.
type ServerConfig struct {
	// Address is the listen address (host:port)
	Address string

	// MaxWorkers caps concurrent connections. Zero means unbounded.
	MaxWorkers int

	// ShutdownTimeout is the maximum time to wait for workers during shutdown
	ShutdownTimeout time.Duration

	// WriteTimeout bounds a single response write
	WriteTimeout time.Duration

	// Logger for server events
	Logger *slog.Logger
}

// Server serves the line protocol with one worker goroutine per connection.
type Server struct {
	config  ServerConfig
	interp  *protocol.Interpreter
	handler handler.Handler

	mu       sync.Mutex
	acceptor *Acceptor
	ln       net.Listener
}

// NewServer creates a proactor server.
func NewServer(cfg ServerConfig, interp *protocol.Interpreter, h handler.Handler) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if cfg.MaxWorkers < 0 {
		cfg.MaxWorkers = 0
	}
	if h == nil {
		h = &handler.NoopHandler{}
	}

	return &Server{
		config:  cfg,
		interp:  interp,
		handler: h,
	}
}

// Listen starts the server and blocks until the context is cancelled. On
// return every worker has exited or ErrShutdownTimeout is reported.
func (s *Server) Listen(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Address, err)
	}

	acceptor := NewAcceptor(Config{
		MaxWorkers:      s.config.MaxWorkers,
		BusyMessage:     protocol.ErrorResponse(protocol.Request{}, hullerrors.ErrServerBusy).Text,
		ShutdownTimeout: s.config.ShutdownTimeout,
		Logger:          s.config.Logger,
	}, ConnHandlerFunc(s.serveConn))
	if err := acceptor.Start(ln); err != nil {
		ln.Close()
		return err
	}

	s.mu.Lock()
	s.acceptor = acceptor
	s.ln = ln
	s.mu.Unlock()

	s.config.Logger.Info("proactor server started",
		slog.String("address", ln.Addr().String()),
		slog.Int("max_workers", s.config.MaxWorkers))

	<-ctx.Done()
	s.config.Logger.Info("shutdown signal received, stopping workers")

	err = acceptor.Stop()

	s.mu.Lock()
	s.ln = nil
	s.mu.Unlock()
	return err
}

// Addr returns the listen address, or nil when the server is not listening.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// ActiveConnections returns the number of running workers.
func (s *Server) ActiveConnections() int {
	s.mu.Lock()
	a := s.acceptor
	s.mu.Unlock()
	if a == nil {
		return 0
	}
	return a.Active()
}

// Rejected returns the number of connections refused for capacity.
func (s *Server) Rejected() int64 {
	s.mu.Lock()
	a := s.acceptor
	s.mu.Unlock()
	if a == nil {
		return 0
	}
	return a.Rejected()
}

// serveConn is the worker body: greet, then read, feed and write until EOF,
// EXIT, an I/O error, or cancellation closes the connection.
func (s *Server) serveConn(ctx context.Context, conn net.Conn) error {
	hctx := &handler.Context{
		SessionID:   uuid.New().String(),
		RemoteAddr:  conn.RemoteAddr().String(),
		Mode:        Mode,
		ConnectedAt: time.Now(),
	}
	session := protocol.NewSession(s.interp, s.handler, hctx, s.config.Logger)

	greeting, err := session.Open(ctx)
	if err != nil {
		s.config.Logger.Info("connection rejected",
			slog.String("session", hctx.SessionID),
			slog.String("remote", hctx.RemoteAddr),
			slog.String("error", err.Error()))
		return nil
	}
	defer session.Close(context.Background())

	if err := s.write(conn, greeting); err != nil {
		return hullerrors.New("greet", Mode, hctx.SessionID, hctx.RemoteAddr, err)
	}

	s.config.Logger.Debug("connection established",
		slog.String("session", hctx.SessionID),
		slog.String("client", hctx.RemoteAddr))

	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			out, closed := session.Feed(ctx, buf[:n])
			if len(out) > 0 {
				if werr := s.write(conn, out); werr != nil {
					return hullerrors.New("write", Mode, hctx.SessionID, hctx.RemoteAddr, werr)
				}
			}
			if closed {
				s.config.Logger.Debug("client sent EXIT", slog.String("session", hctx.SessionID))
				return nil
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				s.config.Logger.Debug("connection closed", slog.String("session", hctx.SessionID))
				return nil
			}
			return hullerrors.New("read", Mode, hctx.SessionID, hctx.RemoteAddr, err)
		}
	}
}

func (s *Server) write(conn net.Conn, p []byte) error {
	if err := conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout)); err != nil {
		return err
	}
	_, err := conn.Write(p)
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return fmt.Errorf("%w: %w", hullerrors.ErrTimeout, err)
	}
	return err
}
