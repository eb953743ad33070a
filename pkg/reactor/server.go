// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package reactor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"syscall"
	"time"

	hullerrors "github.com/absmach/hullserver/pkg/errors"
	"github.com/absmach/hullserver/pkg/handler"
	"github.com/absmach/hullserver/pkg/protocol"
	"github.com/google/uuid"
	"golang.org/x/sys/unix"
)

// Mode names this serving strategy in handler contexts, logs and metrics.
const Mode = "reactor"

const readBufferSize = 4096

// ServerConfig holds the reactor server configuration.
type ServerConfig struct {
	// Address is the listen address (host:port)
	Address string

	// PollTimeout bounds each readiness wait of the loop
	PollTimeout time.Duration

	// WriteTimeout bounds a single response write. A client that does not
	// drain its socket within this time is disconnected.
	WriteTimeout time.Duration

	// Logger for server events
	Logger *slog.Logger
}

type client struct {
	conn    net.Conn
	raw     syscall.RawConn
	fd      int
	session *protocol.Session
}

// Server serves the line protocol on a single goroutine: the listener and
// every client connection are descriptors of one Reactor.
type Server struct {
	config  ServerConfig
	interp  *protocol.Interpreter
	handler handler.Handler

	mu      sync.Mutex
	ctx     context.Context
	reactor *Reactor
	ln      net.Listener
	clients map[int]*client

	// buf is only touched on the reactor goroutine.
	buf [readBufferSize]byte
}

// NewServer creates a reactor server.
func NewServer(cfg ServerConfig, interp *protocol.Interpreter, h handler.Handler) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if h == nil {
		h = &handler.NoopHandler{}
	}

	return &Server{
		config:  cfg,
		interp:  interp,
		handler: h,
		clients: make(map[int]*client),
	}
}

// Listen starts the server and blocks until the context is cancelled. On
// return the loop has stopped and every connection is closed.
func (s *Server) Listen(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Address, err)
	}
	defer ln.Close()

	lfd, err := descriptor(ln.(syscall.Conn))
	if err != nil {
		return fmt.Errorf("failed to obtain listener descriptor: %w", err)
	}

	r, err := New(Config{PollTimeout: s.config.PollTimeout, Logger: s.config.Logger})
	if err != nil {
		return err
	}
	if err := r.AddFd(lfd, HandlerFunc(s.accept)); err != nil {
		r.Stop()
		return err
	}

	s.mu.Lock()
	s.ctx = ctx
	s.reactor = r
	s.ln = ln
	s.mu.Unlock()

	if err := r.Start(); err != nil {
		return err
	}
	s.config.Logger.Info("reactor server started", slog.String("address", ln.Addr().String()))

	<-ctx.Done()
	s.config.Logger.Info("shutdown signal received, stopping reactor")

	r.Stop()
	s.closeAll()

	s.mu.Lock()
	s.ln = nil
	s.mu.Unlock()

	s.config.Logger.Info("all connections closed")
	return nil
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

// ActiveConnections returns the number of open client connections.
func (s *Server) ActiveConnections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Descriptors returns the number of descriptors registered with the reactor,
// the listener included.
func (s *Server) Descriptors() int {
	s.mu.Lock()
	r := s.reactor
	s.mu.Unlock()
	if r == nil {
		return 0
	}
	return r.Len()
}

// accept runs when the listener is readable. It accepts one connection,
// greets it and registers it with the reactor.
func (s *Server) accept(lfd int) error {
	nfd, _, err := unix.Accept(lfd)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.ECONNABORTED) || errors.Is(err, unix.EINTR) {
			return nil
		}
		return fmt.Errorf("accept: %w", err)
	}
	unix.CloseOnExec(nfd)

	// FileConn duplicates the descriptor and puts it in non-blocking mode.
	f := os.NewFile(uintptr(nfd), "tcp-client")
	conn, err := net.FileConn(f)
	f.Close()
	if err != nil {
		return fmt.Errorf("failed to wrap accepted descriptor: %w", err)
	}

	sc, ok := conn.(syscall.Conn)
	if !ok {
		conn.Close()
		return fmt.Errorf("unexpected connection type %T", conn)
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		conn.Close()
		return err
	}
	cfd, err := descriptor(sc)
	if err != nil {
		conn.Close()
		return err
	}

	hctx := &handler.Context{
		SessionID:   uuid.New().String(),
		RemoteAddr:  conn.RemoteAddr().String(),
		Mode:        Mode,
		ConnectedAt: time.Now(),
	}
	c := &client{
		conn:    conn,
		raw:     raw,
		fd:      cfd,
		session: protocol.NewSession(s.interp, s.handler, hctx, s.config.Logger),
	}

	greeting, err := c.session.Open(s.context())
	if err != nil {
		s.config.Logger.Info("connection rejected",
			slog.String("session", hctx.SessionID),
			slog.String("remote", hctx.RemoteAddr),
			slog.String("error", err.Error()))
		conn.Close()
		return nil
	}
	if err := s.write(c, greeting); err != nil {
		c.session.Close(context.Background())
		conn.Close()
		return hullerrors.New("greet", Mode, hctx.SessionID, hctx.RemoteAddr, err)
	}

	s.mu.Lock()
	s.clients[cfd] = c
	r := s.reactor
	s.mu.Unlock()

	if err := r.AddFd(cfd, HandlerFunc(s.serve)); err != nil {
		s.drop(c)
		return hullerrors.New("register", Mode, hctx.SessionID, hctx.RemoteAddr, err)
	}

	s.config.Logger.Debug("connection established",
		slog.String("session", hctx.SessionID),
		slog.String("client", hctx.RemoteAddr),
		slog.Int("fd", cfd))
	return nil
}

// serve runs when a client descriptor is readable. It performs exactly one
// non-blocking read and writes back whatever the session produced.
func (s *Server) serve(fd int) error {
	s.mu.Lock()
	c, ok := s.clients[fd]
	r := s.reactor
	s.mu.Unlock()
	if !ok {
		return r.RemoveFd(fd)
	}

	hctx := c.session.Context()
	n, err := s.read(c)
	switch {
	case errors.Is(err, unix.EAGAIN):
		return nil
	case errors.Is(err, hullerrors.ErrConnectionClosed):
		s.config.Logger.Debug("client disconnected", slog.String("session", hctx.SessionID))
		s.drop(c)
		return nil
	case err != nil:
		s.drop(c)
		return hullerrors.New("read", Mode, hctx.SessionID, hctx.RemoteAddr, err)
	}

	out, closed := c.session.Feed(s.context(), s.buf[:n])
	if len(out) > 0 {
		if err := s.write(c, out); err != nil {
			s.drop(c)
			return hullerrors.New("write", Mode, hctx.SessionID, hctx.RemoteAddr, err)
		}
	}
	if closed {
		s.config.Logger.Debug("client sent EXIT", slog.String("session", hctx.SessionID))
		s.drop(c)
	}
	return nil
}

func (s *Server) read(c *client) (int, error) {
	var (
		n    int
		rerr error
	)
	err := c.raw.Read(func(fd uintptr) bool {
		n, rerr = unix.Read(int(fd), s.buf[:])
		// Never park: readiness comes from the reactor, not the runtime poller.
		return true
	})
	if err != nil {
		return 0, err
	}
	if rerr != nil {
		return 0, rerr
	}
	if n <= 0 {
		return 0, hullerrors.ErrConnectionClosed
	}
	return n, nil
}

func (s *Server) write(c *client, p []byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout)); err != nil {
		return err
	}
	_, err := c.conn.Write(p)
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return fmt.Errorf("%w: %w", hullerrors.ErrTimeout, err)
	}
	return err
}

// drop deregisters and closes one connection. Other connections are not
// affected.
func (s *Server) drop(c *client) {
	s.mu.Lock()
	delete(s.clients, c.fd)
	r := s.reactor
	s.mu.Unlock()

	if r != nil {
		_ = r.RemoveFd(c.fd)
	}
	c.conn.Close()
	c.session.Close(context.Background())

	s.config.Logger.Debug("connection closed", slog.String("session", c.session.Context().SessionID))
}

func (s *Server) closeAll() {
	s.mu.Lock()
	clients := make([]*client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, c := range clients {
		s.drop(c)
	}
}

func (s *Server) context() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx == nil {
		return context.Background()
	}
	return s.ctx
}

func descriptor(sc syscall.Conn) (int, error) {
	raw, err := sc.SyscallConn()
	if err != nil {
		return -1, err
	}
	fd := -1
	if err := raw.Control(func(f uintptr) { fd = int(f) }); err != nil {
		return -1, err
	}
	return fd, nil
}
