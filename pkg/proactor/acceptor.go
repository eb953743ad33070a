// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package proactor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

var (
	// ErrShutdownTimeout is returned when workers do not exit within the configured timeout.
	ErrShutdownTimeout = errors.New("shutdown timeout exceeded")

	// ErrStopped is returned by Start on a stopped acceptor.
	ErrStopped = errors.New("acceptor stopped")

	// ErrRunning is returned when Start is called twice.
	ErrRunning = errors.New("acceptor already running")
)

// ConnHandler owns one connection for its whole life. ServeConn returns when
// the peer is done, on I/O error, or when ctx is cancelled and the
// connection closed underneath it.
type ConnHandler interface {
	ServeConn(ctx context.Context, conn net.Conn) error
}

// ConnHandlerFunc adapts a function to the ConnHandler interface.
type ConnHandlerFunc func(ctx context.Context, conn net.Conn) error

// ServeConn calls f(ctx, conn).
func (f ConnHandlerFunc) ServeConn(ctx context.Context, conn net.Conn) error {
	return f(ctx, conn)
}

// Config holds the acceptor configuration.
type Config struct {
	// MaxWorkers caps concurrent workers. Zero means unbounded.
	MaxWorkers int

	// BusyMessage is written to connections refused because MaxWorkers was
	// reached, before they are closed.
	BusyMessage string

	// ShutdownTimeout is the maximum time Stop waits for workers to exit
	// after their connections were closed.
	ShutdownTimeout time.Duration

	// Logger for acceptor events
	Logger *slog.Logger
}

type worker struct {
	id     uuid.UUID
	conn   net.Conn
	cancel context.CancelFunc
}

// Acceptor runs one accept goroutine and one worker goroutine per accepted
// connection. Workers are registered by id together with their cancel
// func, so Stop can cancel, unblock and join every one of them.
type Acceptor struct {
	config  Config
	handler ConnHandler
	slots   *semaphore.Weighted

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	ln      net.Listener
	workers map[uuid.UUID]*worker
	stopped bool

	wg         sync.WaitGroup
	acceptDone chan struct{}
	stopOnce   sync.Once
	stopErr    error
	rejected   atomic.Int64
}

// NewAcceptor creates an acceptor that hands connections to h.
func NewAcceptor(cfg Config, h ConnHandler) *Acceptor {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	a := &Acceptor{
		config:     cfg,
		handler:    h,
		ctx:        ctx,
		cancel:     cancel,
		workers:    make(map[uuid.UUID]*worker),
		acceptDone: make(chan struct{}),
	}
	if cfg.MaxWorkers > 0 {
		a.slots = semaphore.NewWeighted(int64(cfg.MaxWorkers))
	}
	return a
}

// Start launches the accept goroutine on ln. The acceptor owns ln from now
// on and closes it in Stop.
func (a *Acceptor) Start(ln net.Listener) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch {
	case a.stopped:
		return ErrStopped
	case a.ln != nil:
		return ErrRunning
	}
	a.ln = ln
	go a.acceptLoop(ln)
	return nil
}

// Active returns the number of running workers.
func (a *Acceptor) Active() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.workers)
}

// Rejected returns the number of connections refused for capacity.
func (a *Acceptor) Rejected() int64 {
	return a.rejected.Load()
}

// Stop closes the listener, then cancels every worker, closes every
// connection to unblock pending reads, waits for all workers and clears the
// registry. It is safe to call more than once.
func (a *Acceptor) Stop() error {
	a.stopOnce.Do(func() {
		a.mu.Lock()
		a.stopped = true
		ln := a.ln
		a.mu.Unlock()

		if ln != nil {
			if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
				a.config.Logger.Error("error closing listener", slog.String("error", err.Error()))
			}
			<-a.acceptDone
		}

		a.mu.Lock()
		workers := make([]*worker, 0, len(a.workers))
		for _, w := range a.workers {
			workers = append(workers, w)
		}
		a.mu.Unlock()

		a.cancel()
		for _, w := range workers {
			w.cancel()
		}
		for _, w := range workers {
			w.conn.Close()
		}

		done := make(chan struct{})
		go func() {
			a.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
			a.config.Logger.Info("all workers stopped", slog.Int("workers", len(workers)))
		case <-time.After(a.config.ShutdownTimeout):
			a.config.Logger.Warn("shutdown timeout exceeded, abandoning workers")
			a.stopErr = ErrShutdownTimeout
		}

		a.mu.Lock()
		clear(a.workers)
		a.mu.Unlock()
	})
	return a.stopErr
}

func (a *Acceptor) acceptLoop(ln net.Listener) {
	defer close(a.acceptDone)

	var backoff time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if a.isStopped() || errors.Is(err, net.ErrClosed) {
				return
			}
			// Resource exhaustion (EMFILE and friends) only fails this
			// attempt; back off and keep accepting.
			if backoff == 0 {
				backoff = 5 * time.Millisecond
			} else if backoff < time.Second {
				backoff *= 2
			}
			a.config.Logger.Error("failed to accept connection",
				slog.String("error", err.Error()),
				slog.Duration("retry_in", backoff))
			time.Sleep(backoff)
			continue
		}
		backoff = 0
		a.spawn(conn)
	}
}

func (a *Acceptor) spawn(conn net.Conn) {
	if a.slots != nil && !a.slots.TryAcquire(1) {
		a.reject(conn)
		return
	}

	ctx, cancel := context.WithCancel(a.ctx)
	w := &worker{id: uuid.New(), conn: conn, cancel: cancel}

	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		cancel()
		conn.Close()
		a.release()
		return
	}
	a.workers[w.id] = w
	a.wg.Add(1)
	a.mu.Unlock()

	go a.run(ctx, w)
}

func (a *Acceptor) run(ctx context.Context, w *worker) {
	defer func() {
		w.cancel()
		w.conn.Close()
		a.release()

		a.mu.Lock()
		delete(a.workers, w.id)
		a.mu.Unlock()
		a.wg.Done()
	}()

	err := a.handler.ServeConn(ctx, w.conn)
	if err != nil && !errors.Is(err, io.EOF) && ctx.Err() == nil {
		a.config.Logger.Debug("connection handler error",
			slog.String("worker", w.id.String()),
			slog.String("remote", w.conn.RemoteAddr().String()),
			slog.String("error", err.Error()))
	}
}

func (a *Acceptor) reject(conn net.Conn) {
	a.rejected.Add(1)
	a.config.Logger.Warn("connection rejected, worker limit reached",
		slog.String("remote", conn.RemoteAddr().String()),
		slog.Int("max_workers", a.config.MaxWorkers))

	if a.config.BusyMessage != "" {
		conn.SetWriteDeadline(time.Now().Add(time.Second))
		conn.Write([]byte(a.config.BusyMessage))
	}
	conn.Close()
}

func (a *Acceptor) release() {
	if a.slots != nil {
		a.slots.Release(1)
	}
}

func (a *Acceptor) isStopped() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stopped
}
