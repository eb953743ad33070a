// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package reactor

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// DefaultPollTimeout bounds a single readiness wait.
const DefaultPollTimeout = 100 * time.Millisecond

var (
	// ErrAlreadyRegistered is returned when a descriptor is added twice.
	ErrAlreadyRegistered = errors.New("descriptor already registered")

	// ErrNotRegistered is returned when removing an unknown descriptor.
	ErrNotRegistered = errors.New("descriptor not registered")

	// ErrStopped is returned by operations on a stopped reactor.
	ErrStopped = errors.New("reactor stopped")

	// ErrRunning is returned when Start is called twice.
	ErrRunning = errors.New("reactor already running")
)

// Handler is invoked on the reactor goroutine when its descriptor is
// readable. It must not block for long: every other descriptor waits for it.
type Handler interface {
	Handle(fd int) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(fd int) error

// Handle calls f(fd).
func (f HandlerFunc) Handle(fd int) error {
	return f(fd)
}

// Config holds the reactor configuration.
type Config struct {
	// PollTimeout is the upper bound of one readiness wait (default 100ms).
	PollTimeout time.Duration

	// Logger for loop events
	Logger *slog.Logger
}

// Reactor waits for readiness on a set of descriptors on a single goroutine
// and dispatches each ready descriptor to its handler.
type Reactor struct {
	config Config

	mu       sync.Mutex
	handlers map[int]Handler
	started  bool
	stopped  bool

	// wake pipe interrupts poll(2) on registration changes and Stop.
	wakeR, wakeW int

	done     chan struct{}
	stopOnce sync.Once
}

// New creates a reactor. It allocates the wake pipe but does not start the
// loop.
func New(cfg Config) (*Reactor, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = DefaultPollTimeout
	}

	var p [2]int
	if err := unix.Pipe(p[:]); err != nil {
		return nil, fmt.Errorf("failed to create wake pipe: %w", err)
	}
	for _, fd := range p {
		unix.CloseOnExec(fd)
		if err := unix.SetNonblock(fd, true); err != nil {
			unix.Close(p[0])
			unix.Close(p[1])
			return nil, fmt.Errorf("failed to configure wake pipe: %w", err)
		}
	}

	return &Reactor{
		config:   cfg,
		handlers: make(map[int]Handler),
		wakeR:    p[0],
		wakeW:    p[1],
		done:     make(chan struct{}),
	}, nil
}

// Start launches the loop goroutine.
func (r *Reactor) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch {
	case r.stopped:
		return ErrStopped
	case r.started:
		return ErrRunning
	}
	r.started = true
	go r.loop()
	return nil
}

// AddFd registers h for fd. It is safe to call from any goroutine,
// including from a handler.
func (r *Reactor) AddFd(fd int, h Handler) error {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return ErrStopped
	}
	if _, ok := r.handlers[fd]; ok {
		r.mu.Unlock()
		return ErrAlreadyRegistered
	}
	r.handlers[fd] = h
	r.wakeLocked()
	r.mu.Unlock()
	return nil
}

// RemoveFd deregisters fd. A handler already selected for the current round
// is not invoked once removed.
func (r *Reactor) RemoveFd(fd int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.handlers[fd]; !ok {
		return ErrNotRegistered
	}
	delete(r.handlers, fd)
	return nil
}

// Len returns the number of registered descriptors.
func (r *Reactor) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handlers)
}

// Stop ends the loop and waits for it to exit. Registered descriptors are
// forgotten, not closed. Stop must not be called from a handler.
func (r *Reactor) Stop() error {
	r.stopOnce.Do(func() {
		r.mu.Lock()
		r.stopped = true
		started := r.started
		r.wakeLocked()
		r.mu.Unlock()

		if started {
			<-r.done
		}

		r.mu.Lock()
		clear(r.handlers)
		unix.Close(r.wakeR)
		unix.Close(r.wakeW)
		r.wakeR, r.wakeW = -1, -1
		r.mu.Unlock()
	})
	return nil
}

func (r *Reactor) loop() {
	defer close(r.done)

	timeout := int(r.config.PollTimeout.Milliseconds())
	if timeout < 1 {
		timeout = 1
	}

	fds := make([]unix.PollFd, 0, 16)
	for {
		// Snapshot the table so the lock is not held while waiting.
		r.mu.Lock()
		if r.stopped {
			r.mu.Unlock()
			return
		}
		fds = fds[:0]
		fds = append(fds, unix.PollFd{Fd: int32(r.wakeR), Events: unix.POLLIN})
		for fd := range r.handlers {
			fds = append(fds, unix.PollFd{Fd: int32(fd), Events: unix.POLLIN})
		}
		r.mu.Unlock()

		n, err := unix.Poll(fds, timeout)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			r.config.Logger.Error("poll failed", slog.String("error", err.Error()))
			time.Sleep(r.config.PollTimeout)
			continue
		}
		if n == 0 {
			continue
		}

		for _, pfd := range fds {
			if pfd.Revents == 0 {
				continue
			}
			fd := int(pfd.Fd)
			if fd == r.wakeR {
				r.drain()
				continue
			}

			h, ok := r.lookup(fd)
			if !ok {
				continue
			}
			if pfd.Revents&unix.POLLNVAL != 0 {
				r.config.Logger.Warn("dropping invalid descriptor", slog.Int("fd", fd))
				_ = r.RemoveFd(fd)
				continue
			}
			r.dispatch(fd, h)
		}
	}
}

func (r *Reactor) lookup(fd int) (Handler, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return nil, false
	}
	h, ok := r.handlers[fd]
	return h, ok
}

// dispatch runs one handler. Errors and panics are logged and never end the
// loop.
func (r *Reactor) dispatch(fd int, h Handler) {
	defer func() {
		if rec := recover(); rec != nil {
			r.config.Logger.Error("handler panic",
				slog.Int("fd", fd),
				slog.Any("panic", rec))
		}
	}()

	if err := h.Handle(fd); err != nil {
		r.config.Logger.Warn("handler error",
			slog.Int("fd", fd),
			slog.String("error", err.Error()))
	}
}

// wakeLocked interrupts a pending poll(2). r.mu must be held.
func (r *Reactor) wakeLocked() {
	if r.wakeW >= 0 {
		_, _ = unix.Write(r.wakeW, []byte{1})
	}
}

func (r *Reactor) drain() {
	var buf [64]byte
	for {
		n, err := unix.Read(r.wakeR, buf[:])
		if n <= 0 || err != nil {
			return
		}
	}
}
