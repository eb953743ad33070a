// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package reactor

import (
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newPipe(t *testing.T) (r, w int) {
	t.Helper()
	var p [2]int
	if err := unix.Pipe(p[:]); err != nil {
		t.Fatalf("pipe: %v", err)
	}
	t.Cleanup(func() {
		unix.Close(p[0])
		unix.Close(p[1])
	})
	return p[0], p[1]
}

func newReactor(t *testing.T) *Reactor {
	t.Helper()
	r, err := New(Config{PollTimeout: 20 * time.Millisecond, Logger: quietLogger()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := r.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { r.Stop() })
	return r
}

// readHandler drains the descriptor and reports each read on calls.
func readHandler(calls chan<- string) HandlerFunc {
	return func(fd int) error {
		buf := make([]byte, 64)
		n, err := unix.Read(fd, buf)
		if err != nil {
			return err
		}
		calls <- string(buf[:n])
		return nil
	}
}

func waitFor(t *testing.T, ch <-chan string) string {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for handler")
		return ""
	}
}

func TestReactorDispatchesReadyDescriptor(t *testing.T) {
	r := newReactor(t)
	rfd, wfd := newPipe(t)

	calls := make(chan string, 4)
	if err := r.AddFd(rfd, readHandler(calls)); err != nil {
		t.Fatalf("AddFd: %v", err)
	}

	unix.Write(wfd, []byte("ping"))
	if got := waitFor(t, calls); got != "ping" {
		t.Errorf("expected ping, got %q", got)
	}
	if r.Len() != 1 {
		t.Errorf("expected 1 descriptor, got %d", r.Len())
	}
}

func TestReactorMultipleDescriptors(t *testing.T) {
	r := newReactor(t)
	r1, w1 := newPipe(t)
	r2, w2 := newPipe(t)

	calls := make(chan string, 4)
	r.AddFd(r1, readHandler(calls))
	r.AddFd(r2, readHandler(calls))

	unix.Write(w2, []byte("two"))
	if got := waitFor(t, calls); got != "two" {
		t.Errorf("expected two, got %q", got)
	}
	unix.Write(w1, []byte("one"))
	if got := waitFor(t, calls); got != "one" {
		t.Errorf("expected one, got %q", got)
	}
}

func TestReactorRegistrationErrors(t *testing.T) {
	r := newReactor(t)
	rfd, _ := newPipe(t)

	h := HandlerFunc(func(int) error { return nil })
	if err := r.AddFd(rfd, h); err != nil {
		t.Fatalf("AddFd: %v", err)
	}
	if err := r.AddFd(rfd, h); !errors.Is(err, ErrAlreadyRegistered) {
		t.Errorf("expected ErrAlreadyRegistered, got %v", err)
	}
	if err := r.RemoveFd(rfd); err != nil {
		t.Errorf("RemoveFd: %v", err)
	}
	if err := r.RemoveFd(rfd); !errors.Is(err, ErrNotRegistered) {
		t.Errorf("expected ErrNotRegistered, got %v", err)
	}
	if err := r.Start(); !errors.Is(err, ErrRunning) {
		t.Errorf("expected ErrRunning, got %v", err)
	}
}

func TestReactorHandlerErrorDoesNotStopLoop(t *testing.T) {
	r := newReactor(t)
	rfd, wfd := newPipe(t)

	var n atomic.Int32
	calls := make(chan string, 4)
	r.AddFd(rfd, HandlerFunc(func(fd int) error {
		buf := make([]byte, 64)
		k, _ := unix.Read(fd, buf)
		calls <- string(buf[:k])
		switch n.Add(1) {
		case 1:
			return errors.New("handler failed")
		case 2:
			panic("handler panicked")
		}
		return nil
	}))

	for _, msg := range []string{"a", "b", "c"} {
		unix.Write(wfd, []byte(msg))
		if got := waitFor(t, calls); got != msg {
			t.Fatalf("expected %q, got %q", msg, got)
		}
	}
}

func TestReactorRemoveFdStopsDispatch(t *testing.T) {
	r := newReactor(t)
	rfd, wfd := newPipe(t)

	calls := make(chan string, 4)
	r.AddFd(rfd, readHandler(calls))
	if err := r.RemoveFd(rfd); err != nil {
		t.Fatalf("RemoveFd: %v", err)
	}

	unix.Write(wfd, []byte("ignored"))
	select {
	case got := <-calls:
		t.Errorf("handler called after RemoveFd with %q", got)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestReactorAddFromHandler(t *testing.T) {
	r := newReactor(t)
	r1, w1 := newPipe(t)
	r2, w2 := newPipe(t)

	calls := make(chan string, 4)
	r.AddFd(r1, HandlerFunc(func(fd int) error {
		buf := make([]byte, 8)
		unix.Read(fd, buf)
		return r.AddFd(r2, readHandler(calls))
	}))

	unix.Write(w1, []byte("x"))
	time.Sleep(50 * time.Millisecond)
	unix.Write(w2, []byte("added"))
	if got := waitFor(t, calls); got != "added" {
		t.Errorf("expected added, got %q", got)
	}
}

func TestReactorStop(t *testing.T) {
	r, err := New(Config{PollTimeout: time.Second, Logger: quietLogger()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := r.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	rfd, _ := newPipe(t)
	r.AddFd(rfd, HandlerFunc(func(int) error { return nil }))

	// The wake pipe interrupts the one second wait.
	start := time.Now()
	done := make(chan struct{})
	go func() {
		r.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("Stop did not interrupt the readiness wait")
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Errorf("Stop took %v", time.Since(start))
	}

	if err := r.AddFd(rfd, HandlerFunc(func(int) error { return nil })); !errors.Is(err, ErrStopped) {
		t.Errorf("expected ErrStopped, got %v", err)
	}
	if err := r.Start(); !errors.Is(err, ErrStopped) {
		t.Errorf("expected ErrStopped, got %v", err)
	}
	if r.Len() != 0 {
		t.Errorf("expected empty table after Stop, got %d", r.Len())
	}
	// Stop is idempotent.
	r.Stop()
}

func TestReactorStopWithoutStart(t *testing.T) {
	r, err := New(Config{Logger: quietLogger()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	done := make(chan struct{})
	go func() {
		r.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop blocked on a reactor that never started")
	}
}
