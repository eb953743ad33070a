// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package threshold

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveTransitions(t *testing.T) {
	m := New(100)

	got := []Transition{}
	for _, area := range []float64{50, 150, 150, 50, 50, 100} {
		got = append(got, m.Observe(area))
	}

	assert.Equal(t, []Transition{Steady, CrossedAbove, Steady, CrossedBelow, Steady, CrossedAbove}, got)
}

func TestObserveFlags(t *testing.T) {
	m := New(100)

	m.Observe(150)
	assert.Equal(t, Flags{AboveThreshold: true}, m.Flags())

	m.Observe(150)
	assert.Equal(t, Flags{AboveThreshold: true}, m.Flags())

	m.Observe(20)
	assert.Equal(t, Flags{BelowThreshold: true}, m.Flags())
}

func TestResetRearms(t *testing.T) {
	m := New(100)

	require.Equal(t, CrossedAbove, m.Observe(200))
	m.Reset()
	assert.Equal(t, Flags{}, m.Flags())

	// After a reset the previous side is forgotten, so the same area
	// counts as a fresh crossing.
	assert.Equal(t, CrossedAbove, m.Observe(200))

	m.Reset()
	assert.Equal(t, Steady, m.Observe(10))
}

func TestDefaultThreshold(t *testing.T) {
	assert.Equal(t, DefaultThreshold, New(0).Threshold())
	assert.Equal(t, 42.0, New(42).Threshold())
}

type recorder struct {
	mu     sync.Mutex
	events []Event
	ch     chan Event
}

func newRecorder() *recorder {
	return &recorder{ch: make(chan Event, 16)}
}

func (r *recorder) record(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	r.ch <- ev
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func (r *recorder) next(t *testing.T) Event {
	t.Helper()
	select {
	case ev := <-r.ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for threshold event")
		return Event{}
	}
}

// Area sequence 50 -> 150 -> 150 -> 50 fires exactly one above and one
// below event.
func TestWaitersFireOncePerCrossing(t *testing.T) {
	m := New(100)
	above, below := newRecorder(), newRecorder()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx, above.record, below.record) }()

	m.Observe(50)
	m.Observe(150)
	ev := above.next(t)
	assert.Equal(t, Above, ev.Kind)
	assert.Equal(t, 150.0, ev.Area)
	assert.Equal(t, 100.0, ev.Threshold)
	assert.False(t, ev.At.IsZero())

	m.Observe(150)
	m.Observe(50)
	ev = below.next(t)
	assert.Equal(t, Below, ev.Kind)
	assert.Equal(t, 50.0, ev.Area)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, above.count())
	assert.Equal(t, 1, below.count())

	flags := m.Flags()
	assert.True(t, flags.BelowProcessed)
	assert.False(t, flags.BelowThreshold)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestSustainedStateDoesNotResignal(t *testing.T) {
	m := New(100)
	above := newRecorder()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.RunAboveWaiter(ctx, above.record)

	m.Observe(120)
	above.next(t)
	for i := 0; i < 10; i++ {
		m.Observe(130)
	}

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, above.count())
	assert.True(t, m.Flags().AboveProcessed)
}

func TestResetDiscardsQueuedSignal(t *testing.T) {
	m := New(100)
	require.Equal(t, CrossedAbove, m.Observe(500))
	m.Reset()

	above := newRecorder()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.RunAboveWaiter(ctx, above.record)

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, above.count())
}

func TestWaiterStopsOnCancel(t *testing.T) {
	m := New(100)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- m.RunBelowWaiter(ctx, nil) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("waiter did not observe cancellation")
	}
}
