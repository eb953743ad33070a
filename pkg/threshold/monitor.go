// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package threshold watches hull area transitions across a fixed threshold
// and wakes one waiter per crossing direction.
package threshold

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultThreshold is the area at which the hull is considered "above".
const DefaultThreshold = 100.0

// Kind names a crossing direction.
type Kind string

const (
	Above Kind = "above"
	Below Kind = "below"
)

// Transition is the result of a single observation.
type Transition int

const (
	Steady Transition = iota
	CrossedAbove
	CrossedBelow
)

func (t Transition) String() string {
	switch t {
	case CrossedAbove:
		return "crossed_above"
	case CrossedBelow:
		return "crossed_below"
	default:
		return "steady"
	}
}

// Flags is a copy of the monitor's pending and processed flags.
type Flags struct {
	AboveThreshold bool `json:"above_threshold"`
	BelowThreshold bool `json:"below_threshold"`
	AboveProcessed bool `json:"above_processed"`
	BelowProcessed bool `json:"below_processed"`
}

// Event is delivered to a waiter once per crossing.
type Event struct {
	Kind      Kind      `json:"kind"`
	Area      float64   `json:"area"`
	Threshold float64   `json:"threshold"`
	At        time.Time `json:"at"`
}

type side int

const (
	unknown side = iota
	above
	below
)

// Monitor is an edge-triggered threshold detector. Observe is the producer;
// the above and below waiters are independent consumers. Its mutex is never
// held while calling back into other packages.
type Monitor struct {
	mu        sync.Mutex
	threshold float64
	flags     Flags
	side      side
	pending   map[Kind]Event

	aboveCh chan struct{}
	belowCh chan struct{}
}

// New returns a monitor for the given threshold. A non-positive threshold
// selects DefaultThreshold.
func New(threshold float64) *Monitor {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Monitor{
		threshold: threshold,
		pending:   make(map[Kind]Event, 2),
		aboveCh:   make(chan struct{}, 1),
		belowCh:   make(chan struct{}, 1),
	}
}

// Threshold returns the configured threshold.
func (m *Monitor) Threshold() float64 {
	return m.threshold
}

// Observe feeds a freshly computed hull area into the state machine and
// signals the matching waiter when the area crossed the threshold since the
// previous observation. Repeated observations on the same side never signal.
func (m *Monitor) Observe(area float64) Transition {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case area >= m.threshold && m.side != above:
		m.side = above
		m.flags = Flags{AboveThreshold: true}
		m.pending[Above] = m.event(Above, area)
		notify(m.aboveCh)
		return CrossedAbove
	case area < m.threshold && m.side == above:
		m.side = below
		m.flags = Flags{BelowThreshold: true}
		m.pending[Below] = m.event(Below, area)
		notify(m.belowCh)
		return CrossedBelow
	}

	if area >= m.threshold {
		m.flags.BelowThreshold = false
	} else {
		m.flags.AboveThreshold = false
		m.side = below
	}
	return Steady
}

// Reset clears every flag and forgets the last observed side. Signals
// already queued for the waiters are discarded as spurious.
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.flags = Flags{}
	m.side = unknown
	clear(m.pending)
}

// Flags returns a copy of the current flags.
func (m *Monitor) Flags() Flags {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flags
}

// RunAboveWaiter blocks until ctx is done, calling fn once for every upward
// crossing.
func (m *Monitor) RunAboveWaiter(ctx context.Context, fn func(Event)) error {
	return m.wait(ctx, Above, m.aboveCh, fn)
}

// RunBelowWaiter blocks until ctx is done, calling fn once for every
// downward crossing.
func (m *Monitor) RunBelowWaiter(ctx context.Context, fn func(Event)) error {
	return m.wait(ctx, Below, m.belowCh, fn)
}

// Run runs both waiters until ctx is done.
func (m *Monitor) Run(ctx context.Context, onAbove, onBelow func(Event)) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return m.RunAboveWaiter(ctx, onAbove) })
	g.Go(func() error { return m.RunBelowWaiter(ctx, onBelow) })
	return g.Wait()
}

func (m *Monitor) wait(ctx context.Context, kind Kind, ch <-chan struct{}, fn func(Event)) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ch:
		}

		ev, ok := m.consume(kind)
		if !ok {
			// Spurious wake: the crossing was reset or superseded.
			continue
		}
		if fn != nil {
			fn(ev)
		}
	}
}

func (m *Monitor) consume(kind Kind) (Event, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch kind {
	case Above:
		if !m.flags.AboveThreshold || m.flags.AboveProcessed {
			return Event{}, false
		}
		m.flags.AboveProcessed = true
		m.flags.AboveThreshold = false
	case Below:
		if !m.flags.BelowThreshold || m.flags.BelowProcessed {
			return Event{}, false
		}
		m.flags.BelowProcessed = true
		m.flags.BelowThreshold = false
	}

	ev, ok := m.pending[kind]
	delete(m.pending, kind)
	return ev, ok
}

func (m *Monitor) event(kind Kind, area float64) Event {
	return Event{Kind: kind, Area: area, Threshold: m.threshold, At: time.Now()}
}

func notify(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
