// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package graph owns the shared point set and its cached convex hull.
package graph

import (
	"slices"
	"sync"

	"github.com/absmach/hullserver/pkg/errors"
	"github.com/absmach/hullserver/pkg/geometry"
	"github.com/absmach/hullserver/pkg/threshold"
)

// Observer receives the area of every freshly computed hull.
// *threshold.Monitor implements it.
type Observer interface {
	Observe(area float64) threshold.Transition
	Reset()
}

// Hull is a value snapshot of a computed convex hull.
type Hull struct {
	Points []geometry.Point `json:"points"`
	Area   float64          `json:"area"`
}

// Empty reports whether no hull exists for the point set.
func (h Hull) Empty() bool {
	return len(h.Points) == 0
}

// Stats summarises the state for operators.
type Stats struct {
	Points     int     `json:"points"`
	HullPoints int     `json:"hull_points"`
	Area       float64 `json:"area"`
	Stale      bool    `json:"stale"`
}

// State is the single logical point set of the server. Every method holds
// the state's mutex for its full duration, so no caller ever observes a
// point set and hull pair mid-mutation.
type State struct {
	mu        sync.Mutex
	points    []geometry.Point
	hull      Hull
	stale     bool
	algorithm geometry.Algorithm
	observer  Observer
}

// New returns an empty state. The observer may be nil.
func New(observer Observer, algorithm geometry.Algorithm) *State {
	if algorithm == "" {
		algorithm = geometry.Graham
	}
	return &State{
		algorithm: algorithm,
		observer:  observer,
		stale:     true,
	}
}

// Reset drops every point, the cached hull and the observer's threshold state.
func (s *State) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.points = nil
	s.hull = Hull{}
	s.stale = true
	if s.observer != nil {
		s.observer.Reset()
	}
}

// AddPoint appends p unless a point within geometry.Epsilon already exists.
// It reports whether the point was added.
func (s *State) AddPoint(p geometry.Point) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if geometry.IndexOf(s.points, p) != -1 {
		return false
	}
	s.points = append(s.points, p)
	s.stale = true
	return true
}

// RemovePoint removes the first point within geometry.Epsilon of p.
func (s *State) RemovePoint(p geometry.Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := geometry.IndexOf(s.points, p)
	if i == -1 {
		return errors.Wrap(errors.ErrPointNotFound, p.String())
	}
	s.points = slices.Delete(s.points, i, i+1)
	s.stale = true
	return nil
}

// ComputeHull returns the convex hull of the current point set, recomputing
// it if the set changed since the last call. With fewer than three points it
// returns an empty hull and leaves the observer untouched; otherwise the area
// is fed to the observer while the state lock is held.
func (s *State) ComputeHull() Hull {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.points) < 3 {
		s.hull = Hull{}
		s.stale = false
		return Hull{}
	}

	if s.stale {
		ring := s.algorithm.Hull(s.points)
		s.hull = Hull{Points: ring, Area: geometry.PolygonArea(ring)}
		s.stale = false
	}

	if s.observer != nil {
		s.observer.Observe(s.hull.Area)
	}
	return s.hull.clone()
}

// Size returns the number of points.
func (s *State) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.points)
}

// Snapshot returns a copy of the points in insertion order.
func (s *State) Snapshot() []geometry.Point {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.points)
}

// Stats returns the current counters without recomputing the hull.
func (s *State) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Points:     len(s.points),
		HullPoints: len(s.hull.Points),
		Area:       s.hull.Area,
		Stale:      s.stale,
	}
}

// Algorithm returns the hull algorithm in use.
func (s *State) Algorithm() geometry.Algorithm {
	return s.algorithm
}

func (h Hull) clone() Hull {
	return Hull{Points: slices.Clone(h.Points), Area: h.Area}
}
