// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package geometry

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"strings"
)

// Turn is the direction of the turn a -> b -> c.
type Turn int

const (
	Clockwise        Turn = -1
	Collinear        Turn = 0
	CounterClockwise Turn = 1
)

func (t Turn) String() string {
	switch t {
	case Clockwise:
		return "clockwise"
	case Collinear:
		return "collinear"
	case CounterClockwise:
		return "counter-clockwise"
	default:
		return "unknown"
	}
}

// Orientation classifies the turn a -> b -> c by the sign of (b-a)x(c-a).
// The comparison against zero is exact; no tolerance is applied.
func Orientation(a, b, c Point) Turn {
	v := b.Sub(a).Cross(c.Sub(a))
	switch {
	case v < 0:
		return Clockwise
	case v > 0:
		return CounterClockwise
	default:
		return Collinear
	}
}

// GrahamScan returns the convex hull of points as a counter-clockwise ring
// starting at the lowest point (ties broken by lowest X). Collinear boundary
// points are dropped. It returns nil when no hull with at least three
// vertices exists. The input slice is not modified.
func GrahamScan(points []Point) []Point {
	if len(points) < 3 {
		return nil
	}

	pts := slices.Clone(points)
	lowest := 0
	for i, p := range pts {
		if p.Y < pts[lowest].Y || (p.Y == pts[lowest].Y && p.X < pts[lowest].X) {
			lowest = i
		}
	}
	pts[0], pts[lowest] = pts[lowest], pts[0]
	anchor := pts[0]

	// Every other point lies in the half plane above the anchor, so the
	// orientation test is a valid polar angle comparator.
	rest := pts[1:]
	slices.SortStableFunc(rest, func(a, b Point) int {
		switch Orientation(anchor, a, b) {
		case CounterClockwise:
			return -1
		case Clockwise:
			return 1
		}
		return cmp.Compare(anchor.DistanceSq(a), anchor.DistanceSq(b))
	})

	stack := make([]Point, 0, len(pts))
	stack = append(stack, anchor)
	for _, p := range rest {
		for len(stack) >= 2 && Orientation(stack[len(stack)-2], stack[len(stack)-1], p) != CounterClockwise {
			stack = stack[:len(stack)-1]
		}
		stack = append(stack, p)
	}

	if len(stack) < 3 {
		return nil
	}
	return stack
}

// JarvisMarch returns the convex hull of points by gift wrapping from the
// leftmost point (ties broken by lowest Y). The ring is counter-clockwise and
// holds the same vertices as GrahamScan, possibly starting at another vertex.
// It runs in O(n*h) for h hull vertices.
func JarvisMarch(points []Point) []Point {
	n := len(points)
	if n < 3 {
		return nil
	}

	start := 0
	for i, p := range points {
		if p.X < points[start].X || (p.X == points[start].X && p.Y < points[start].Y) {
			start = i
		}
	}

	hull := make([]Point, 0, 8)
	current := start
	for len(hull) < n {
		hull = append(hull, points[current])

		next := -1
		for i, p := range points {
			if i == current || p == points[current] {
				continue
			}
			if next == -1 {
				next = i
				continue
			}
			switch Orientation(points[current], points[next], p) {
			case Clockwise:
				next = i
			case Collinear:
				if points[current].DistanceSq(p) > points[current].DistanceSq(points[next]) {
					next = i
				}
			}
		}

		if next == -1 || points[next] == points[start] {
			if len(hull) < 3 {
				return nil
			}
			return hull
		}
		current = next
	}

	// The walk did not close within n steps; only possible with NaN input.
	return nil
}

// PolygonArea returns the area enclosed by ring using the shoelace formula.
// Rings with fewer than three points have zero area.
func PolygonArea(ring []Point) float64 {
	n := len(ring)
	if n < 3 {
		return 0
	}

	var sum float64
	for i := range ring {
		sum += ring[i].Cross(ring[(i+1)%n])
	}
	return math.Abs(sum) / 2
}

// Algorithm selects the hull construction used by the server.
type Algorithm string

const (
	Graham Algorithm = "graham"
	Jarvis Algorithm = "jarvis"
)

// ParseAlgorithm maps a case-insensitive name to an Algorithm.
func ParseAlgorithm(name string) (Algorithm, error) {
	switch a := Algorithm(strings.ToLower(strings.TrimSpace(name))); a {
	case Graham, Jarvis:
		return a, nil
	case "":
		return Graham, nil
	default:
		return "", fmt.Errorf("unknown hull algorithm %q", name)
	}
}

// Hull runs the selected algorithm. Unknown values fall back to Graham scan.
func (a Algorithm) Hull(points []Point) []Point {
	if a == Jarvis {
		return JarvisMarch(points)
	}
	return GrahamScan(points)
}
