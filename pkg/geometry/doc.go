// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package geometry implements the pure computational part of the hull server.
//
// # Overview
//
// The package has no shared state and performs no I/O. It provides:
//
//   - Point, with epsilon based equality used for deduplication and removal
//   - Orientation, the exact sign of the cross product of two edge vectors
//   - GrahamScan, an O(n log n) angular sort plus monotone stack
//   - JarvisMarch, an O(n*h) gift wrapping walk
//   - PolygonArea, the shoelace formula over a closed ring
//
// # Tolerance Policy
//
// Orientation compares the cross product against zero exactly, while Point.Equal
// uses a per-axis tolerance of Epsilon. Near-collinear inputs are therefore
// classified by their exact floating point values. The graph layer never stores
// two points within Epsilon of each other, so the algorithms only see distinct
// points.
//
// # Equivalence
//
// Both hull algorithms return the same vertex set and the same area for any
// input; they may start the ring at different vertices:
//
//	g := geometry.GrahamScan(points) // starts at the lowest point
//	j := geometry.JarvisMarch(points) // starts at the leftmost point
//	geometry.PolygonArea(g) == geometry.PolygonArea(j)
package geometry
