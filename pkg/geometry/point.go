// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package geometry

import (
	"fmt"
	"math"
)

// Epsilon is the per-axis tolerance used to decide whether two points are the same.
const Epsilon = 0.001

// Point is a point in the plane.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Equal reports whether p and q are within Epsilon of each other on both axes.
// It is used for deduplication and removal; exact comparison never is.
func (p Point) Equal(q Point) bool {
	return math.Abs(p.X-q.X) < Epsilon && math.Abs(p.Y-q.Y) < Epsilon
}

// Sub returns the vector p - q.
func (p Point) Sub(q Point) Point {
	return Point{X: p.X - q.X, Y: p.Y - q.Y}
}

// Cross returns the z component of the cross product of p and q treated as vectors.
func (p Point) Cross(q Point) float64 {
	return p.X*q.Y - p.Y*q.X
}

// DistanceSq returns the squared Euclidean distance between p and q.
func (p Point) DistanceSq(q Point) float64 {
	dx, dy := p.X-q.X, p.Y-q.Y
	return dx*dx + dy*dy
}

// String formats the point the way the wire protocol prints it.
func (p Point) String() string {
	return fmt.Sprintf("(%.2f, %.2f)", p.X, p.Y)
}

// IndexOf returns the index of the first point in points equal to p, or -1.
func IndexOf(points []Point, p Point) int {
	for i, q := range points {
		if q.Equal(p) {
			return i
		}
	}
	return -1
}
