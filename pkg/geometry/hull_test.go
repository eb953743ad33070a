// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package geometry

import (
	"cmp"
	"math/rand"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func square() []Point {
	return []Point{{0, 0}, {4, 0}, {4, 4}, {0, 4}}
}

// sorted returns a copy of ring ordered by (X, Y) so rings that only differ
// in their starting vertex compare equal.
func sorted(ring []Point) []Point {
	out := slices.Clone(ring)
	slices.SortFunc(out, func(a, b Point) int {
		if c := cmp.Compare(a.X, b.X); c != 0 {
			return c
		}
		return cmp.Compare(a.Y, b.Y)
	})
	return out
}

func assertConvexCCW(t *testing.T, ring []Point) {
	t.Helper()
	n := len(ring)
	require.GreaterOrEqual(t, n, 3)
	for i := range ring {
		a, b, c := ring[i], ring[(i+1)%n], ring[(i+2)%n]
		assert.Equal(t, CounterClockwise, Orientation(a, b, c), "turn at %v", b)
	}
}

func TestOrientation(t *testing.T) {
	cases := []struct {
		name    string
		a, b, c Point
		want    Turn
	}{
		{"counter-clockwise", Point{0, 0}, Point{1, 0}, Point{1, 1}, CounterClockwise},
		{"clockwise", Point{0, 0}, Point{1, 1}, Point{1, 0}, Clockwise},
		{"collinear", Point{0, 0}, Point{1, 1}, Point{2, 2}, Collinear},
		{"coincident", Point{1, 1}, Point{1, 1}, Point{3, 7}, Collinear},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Orientation(tc.a, tc.b, tc.c))
		})
	}
}

func TestPointEqual(t *testing.T) {
	p := Point{1, 1}
	assert.True(t, p.Equal(Point{1.0005, 0.9995}))
	assert.False(t, p.Equal(Point{1.002, 1}))
	assert.False(t, p.Equal(Point{1, 1.0011}))
	// 1.001-1 is just under Epsilon in float64.
	assert.True(t, p.Equal(Point{1, 1.001}))
	assert.Equal(t, 0, IndexOf([]Point{{1.0009, 1}, {5, 5}}, p))
	assert.Equal(t, -1, IndexOf([]Point{{5, 5}}, p))
}

func TestSquareScenario(t *testing.T) {
	for _, algo := range []Algorithm{Graham, Jarvis} {
		t.Run(string(algo), func(t *testing.T) {
			hull := algo.Hull(square())
			require.Len(t, hull, 4)
			assert.Equal(t, sorted(square()), sorted(hull))
			assert.Equal(t, 16.0, PolygonArea(hull))
			assertConvexCCW(t, hull)
		})
	}
}

func TestGrahamStartsAtLowestPoint(t *testing.T) {
	hull := GrahamScan([]Point{{4, 4}, {0, 4}, {2, 2}, {4, 0}, {0, 0}})
	assert.Equal(t, []Point{{0, 0}, {4, 0}, {4, 4}, {0, 4}}, hull)
}

func TestCollinearScenario(t *testing.T) {
	pts := []Point{{0, 0}, {1, 1}, {2, 2}}
	assert.Empty(t, GrahamScan(pts))
	assert.Empty(t, JarvisMarch(pts))
	assert.Zero(t, PolygonArea(GrahamScan(pts)))
}

func TestDegenerateInputs(t *testing.T) {
	assert.Nil(t, GrahamScan(nil))
	assert.Nil(t, GrahamScan([]Point{{1, 1}, {2, 2}}))
	assert.Nil(t, JarvisMarch([]Point{{1, 1}, {2, 2}}))
	assert.Nil(t, JarvisMarch([]Point{{1, 1}, {1, 1}, {1, 1}}))
	assert.Zero(t, PolygonArea(nil))
	assert.Zero(t, PolygonArea([]Point{{0, 0}, {5, 5}}))
}

func TestCollinearBoundaryPointsDropped(t *testing.T) {
	pts := []Point{{0, 0}, {2, 0}, {4, 0}, {4, 2}, {4, 4}, {2, 4}, {0, 4}, {0, 2}, {2, 2}}
	for _, algo := range []Algorithm{Graham, Jarvis} {
		t.Run(string(algo), func(t *testing.T) {
			hull := algo.Hull(pts)
			assert.Equal(t, sorted(square()), sorted(hull))
			assertConvexCCW(t, hull)
		})
	}
}

func TestGrahamDoesNotModifyInput(t *testing.T) {
	pts := []Point{{3, 3}, {0, 0}, {5, 1}, {1, 4}}
	before := slices.Clone(pts)
	GrahamScan(pts)
	JarvisMarch(pts)
	assert.Equal(t, before, pts)
}

func TestAlgorithmsAgree(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for round := 0; round < 200; round++ {
		n := 3 + rng.Intn(60)
		pts := make([]Point, 0, n)
		for len(pts) < n {
			p := Point{X: float64(rng.Intn(200) - 100), Y: float64(rng.Intn(200) - 100)}
			if IndexOf(pts, p) == -1 {
				pts = append(pts, p)
			}
		}

		g := GrahamScan(pts)
		j := JarvisMarch(pts)
		require.Equal(t, sorted(g), sorted(j), "round %d: %v", round, pts)
		assert.InDelta(t, PolygonArea(g), PolygonArea(j), 1e-9)
		if len(g) > 0 {
			assertConvexCCW(t, g)
			assertConvexCCW(t, j)
		}
	}
}

func TestParseAlgorithm(t *testing.T) {
	a, err := ParseAlgorithm("JARVIS")
	require.NoError(t, err)
	assert.Equal(t, Jarvis, a)

	a, err = ParseAlgorithm("")
	require.NoError(t, err)
	assert.Equal(t, Graham, a)

	_, err = ParseAlgorithm("quickhull")
	assert.Error(t, err)
}

func TestPointString(t *testing.T) {
	assert.Equal(t, "(1.50, -2.00)", Point{1.5, -2}.String())
}
