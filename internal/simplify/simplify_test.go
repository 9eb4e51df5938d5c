package simplify

import (
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planbiir/trackalign/internal/track"
)

func TestLineKnownShapes(t *testing.T) {
	original := orb.LineString{{0, 0}, {2, 0}, {1, 1}, {0, 2}}

	got, err := Line(original, 0)
	require.NoError(t, err)
	assert.Equal(t, orb.LineString{{0, 0}, {2, 0}, {0, 2}}, got)

	got, err = Line(original, 2)
	require.NoError(t, err)
	assert.Equal(t, orb.LineString{{0, 0}, {0, 2}}, got)

	assert.Equal(t, orb.LineString{{0, 0}, {2, 0}, {1, 1}, {0, 2}}, original, "input must not be modified")
}

func TestLineNegativeToleranceKeepsEverything(t *testing.T) {
	original := orb.LineString{{0, 0}, {1, 0}, {2, 0}, {3, 0}}
	got, err := Line(original, -1)
	require.NoError(t, err)
	assert.Equal(t, original, got)
}

func TestLineTooShort(t *testing.T) {
	_, err := Line(orb.LineString{{1, 1}}, 1)
	require.Error(t, err)
}

func TestLineTieKeepsFirst(t *testing.T) {
	// two vertices at the same distance from the chord
	got, err := Line(orb.LineString{{0, 0}, {1, 1}, {2, 0}, {3, 1}, {4, 0}}, 0.9)
	require.NoError(t, err)
	assert.Equal(t, orb.Point{1, 1}, got[1])
}

func zigzag(n int) orb.LineString {
	ls := make(orb.LineString, n)
	for i := range ls {
		x := float64(i) * 0.1
		ls[i] = orb.Point{x, math.Sin(x) + 0.05*math.Sin(7*x)}
	}
	return ls
}

func TestLineKeepsEndpoints(t *testing.T) {
	src := zigzag(500)
	for _, tol := range []float64{0, 0.001, 0.01, 0.1, 1, 10} {
		got, err := Line(src, tol)
		require.NoError(t, err)
		assert.Equal(t, src[0], got[0], "tolerance %v", tol)
		assert.Equal(t, src[len(src)-1], got[len(got)-1], "tolerance %v", tol)
		assert.LessOrEqual(t, len(got), len(src))
	}
}

func TestLineIsIdempotent(t *testing.T) {
	src := zigzag(500)
	for _, tol := range []float64{0, 0.001, 0.01, 0.1, 1} {
		once, err := Line(src, tol)
		require.NoError(t, err)
		twice, err := Line(once, tol)
		require.NoError(t, err)
		assert.Equal(t, once, twice, "tolerance %v", tol)
	}
}

func TestTrajectoryKeepsIDs(t *testing.T) {
	tr := track.Trajectory{
		{ID: 10, X: 0, Y: 0, Z: 5, HasZ: true},
		{ID: 11, X: 2, Y: 0},
		{ID: 12, X: 1, Y: 1},
		{ID: 13, X: 0, Y: 2},
	}
	line, kept, err := Trajectory(tr, 0)
	require.NoError(t, err)
	assert.Equal(t, orb.LineString{{0, 0}, {2, 0}, {0, 2}}, line)
	assert.Equal(t, []track.ID{10, 11, 13}, kept)
}
