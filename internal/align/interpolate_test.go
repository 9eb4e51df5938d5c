package align

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planbiir/trackalign/internal/geom"
)

var (
	refLine = orb.LineString{{0, 0}, {4, 0}, {4, 4}}
	p1      = orb.Point{1, 2}
	p2      = orb.Point{9, 8}
)

func TestInterpolateClamps(t *testing.T) {
	got, err := Interpolate(50, 100, p1, 200, p2, refLine)
	require.NoError(t, err)
	assert.Equal(t, p1, got)

	got, err = Interpolate(99, 100, p1, 200, p2, refLine)
	require.NoError(t, err)
	assert.Equal(t, p1, got)

	got, err = Interpolate(201, 100, p1, 200, p2, refLine)
	require.NoError(t, err)
	assert.Equal(t, p2, got)
}

func TestInterpolateUsesFirstSegment(t *testing.T) {
	cases := []struct {
		ts   int64
		want orb.Point
	}{
		{100, orb.Point{0, 0}}, // ratio 0: first vertex
		{150, orb.Point{2, 0}},
		{175, orb.Point{3, 0}},
		{200, orb.Point{4, 0}}, // ratio 1: end of the first segment
	}
	for _, tc := range cases {
		got, err := Interpolate(tc.ts, 100, p1, 200, p2, refLine)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "timestamp %d", tc.ts)
	}
}

func TestInterpolateArcLength(t *testing.T) {
	ip, err := NewInterpolator(Sample{100, p1}, Sample{200, p2}, refLine, ModeArcLength)
	require.NoError(t, err)

	assert.Equal(t, orb.Point{0, 0}, ip.At(100))
	assert.Equal(t, orb.Point{4, 0}, ip.At(150))
	assert.Equal(t, orb.Point{4, 2}, ip.At(175))
	assert.Equal(t, orb.Point{4, 4}, ip.At(200))
	assert.Equal(t, p1, ip.At(0))
	assert.Equal(t, p2, ip.At(300))
}

func TestInterpolateDegenerateRange(t *testing.T) {
	_, err := Interpolate(100, 100, p1, 100, p2, refLine)
	require.ErrorIs(t, err, ErrDegenerateTimeRange)

	_, err = Interpolate(100, 200, p1, 100, p2, refLine)
	require.ErrorIs(t, err, ErrDegenerateTimeRange)
}

func TestInterpolateInvalidLine(t *testing.T) {
	_, err := Interpolate(150, 100, p1, 200, p2, orb.LineString{{0, 0}})
	require.ErrorIs(t, err, geom.ErrInvalidGeometry)
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeFirstSegment, m)

	m, err = ParseMode("Arc-Length")
	require.NoError(t, err)
	assert.Equal(t, ModeArcLength, m)
	assert.Equal(t, "arc-length", m.String())

	_, err = ParseMode("nearest")
	require.Error(t, err)
}
