package align

import (
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planbiir/trackalign/internal/track"
)

var t0 = time.Date(2024, 7, 30, 12, 0, 0, 0, time.UTC)

// straightTrack runs along the x axis, one point per minute, with point 3
// pulled far off the line.
func straightTrack() []track.Point {
	pts := []track.Point{
		{ID: 1, X: 0, Y: 0},
		{ID: 2, X: 1, Y: 0.2},
		{ID: 3, X: 2, Y: 5, Z: 412, HasZ: true},
		{ID: 4, X: 3, Y: -0.1},
		{ID: 5, X: 4, Y: 0},
	}
	for i := range pts {
		pts[i].Attrs = track.Attributes{
			"timestamp": t0.Add(time.Duration(i) * time.Minute).Format("2006-01-02T15:04:05"),
			"id":        1,
		}
	}
	return pts
}

func xAxis() []track.ReferenceLine {
	return []track.ReferenceLine{{ID: 1, Vertices: orb.LineString{{0, 0}, {4, 0}}}}
}

func testAligner(domainRange float64) *Aligner {
	opts := DefaultOptions()
	opts.DomainRange = domainRange
	return NewAligner(opts)
}

func TestAlignMovesOutOfRangePoints(t *testing.T) {
	input := straightTrack()
	res, err := testAligner(1).Align(input, xAxis())
	require.NoError(t, err)

	require.Equal(t, StatusApplied, res.Status)
	assert.Equal(t, []track.ID{1, 2, 4, 5}, res.Classification.InRange)
	assert.Equal(t, []track.ID{3}, res.Classification.OutOfRange)
	require.Len(t, res.Corrections, 1)
	assert.Equal(t, Correction{ID: 3, From: orb.Point{2, 5}, To: orb.Point{2, 0}}, res.Corrections[0])

	moved := res.Points[2]
	assert.Equal(t, track.ID(3), moved.ID)
	assert.Equal(t, orb.Point{2, 0}, moved.Position())
	assert.True(t, moved.HasZ)
	assert.Equal(t, 412.0, moved.Z)
	assert.Equal(t, input[2].Attrs, moved.Attrs)

	// in-range points are untouched
	for _, i := range []int{0, 1, 3, 4} {
		assert.Equal(t, input[i].Position(), res.Points[i].Position())
	}

	// the input is not modified
	assert.Equal(t, orb.Point{2, 5}, input[2].Position())
}

func TestAlignSortsByTimestamp(t *testing.T) {
	input := straightTrack()
	shuffled := []track.Point{input[4], input[2], input[0], input[3], input[1]}

	res, err := testAligner(1).Align(shuffled, xAxis())
	require.NoError(t, err)
	assert.Equal(t, []track.ID{1, 2, 3, 4, 5}, res.Points.IDs())
	assert.Equal(t, orb.Point{2, 0}, res.Points[2].Position())
}

func TestAlignUsesTrajectorySpanNotLineSpan(t *testing.T) {
	// the reference line is longer than the track: the ratio still comes
	// from the track's first and last timestamps
	lines := []track.ReferenceLine{{ID: 1, Vertices: orb.LineString{{0, 0}, {8, 0}}}}
	res, err := testAligner(1).Align(straightTrack(), lines)
	require.NoError(t, err)
	require.Len(t, res.Corrections, 1)
	assert.Equal(t, orb.Point{4, 0}, res.Corrections[0].To)
}

func TestAlignArcLengthMode(t *testing.T) {
	opts := DefaultOptions()
	opts.DomainRange = 1
	opts.Mode = ModeArcLength

	lines := []track.ReferenceLine{{ID: 1, Vertices: orb.LineString{{0, 0}, {1, 0}, {4, 0}}}}
	res, err := NewAligner(opts).Align(straightTrack(), lines)
	require.NoError(t, err)
	require.Len(t, res.Corrections, 1)
	assert.InDelta(t, 2.0, res.Corrections[0].To[0], 1e-12)
	assert.Equal(t, 0.0, res.Corrections[0].To[1])

	// first-segment mode maps the same ratio onto {0,0}-{1,0}
	res, err = testAligner(1).Align(straightTrack(), lines)
	require.NoError(t, err)
	assert.Equal(t, orb.Point{0.5, 0}, res.Corrections[0].To)
}

func TestAlignSkips(t *testing.T) {
	two := append(xAxis(), track.ReferenceLine{ID: 2, Vertices: orb.LineString{{0, 1}, {4, 1}}})

	cases := []struct {
		name   string
		points []track.Point
		lines  []track.ReferenceLine
		rng    float64
		reason SkipReason
	}{
		{"no line", straightTrack(), nil, 1, SkipLineCount},
		{"two lines", straightTrack(), two, 1, SkipLineCount},
		{"one point", straightTrack()[:1], xAxis(), 1, SkipTooFewPoints},
		{"no points", nil, xAxis(), 1, SkipTooFewPoints},
		{"zero range", straightTrack(), xAxis(), 0, SkipNonPositiveRange},
		{"negative range", straightTrack(), xAxis(), -3, SkipNonPositiveRange},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := testAligner(tc.rng).Align(tc.points, tc.lines)
			require.NoError(t, err)
			assert.Equal(t, StatusSkipped, res.Status)
			assert.Equal(t, tc.reason, res.Reason)
			assert.Nil(t, res.Points)
			assert.Empty(t, res.Corrections)
		})
	}
}

func TestAlignZeroRangeLeavesPositions(t *testing.T) {
	input := straightTrack()
	res, err := testAligner(0).Align(input, xAxis())
	require.NoError(t, err)
	assert.Equal(t, StatusSkipped, res.Status)
	assert.Equal(t, straightTrack(), input)
}

func TestAlignDegenerateTimeRange(t *testing.T) {
	pts := straightTrack()
	for i := range pts {
		pts[i].Attrs["timestamp"] = t0
	}

	_, err := testAligner(1).Align(pts, xAxis())
	require.ErrorIs(t, err, ErrDegenerateTimeRange)

	// nothing to interpolate: the range is never used
	res, err := testAligner(10).Align(pts, xAxis())
	require.NoError(t, err)
	assert.Equal(t, StatusApplied, res.Status)
	assert.Empty(t, res.Corrections)
}

func TestAlignMissingTimestamp(t *testing.T) {
	pts := straightTrack()
	delete(pts[3].Attrs, "timestamp")

	_, err := testAligner(1).Align(pts, xAxis())
	require.ErrorIs(t, err, track.ErrMissingField)
}
