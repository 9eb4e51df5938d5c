package anomaly

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planbiir/trackalign/internal/crs"
	"github.com/planbiir/trackalign/internal/store"
	"github.com/planbiir/trackalign/internal/track"
)

var schema = track.NewSchema("timestamp", "id", nil)

// fivePoints is the reference layer: ids [1,1,1,2,2], five minutes apart.
func fivePoints() []track.Point {
	stamps := []string{
		"2024-07-30T12:00:00",
		"2024-07-30T12:05:00",
		"2024-07-30T12:10:00",
		"2024-07-30T12:15:00",
		"2024-07-30T12:20:00",
	}
	groups := []int{1, 1, 1, 2, 2}
	pts := make([]track.Point, len(stamps))
	for i := range pts {
		pts[i] = track.Point{
			ID: track.ID(i + 1),
			X:  12 + float64(i), Y: 50 + float64(i),
			Attrs: track.Attributes{"id": groups[i], "timestamp": stamps[i]},
		}
	}
	return pts
}

func TestMedian(t *testing.T) {
	m, err := Median(fivePoints(), schema.Group)
	require.NoError(t, err)
	assert.Equal(t, 1.0, m)

	even := fivePoints()[1:]
	m, err = Median(even, schema.Group)
	require.NoError(t, err)
	assert.Equal(t, 1.5, m)

	_, err = Median(nil, schema.Group)
	require.ErrorIs(t, err, ErrNoValues)

	_, err = Median(fivePoints(), track.NumberField{Name: "speed"})
	require.ErrorIs(t, err, track.ErrMissingField)
}

func TestFlagForDeletion(t *testing.T) {
	sorted, err := track.SortByTime(fivePoints(), schema.Timestamp)
	require.NoError(t, err)

	ids, err := FlagForDeletion(sorted, schema.Timestamp, schema.Group, 1, 10)
	require.NoError(t, err)
	assert.Empty(t, ids)

	ids, err = FlagForDeletion(sorted, schema.Timestamp, schema.Group, 1, 0.5)
	require.NoError(t, err)
	assert.Equal(t, []track.ID{4, 5}, ids)

	// exactly at tolerance is kept
	ids, err = FlagForDeletion(sorted, schema.Timestamp, schema.Group, 1, 1)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestFlagForDeletionNeedsSortedInput(t *testing.T) {
	pts := fivePoints()
	pts[0], pts[4] = pts[4], pts[0]
	_, err := FlagForDeletion(pts, schema.Timestamp, schema.Group, 1, 10)
	require.ErrorIs(t, err, ErrNotSorted)
}

func TestEndToEnd(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory(crs.WGS84)
	_, err := st.Insert(ctx, fivePoints())
	require.NoError(t, err)

	all, err := st.Features(ctx, store.Filter{})
	require.NoError(t, err)
	sorted, err := track.SortByTime(all, schema.Timestamp)
	require.NoError(t, err)
	assert.Equal(t, []track.ID{1, 2, 3, 4, 5}, sorted.IDs())

	median, err := Median(all, schema.Group)
	require.NoError(t, err)
	assert.Equal(t, 1.0, median)

	ids, err := FlagForDeletion(sorted, schema.Timestamp, schema.Group, median, 10)
	require.NoError(t, err)
	assert.Empty(t, ids)

	require.NoError(t, Delete(ctx, st, ids))
	n, err := st.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}

func TestDeleteIgnoresUnknownIDs(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory(crs.WGS84)
	_, err := st.Insert(ctx, fivePoints())
	require.NoError(t, err)

	require.NoError(t, Delete(ctx, st, []track.ID{2, 99}))
	n, err := st.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestRun(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory(crs.WGS84)
	_, err := st.Insert(ctx, fivePoints())
	require.NoError(t, err)

	rep, err := Run(ctx, st, schema, 0.5, false, nil)
	require.NoError(t, err)
	assert.Equal(t, 1.0, rep.Median)
	assert.Equal(t, []track.ID{4, 5}, rep.Flagged)
	assert.False(t, rep.Removed)
	assert.Equal(t, 5, rep.Summary.Count)

	rep, err = Run(ctx, st, schema, 0.5, true, nil)
	require.NoError(t, err)
	assert.True(t, rep.Removed)

	n, err := st.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestSummarize(t *testing.T) {
	s := Summarize([]float64{2, 1, 1, 2, 1})
	assert.Equal(t, 5, s.Count)
	assert.Equal(t, 1.0, s.Min)
	assert.Equal(t, 2.0, s.Max)
	assert.Equal(t, 1.0, s.Median)
	assert.InDelta(t, 1.4, s.Mean, 1e-12)
	assert.InDelta(t, 0.5477, s.StdDev, 1e-4)
	assert.Equal(t, 2.0, s.P95)

	assert.Equal(t, Summary{Count: 1, Min: 3, Max: 3, Mean: 3, Median: 3, P95: 3}, Summarize([]float64{3}))
	assert.Equal(t, Summary{}, Summarize(nil))
}

func TestDeriveKinematics(t *testing.T) {
	sorted, err := track.SortByTime(fivePoints(), schema.Timestamp)
	require.NoError(t, err)

	out, err := DeriveKinematics(sorted, crs.WGS84, schema.Timestamp)
	require.NoError(t, err)
	require.Len(t, out, 5)

	assert.Equal(t, 0.0, out[0].Attrs[SpeedField])
	dist := out[1].Attrs[DistanceField].(float64)
	assert.InDelta(t, 131_000, dist, 2_000)
	assert.InDelta(t, dist/300, out[1].Attrs[SpeedField].(float64), 1e-9)

	// a straight diagonal barely turns
	assert.Less(t, out[2].Attrs[TurnAngleField].(float64), 2.0)
	assert.Equal(t, 0.0, out[4].Attrs[TurnAngleField])

	// the input keeps its attributes
	_, ok := sorted[1].Attrs[SpeedField]
	assert.False(t, ok)
}

func TestDeriveKinematicsWebMercator(t *testing.T) {
	pts := track.Trajectory{
		{ID: 1, X: 0, Y: 0, Attrs: track.Attributes{"timestamp": "2024-07-30T12:00:00"}},
		{ID: 2, X: 100, Y: 0, Attrs: track.Attributes{"timestamp": "2024-07-30T12:00:10"}},
		{ID: 3, X: 100, Y: 100, Attrs: track.Attributes{"timestamp": "2024-07-30T12:00:20"}},
	}

	out, err := DeriveKinematics(pts, crs.WebMercator, schema.Timestamp)
	require.NoError(t, err)
	assert.InDelta(t, 100, out[1].Attrs[DistanceField].(float64), 0.5)
	assert.InDelta(t, 10, out[1].Attrs[SpeedField].(float64), 0.05)
	assert.InDelta(t, 90, out[1].Attrs[TurnAngleField].(float64), 0.1)

	// positions are not touched
	assert.Equal(t, 100.0, out[1].X)

	_, err = DeriveKinematics(pts, crs.Code("EPSG:2056"), schema.Timestamp)
	assert.ErrorIs(t, err, crs.ErrUnsupported)
}

type failingSession struct {
	store.Session
	deleteErr, rollbackErr error
}

func (s failingSession) Delete(context.Context, track.ID) error { return s.deleteErr }
func (s failingSession) Rollback() error                        { return s.rollbackErr }

type failingStore struct {
	store.Store
	sess failingSession
}

func (s failingStore) Begin(context.Context) (store.Session, error) { return s.sess, nil }

func TestDeleteReportsRollbackFailure(t *testing.T) {
	deleteErr := errors.New("disk full")
	rollbackErr := errors.New("connection lost")
	st := failingStore{sess: failingSession{deleteErr: deleteErr, rollbackErr: rollbackErr}}

	err := Delete(context.Background(), st, []track.ID{1})
	assert.ErrorIs(t, err, deleteErr)
	assert.ErrorIs(t, err, rollbackErr)

	st.sess.rollbackErr = nil
	err = Delete(context.Background(), st, []track.ID{1})
	assert.ErrorIs(t, err, deleteErr)
	assert.Contains(t, err.Error(), "deleting point 1")
}
