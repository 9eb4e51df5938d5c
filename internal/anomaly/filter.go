// Package anomaly flags and removes points whose attribute value strays
// from the median of the track.
package anomaly

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/planbiir/trackalign/internal/store"
	"github.com/planbiir/trackalign/internal/track"
)

// DefaultTolerance is the allowed absolute deviation from the median.
const DefaultTolerance = 10.0

var (
	// ErrNoValues is returned when a median is requested for no features.
	ErrNoValues = errors.New("no values")

	// ErrNotSorted is returned when FlagForDeletion gets features out of
	// time order.
	ErrNotSorted = errors.New("features are not sorted by timestamp")
)

// Median returns the median of field over points: the middle value for an
// odd count, the mean of the two middle values for an even count.
func Median(points []track.Point, field track.NumberField) (float64, error) {
	values, err := Values(points, field)
	if err != nil {
		return 0, err
	}
	if len(values) == 0 {
		return 0, fmt.Errorf("median of %s: %w", field.Name, ErrNoValues)
	}
	return medianFloat(values), nil
}

// Values reads field from every point.
func Values(points []track.Point, field track.NumberField) ([]float64, error) {
	values := make([]float64, len(points))
	for i, p := range points {
		v, err := field.Value(p)
		if err != nil {
			return nil, err
		}
		values[i] = v
	}
	return values, nil
}

// FlagForDeletion returns, in time order, the ids of the points whose field
// differs from median by more than tolerance. sorted must be ordered by the
// timestamp field.
func FlagForDeletion(sorted []track.Point, timestamp track.TimeField, field track.NumberField, median, tolerance float64) ([]track.ID, error) {
	var flagged []track.ID
	for i, p := range sorted {
		if i > 0 {
			prev, err := timestamp.Value(sorted[i-1])
			if err != nil {
				return nil, err
			}
			cur, err := timestamp.Value(p)
			if err != nil {
				return nil, err
			}
			if cur.Before(prev) {
				return nil, fmt.Errorf("%w: point %d precedes point %d", ErrNotSorted, p.ID, sorted[i-1].ID)
			}
		}

		v, err := field.Value(p)
		if err != nil {
			return nil, err
		}
		if math.Abs(v-median) > tolerance {
			flagged = append(flagged, p.ID)
		}
	}
	return flagged, nil
}

// Delete removes ids from st in one session. Unknown ids are ignored. A
// failed rollback is joined to the delete error.
func Delete(ctx context.Context, st store.Store, ids []track.ID) error {
	if len(ids) == 0 {
		return nil
	}
	s, err := st.Begin(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := s.Delete(ctx, id); err != nil {
			err = fmt.Errorf("deleting point %d: %w", id, err)
			if rbErr := s.Rollback(); rbErr != nil {
				return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
			}
			return err
		}
	}
	return s.Commit()
}

// Report is the outcome of a Run.
type Report struct {
	Field   string
	Median  float64
	Flagged []track.ID
	Removed bool
	Summary Summary
}

// Run computes the median of schema.Group over st, flags the deviating
// points and deletes them when remove is set.
func Run(ctx context.Context, st store.Store, schema track.Schema, tolerance float64, remove bool, log *zap.Logger) (Report, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("anomaly")

	points, err := st.Features(ctx, store.Filter{OrderBy: schema.Timestamp})
	if err != nil {
		return Report{}, fmt.Errorf("reading points: %w", err)
	}
	values, err := Values(points, schema.Group)
	if err != nil {
		return Report{}, err
	}
	if len(values) == 0 {
		return Report{}, fmt.Errorf("median of %s: %w", schema.Group.Name, ErrNoValues)
	}

	rep := Report{
		Field:   schema.Group.Name,
		Median:  medianFloat(values),
		Summary: Summarize(values),
	}
	rep.Flagged, err = FlagForDeletion(points, schema.Timestamp, schema.Group, rep.Median, tolerance)
	if err != nil {
		return Report{}, err
	}

	log.Info("anomalies flagged",
		zap.String("field", rep.Field),
		zap.Float64("median", rep.Median),
		zap.Float64("tolerance", tolerance),
		zap.Int("flagged", len(rep.Flagged)))

	if remove && len(rep.Flagged) > 0 {
		if err := Delete(ctx, st, rep.Flagged); err != nil {
			return Report{}, err
		}
		rep.Removed = true
	}
	return rep, nil
}

func medianFloat(values []float64) float64 {
	if len(values) == 0 {
		return 0.0
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	if len(sorted)%2 == 0 {
		return (sorted[len(sorted)/2-1] + sorted[len(sorted)/2]) / 2
	}
	return sorted[len(sorted)/2]
}
