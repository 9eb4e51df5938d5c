package track

import (
	"slices"
	"time"
)

// SortByTime returns a copy of points ordered ascending by the timestamp
// field. The sort is stable, so points sharing a timestamp keep their
// input order. The input slice is not modified.
func SortByTime(points []Point, field TimeField) (Trajectory, error) {
	type keyed struct {
		p Point
		t time.Time
	}

	keys := make([]keyed, len(points))
	for i, p := range points {
		t, err := field.Value(p)
		if err != nil {
			return nil, err
		}
		keys[i] = keyed{p: p, t: t}
	}

	slices.SortStableFunc(keys, func(a, b keyed) int {
		return a.t.Compare(b.t)
	})

	out := make(Trajectory, len(keys))
	for i, k := range keys {
		out[i] = k.p
	}
	return out, nil
}
