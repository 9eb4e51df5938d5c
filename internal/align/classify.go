package align

import (
	"github.com/paulmach/orb"

	"github.com/planbiir/trackalign/internal/geom"
	"github.com/planbiir/trackalign/internal/track"
)

// Classification partitions a point set by corridor containment. Every
// classified id is in exactly one of the two lists; both keep input order.
type Classification struct {
	InRange    []track.ID
	OutOfRange []track.ID
}

// OutOfRangeSet returns the out-of-range ids as a set.
func (c Classification) OutOfRangeSet() map[track.ID]struct{} {
	set := make(map[track.ID]struct{}, len(c.OutOfRange))
	for _, id := range c.OutOfRange {
		set[id] = struct{}{}
	}
	return set
}

// Classify buffers line at distance and tests every point against the
// corridor. Points on the boundary are in range.
func Classify(points []track.Point, line orb.LineString, distance float64, segments int) (Classification, error) {
	return ClassifyAny(points, []orb.LineString{line}, distance, segments)
}

// ClassifyAny is Classify against several lines: a point is in range when
// any of the corridors contains it.
func ClassifyAny(points []track.Point, lines []orb.LineString, distance float64, segments int) (Classification, error) {
	corridors := make([]*geom.Corridor, 0, len(lines))
	for _, line := range lines {
		c, err := geom.Buffer(line, distance, segments)
		if err != nil {
			return Classification{}, err
		}
		corridors = append(corridors, c)
	}

	var out Classification
	for _, p := range points {
		pos := p.Position()
		in := false
		for _, c := range corridors {
			if c.Contains(pos) {
				in = true
				break
			}
		}
		if in {
			out.InRange = append(out.InRange, p.ID)
		} else {
			out.OutOfRange = append(out.OutOfRange, p.ID)
		}
	}
	return out, nil
}
