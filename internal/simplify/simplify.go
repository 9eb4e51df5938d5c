// Package simplify reduces ordered point sequences with Douglas-Peucker.
package simplify

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/simplify"

	"github.com/planbiir/trackalign/internal/track"
)

// DefaultTolerance is the vertex distance tolerance in CRS units.
const DefaultTolerance = 0.01

// MinTolerance is the smallest tolerance accepted from user input.
const MinTolerance = 0.00001

// Line simplifies an ordered sequence of at least two points. A point is
// kept when its perpendicular distance to the current chord exceeds
// tolerance; on equal distances the first one wins. Endpoints are always
// kept. Topology is not preserved, so the result may self-intersect.
//
// tolerance <= 0 keeps every vertex that is not exactly on its chord and a
// negative tolerance keeps every vertex. The input is not modified.
func Line(points orb.LineString, tolerance float64) (orb.LineString, error) {
	if len(points) < 2 {
		return nil, fmt.Errorf("need at least 2 points, got %d", len(points))
	}
	if tolerance < 0 {
		return points.Clone(), nil
	}
	return simplify.DouglasPeucker(tolerance).LineString(points.Clone()), nil
}

// Trajectory simplifies the track through t in the given order. The result
// is 2D: Z values and attributes are dropped. Kept holds the ids of the
// points that survived.
func Trajectory(t track.Trajectory, tolerance float64) (line orb.LineString, kept []track.ID, err error) {
	line, err = Line(t.LineString(), tolerance)
	if err != nil {
		return nil, nil, err
	}

	// line is a subsequence of t
	j := 0
	for _, p := range t {
		if j == len(line) {
			break
		}
		if p.Position() == line[j] {
			kept = append(kept, p.ID)
			j++
		}
	}
	return line, kept, nil
}
