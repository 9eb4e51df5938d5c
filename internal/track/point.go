package track

import (
	"maps"

	"github.com/paulmach/orb"
)

// ID identifies a feature within its source set. It is stable across
// classification, alignment and the final commit to the store.
type ID int64

// Attributes is the free-form attribute bag carried by every point.
// Access it through a Schema field rather than by raw key lookups.
type Attributes map[string]any

// Point is one GPS sample of a trajectory.
type Point struct {
	ID   ID
	X, Y float64

	// Z is passed through every operation unchanged
	Z    float64
	HasZ bool

	Attrs Attributes
}

// Position returns the planar position of the point.
func (p Point) Position() orb.Point {
	return orb.Point{p.X, p.Y}
}

// Moved returns a copy of p at (x, y). Z and attributes are kept.
func (p Point) Moved(x, y float64) Point {
	q := p.Clone()
	q.X, q.Y = x, y
	return q
}

// Clone returns a deep copy of the point.
func (p Point) Clone() Point {
	q := p
	if p.Attrs != nil {
		q.Attrs = maps.Clone(p.Attrs)
	}
	return q
}

// Trajectory is an ordered sequence of points belonging to one track.
// Time ordering is established by SortByTime, not assumed on input.
type Trajectory []Point

// IDs returns the point ids in trajectory order.
func (t Trajectory) IDs() []ID {
	ids := make([]ID, len(t))
	for i, p := range t {
		ids[i] = p.ID
	}
	return ids
}

// LineString returns the 2D polyline through the trajectory points.
func (t Trajectory) LineString() orb.LineString {
	ls := make(orb.LineString, len(t))
	for i, p := range t {
		ls[i] = p.Position()
	}
	return ls
}

// Clone deep-copies every point.
func (t Trajectory) Clone() Trajectory {
	out := make(Trajectory, len(t))
	for i, p := range t {
		out[i] = p.Clone()
	}
	return out
}

// ReferenceLine is the polyline a trajectory is aligned against.
type ReferenceLine struct {
	ID       ID
	Vertices orb.LineString
}
