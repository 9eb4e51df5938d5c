package geom

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/tidwall/rtree"
)

// DefaultSegments is the number of arc segments per quarter circle used
// when the corridor outline is built.
const DefaultSegments = 5

var (
	// ErrInvalidGeometry is returned for empty, short or non-finite geometry.
	ErrInvalidGeometry = errors.New("invalid geometry")

	// ErrInvalidDistance is returned when a buffer distance is not a
	// positive finite number.
	ErrInvalidDistance = errors.New("buffer distance must be positive")
)

// Corridor is the buffered region around a reference line. Points at a
// perpendicular distance of at most Distance from the nearest segment are
// inside; the boundary itself counts as inside.
//
// A Corridor lives for a single classification call and is never cached.
type Corridor struct {
	Line     orb.LineString
	Distance float64
	Segments int

	// Polygon is the outline of the corridor: one capsule per segment with
	// round caps approximated by Segments steps per quarter circle. It is
	// meant for display and export.
	Polygon orb.MultiPolygon

	bound orb.Bound
	index rtree.RTreeG[int]
}

// Buffer builds the corridor around line at distance. segments <= 0 selects
// DefaultSegments.
func Buffer(line orb.LineString, distance float64, segments int) (*Corridor, error) {
	if err := ValidateLine(line); err != nil {
		return nil, err
	}
	if !(distance > 0) || math.IsInf(distance, 0) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDistance, distance)
	}
	if segments <= 0 {
		segments = DefaultSegments
	}

	c := &Corridor{
		Line:     line.Clone(),
		Distance: distance,
		Segments: segments,
		Polygon:  make(orb.MultiPolygon, 0, len(line)-1),
		bound:    line.Bound().Pad(distance),
	}

	for i := 0; i < len(c.Line)-1; i++ {
		a, b := c.Line[i], c.Line[i+1]
		box := orb.MultiPoint{a, b}.Bound().Pad(distance)
		c.index.Insert([2]float64(box.Min), [2]float64(box.Max), i)
		c.Polygon = append(c.Polygon, orb.Polygon{capsule(a, b, distance, segments)})
	}

	return c, nil
}

// Contains reports whether p lies in the corridor (closed containment).
func (c *Corridor) Contains(p orb.Point) bool {
	if !c.bound.Contains(p) {
		return false
	}

	limit := c.Distance * c.Distance
	found := false
	c.index.Search([2]float64(p), [2]float64(p), func(_, _ [2]float64, i int) bool {
		if planar.DistanceFromSegmentSquared(c.Line[i], c.Line[i+1], p) <= limit {
			found = true
			return false
		}
		return true
	})
	return found
}

// Bound returns the bounding box of the corridor.
func (c *Corridor) Bound() orb.Bound {
	return c.bound
}

// capsule returns the closed ring around segment ab: a half circle around b
// followed by a half circle around a, counter-clockwise.
func capsule(a, b orb.Point, d float64, segments int) orb.Ring {
	theta := 0.0
	if a != b {
		theta = math.Atan2(b[1]-a[1], b[0]-a[0])
	}

	steps := 2 * segments
	step := math.Pi / float64(steps)
	ring := make(orb.Ring, 0, 2*(steps+1)+1)

	for k := 0; k <= steps; k++ {
		angle := theta - math.Pi/2 + float64(k)*step
		ring = append(ring, orb.Point{b[0] + d*math.Cos(angle), b[1] + d*math.Sin(angle)})
	}
	for k := 0; k <= steps; k++ {
		angle := theta + math.Pi/2 + float64(k)*step
		ring = append(ring, orb.Point{a[0] + d*math.Cos(angle), a[1] + d*math.Sin(angle)})
	}

	return append(ring, ring[0])
}
