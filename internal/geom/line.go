package geom

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
)

// ValidateLine checks that line has at least two finite vertices.
func ValidateLine(line orb.LineString) error {
	if len(line) < 2 {
		return fmt.Errorf("%w: line has %d vertices, need at least 2", ErrInvalidGeometry, len(line))
	}
	for i, p := range line {
		if !finite(p) {
			return fmt.Errorf("%w: vertex %d is not finite", ErrInvalidGeometry, i)
		}
	}
	return nil
}

// LineFromVertices builds a line from an ordered vertex list.
func LineFromVertices(vertices []orb.Point) (orb.LineString, error) {
	line := make(orb.LineString, len(vertices))
	copy(line, vertices)
	if err := ValidateLine(line); err != nil {
		return nil, err
	}
	return line, nil
}

// ParseVertices parses "x,y;x,y;..." into a line.
func ParseVertices(s string) (orb.LineString, error) {
	var vertices []orb.Point
	for i, pair := range strings.Split(s, ";") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		xy := strings.Split(pair, ",")
		if len(xy) != 2 {
			return nil, fmt.Errorf("%w: vertex %d: want x,y, got %q", ErrInvalidGeometry, i, pair)
		}
		x, err := strconv.ParseFloat(strings.TrimSpace(xy[0]), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: vertex %d: %v", ErrInvalidGeometry, i, err)
		}
		y, err := strconv.ParseFloat(strings.TrimSpace(xy[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: vertex %d: %v", ErrInvalidGeometry, i, err)
		}
		vertices = append(vertices, orb.Point{x, y})
	}
	return LineFromVertices(vertices)
}

// Progress returns the cumulative planar length at every vertex and the
// total length of the line.
func Progress(line orb.LineString) ([]float64, float64) {
	progress := make([]float64, len(line))
	total := 0.0
	for i := 1; i < len(line); i++ {
		total += math.Hypot(line[i][0]-line[i-1][0], line[i][1]-line[i-1][1])
		progress[i] = total
	}
	return progress, total
}

// PointAtFraction returns the point at fraction r of the line's length,
// clamped to [0, 1]. A zero-length line yields its first vertex.
func PointAtFraction(line orb.LineString, r float64) orb.Point {
	if len(line) == 0 {
		return orb.Point{}
	}
	r = math.Max(0, math.Min(1, r))

	progress, total := Progress(line)
	if total == 0 {
		return line[0]
	}

	target := r * total
	for i := 1; i < len(line); i++ {
		if progress[i] < target {
			continue
		}
		span := progress[i] - progress[i-1]
		if span == 0 {
			return line[i]
		}
		t := (target - progress[i-1]) / span
		a, b := line[i-1], line[i]
		return orb.Point{a[0] + t*(b[0]-a[0]), a[1] + t*(b[1]-a[1])}
	}
	return line[len(line)-1]
}

func finite(p orb.Point) bool {
	return !math.IsNaN(p[0]) && !math.IsNaN(p[1]) && !math.IsInf(p[0], 0) && !math.IsInf(p[1], 0)
}
