package align

import (
	"errors"
	"fmt"
	"strings"

	"github.com/paulmach/orb"

	"github.com/planbiir/trackalign/internal/geom"
)

// ErrDegenerateTimeRange is returned when the first and last timestamps of
// a sorted trajectory do not span a positive interval.
var ErrDegenerateTimeRange = errors.New("degenerate time range")

// Mode selects how an in-range timestamp is mapped onto the reference line.
type Mode int

const (
	// ModeFirstSegment applies the global time ratio to the endpoints of
	// the line's first segment, whatever the number of vertices.
	ModeFirstSegment Mode = iota

	// ModeArcLength places the point at the same fraction of the line's
	// total length.
	ModeArcLength
)

func (m Mode) String() string {
	switch m {
	case ModeFirstSegment:
		return "first-segment"
	case ModeArcLength:
		return "arc-length"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode parses "first-segment" or "arc-length". Empty selects
// ModeFirstSegment.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "first-segment":
		return ModeFirstSegment, nil
	case "arc-length":
		return ModeArcLength, nil
	default:
		return 0, fmt.Errorf("unknown interpolation mode %q", s)
	}
}

// Sample is a position observed at a unix time in seconds.
type Sample struct {
	T   int64
	Pos orb.Point
}

// Interpolator maps timestamps onto a reference line using the time span of
// a trajectory's first and last samples.
type Interpolator struct {
	start, end Sample
	line       orb.LineString
	mode       Mode
}

// NewInterpolator returns an interpolator for the trajectory span
// [start.T, end.T]. The span must be strictly positive.
func NewInterpolator(start, end Sample, line orb.LineString, mode Mode) (*Interpolator, error) {
	if start.T >= end.T {
		return nil, fmt.Errorf("%w: t1=%d t2=%d", ErrDegenerateTimeRange, start.T, end.T)
	}
	if err := geom.ValidateLine(line); err != nil {
		return nil, err
	}
	return &Interpolator{start: start, end: end, line: line, mode: mode}, nil
}

// At returns the replacement position for timestamp t.
//
// Timestamps before the span clamp to the first sample's position and
// timestamps after it clamp to the last sample's position. Inside the span
// the ratio r = (t - t1) / (t2 - t1) is applied to the line according to
// the mode, so t1 maps to the line's first vertex and t2 to the end of the
// first segment (ModeFirstSegment) or of the whole line (ModeArcLength).
func (ip *Interpolator) At(t int64) orb.Point {
	switch {
	case t < ip.start.T:
		return ip.start.Pos
	case t > ip.end.T:
		return ip.end.Pos
	}

	r := float64(t-ip.start.T) / float64(ip.end.T-ip.start.T)
	if ip.mode == ModeArcLength {
		return geom.PointAtFraction(ip.line, r)
	}

	a, b := ip.line[0], ip.line[1]
	return orb.Point{
		a[0] + r*(b[0]-a[0]),
		a[1] + r*(b[1]-a[1]),
	}
}

// Interpolate is the one-shot form of NewInterpolator(...).At(timestamp)
// in ModeFirstSegment.
func Interpolate(timestamp, t1 int64, p1 orb.Point, t2 int64, p2 orb.Point, line orb.LineString) (orb.Point, error) {
	ip, err := NewInterpolator(Sample{t1, p1}, Sample{t2, p2}, line, ModeFirstSegment)
	if err != nil {
		return orb.Point{}, err
	}
	return ip.At(timestamp), nil
}
