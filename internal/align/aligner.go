// Package align moves out-of-range trajectory points back onto a reference
// line using the trajectory's time span.
package align

import (
	"fmt"

	"github.com/paulmach/orb"
	"go.uber.org/zap"

	"github.com/planbiir/trackalign/internal/geom"
	"github.com/planbiir/trackalign/internal/track"
)

// Status tells whether an alignment ran or was skipped.
type Status int

const (
	StatusApplied Status = iota
	StatusSkipped
)

func (s Status) String() string {
	if s == StatusSkipped {
		return "skipped"
	}
	return "applied"
}

// SkipReason explains a skipped alignment.
type SkipReason string

const (
	SkipLineCount        SkipReason = "reference layer must hold exactly one line"
	SkipTooFewPoints     SkipReason = "need at least two points"
	SkipNonPositiveRange SkipReason = "domain range must be positive"
)

// Options configures an Aligner.
type Options struct {
	// Timestamp resolves the sort and interpolation time of each point.
	Timestamp track.TimeField

	// DomainRange is the corridor half-width. Values <= 0 skip alignment.
	DomainRange float64

	// Segments is the arc quality of the corridor outline.
	Segments int

	Mode   Mode
	Logger *zap.Logger
}

// DefaultOptions returns options with the default timestamp field and
// corridor quality. DomainRange is left at zero.
func DefaultOptions() Options {
	return Options{
		Timestamp: track.TimeField{Name: track.DefaultTimestampField},
		Segments:  geom.DefaultSegments,
		Mode:      ModeFirstSegment,
	}
}

// Correction records one moved point.
type Correction struct {
	ID       track.ID
	From, To orb.Point
}

// Result of an alignment.
type Result struct {
	Status Status
	Reason SkipReason

	// Points is the time-sorted trajectory with corrections applied. It is
	// nil when the alignment was skipped.
	Points track.Trajectory

	Classification Classification
	Corrections    []Correction
}

func skipped(reason SkipReason) Result {
	return Result{Status: StatusSkipped, Reason: reason}
}

// Aligner corrects trajectories against a single reference line.
type Aligner struct {
	opts Options
	log  *zap.Logger
}

// NewAligner returns an aligner using opts.
func NewAligner(opts Options) *Aligner {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Segments <= 0 {
		opts.Segments = geom.DefaultSegments
	}
	return &Aligner{opts: opts, log: log.Named("align")}
}

// Align sorts points by time, classifies them against the single line and
// replaces every out-of-range position by its interpolated one. Z values and
// attributes are kept. The input slice is not modified.
//
// Lines and points must share a coordinate reference.
func (a *Aligner) Align(points []track.Point, lines []track.ReferenceLine) (Result, error) {
	if len(lines) != 1 {
		a.log.Debug("alignment skipped", zap.Int("lines", len(lines)))
		return skipped(SkipLineCount), nil
	}
	line := lines[0].Vertices

	sorted, err := track.SortByTime(points, a.opts.Timestamp)
	if err != nil {
		return Result{}, fmt.Errorf("sorting points: %w", err)
	}
	if len(sorted) < 2 {
		return skipped(SkipTooFewPoints), nil
	}
	if !(a.opts.DomainRange > 0) {
		return skipped(SkipNonPositiveRange), nil
	}

	class, err := Classify(sorted, line, a.opts.DomainRange, a.opts.Segments)
	if err != nil {
		return Result{}, fmt.Errorf("classifying points: %w", err)
	}

	res := Result{
		Status:         StatusApplied,
		Points:         sorted,
		Classification: class,
	}
	if len(class.OutOfRange) == 0 {
		return res, nil
	}

	first, last := sorted[0], sorted[len(sorted)-1]
	t1, err := a.unix(first)
	if err != nil {
		return Result{}, err
	}
	t2, err := a.unix(last)
	if err != nil {
		return Result{}, err
	}
	ip, err := NewInterpolator(
		Sample{T: t1, Pos: first.Position()},
		Sample{T: t2, Pos: last.Position()},
		line, a.opts.Mode,
	)
	if err != nil {
		return Result{}, err
	}

	// Replacements are computed against the original positions before any
	// point is moved.
	outside := class.OutOfRangeSet()
	corrected := make(track.Trajectory, len(sorted))
	for i, p := range sorted {
		if _, ok := outside[p.ID]; !ok {
			corrected[i] = p
			continue
		}
		ts, err := a.unix(p)
		if err != nil {
			return Result{}, err
		}
		to := ip.At(ts)
		corrected[i] = p.Moved(to[0], to[1])
		res.Corrections = append(res.Corrections, Correction{ID: p.ID, From: p.Position(), To: to})
	}
	res.Points = corrected

	a.log.Debug("trajectory aligned",
		zap.Int("points", len(sorted)),
		zap.Int("in_range", len(class.InRange)),
		zap.Int("corrected", len(res.Corrections)),
		zap.Stringer("mode", a.opts.Mode))
	return res, nil
}

func (a *Aligner) unix(p track.Point) (int64, error) {
	t, err := a.opts.Timestamp.Value(p)
	if err != nil {
		return 0, err
	}
	return t.Unix(), nil
}
