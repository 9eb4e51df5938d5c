package align

import (
	"context"
	"errors"
	"fmt"

	"github.com/paulmach/orb"
	"go.uber.org/zap"

	"github.com/planbiir/trackalign/internal/crs"
	"github.com/planbiir/trackalign/internal/geom"
	"github.com/planbiir/trackalign/internal/store"
	"github.com/planbiir/trackalign/internal/track"
)

// Errors returned by the corridor queries of an Engine.
var (
	ErrNonPositiveRange = errors.New(string(SkipNonPositiveRange))
	ErrNoReferenceLine  = errors.New("no reference line")
)

// Engine runs alignment operations against a point store and a line source.
type Engine struct {
	Points store.Store
	Lines  store.LineSource

	// Transformer reprojects lines whose CRS differs from the point layer.
	// Nil uses crs.Projector.
	Transformer crs.Transformer

	opts    Options
	aligner *Aligner
	log     *zap.Logger
}

// NewEngine returns an engine over points and lines.
func NewEngine(points store.Store, lines store.LineSource, opts Options) *Engine {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		Points:  points,
		Lines:   lines,
		opts:    opts,
		aligner: NewAligner(opts),
		log:     log.Named("engine"),
	}
}

// referenceLines reads every line and reprojects it into the point CRS.
func (e *Engine) referenceLines(ctx context.Context) ([]track.ReferenceLine, error) {
	lines, err := e.Lines.Lines(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading lines: %w", err)
	}
	return e.reproject(lines)
}

func (e *Engine) reproject(lines []track.ReferenceLine) ([]track.ReferenceLine, error) {
	from, to := e.Lines.CRS(), e.Points.CRS()
	if from == to {
		return lines, nil
	}

	t := e.Transformer
	if t == nil {
		t = crs.Projector{}
	}
	for i := range lines {
		ls, err := crs.TransformLine(t, lines[i].Vertices, from, to)
		if err != nil {
			return nil, fmt.Errorf("reprojecting line %d: %w", lines[i].ID, err)
		}
		lines[i].Vertices = ls
	}
	e.log.Debug("lines reprojected", zap.String("from", string(from)), zap.String("to", string(to)))
	return lines, nil
}

// Align corrects the out-of-range points of the store. Every replacement is
// computed before the first write; the writes then go through one session
// that is committed once or rolled back on the first failure.
func (e *Engine) Align(ctx context.Context) (Result, error) {
	lines, err := e.Lines.Lines(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("reading lines: %w", err)
	}
	if len(lines) != 1 {
		e.log.Info("alignment skipped", zap.String("reason", string(SkipLineCount)), zap.Int("lines", len(lines)))
		return skipped(SkipLineCount), nil
	}

	lines, err = e.reproject(lines)
	if err != nil {
		return Result{}, err
	}
	points, err := e.Points.Features(ctx, store.Filter{})
	if err != nil {
		return Result{}, fmt.Errorf("reading points: %w", err)
	}

	res, err := e.aligner.Align(points, lines)
	if err != nil {
		return Result{}, err
	}
	if res.Status == StatusSkipped {
		e.log.Info("alignment skipped", zap.String("reason", string(res.Reason)))
		return res, nil
	}
	if len(res.Corrections) == 0 {
		return res, nil
	}

	moved := make(map[track.ID]struct{}, len(res.Corrections))
	for _, c := range res.Corrections {
		moved[c.ID] = struct{}{}
	}

	err = e.edit(ctx, func(s store.Session) error {
		for _, p := range res.Points {
			if _, ok := moved[p.ID]; !ok {
				continue
			}
			if err := s.Update(ctx, p); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("committing alignment: %w", err)
	}

	e.log.Info("alignment committed",
		zap.Int("points", len(res.Points)),
		zap.Int("corrected", len(res.Corrections)))
	return res, nil
}

// OutOfRange returns the ids of the points lying outside the corridor of
// every reference line. It needs at least one line.
func (e *Engine) OutOfRange(ctx context.Context) ([]track.ID, error) {
	if !(e.opts.DomainRange > 0) {
		return nil, fmt.Errorf("%w: %v", ErrNonPositiveRange, e.opts.DomainRange)
	}

	lines, err := e.referenceLines(ctx)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, ErrNoReferenceLine
	}
	points, err := e.Points.Features(ctx, store.Filter{})
	if err != nil {
		return nil, fmt.Errorf("reading points: %w", err)
	}

	geoms := make([]orb.LineString, len(lines))
	for i, l := range lines {
		geoms[i] = l.Vertices
	}
	class, err := ClassifyAny(points, geoms, e.opts.DomainRange, e.opts.Segments)
	if err != nil {
		return nil, err
	}

	e.log.Debug("points classified",
		zap.Int("in_range", len(class.InRange)),
		zap.Int("out_of_range", len(class.OutOfRange)))
	return class.OutOfRange, nil
}

// RemoveOutOfRange deletes the points returned by OutOfRange in one session
// and returns their ids.
func (e *Engine) RemoveOutOfRange(ctx context.Context) ([]track.ID, error) {
	ids, err := e.OutOfRange(ctx)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	err = e.edit(ctx, func(s store.Session) error {
		for _, id := range ids {
			if err := s.Delete(ctx, id); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("removing out of range points: %w", err)
	}

	e.log.Info("out of range points removed", zap.Int("removed", len(ids)))
	return ids, nil
}

// Corridors buffers every reference line at the domain range, in the point
// CRS, for display.
func (e *Engine) Corridors(ctx context.Context) ([]*geom.Corridor, error) {
	lines, err := e.referenceLines(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*geom.Corridor, 0, len(lines))
	for _, l := range lines {
		c, err := geom.Buffer(l.Vertices, e.opts.DomainRange, e.opts.Segments)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", l.ID, err)
		}
		out = append(out, c)
	}
	return out, nil
}

func (e *Engine) edit(ctx context.Context, fn func(store.Session) error) error {
	s, err := e.Points.Begin(ctx)
	if err != nil {
		return err
	}
	if err := fn(s); err != nil {
		if rbErr := s.Rollback(); rbErr != nil {
			e.log.Warn("rollback failed", zap.Error(rbErr))
		}
		return err
	}
	return s.Commit()
}
