// Package store defines the feature store the engine reads points and lines
// from and commits edits to.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/paulmach/orb"
	"go.uber.org/zap"

	"github.com/planbiir/trackalign/internal/crs"
	"github.com/planbiir/trackalign/internal/track"
)

var (
	// ErrNotFound is returned when a feature id does not exist.
	ErrNotFound = errors.New("feature not found")

	// ErrSessionClosed is returned when a committed or rolled back session
	// is used again.
	ErrSessionClosed = errors.New("edit session closed")
)

// Filter narrows and orders a feature read.
type Filter struct {
	// IDs restricts the result to these ids. Empty means all.
	IDs []track.ID

	// OrderBy sorts the result by this timestamp field when its Name is
	// set. Otherwise features come back in insertion order.
	OrderBy track.TimeField
}

// Store is a point layer.
type Store interface {
	Features(ctx context.Context, f Filter) ([]track.Point, error)
	Feature(ctx context.Context, id track.ID) (track.Point, error)
	Count(ctx context.Context) (int, error)
	CRS() crs.Code
	SetCRS(code crs.Code) error

	// Begin opens an edit session. Edits are visible only after Commit.
	Begin(ctx context.Context) (Session, error)
}

// Session batches edits to a Store.
type Session interface {
	// Update replaces the geometry and attributes of an existing point.
	Update(ctx context.Context, p track.Point) error

	// Delete removes a point. Unknown ids are ignored.
	Delete(ctx context.Context, id track.ID) error

	Commit() error

	// Rollback discards the session. It is a no-op after Commit.
	Rollback() error
}

// LineSource is a line layer.
type LineSource interface {
	Lines(ctx context.Context) ([]track.ReferenceLine, error)
	CRS() crs.Code
}

// Writer accepts imported features.
type Writer interface {
	Insert(ctx context.Context, points []track.Point) ([]track.ID, error)
	InsertLine(ctx context.Context, line orb.LineString) (track.ID, error)
}

// Load bulk-inserts points and lines into w. Points with a zero id get one
// assigned by the store.
func Load(ctx context.Context, w Writer, points []track.Point, lines []orb.LineString, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	ids, err := w.Insert(ctx, points)
	if err != nil {
		return fmt.Errorf("inserting points: %w", err)
	}
	for i, line := range lines {
		if _, err := w.InsertLine(ctx, line); err != nil {
			return fmt.Errorf("inserting line %d: %w", i, err)
		}
	}
	log.Named("store").Info("features loaded",
		zap.Int("points", len(ids)),
		zap.Int("lines", len(lines)))
	return nil
}

// Select applies f to points, which must be in insertion order.
func Select(points []track.Point, f Filter) ([]track.Point, error) {
	out := points
	if len(f.IDs) > 0 {
		want := make(map[track.ID]struct{}, len(f.IDs))
		for _, id := range f.IDs {
			want[id] = struct{}{}
		}
		out = make([]track.Point, 0, len(f.IDs))
		for _, p := range points {
			if _, ok := want[p.ID]; ok {
				out = append(out, p)
			}
		}
	}
	if f.OrderBy.Name == "" {
		return out, nil
	}
	return track.SortByTime(out, f.OrderBy)
}
