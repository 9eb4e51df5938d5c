package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/paulmach/orb"

	"github.com/planbiir/trackalign/internal/crs"
	"github.com/planbiir/trackalign/internal/geom"
	"github.com/planbiir/trackalign/internal/track"
)

var (
	_ Store      = (*Memory)(nil)
	_ LineSource = (*Memory)(nil)
	_ Writer     = (*Memory)(nil)
)

// Memory is an in-memory point and line layer. It is used for file inputs
// that are not imported into a database, and in tests.
type Memory struct {
	mu     sync.Mutex
	crs    crs.Code
	order  []track.ID
	points map[track.ID]track.Point
	lines  []track.ReferenceLine
	nextID track.ID
}

// NewMemory returns an empty store in the given reference system.
func NewMemory(code crs.Code) *Memory {
	return &Memory{
		crs:    code,
		points: make(map[track.ID]track.Point),
		nextID: 1,
	}
}

// Insert appends points. Explicit ids must be unique; zero ids are numbered
// after the largest id in the store and in the batch. Nothing is inserted
// when an id is a duplicate.
func (m *Memory) Insert(_ context.Context, points []track.Point) ([]track.ID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := m.nextID
	seen := make(map[track.ID]struct{}, len(points))
	for _, p := range points {
		if p.ID == 0 {
			continue
		}
		if _, dup := m.points[p.ID]; dup {
			return nil, fmt.Errorf("duplicate point id %d", p.ID)
		}
		if _, dup := seen[p.ID]; dup {
			return nil, fmt.Errorf("duplicate point id %d", p.ID)
		}
		seen[p.ID] = struct{}{}
		if p.ID >= next {
			next = p.ID + 1
		}
	}

	ids := make([]track.ID, len(points))
	for i, p := range points {
		if p.ID == 0 {
			p.ID = next
			next++
		}
		m.points[p.ID] = p.Clone()
		m.order = append(m.order, p.ID)
		ids[i] = p.ID
	}
	m.nextID = next
	return ids, nil
}

// InsertLine adds a reference line.
func (m *Memory) InsertLine(_ context.Context, line orb.LineString) (track.ID, error) {
	if err := geom.ValidateLine(line); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	id := track.ID(len(m.lines) + 1)
	m.lines = append(m.lines, track.ReferenceLine{ID: id, Vertices: line.Clone()})
	return id, nil
}

// Lines returns copies of all reference lines.
func (m *Memory) Lines(context.Context) ([]track.ReferenceLine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]track.ReferenceLine, len(m.lines))
	for i, l := range m.lines {
		out[i] = track.ReferenceLine{ID: l.ID, Vertices: l.Vertices.Clone()}
	}
	return out, nil
}

// Features returns copies of the stored points.
func (m *Memory) Features(_ context.Context, f Filter) ([]track.Point, error) {
	m.mu.Lock()
	all := make([]track.Point, 0, len(m.order))
	for _, id := range m.order {
		all = append(all, m.points[id].Clone())
	}
	m.mu.Unlock()

	return Select(all, f)
}

// Feature returns a copy of one point.
func (m *Memory) Feature(_ context.Context, id track.ID) (track.Point, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.points[id]
	if !ok {
		return track.Point{}, fmt.Errorf("point %d: %w", id, ErrNotFound)
	}
	return p.Clone(), nil
}

// Count returns the number of stored points.
func (m *Memory) Count(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.order), nil
}

// CRS returns the reference system of the layer.
func (m *Memory) CRS() crs.Code {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.crs
}

// SetCRS relabels the layer. Coordinates are not touched.
func (m *Memory) SetCRS(code crs.Code) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.crs = code
	return nil
}

// Begin opens a session whose edits are buffered until Commit.
func (m *Memory) Begin(context.Context) (Session, error) {
	return &memorySession{
		m:       m,
		updates: make(map[track.ID]track.Point),
		deletes: make(map[track.ID]struct{}),
	}, nil
}

type memorySession struct {
	m       *Memory
	updates map[track.ID]track.Point
	deletes map[track.ID]struct{}
	closed  bool
}

func (s *memorySession) Update(_ context.Context, p track.Point) error {
	if s.closed {
		return ErrSessionClosed
	}
	if _, deleted := s.deletes[p.ID]; deleted {
		return fmt.Errorf("point %d: %w", p.ID, ErrNotFound)
	}

	s.m.mu.Lock()
	_, ok := s.m.points[p.ID]
	s.m.mu.Unlock()
	if !ok {
		return fmt.Errorf("point %d: %w", p.ID, ErrNotFound)
	}

	s.updates[p.ID] = p.Clone()
	return nil
}

func (s *memorySession) Delete(_ context.Context, id track.ID) error {
	if s.closed {
		return ErrSessionClosed
	}
	delete(s.updates, id)
	s.deletes[id] = struct{}{}
	return nil
}

func (s *memorySession) Commit() error {
	if s.closed {
		return ErrSessionClosed
	}
	s.closed = true

	m := s.m
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, p := range s.updates {
		if _, ok := m.points[id]; ok {
			m.points[id] = p
		}
	}
	if len(s.deletes) == 0 {
		return nil
	}
	kept := m.order[:0]
	for _, id := range m.order {
		if _, gone := s.deletes[id]; gone {
			delete(m.points, id)
			continue
		}
		kept = append(kept, id)
	}
	m.order = kept
	return nil
}

func (s *memorySession) Rollback() error {
	s.closed = true
	s.updates = nil
	s.deletes = nil
	return nil
}
