// Package sqlite is a feature store persisted in a SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/planbiir/trackalign/internal/crs"
	"github.com/planbiir/trackalign/internal/geom"
	"github.com/planbiir/trackalign/internal/store"
	"github.com/planbiir/trackalign/internal/track"
)

const (
	pointLayer = "points"
	lineLayer  = "lines"
)

var (
	_ store.Store      = (*Store)(nil)
	_ store.Writer     = (*Store)(nil)
	_ store.LineSource = (*LineLayer)(nil)
)

// Store is the point layer of a trackalign database.
type Store struct {
	db  *sql.DB
	log *zap.Logger
	crs crs.Code
}

// Open opens (creating if needed) the database at path and migrates it to
// the latest schema.
func Open(ctx context.Context, path string, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	s := &Store{db: db, log: log.Named("sqlite")}
	if err := s.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}

	code, err := s.layerCRS(ctx, pointLayer)
	if err != nil {
		db.Close()
		return nil, err
	}
	s.crs = code

	s.log.Debug("database opened", zap.String("path", path), zap.String("crs", string(code)))
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) layerCRS(ctx context.Context, layer string) (crs.Code, error) {
	var code string
	err := s.db.QueryRowContext(ctx, "SELECT crs FROM layers WHERE name = ?", layer).Scan(&code)
	if err != nil {
		return "", fmt.Errorf("reading crs of layer %s: %w", layer, err)
	}
	return crs.Parse(code)
}

func (s *Store) setLayerCRS(layer string, code crs.Code) error {
	_, err := s.db.Exec("UPDATE layers SET crs = ? WHERE name = ?", string(code), layer)
	if err != nil {
		return fmt.Errorf("setting crs of layer %s: %w", layer, err)
	}
	return nil
}

// CRS returns the reference system of the point layer.
func (s *Store) CRS() crs.Code {
	return s.crs
}

// SetCRS relabels the point layer.
func (s *Store) SetCRS(code crs.Code) error {
	if err := s.setLayerCRS(pointLayer, code); err != nil {
		return err
	}
	s.crs = code
	return nil
}

// Insert appends points in one transaction. Zero ids are numbered after the
// largest id in the table and in the batch.
func (s *Store) Insert(ctx context.Context, points []track.Point) (ids []track.ID, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var next track.ID
	if err := tx.QueryRowContext(ctx, "SELECT COALESCE(MAX(id), 0) + 1 FROM points").Scan(&next); err != nil {
		return nil, err
	}

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO points (id, x, y, z, attrs) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		return nil, err
	}
	defer stmt.Close()

	for _, p := range points {
		if p.ID >= next {
			next = p.ID + 1
		}
	}

	ids = make([]track.ID, 0, len(points))
	for _, p := range points {
		if p.ID == 0 {
			p.ID = next
			next++
		}
		attrs, err := encodeAttrs(p.Attrs)
		if err != nil {
			return nil, fmt.Errorf("point %d: %w", p.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, int64(p.ID), p.X, p.Y, nullZ(p), attrs); err != nil {
			return nil, fmt.Errorf("inserting point %d: %w", p.ID, err)
		}
		ids = append(ids, p.ID)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return ids, nil
}

// InsertLine adds a reference line stored as WKB.
func (s *Store) InsertLine(ctx context.Context, line orb.LineString) (track.ID, error) {
	if err := geom.ValidateLine(line); err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, "INSERT INTO lines (geom) VALUES (?)", wkb.Value(line))
	if err != nil {
		return 0, fmt.Errorf("inserting line: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return track.ID(id), nil
}

// Features returns points in insertion order, filtered by f.
func (s *Store) Features(ctx context.Context, f store.Filter) ([]track.Point, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, x, y, z, attrs FROM points ORDER BY seq")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []track.Point
	for rows.Next() {
		p, err := scanPoint(rows)
		if err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return store.Select(points, f)
}

// Feature returns one point.
func (s *Store) Feature(ctx context.Context, id track.ID) (track.Point, error) {
	row := s.db.QueryRowContext(ctx, "SELECT id, x, y, z, attrs FROM points WHERE id = ?", int64(id))
	p, err := scanPoint(row)
	if errors.Is(err, sql.ErrNoRows) {
		return track.Point{}, fmt.Errorf("point %d: %w", id, store.ErrNotFound)
	}
	return p, err
}

// Count returns the number of points.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM points").Scan(&n)
	return n, err
}

// LineLayer returns the reference line layer of the database.
func (s *Store) LineLayer() *LineLayer {
	return &LineLayer{s: s}
}

// LineLayer is the reference line layer.
type LineLayer struct {
	s *Store
}

// Lines returns all reference lines in insertion order.
func (l *LineLayer) Lines(ctx context.Context) ([]track.ReferenceLine, error) {
	rows, err := l.s.db.QueryContext(ctx, "SELECT id, geom FROM lines ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []track.ReferenceLine
	for rows.Next() {
		var (
			id int64
			ls orb.LineString
		)
		if err := rows.Scan(&id, wkb.Scanner(&ls)); err != nil {
			return nil, fmt.Errorf("reading line: %w", err)
		}
		lines = append(lines, track.ReferenceLine{ID: track.ID(id), Vertices: ls})
	}
	return lines, rows.Err()
}

// CRS returns the reference system of the line layer.
func (l *LineLayer) CRS() crs.Code {
	code, err := l.s.layerCRS(context.Background(), lineLayer)
	if err != nil {
		l.s.log.Warn("unreadable line layer crs, assuming point crs", zap.Error(err))
		return l.s.crs
	}
	return code
}

// SetCRS relabels the line layer.
func (l *LineLayer) SetCRS(code crs.Code) error {
	return l.s.setLayerCRS(lineLayer, code)
}

// Begin opens an edit session backed by one SQL transaction. The session is
// recorded in edit_sessions under a fresh id.
func (s *Store) Begin(ctx context.Context) (store.Session, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}

	id := uuid.New()
	started := time.Now()
	_, err = tx.ExecContext(ctx,
		"INSERT INTO edit_sessions (id, started_at, state) VALUES (?, ?, 'open')",
		id.String(), started.Unix())
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("recording edit session: %w", err)
	}

	s.log.Debug("edit session started", zap.Stringer("session", id))
	return &session{s: s, tx: tx, id: id, started: started}, nil
}

type session struct {
	s       *Store
	tx      *sql.Tx
	id      uuid.UUID
	started time.Time
	updated int
	deleted int
	closed  bool
}

func (ss *session) Update(ctx context.Context, p track.Point) error {
	if ss.closed {
		return store.ErrSessionClosed
	}
	attrs, err := encodeAttrs(p.Attrs)
	if err != nil {
		return fmt.Errorf("point %d: %w", p.ID, err)
	}
	res, err := ss.tx.ExecContext(ctx,
		"UPDATE points SET x = ?, y = ?, z = ?, attrs = ? WHERE id = ?",
		p.X, p.Y, nullZ(p), attrs, int64(p.ID))
	if err != nil {
		return fmt.Errorf("updating point %d: %w", p.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("point %d: %w", p.ID, store.ErrNotFound)
	}
	ss.updated++
	return nil
}

func (ss *session) Delete(ctx context.Context, id track.ID) error {
	if ss.closed {
		return store.ErrSessionClosed
	}
	res, err := ss.tx.ExecContext(ctx, "DELETE FROM points WHERE id = ?", int64(id))
	if err != nil {
		return fmt.Errorf("deleting point %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		ss.deleted++
	}
	return nil
}

func (ss *session) Commit() error {
	if ss.closed {
		return store.ErrSessionClosed
	}
	ss.closed = true

	_, err := ss.tx.Exec(
		"UPDATE edit_sessions SET state = 'committed', finished_at = ?, updated = ?, deleted = ? WHERE id = ?",
		time.Now().Unix(), ss.updated, ss.deleted, ss.id.String())
	if err != nil {
		ss.tx.Rollback()
		return fmt.Errorf("closing edit session: %w", err)
	}
	if err := ss.tx.Commit(); err != nil {
		return err
	}

	ss.s.log.Info("edit session committed",
		zap.Stringer("session", ss.id),
		zap.Int("updated", ss.updated),
		zap.Int("deleted", ss.deleted),
		zap.Duration("elapsed", time.Since(ss.started)))
	return nil
}

func (ss *session) Rollback() error {
	if ss.closed {
		return nil
	}
	ss.closed = true
	if err := ss.tx.Rollback(); err != nil {
		return err
	}

	_, err := ss.s.db.Exec(
		"INSERT INTO edit_sessions (id, started_at, finished_at, state) VALUES (?, ?, ?, 'rolled_back')",
		ss.id.String(), ss.started.Unix(), time.Now().Unix())
	if err != nil {
		ss.s.log.Warn("failed to record rolled back session", zap.Stringer("session", ss.id), zap.Error(err))
	}
	ss.s.log.Info("edit session rolled back", zap.Stringer("session", ss.id))
	return nil
}

// SessionState returns the recorded state of an edit session.
func (s *Store) SessionState(ctx context.Context, id string) (string, error) {
	var state string
	err := s.db.QueryRowContext(ctx, "SELECT state FROM edit_sessions WHERE id = ?", id).Scan(&state)
	if errors.Is(err, sql.ErrNoRows) {
		return "", store.ErrNotFound
	}
	return state, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPoint(row scanner) (track.Point, error) {
	var (
		id    int64
		p     track.Point
		z     sql.NullFloat64
		attrs string
	)
	if err := row.Scan(&id, &p.X, &p.Y, &z, &attrs); err != nil {
		return track.Point{}, err
	}
	p.ID = track.ID(id)
	p.Z, p.HasZ = z.Float64, z.Valid
	if err := json.Unmarshal([]byte(attrs), &p.Attrs); err != nil {
		return track.Point{}, fmt.Errorf("point %d: decoding attributes: %w", id, err)
	}
	return p, nil
}

func encodeAttrs(a track.Attributes) (string, error) {
	if a == nil {
		return "{}", nil
	}
	b, err := json.Marshal(a)
	if err != nil {
		return "", fmt.Errorf("encoding attributes: %w", err)
	}
	return string(b), nil
}

func nullZ(p track.Point) sql.NullFloat64 {
	return sql.NullFloat64{Float64: p.Z, Valid: p.HasZ}
}
