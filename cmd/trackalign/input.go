package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/paulmach/orb"

	"github.com/planbiir/trackalign/internal/crs"
	"github.com/planbiir/trackalign/internal/geojson"
	"github.com/planbiir/trackalign/internal/geom"
	"github.com/planbiir/trackalign/internal/gpx"
	"github.com/planbiir/trackalign/internal/nmea"
	"github.com/planbiir/trackalign/internal/store"
	"github.com/planbiir/trackalign/internal/store/sqlite"
	"github.com/planbiir/trackalign/internal/track"
)

// input is the content of one point or line file.
type input struct {
	points []track.Point
	lines  []orb.LineString
	doc    *gpx.GPX // set for GPX files so edits keep extensions
}

// readInput reads a GPX, GeoJSON or NMEA file.
func (a *app) readInput(ctx context.Context, path string) (input, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".gpx":
		doc, err := gpx.Parse(path)
		if err != nil {
			return input{}, fmt.Errorf("reading GPX file: %w", err)
		}
		points := withFeatureIDs(doc.Points(a.cfg.TimestampField))
		return input{points: points, lines: doc.Lines(), doc: doc}, nil

	case ".geojson", ".json":
		layer, err := geojson.ReadFile(path)
		if err != nil {
			return input{}, fmt.Errorf("reading GeoJSON file: %w", err)
		}
		return input{points: layer.Points, lines: layer.Lines}, nil

	case ".nmea", ".nme", ".log":
		points, err := nmea.ReadFile(ctx, path, nmea.Options{
			TimestampField: a.cfg.TimestampField,
			Logger:         a.log,
		})
		if err != nil {
			return input{}, fmt.Errorf("reading NMEA file: %w", err)
		}
		return input{points: withFeatureIDs(points)}, nil

	default:
		return input{}, fmt.Errorf("unsupported file type %q", filepath.Ext(path))
	}
}

// withFeatureIDs copies each point id into the id attribute, which GPX and
// NMEA files do not carry.
func withFeatureIDs(points []track.Point) []track.Point {
	for i := range points {
		if points[i].Attrs == nil {
			points[i].Attrs = track.Attributes{}
		}
		if _, ok := points[i].Attrs[track.DefaultGroupField]; !ok {
			points[i].Attrs[track.DefaultGroupField] = int64(points[i].ID)
		}
	}
	return points
}

// workspace is the point store and line source a command works on.
type workspace struct {
	points store.Store
	lines  store.LineSource

	// file mode
	memory *store.Memory
	source input
	path   string

	close func() error
}

// hasLineFlags reports whether a reference line was given on the command
// line.
func (a *app) hasLineFlags() bool {
	return a.lineVertices != "" || a.lineFile != "" || a.linePolyline != ""
}

// open returns the workspace: the --points file in memory, or the SQLite
// store. Lines given on the command line replace the stored ones.
func (a *app) open(ctx context.Context) (*workspace, error) {
	code, err := crs.Parse(a.cfg.CRS)
	if err != nil {
		return nil, err
	}

	ws := &workspace{close: func() error { return nil }}
	if a.pointsPath != "" {
		in, err := a.readInput(ctx, a.pointsPath)
		if err != nil {
			return nil, err
		}
		if len(in.points) == 0 {
			return nil, fmt.Errorf("no points found in %s", a.pointsPath)
		}
		mem := store.NewMemory(code)
		lines := in.lines
		if a.hasLineFlags() {
			lines = nil
		}
		if err := store.Load(ctx, mem, in.points, lines, a.log); err != nil {
			return nil, err
		}
		ws.points, ws.lines, ws.memory, ws.source, ws.path = mem, mem, mem, in, a.pointsPath
	} else {
		db, err := sqlite.Open(ctx, a.cfg.Database, a.log)
		if err != nil {
			return nil, fmt.Errorf("opening database: %w", err)
		}
		ws.points, ws.lines, ws.close = db, db.LineLayer(), db.Close
	}

	if a.hasLineFlags() {
		lines, err := a.flagLines(ctx)
		if err != nil {
			ws.close()
			return nil, err
		}
		src := store.NewMemory(code)
		if err := store.Load(ctx, src, nil, lines, a.log); err != nil {
			ws.close()
			return nil, err
		}
		ws.lines = src
	}
	return ws, nil
}

// flagLines collects the lines from --line, --line-polyline and --line-file.
func (a *app) flagLines(ctx context.Context) ([]orb.LineString, error) {
	var lines []orb.LineString
	if a.lineVertices != "" {
		line, err := geom.ParseVertices(a.lineVertices)
		if err != nil {
			return nil, fmt.Errorf("--line: %w", err)
		}
		lines = append(lines, line)
	}
	if a.linePolyline != "" {
		line, err := geojson.DecodePolyline(a.linePolyline)
		if err != nil {
			return nil, fmt.Errorf("--line-polyline: %w", err)
		}
		lines = append(lines, line)
	}
	if a.lineFile != "" {
		in, err := a.readInput(ctx, a.lineFile)
		if err != nil {
			return nil, fmt.Errorf("--line-file: %w", err)
		}
		lines = append(lines, in.lines...)
	}
	return lines, nil
}

// defaultOutput derives "<input><suffix><ext>" for file mode results. NMEA
// input is written as GeoJSON.
func defaultOutput(path, suffix string) string {
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	switch strings.ToLower(ext) {
	case ".gpx", ".geojson", ".json":
		return base + suffix + ext
	default:
		return base + suffix + ".geojson"
	}
}

// save writes the in-memory points to out. SQLite workspaces are already
// persisted and save does nothing.
func (a *app) save(ctx context.Context, ws *workspace, out string) (string, error) {
	if ws.memory == nil {
		return "", nil
	}
	points, err := ws.points.Features(ctx, store.Filter{})
	if err != nil {
		return "", err
	}

	switch strings.ToLower(filepath.Ext(out)) {
	case ".gpx":
		doc := ws.source.doc
		if doc != nil {
			doc.ApplyPoints(points)
		} else {
			doc = gpx.FromTrajectory("trackalign", points, a.schema.Timestamp)
		}
		if err := doc.Write(out); err != nil {
			return "", fmt.Errorf("writing GPX file: %w", err)
		}
	case ".geojson", ".json":
		if err := geojson.WriteFile(out, geojson.PointCollection(points)); err != nil {
			return "", fmt.Errorf("writing GeoJSON file: %w", err)
		}
	default:
		return "", fmt.Errorf("unsupported output type %q", filepath.Ext(out))
	}
	return out, nil
}
