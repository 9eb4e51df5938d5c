package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planbiir/trackalign/internal/geojson"
	"github.com/planbiir/trackalign/internal/track"
)

const straightTrack = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "geometry": {"type": "Point", "coordinates": [0, 0]},
     "properties": {"timestamp": "2024-07-30T12:00:00Z", "id": 1}},
    {"type": "Feature", "geometry": {"type": "Point", "coordinates": [1, 0.1]},
     "properties": {"timestamp": "2024-07-30T12:00:10Z", "id": 1}},
    {"type": "Feature", "geometry": {"type": "Point", "coordinates": [2, 5]},
     "properties": {"timestamp": "2024-07-30T12:00:20Z", "id": 1}},
    {"type": "Feature", "geometry": {"type": "Point", "coordinates": [4, 0]},
     "properties": {"timestamp": "2024-07-30T12:00:40Z", "id": 40}}
  ]
}`

const gpxTrack = `<?xml version="1.0" encoding="UTF-8"?>
<gpx version="1.1" creator="test" xmlns="http://www.topografix.com/GPX/1/1">
  <trk><trkseg>
    <trkpt lat="0" lon="0"><time>2024-07-30T12:00:00Z</time></trkpt>
    <trkpt lat="0" lon="0.001"><time>2024-07-30T12:00:10Z</time></trkpt>
    <trkpt lat="0" lon="0.002"><time>2024-07-30T12:00:20Z</time></trkpt>
  </trkseg></trk>
</gpx>`

const referenceLine = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "geometry": {"type": "LineString", "coordinates": [[0, 0], [4, 0]]}, "properties": {}}
  ]
}`

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func run(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd(&app{})
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append(args, "--log-level", "error"))
	require.NoError(t, root.ExecuteContext(context.Background()), out.String())
	return out.String()
}

func TestAlignFileMode(t *testing.T) {
	points := writeTemp(t, "track.geojson", straightTrack)
	output := filepath.Join(t.TempDir(), "aligned.geojson")

	out := run(t, "align", "-p", points, "--line", "0,0;4,0", "-r", "1", "-o", output)
	assert.Contains(t, out, "Moved onto the line: 1")

	layer, err := geojson.ReadFile(output)
	require.NoError(t, err)
	require.Len(t, layer.Points, 4)

	byID := map[track.ID]orb.Point{}
	for _, p := range layer.Points {
		byID[p.ID] = p.Position()
	}
	assert.Equal(t, orb.Point{2, 0}, byID[3])
	assert.Equal(t, orb.Point{1, 0.1}, byID[2])
}

func TestAlignSkipsWithoutRange(t *testing.T) {
	points := writeTemp(t, "track.geojson", straightTrack)
	out := run(t, "align", "-p", points, "--line", "0,0;4,0")
	assert.Contains(t, out, "skipped")
}

func TestClassifyAndRemove(t *testing.T) {
	points := writeTemp(t, "track.geojson", straightTrack)
	line := writeTemp(t, "line.geojson", referenceLine)

	out := run(t, "classify", "-p", points, "--line-file", line, "-r", "1")
	assert.Contains(t, out, "1 of 4 points")

	output := filepath.Join(t.TempDir(), "trimmed.geojson")
	out = run(t, "remove", "-p", points, "--line-file", line, "-r", "1", "-o", output)
	assert.Contains(t, out, "4 → 3 points")

	layer, err := geojson.ReadFile(output)
	require.NoError(t, err)
	assert.Len(t, layer.Points, 3)
}

func TestAnomalies(t *testing.T) {
	points := writeTemp(t, "track.geojson", straightTrack)
	output := filepath.Join(t.TempDir(), "filtered.geojson")

	out := run(t, "anomalies", "-p", points, "--tolerance", "10", "--remove", "-o", output)
	assert.Contains(t, out, "Flagged: 1")

	layer, err := geojson.ReadFile(output)
	require.NoError(t, err)
	assert.Len(t, layer.Points, 3)
}

func TestAnomaliesGPXDefaults(t *testing.T) {
	points := writeTemp(t, "track.gpx", gpxTrack)

	out := run(t, "anomalies", "-p", points, "--tolerance", "0.5")
	assert.Contains(t, out, "Anomaly Statistics (id)")
	assert.Contains(t, out, "Flagged: 2")

	out = run(t, "anomalies", "-p", points, "--derive", "--group-field", "speed", "--tolerance", "5")
	assert.Contains(t, out, "Flagged: 1")
}

func TestSimplifyPolyline(t *testing.T) {
	points := writeTemp(t, "track.geojson", straightTrack)
	out := run(t, "simplify", "-p", points, "--format", "polyline", "-t", "10")

	line, err := geojson.DecodePolyline(string(bytes.TrimSpace([]byte(out))))
	require.NoError(t, err)
	assert.Len(t, line, 2)
}

func TestCorridor(t *testing.T) {
	points := writeTemp(t, "track.geojson", straightTrack)
	out := run(t, "corridor", "-p", points, "--line", "0,0;4,0", "-r", "1")
	assert.Contains(t, out, `"MultiPolygon"`)
}

func TestImportThenAlign(t *testing.T) {
	points := writeTemp(t, "track.geojson", straightTrack)
	line := writeTemp(t, "line.geojson", referenceLine)
	db := filepath.Join(t.TempDir(), "run.db")

	out := run(t, "import", "--db", db, points, line)
	assert.Contains(t, out, "holds 4 points")

	out = run(t, "align", "--db", db, "-r", "1")
	assert.Contains(t, out, "Moved onto the line: 1")

	out = run(t, "classify", "--db", db, "-r", "1")
	assert.Contains(t, out, "0 of 4 points")
}

func TestDefaultOutput(t *testing.T) {
	assert.Equal(t, "run_aligned.gpx", defaultOutput("run.gpx", "_aligned"))
	assert.Equal(t, "dir/run_aligned.geojson", defaultOutput("dir/run.nmea", "_aligned"))
}
