package gpx

import (
	"sort"

	"github.com/paulmach/orb"

	"github.com/planbiir/trackalign/internal/track"
)

// Attribute keys set by Points besides the timestamp.
const (
	AttrTrack   = "track"
	AttrSegment = "segment"
	AttrName    = "name"
)

// Points converts the track points to trajectory points. Ids are the
// 1-based position in file order, so ApplyPoints can write edits back.
// X is the longitude, Y the latitude and Z the elevation.
func (g *GPX) Points(timestampField string) []track.Point {
	flat := g.FlattenPoints()
	out := make([]track.Point, len(flat))
	for i, fp := range flat {
		p := track.Point{
			ID: track.ID(i + 1),
			X:  fp.Lon,
			Y:  fp.Lat,
			Attrs: track.Attributes{
				AttrTrack:   fp.TrackIdx,
				AttrSegment: fp.SegIdx,
			},
		}
		if fp.Elevation != nil {
			p.Z, p.HasZ = *fp.Elevation, true
		}
		if fp.Time != nil {
			p.Attrs[timestampField] = *fp.Time
		}
		if fp.Name != "" {
			p.Attrs[AttrName] = fp.Name
		}
		out[i] = p
	}
	return out
}

// ApplyPoints writes points back into the document they were read from
// with Points. Positions and elevations are updated; track points whose id
// is missing from points are removed. Extensions and times are kept.
func (g *GPX) ApplyPoints(points []track.Point) {
	flat := g.FlattenPoints()

	byIdx := make(map[int]track.Point, len(points))
	for _, p := range points {
		idx := int(p.ID) - 1
		if idx >= 0 && idx < len(flat) {
			byIdx[idx] = p
		}
	}

	idxs := make([]int, 0, len(byIdx))
	for idx := range byIdx {
		idxs = append(idxs, idx)
	}
	sort.Ints(idxs)

	kept := make([]Point, 0, len(idxs))
	for _, idx := range idxs {
		p, fp := byIdx[idx], flat[idx]
		fp.Lon, fp.Lat = p.X, p.Y
		if p.HasZ {
			z := p.Z
			fp.Elevation = &z
		}
		kept = append(kept, fp)
	}
	g.RebuildFromPoints(kept)
}

// Lines returns the routes with at least two points as line strings.
func (g *GPX) Lines() []orb.LineString {
	var lines []orb.LineString
	for _, rte := range g.Routes {
		if len(rte.Points) < 2 {
			continue
		}
		ls := make(orb.LineString, len(rte.Points))
		for i, p := range rte.Points {
			ls[i] = orb.Point{p.Lon, p.Lat}
		}
		lines = append(lines, ls)
	}
	return lines
}

// AddRoute appends line as a route.
func (g *GPX) AddRoute(name string, line orb.LineString) {
	rte := Route{Name: name, Points: make([]Point, len(line))}
	for i, p := range line {
		rte.Points[i] = Point{Lat: p[1], Lon: p[0]}
	}
	g.Routes = append(g.Routes, rte)
}

// FromTrajectory builds a single-track document from t. Points whose
// timestamp cannot be resolved are written without a time.
func FromTrajectory(name string, t track.Trajectory, timestamp track.TimeField) *GPX {
	g := New(name)
	seg := TrackSegment{Points: make([]Point, len(t))}
	for i, p := range t {
		gp := Point{Lat: p.Y, Lon: p.X, PtIdx: i}
		if p.HasZ {
			z := p.Z
			gp.Elevation = &z
		}
		if ts, err := timestamp.Value(p); err == nil {
			ts = ts.UTC()
			gp.Time = &ts
		}
		seg.Points[i] = gp
	}
	g.Tracks = []Track{{Name: name, Segments: []TrackSegment{seg}}}
	return g
}
