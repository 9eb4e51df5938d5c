// Package gpx reads and writes GPX 1.1 documents and converts them to and
// from trajectory points.
package gpx

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
)

const (
	Namespace = "http://www.topografix.com/GPX/1/1"
	Creator   = "trackalign"
)

// Parse reads a GPX file, preserving extensions and namespaces.
func Parse(filename string) (*GPX, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	return ParseReader(file)
}

// ParseReader parses GPX from r.
func ParseReader(r io.Reader) (*GPX, error) {
	var g GPX
	if err := xml.NewDecoder(r).Decode(&g); err != nil {
		return nil, fmt.Errorf("failed to parse GPX: %w", err)
	}

	if g.XMLNS == "" {
		g.XMLNS = Namespace
	}
	if g.Version == "" {
		g.Version = "1.1"
	}
	if g.Creator == "" {
		g.Creator = Creator
	}

	for ti := range g.Tracks {
		for si := range g.Tracks[ti].Segments {
			pts := g.Tracks[ti].Segments[si].Points
			for pi := range pts {
				pts[pi].TrackIdx, pts[pi].SegIdx, pts[pi].PtIdx = ti, si, pi
			}
		}
	}
	return &g, nil
}

// New returns an empty document.
func New(name string) *GPX {
	g := &GPX{Version: "1.1", Creator: Creator, XMLNS: Namespace}
	if name != "" {
		g.Metadata = &Metadata{Name: name}
	}
	return g
}

// Write saves the document to filename.
func (g *GPX) Write(filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	return g.WriteToWriter(file)
}

// WriteToWriter writes the document to w.
func (g *GPX) WriteToWriter(w io.Writer) error {
	if _, err := w.Write([]byte(xml.Header)); err != nil {
		return err
	}

	encoder := xml.NewEncoder(w)
	encoder.Indent("", "  ")
	if err := encoder.Encode(g); err != nil {
		return fmt.Errorf("failed to encode GPX: %w", err)
	}
	return encoder.Flush()
}

// FlattenPoints returns all track points of all tracks and segments in
// file order.
func (g *GPX) FlattenPoints() []Point {
	var points []Point
	for ti, trk := range g.Tracks {
		for si, seg := range trk.Segments {
			for pi, p := range seg.Points {
				p.TrackIdx, p.SegIdx, p.PtIdx = ti, si, pi
				points = append(points, p)
			}
		}
	}
	return points
}

// RebuildFromPoints replaces the track points with points, grouped back
// into their original tracks and segments. Segments and tracks left empty
// are dropped.
func (g *GPX) RebuildFromPoints(points []Point) {
	trackMap := make(map[int]map[int][]Point)
	for _, p := range points {
		if trackMap[p.TrackIdx] == nil {
			trackMap[p.TrackIdx] = make(map[int][]Point)
		}
		trackMap[p.TrackIdx][p.SegIdx] = append(trackMap[p.TrackIdx][p.SegIdx], p)
	}

	var tracks []Track
	for ti, trk := range g.Tracks {
		segMap, ok := trackMap[ti]
		if !ok {
			continue
		}
		var segs []TrackSegment
		for si, seg := range trk.Segments {
			if pts := segMap[si]; len(pts) > 0 {
				segs = append(segs, TrackSegment{Points: pts, Extensions: seg.Extensions})
			}
		}
		if len(segs) > 0 {
			trk.Segments = segs
			tracks = append(tracks, trk)
		}
	}
	g.Tracks = tracks
}

// Stats returns basic statistics about the track points. distance is in km.
func (g *GPX) Stats() (pointCount int, trackCount int, segmentCount int, duration time.Duration, distance float64) {
	points := g.FlattenPoints()
	pointCount = len(points)
	trackCount = len(g.Tracks)

	for _, trk := range g.Tracks {
		segmentCount += len(trk.Segments)
	}

	if len(points) >= 2 {
		first, last := points[0].Time, points[len(points)-1].Time
		if first != nil && last != nil {
			duration = last.Sub(*first)
		}
		for i := 1; i < len(points); i++ {
			distance += basicDistance(points[i-1], points[i])
		}
	}
	return
}

// basicDistance is the haversine distance between two points in km.
func basicDistance(p1, p2 Point) float64 {
	return geo.DistanceHaversine(orb.Point{p1.Lon, p1.Lat}, orb.Point{p2.Lon, p2.Lat}) / 1000
}
