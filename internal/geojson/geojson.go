// Package geojson reads point and line layers from GeoJSON (RFC 7946) and
// writes results back as feature collections.
package geojson

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/paulmach/orb"
	geo "github.com/paulmach/orb/geojson"

	"github.com/planbiir/trackalign/internal/geom"
	"github.com/planbiir/trackalign/internal/track"
)

// Properties read as the point elevation. GeoJSON positions may carry a
// third coordinate but it is not kept by the decoder.
var elevationKeys = []string{"ele", "elevation", "altitude", "z"}

// Layer is the content of a GeoJSON document split by geometry type.
type Layer struct {
	Points []track.Point
	Lines  []orb.LineString
}

// ReadFile reads a GeoJSON document from disk.
func ReadFile(path string) (Layer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Layer{}, fmt.Errorf("failed to read file: %w", err)
	}
	return Read(data)
}

// Read decodes a FeatureCollection. Point features become points carrying
// their properties as attributes; LineString and MultiLineString features
// become lines. Positive integer feature ids are kept; other points get
// id 0 and are numbered when loaded into a store.
func Read(data []byte) (Layer, error) {
	fc, err := geo.UnmarshalFeatureCollection(data)
	if err != nil {
		return Layer{}, fmt.Errorf("invalid GeoJSON: %w", err)
	}

	var layer Layer
	for i, f := range fc.Features {
		switch g := f.Geometry.(type) {
		case orb.Point:
			layer.Points = append(layer.Points, point(f, g))
		case orb.MultiPoint:
			for _, p := range g {
				mp := point(f, p)
				mp.ID = 0
				layer.Points = append(layer.Points, mp)
			}
		case orb.LineString:
			layer.Lines = append(layer.Lines, g)
		case orb.MultiLineString:
			layer.Lines = append(layer.Lines, g...)
		default:
			return Layer{}, fmt.Errorf("feature %d: unsupported geometry %s", i, f.Geometry.GeoJSONType())
		}
	}

	for i, l := range layer.Lines {
		if err := geom.ValidateLine(l); err != nil {
			return Layer{}, fmt.Errorf("line %d: %w", i, err)
		}
	}
	return layer, nil
}

func point(f *geo.Feature, pos orb.Point) track.Point {
	p := track.Point{
		ID:    featureID(f.ID),
		X:     pos[0],
		Y:     pos[1],
		Attrs: track.Attributes{},
	}
	for k, v := range f.Properties {
		p.Attrs[k] = v
	}
	for _, k := range elevationKeys {
		if z, ok := f.Properties[k].(float64); ok {
			p.Z, p.HasZ = z, true
			break
		}
	}
	return p
}

func featureID(id any) track.ID {
	switch v := id.(type) {
	case float64:
		if v > 0 && v == float64(int64(v)) {
			return track.ID(v)
		}
	case json.Number:
		if n, err := v.Int64(); err == nil && n > 0 {
			return track.ID(n)
		}
	}
	return 0
}

// PointCollection builds a feature collection from points. Attributes
// become properties.
func PointCollection(points []track.Point) *geo.FeatureCollection {
	fc := geo.NewFeatureCollection()
	for _, p := range points {
		f := geo.NewFeature(p.Position())
		f.ID = int64(p.ID)
		for k, v := range p.Attrs {
			f.Properties[k] = v
		}
		if p.HasZ {
			f.Properties["ele"] = p.Z
		}
		fc.Append(f)
	}
	return fc
}

// CorridorCollection builds a feature collection of corridor outlines.
func CorridorCollection(corridors []*geom.Corridor) *geo.FeatureCollection {
	fc := geo.NewFeatureCollection()
	for i, c := range corridors {
		f := geo.NewFeature(c.Polygon)
		f.ID = i + 1
		f.Properties["distance"] = c.Distance
		f.Properties["segments"] = c.Segments
		fc.Append(f)
	}
	return fc
}

// LineCollection builds a feature collection holding line with props.
func LineCollection(line orb.LineString, props map[string]any) *geo.FeatureCollection {
	fc := geo.NewFeatureCollection()
	f := geo.NewFeature(line)
	for k, v := range props {
		f.Properties[k] = v
	}
	fc.Append(f)
	return fc
}

// Write encodes fc to w.
func Write(w io.Writer, fc *geo.FeatureCollection) error {
	data, err := json.MarshalIndent(fc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode GeoJSON: %w", err)
	}
	_, err = w.Write(append(data, '\n'))
	return err
}

// WriteFile encodes fc to path.
func WriteFile(path string, fc *geo.FeatureCollection) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()
	return Write(file, fc)
}
