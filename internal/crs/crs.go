// Package crs names coordinate reference systems and reprojects geometry
// between the ones the tool understands.
package crs

import (
	"errors"
	"fmt"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
)

// Code is an authority code such as "EPSG:4326".
type Code string

// Supported reference systems.
const (
	WGS84       Code = "EPSG:4326"
	WebMercator Code = "EPSG:3857"
)

// ErrUnsupported is returned for transforms between unknown systems.
var ErrUnsupported = errors.New("unsupported coordinate reference system")

// Parse normalizes common spellings of the supported codes.
func Parse(s string) (Code, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "EPSG:4326", "4326", "WGS84", "CRS84", "OGC:CRS84":
		return WGS84, nil
	case "EPSG:3857", "3857", "EPSG:900913", "900913", "WEBMERCATOR":
		return WebMercator, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupported, s)
	}
}

// Transformer reprojects geometry from one reference system to another.
type Transformer interface {
	Transform(g orb.Geometry, from, to Code) (orb.Geometry, error)
}

// Projector transforms between WGS84 and Web Mercator.
type Projector struct{}

// Transform returns a reprojected copy of g. The input is not modified.
func (Projector) Transform(g orb.Geometry, from, to Code) (orb.Geometry, error) {
	if from == to {
		return orb.Clone(g), nil
	}

	var proj orb.Projection
	switch {
	case from == WGS84 && to == WebMercator:
		proj = project.WGS84.ToMercator
	case from == WebMercator && to == WGS84:
		proj = project.Mercator.ToWGS84
	default:
		return nil, fmt.Errorf("%w: %s -> %s", ErrUnsupported, from, to)
	}

	return project.Geometry(orb.Clone(g), proj), nil
}

// TransformLine is Transform for line strings.
func TransformLine(t Transformer, line orb.LineString, from, to Code) (orb.LineString, error) {
	g, err := t.Transform(line, from, to)
	if err != nil {
		return nil, err
	}
	ls, ok := g.(orb.LineString)
	if !ok {
		return nil, fmt.Errorf("transform returned %T, want line string", g)
	}
	return ls, nil
}
