package geojson

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/twpayne/go-polyline"

	"github.com/planbiir/trackalign/internal/geom"
)

// EncodePolyline encodes a lon/lat line in the Google encoded polyline
// format (lat/lon order, 5 decimals).
func EncodePolyline(line orb.LineString) string {
	coords := make([][]float64, len(line))
	for i, p := range line {
		coords[i] = []float64{p[1], p[0]}
	}
	return string(polyline.EncodeCoords(coords))
}

// DecodePolyline decodes an encoded polyline into a lon/lat line.
func DecodePolyline(s string) (orb.LineString, error) {
	coords, rest, err := polyline.DecodeCoords([]byte(s))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", geom.ErrInvalidGeometry, err)
	}
	if len(rest) > 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes in polyline", geom.ErrInvalidGeometry, len(rest))
	}

	vertices := make([]orb.Point, len(coords))
	for i, c := range coords {
		vertices[i] = orb.Point{c[1], c[0]}
	}
	return geom.LineFromVertices(vertices)
}
