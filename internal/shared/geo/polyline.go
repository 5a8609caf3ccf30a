package geo

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/twpayne/go-polyline"
)

// EncodePath encodes lon/lat points as a Google encoded polyline. The
// polyline format is latitude first, so every pair is flipped on the way out.
func EncodePath(points []orb.Point) string {
	if len(points) == 0 {
		return ""
	}
	coords := make([][]float64, len(points))
	for i, p := range points {
		coords[i] = []float64{p.Lat(), p.Lon()}
	}
	return string(polyline.EncodeCoords(coords))
}

// DecodePath reverses EncodePath and returns lon/lat points.
func DecodePath(encoded string) ([]orb.Point, error) {
	if encoded == "" {
		return nil, nil
	}
	coords, rest, err := polyline.DecodeCoords([]byte(encoded))
	if err != nil {
		return nil, fmt.Errorf("decode polyline: %w", err)
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("decode polyline: %d trailing bytes", len(rest))
	}
	points := make([]orb.Point, len(coords))
	for i, c := range coords {
		points[i] = orb.Point{c[1], c[0]}
	}
	return points, nil
}
