package geo

import (
	"math"

	"github.com/paulmach/orb"
)

// EarthRadiusM is the mean Earth radius used for all great-circle distances.
const EarthRadiusM = 6371000.0

// HaversineMeters returns the great-circle distance between two lon/lat points.
func HaversineMeters(a, b orb.Point) float64 {
	if a == b {
		return 0
	}
	lat1 := radians(a.Lat())
	lat2 := radians(b.Lat())
	dLat := lat2 - lat1
	dLon := radians(b.Lon() - a.Lon())

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	// rounding can push h marginally outside [0,1]
	h = math.Min(1, math.Max(0, h))
	return 2 * EarthRadiusM * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// HaversineKm is the latitude-first variant kept for callers holding raw values.
func HaversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	return HaversineMeters(orb.Point{lon1, lat1}, orb.Point{lon2, lat2}) / 1000
}

// Valid reports whether p is a finite coordinate inside WGS84 bounds.
func Valid(p orb.Point) bool {
	lon, lat := p.Lon(), p.Lat()
	if math.IsNaN(lon) || math.IsNaN(lat) || math.IsInf(lon, 0) || math.IsInf(lat, 0) {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
