package metrics

import (
	"backend-livetrack/internal/shared/geo"

	"github.com/paulmach/orb"
)

// DistanceAccumulator sums great-circle distances between consecutive points.
type DistanceAccumulator struct {
	prev    orb.Point
	hasPrev bool
	total   float64
}

// AddPoint records p and returns the distance from the previous point. The
// first call only stores the point and reports ok=false.
func (d *DistanceAccumulator) AddPoint(p orb.Point) (delta float64, ok bool) {
	if !d.hasPrev {
		d.prev = p
		d.hasPrev = true
		return 0, false
	}
	delta = geo.HaversineMeters(d.prev, p)
	d.total += delta
	d.prev = p
	return delta, true
}

// Total returns the accumulated distance in meters.
func (d *DistanceAccumulator) Total() float64 {
	return d.total
}

func (d *DistanceAccumulator) Reset() {
	*d = DistanceAccumulator{}
}
