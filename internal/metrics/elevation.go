package metrics

import "math"

// Signal marks where an altitude sample sits in the activity.
type Signal int

const (
	SignalNormal Signal = iota
	SignalStart
	SignalStop
)

// ElevationData is the running elevation summary.
type ElevationData struct {
	Gain   float64 `json:"elevation_gain"`
	Loss   float64 `json:"elevation_loss"`
	AltMin float64 `json:"altitude_min"`
	AltMax float64 `json:"altitude_max"`
}

// ElevationTracker accumulates gain and loss over an altitude stream. Changes
// smaller than Threshold (meters) are treated as sensor noise.
type ElevationTracker struct {
	Threshold float64

	prev    float64
	hasPrev bool
	seeded  bool
	frozen  bool
	data    ElevationData
}

func NewElevationTracker(threshold float64) *ElevationTracker {
	return &ElevationTracker{Threshold: threshold}
}

// Process feeds one altitude sample. Missing and non-finite samples are ignored.
func (e *ElevationTracker) Process(altitude *float64, signal Signal) {
	if altitude == nil || math.IsNaN(*altitude) || math.IsInf(*altitude, 0) {
		return
	}
	cur := *altitude

	switch signal {
	case SignalStart:
		e.prev = cur
		e.hasPrev = true
		e.seeded = true
		e.frozen = false
		e.data = ElevationData{AltMin: cur, AltMax: cur}
		return
	case SignalStop:
		e.frozen = true
		return
	}

	if e.frozen {
		return
	}
	if !e.hasPrev {
		e.prev = cur
		e.hasPrev = true
		if !e.seeded {
			e.data.AltMin = cur
			e.data.AltMax = cur
			e.seeded = true
		}
		return
	}

	delta := cur - e.prev
	if cur > e.data.AltMax+e.Threshold {
		e.data.AltMax = cur
	}
	if cur < e.data.AltMin-e.Threshold {
		e.data.AltMin = cur
	}
	if delta > e.Threshold {
		e.data.Gain += delta
	} else if delta < -e.Threshold {
		e.data.Loss += -delta
	}
	e.prev = cur
}

func (e *ElevationTracker) Data() ElevationData {
	return e.data
}

// Current returns the last accepted altitude, if any.
func (e *ElevationTracker) Current() (float64, bool) {
	return e.prev, e.hasPrev
}

// Frozen reports whether a stop signal has been processed.
func (e *ElevationTracker) Frozen() bool {
	return e.frozen
}

func (e *ElevationTracker) Reset() {
	*e = ElevationTracker{Threshold: e.Threshold}
}
