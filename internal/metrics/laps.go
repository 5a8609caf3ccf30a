package metrics

// Lap is one sealed segment of an activity. Timestamps are unix milliseconds.
type Lap struct {
	Number          int     `json:"number"`
	StartTimestamp  int64   `json:"start_timestamp"`
	StartDistance   float64 `json:"start_distance"`
	StartElevation  float64 `json:"start_elevation"`
	EndTimestamp    int64   `json:"end_timestamp"`
	EndDistance     float64 `json:"end_distance"`
	EndElevation    float64 `json:"end_elevation"`
	DurationMs      int64   `json:"duration_ms"`
	DistanceMeters  float64 `json:"distance_m"`
	ElevationGain   float64 `json:"elevation_gain_m"`
	ElevationChange float64 `json:"elevation_change_m"`
	AvgSpeedKmh     float64 `json:"avg_speed_kmh"`
	PaceMsPerKm     float64 `json:"pace_ms_per_km"`
}

// OpenLap is the lap currently being recorded.
type OpenLap struct {
	Number         int     `json:"number"`
	StartTimestamp int64   `json:"start_timestamp"`
	StartDistance  float64 `json:"start_distance"`
	StartElevation float64 `json:"start_elevation"`
	startGain      float64
}

type LapAverages struct {
	AvgDistance      float64 `json:"avg_distance_m"`
	AvgDuration      float64 `json:"avg_duration_ms"`
	AvgSpeed         float64 `json:"avg_speed_kmh"`
	AvgPace          float64 `json:"avg_pace_ms_per_km"`
	AvgElevationGain float64 `json:"avg_elevation_gain_m"`
}

type LapSummary struct {
	TotalLaps  int         `json:"total_laps"`
	Laps       []Lap       `json:"laps"`
	FastestLap *Lap        `json:"fastest_lap"`
	SlowestLap *Lap        `json:"slowest_lap"`
	Averages   LapAverages `json:"averages"`
	CurrentLap *OpenLap    `json:"current_lap"`
}

// LapTracker splits an activity into laps on demand.
type LapTracker struct {
	laps    []Lap
	current *OpenLap
}

// StartLap seals any open lap with the same figures, then opens the next one.
func (t *LapTracker) StartLap(ts int64, cumDistance, curElevation, cumGain float64) {
	if t.current != nil {
		t.EndLap(ts, cumDistance, curElevation, cumGain)
	}
	t.current = &OpenLap{
		Number:         len(t.laps) + 1,
		StartTimestamp: ts,
		StartDistance:  cumDistance,
		StartElevation: curElevation,
		startGain:      cumGain,
	}
}

// EndLap seals the open lap. It reports false when no lap was open.
func (t *LapTracker) EndLap(ts int64, cumDistance, curElevation, cumGain float64) (Lap, bool) {
	if t.current == nil {
		return Lap{}, false
	}
	open := t.current
	duration := ts - open.StartTimestamp
	distance := cumDistance - open.StartDistance

	lap := Lap{
		Number:          open.Number,
		StartTimestamp:  open.StartTimestamp,
		StartDistance:   open.StartDistance,
		StartElevation:  open.StartElevation,
		EndTimestamp:    ts,
		EndDistance:     cumDistance,
		EndElevation:    curElevation,
		DurationMs:      duration,
		DistanceMeters:  distance,
		ElevationGain:   cumGain - open.startGain,
		ElevationChange: curElevation - open.StartElevation,
		AvgSpeedKmh:     SpeedKmh(distance, duration),
		PaceMsPerKm:     PaceMsPerKm(distance, duration),
	}
	t.laps = append(t.laps, lap)
	t.current = nil
	return lap, true
}

// Laps returns a copy of the sealed laps.
func (t *LapTracker) Laps() []Lap {
	out := make([]Lap, len(t.laps))
	copy(out, t.laps)
	return out
}

func (t *LapTracker) Current() *OpenLap {
	if t.current == nil {
		return nil
	}
	c := *t.current
	return &c
}

func (t *LapTracker) Count() int {
	return len(t.laps)
}

// Lap returns the sealed lap with the given 1-based number.
func (t *LapTracker) Lap(number int) (Lap, bool) {
	for _, l := range t.laps {
		if l.Number == number {
			return l, true
		}
	}
	return Lap{}, false
}

func (t *LapTracker) Fastest() *Lap {
	return t.pick(func(candidate, best Lap) bool { return candidate.AvgSpeedKmh > best.AvgSpeedKmh })
}

func (t *LapTracker) Slowest() *Lap {
	return t.pick(func(candidate, best Lap) bool { return candidate.AvgSpeedKmh < best.AvgSpeedKmh })
}

func (t *LapTracker) pick(better func(candidate, best Lap) bool) *Lap {
	if len(t.laps) == 0 {
		return nil
	}
	best := t.laps[0]
	for _, l := range t.laps[1:] {
		if better(l, best) {
			best = l
		}
	}
	return &best
}

func (t *LapTracker) Averages() LapAverages {
	if len(t.laps) == 0 {
		return LapAverages{}
	}
	var sum LapAverages
	for _, l := range t.laps {
		sum.AvgDistance += l.DistanceMeters
		sum.AvgDuration += float64(l.DurationMs)
		sum.AvgSpeed += l.AvgSpeedKmh
		sum.AvgPace += l.PaceMsPerKm
		sum.AvgElevationGain += l.ElevationGain
	}
	n := float64(len(t.laps))
	return LapAverages{
		AvgDistance:      sum.AvgDistance / n,
		AvgDuration:      sum.AvgDuration / n,
		AvgSpeed:         sum.AvgSpeed / n,
		AvgPace:          sum.AvgPace / n,
		AvgElevationGain: sum.AvgElevationGain / n,
	}
}

func (t *LapTracker) Summary() LapSummary {
	return LapSummary{
		TotalLaps:  len(t.laps),
		Laps:       t.Laps(),
		FastestLap: t.Fastest(),
		SlowestLap: t.Slowest(),
		Averages:   t.Averages(),
		CurrentLap: t.Current(),
	}
}

func (t *LapTracker) Reset() {
	t.laps = nil
	t.current = nil
}
