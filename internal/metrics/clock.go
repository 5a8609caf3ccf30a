package metrics

// ActivityClock tracks the start and stop timestamps (unix milliseconds).
type ActivityClock struct {
	start, stop       int64
	hasStart, hasStop bool
}

func (c *ActivityClock) SetStart(ms int64) {
	c.start = ms
	c.hasStart = true
}

func (c *ActivityClock) SetStop(ms int64) {
	c.stop = ms
	c.hasStop = true
}

// Start returns the start timestamp, if set.
func (c *ActivityClock) Start() (int64, bool) {
	return c.start, c.hasStart
}

// Stop returns the stop timestamp, if set.
func (c *ActivityClock) Stop() (int64, bool) {
	return c.stop, c.hasStop
}

// Duration returns |stop-start| in milliseconds, or 0 while either end is unset.
func (c *ActivityClock) Duration() int64 {
	if !c.hasStart || !c.hasStop {
		return 0
	}
	d := c.stop - c.start
	if d < 0 {
		return -d
	}
	return d
}

// AverageSpeed returns km/h for the given distance in meters.
func (c *ActivityClock) AverageSpeed(distanceM float64) float64 {
	return SpeedKmh(distanceM, c.Duration())
}

func (c *ActivityClock) Reset() {
	*c = ActivityClock{}
}

// SpeedKmh converts meters over milliseconds to km/h; 0 when no time elapsed.
func SpeedKmh(distanceM float64, durationMs int64) float64 {
	if durationMs == 0 {
		return 0
	}
	return (distanceM / 1000) / (float64(durationMs) / 3600000)
}

// PaceMsPerKm returns milliseconds per kilometer; 0 when no distance covered.
func PaceMsPerKm(distanceM float64, durationMs int64) float64 {
	if distanceM == 0 {
		return 0
	}
	return float64(durationMs) / (distanceM / 1000)
}
