package metrics

import (
	"errors"
	"math"
)

// DefaultElevationFactor is the MET added per meter climbed per 100 m covered.
const DefaultElevationFactor = 0.5

var ErrInvalidWeight = errors.New("weight must be a positive finite number")

type metEntry struct {
	speed float64 // km/h
	met   float64
}

// metTable runs from very slow walking to fast sprinting; both columns are
// non-decreasing so interpolation stays monotonic.
var metTable = []metEntry{
	{3, 2.3}, {3.5, 2.8}, {4, 3.0}, {4.5, 3.5}, {5, 4.0}, {5.5, 5.0},
	{6, 6.0}, {6.5, 6.5}, {7, 7.0}, {7.5, 7.5}, {8, 8.3}, {8.5, 9.0},
	{9, 9.8}, {9.5, 10.5}, {10, 11.0}, {10.5, 11.5}, {11, 12.3}, {12, 12.8},
	{13, 13.5}, {14, 14.0}, {15, 14.5}, {16, 16.0}, {18, 18.0}, {20, 19.8},
}

// CalorieEstimator converts speed and climbing into energy expenditure and
// keeps a running total.
type CalorieEstimator struct {
	ElevationFactor float64

	total float64
}

func NewCalorieEstimator() *CalorieEstimator {
	return &CalorieEstimator{ElevationFactor: DefaultElevationFactor}
}

// METFor interpolates the MET value for a speed in km/h, clamped to the table.
func (c *CalorieEstimator) METFor(speed float64) float64 {
	first, last := metTable[0], metTable[len(metTable)-1]
	if speed <= first.speed {
		return first.met
	}
	if speed >= last.speed {
		return last.met
	}
	for i := 0; i < len(metTable)-1; i++ {
		lo, hi := metTable[i], metTable[i+1]
		if speed >= lo.speed && speed < hi.speed {
			ratio := (speed - lo.speed) / (hi.speed - lo.speed)
			return lo.met + ratio*(hi.met-lo.met)
		}
	}
	return first.met
}

// AdjustedMET adds the climbing penalty to the base MET for speed.
func (c *CalorieEstimator) AdjustedMET(speed, elevationGain, distance float64) float64 {
	if speed == 0 || distance == 0 {
		return 0
	}
	return c.METFor(speed) + (elevationGain/distance)*100*c.ElevationFactor
}

// CaloriesForSegment returns kcal for one segment: MET x 3.5 x kg / 200 per minute.
func (c *CalorieEstimator) CaloriesForSegment(speed, elevationGain, distance float64, durationMs int64, weightKg float64) float64 {
	if durationMs == 0 || weightKg == 0 {
		return 0
	}
	perMinute := c.AdjustedMET(speed, elevationGain, distance) * 3.5 * weightKg / 200
	return perMinute * (float64(durationMs) / 60000)
}

func (c *CalorieEstimator) Add(kcal float64) {
	if math.IsNaN(kcal) || math.IsInf(kcal, 0) || kcal < 0 {
		return
	}
	c.total += kcal
}

func (c *CalorieEstimator) Total() float64 {
	return c.total
}

func (c *CalorieEstimator) Reset() {
	c.total = 0
}

// ValidateWeight rejects body weights that would poison the estimate.
func ValidateWeight(kg float64) error {
	if math.IsNaN(kg) || math.IsInf(kg, 0) || kg <= 0 {
		return ErrInvalidWeight
	}
	return nil
}
