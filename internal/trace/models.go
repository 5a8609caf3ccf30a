package trace

import (
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

type State string

const (
	StateRecording   State = "recording"
	StateFinished    State = "finished"
	StateInterrupted State = "interrupted"
)

// Terminal reports whether s is a valid finalize target.
func (s State) Terminal() bool {
	return s == StateFinished || s == StateInterrupted
}

// Point is one buffered GPS fix, stored as a GeoJSON point with its timestamp
// (unix milliseconds) and optional altitude.
type Point struct {
	Geometry  geojson.Point `json:"geometry"`
	Timestamp int64         `json:"timestamp"`
	Altitude  *float64      `json:"altitude,omitempty"`
}

func NewPoint(p orb.Point, timestampMs int64, altitude *float64) Point {
	return Point{Geometry: geojson.Point(p), Timestamp: timestampMs, Altitude: altitude}
}

// Coordinates returns the lon/lat pair.
func (p Point) Coordinates() orb.Point {
	return orb.Point(p.Geometry)
}

type Trace struct {
	ID              string    `json:"id"`
	ActivityID      string    `json:"activity_id"`
	UserID          string    `json:"user_id"`
	State           State     `json:"state"`
	Buffer          []Point   `json:"-"`
	BufferSize      int       `json:"buffer_size"`
	TotalPoints     int       `json:"total_points"`
	EncodedPolyline *string   `json:"encoded_polyline"`
	SamplingRate    float64   `json:"sampling_rate"`
	CreatedAt       time.Time `json:"created_at"`
}
