package activity

import (
	"time"

	"backend-livetrack/internal/metrics"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

type Type string

const (
	TypeRun     Type = "run"
	TypeTrail   Type = "trail"
	TypeWalk    Type = "walk"
	TypeCycling Type = "cycling"
	TypeHiking  Type = "hiking"
	TypeOther   Type = "other"
)

func (t Type) Valid() bool {
	switch t {
	case TypeRun, TypeTrail, TypeWalk, TypeCycling, TypeHiking, TypeOther:
		return true
	}
	return false
}

// Position is a start or end point of an activity.
type Position struct {
	Geometry  geojson.Point `json:"geometry"`
	Timestamp int64         `json:"timestamp"`
	Altitude  *float64      `json:"altitude,omitempty"`
}

func NewPosition(p orb.Point, timestampMs int64, altitude *float64) *Position {
	return &Position{Geometry: geojson.Point(p), Timestamp: timestampMs, Altitude: altitude}
}

type Activity struct {
	ID                string        `json:"id"`
	UserID            string        `json:"user_id"`
	Type              Type          `json:"activity_type"`
	Date              time.Time     `json:"date"`
	StartedAt         time.Time     `json:"started_at"`
	StoppedAt         time.Time     `json:"stopped_at"`
	DurationMs        int64         `json:"duration_ms"`
	MovingDurationS   float64       `json:"moving_duration_s"`
	DistanceM         float64       `json:"distance_m"`
	AvgSpeedKmh       float64       `json:"avg_speed_kmh"`
	ElevationGainM    float64       `json:"elevation_gain_m"`
	ElevationLossM    float64       `json:"elevation_loss_m"`
	AltitudeMaxM      *float64      `json:"altitude_max_m"`
	AltitudeMinM      *float64      `json:"altitude_min_m"`
	StartPosition     *Position     `json:"start_position"`
	EndPosition       *Position     `json:"end_position"`
	Laps              []metrics.Lap `json:"laps"`
	EstimatedCalories *float64      `json:"estimated_calories"`
	GPSTraceID        *string       `json:"gps_trace_id"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
}

// Update is a partial activity change. Nil fields are left untouched.
type Update struct {
	StartedAt         *time.Time
	StoppedAt         *time.Time
	DurationMs        *int64
	MovingDurationS   *float64
	DistanceM         *float64
	AvgSpeedKmh       *float64
	ElevationGainM    *float64
	ElevationLossM    *float64
	AltitudeMaxM      *float64
	AltitudeMinM      *float64
	StartPosition     *Position
	EndPosition       *Position
	Laps              []metrics.Lap
	EstimatedCalories *float64
}

func (u Update) Empty() bool {
	return u.StartedAt == nil && u.StoppedAt == nil && u.DurationMs == nil &&
		u.MovingDurationS == nil && u.DistanceM == nil && u.AvgSpeedKmh == nil &&
		u.ElevationGainM == nil && u.ElevationLossM == nil &&
		u.AltitudeMaxM == nil && u.AltitudeMinM == nil &&
		u.StartPosition == nil && u.EndPosition == nil &&
		u.Laps == nil && u.EstimatedCalories == nil
}

func (u Update) apply(a *Activity) {
	if u.StartedAt != nil {
		a.StartedAt = *u.StartedAt
	}
	if u.StoppedAt != nil {
		a.StoppedAt = *u.StoppedAt
	}
	if u.DurationMs != nil {
		a.DurationMs = *u.DurationMs
	}
	if u.MovingDurationS != nil {
		a.MovingDurationS = *u.MovingDurationS
	}
	if u.DistanceM != nil {
		a.DistanceM = *u.DistanceM
	}
	if u.AvgSpeedKmh != nil {
		a.AvgSpeedKmh = *u.AvgSpeedKmh
	}
	if u.ElevationGainM != nil {
		a.ElevationGainM = *u.ElevationGainM
	}
	if u.ElevationLossM != nil {
		a.ElevationLossM = *u.ElevationLossM
	}
	if u.AltitudeMaxM != nil {
		a.AltitudeMaxM = u.AltitudeMaxM
	}
	if u.AltitudeMinM != nil {
		a.AltitudeMinM = u.AltitudeMinM
	}
	if u.StartPosition != nil {
		a.StartPosition = u.StartPosition
	}
	if u.EndPosition != nil {
		a.EndPosition = u.EndPosition
	}
	if u.Laps != nil {
		a.Laps = u.Laps
	}
	if u.EstimatedCalories != nil {
		a.EstimatedCalories = u.EstimatedCalories
	}
}

// UserStats are lifetime totals over a user's completed activities.
type UserStats struct {
	UserID          string    `json:"user_id"`
	TotalKm         float64   `json:"total_km"`
	TotalTimeS      float64   `json:"total_time_s"`
	TotalActivities int       `json:"total_activities"`
	TotalElevationM float64   `json:"total_elevation_m"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type ListFilter struct {
	Type   Type
	Limit  int
	Offset int
}
