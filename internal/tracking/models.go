package tracking

import (
	"context"
	"errors"
	"time"

	"backend-livetrack/internal/activity"
	"backend-livetrack/internal/metrics"
	"backend-livetrack/internal/trace"

	"github.com/paulmach/orb"
)

var (
	ErrNotTracking    = errors.New("session is not tracking")
	ErrAlreadyStarted = errors.New("session already started")
	ErrInvalidFix     = errors.New("invalid gps fix")
	ErrSessionActive  = errors.New("user already has an active session")
)

// ActivityStore is the part of the activity service a session writes to.
type ActivityStore interface {
	CreateBlank(ctx context.Context, userID string, t activity.Type) (string, error)
	Update(ctx context.Context, id string, patch activity.Update) (activity.Activity, error)
}

// TraceStore is the part of the trace service a session writes to.
type TraceStore interface {
	CreateBlank(ctx context.Context, activityID, userID string) (string, error)
	AppendPoints(ctx context.Context, traceID string, points []trace.Point) (int, error)
	Finalize(ctx context.Context, traceID string, state trace.State) (trace.Trace, error)
}

// Broadcaster fans a stats snapshot out to spectators of an activity.
type Broadcaster interface {
	Broadcast(activityID string, payload []byte)
}

type State int

const (
	StateUninitialized State = iota
	StateTracking
	StateFinalized
)

func (s State) String() string {
	switch s {
	case StateTracking:
		return "tracking"
	case StateFinalized:
		return "finalized"
	default:
		return "uninitialized"
	}
}

// Fix is one GPS sample. Timestamp is unix milliseconds.
type Fix struct {
	Point     orb.Point
	Timestamp int64
	Altitude  *float64
}

type Options struct {
	SaveInterval       time.Duration
	StoreTimeout       time.Duration
	ElevationThreshold float64
	WeightKg           float64
	ActivityType       activity.Type
}

func (o Options) withDefaults() Options {
	if o.SaveInterval <= 0 {
		o.SaveInterval = 10 * time.Second
	}
	if o.StoreTimeout <= 0 {
		o.StoreTimeout = 5 * time.Second
	}
	if o.WeightKg <= 0 {
		o.WeightKg = 70
	}
	if o.ActivityType == "" {
		o.ActivityType = activity.TypeRun
	}
	return o
}

// Stats is a point-in-time view of a session.
type Stats struct {
	ActivityID     string                `json:"activity_id"`
	TraceID        string                `json:"trace_id"`
	State          string                `json:"state"`
	DistanceM      float64               `json:"distance_m"`
	DurationMs     int64                 `json:"duration_ms"`
	AvgSpeedKmh    float64               `json:"avg_speed_kmh"`
	Elevation      metrics.ElevationData `json:"elevation"`
	Calories       float64               `json:"calories"`
	PointsBuffered int                   `json:"points_buffered"`
	Laps           metrics.LapSummary    `json:"laps"`
}
