package tracking

import (
	"math"

	"github.com/paulmach/orb"
)

const (
	msgSubscribe   = "subscribe"
	msgFix         = "fix"
	msgLap         = "lap"
	msgUnsubscribe = "unsubscribe"

	msgSubscribed = "subscribed"
	msgFinished   = "finished"
	msgStats      = "stats"
	msgError      = "error"
)

// inbound is one client message. Fixes may omit type.
type inbound struct {
	Type         string   `json:"type"`
	Lat          *float64 `json:"lat"`
	Long         *float64 `json:"long"`
	Start        bool     `json:"start"`
	Stop         bool     `json:"stop"`
	Timestamp    *int64   `json:"timestamp"`
	WeightKg     *float64 `json:"weight_kg"`
	ActivityType string   `json:"activity_type"`
}

// kind treats an untyped message carrying any coordinate as a fix, so a fix
// missing one coordinate is dropped by point rather than rejected.
func (m inbound) kind() string {
	if m.Type == "" && (m.Lat != nil || m.Long != nil) {
		return msgFix
	}
	return m.Type
}

// point reports false when either coordinate is missing or not finite.
func (m inbound) point() (orb.Point, bool) {
	if m.Lat == nil || m.Long == nil {
		return orb.Point{}, false
	}
	lat, lon := *m.Lat, *m.Long
	if math.IsNaN(lat) || math.IsInf(lat, 0) || math.IsNaN(lon) || math.IsInf(lon, 0) {
		return orb.Point{}, false
	}
	return orb.Point{lon, lat}, true
}

func (m inbound) timestampOr(fallback int64) int64 {
	if m.Timestamp == nil {
		return fallback
	}
	return *m.Timestamp
}

type outbound struct {
	Type       string `json:"type"`
	ActivityID string `json:"activity_id,omitempty"`
	TraceID    string `json:"trace_id,omitempty"`
	Stats      *Stats `json:"stats,omitempty"`
	Error      string `json:"error,omitempty"`
}
