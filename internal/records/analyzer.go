package records

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"backend-livetrack/internal/metrics"
)

// matchTolerance is how far a lap-less activity may be from a reference
// distance and still count as a time over it.
const matchTolerance = 100.0

// Store is the persistence the analyzer needs. *Service implements it.
// Update must run fn and the write atomically per user and distance.
type Store interface {
	Update(ctx context.Context, userID string, distanceM float64, fn func(cur *Record) (Record, bool)) (bool, error)
}

// Performance is a completed activity as seen by the analyzer.
type Performance struct {
	UserID          string
	ActivityID      string
	DistanceM       float64
	MovingDurationS float64
	Laps            []metrics.Lap
}

type Analyzer struct {
	store Store
	now   func() time.Time
}

func NewAnalyzer(store Store) *Analyzer {
	return &Analyzer{store: store, now: time.Now}
}

// TimeAtDistance returns the time in seconds it took to cover target meters.
// With laps the time is interpolated inside the lap that crosses target;
// without laps the whole activity counts only within matchTolerance.
func TimeAtDistance(laps []metrics.Lap, totalM, movingS, target float64) (float64, bool) {
	if len(laps) == 0 {
		if math.Abs(totalM-target) <= matchTolerance {
			return movingS, movingS > 0
		}
		return 0, false
	}

	var cumDist, cumTime float64
	for _, lap := range laps {
		lapDuration := float64(lap.DurationMs) / 1000
		if lap.DistanceMeters > 0 && cumDist+lap.DistanceMeters >= target {
			remaining := target - cumDist
			t := cumTime + lapDuration*(remaining/lap.DistanceMeters)
			return t, t > 0
		}
		cumDist += lap.DistanceMeters
		cumTime += lapDuration
	}
	return 0, false
}

// Check compares p against the stored bests for every reference distance it
// covers and persists strict improvements. The superseded best moves to the
// record history. It returns one Result per new best.
func (a *Analyzer) Check(ctx context.Context, p Performance) ([]Result, error) {
	results := []Result{}
	for _, d := range ReferenceDistances {
		if p.DistanceM < d.Meters {
			continue
		}
		chrono, ok := TimeAtDistance(p.Laps, p.DistanceM, p.MovingDurationS, d.Meters)
		if !ok || math.IsInf(chrono, 0) || math.IsNaN(chrono) {
			continue
		}

		best := Entry{ChronoSeconds: chrono, Date: a.now().UTC(), ActivityID: p.ActivityID}
		improved, err := a.store.Update(ctx, p.UserID, d.Meters, func(cur *Record) (Record, bool) {
			if cur == nil {
				return Record{UserID: p.UserID, DistanceM: d.Meters, Best: best}, true
			}
			if cur.Best.ChronoSeconds <= chrono {
				return *cur, false
			}
			next := *cur
			next.History = append(append([]Entry{}, cur.History...), cur.Best)
			next.Best = best
			return next, true
		})
		if err != nil {
			return results, fmt.Errorf("update %s record: %w", d.Label, err)
		}
		if !improved {
			continue
		}
		slog.Info("records: new best", "user_id", p.UserID, "distance", d.Label, "chrono_s", chrono)

		results = append(results, Result{
			DistanceLabel:   d.Label,
			ChronoSeconds:   chrono,
			ChronoFormatted: FormatChrono(chrono),
			Pace:            FormatPace(d.Meters, chrono),
			Message:         fmt.Sprintf("You just set a new PR on %s!", d.Label),
		})
	}
	return results, nil
}
