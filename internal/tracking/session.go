package tracking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"backend-livetrack/internal/activity"
	"backend-livetrack/internal/metrics"
	"backend-livetrack/internal/shared/geo"
	"backend-livetrack/internal/trace"
)

// Session tracks one live activity for one connection.
//
// mu guards the tracker state and the pending point buffer. saveMu
// serializes saves so a periodic tick and the final save never overlap.
// Store I/O always runs without mu held, so fixes keep flowing while a
// flush is in flight.
type Session struct {
	activities ActivityStore
	traces     TraceStore
	opts       Options
	hooks      []func(context.Context, Stats)
	tickHooks  []func(context.Context)

	saveMu sync.Mutex

	mu         sync.Mutex
	state      State
	userID     string
	activityID string
	traceID    string
	weightKg   float64

	distance  metrics.DistanceAccumulator
	elevation *metrics.ElevationTracker
	clock     metrics.ActivityClock
	calories  *metrics.CalorieEstimator
	laps      metrics.LapTracker

	pending   []trace.Point
	startPos  *activity.Position
	endPos    *activity.Position
	firstTs   int64
	lastTs    int64
	hasFix    bool
	segment   segmentMark
	stopTimer chan struct{}
	timerDone chan struct{}
}

// segmentMark remembers the totals at the previous save so calories can be
// estimated per save interval.
type segmentMark struct {
	distance   float64
	gain       float64
	durationMs int64
}

func NewSession(activities ActivityStore, traces TraceStore, opts Options) *Session {
	opts = opts.withDefaults()
	return &Session{
		activities: activities,
		traces:     traces,
		opts:       opts,
		weightKg:   opts.WeightKg,
		elevation:  metrics.NewElevationTracker(opts.ElevationThreshold),
		calories:   metrics.NewCalorieEstimator(),
	}
}

// OnSave registers fn to run after every successful save. Hooks must be
// registered before Begin.
func (s *Session) OnSave(fn func(context.Context, Stats)) {
	s.hooks = append(s.hooks, fn)
}

// OnTick registers fn to run on every periodic save tick, whether or not
// the save succeeded. Hooks must be registered before Begin.
func (s *Session) OnTick(fn func(context.Context)) {
	s.tickHooks = append(s.tickHooks, fn)
}

// Begin creates the blank activity and trace and starts periodic saves.
func (s *Session) Begin(ctx context.Context, userID string) error {
	s.mu.Lock()
	if s.state != StateUninitialized {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.mu.Unlock()

	cctx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	activityID, err := s.activities.CreateBlank(cctx, userID, s.opts.ActivityType)
	cancel()
	if err != nil {
		return fmt.Errorf("create activity: %w", err)
	}

	cctx, cancel = context.WithTimeout(ctx, s.opts.StoreTimeout)
	traceID, err := s.traces.CreateBlank(cctx, activityID, userID)
	cancel()
	if err != nil {
		return fmt.Errorf("create trace for activity %s: %w", activityID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateUninitialized {
		return ErrAlreadyStarted
	}
	s.userID = userID
	s.activityID = activityID
	s.traceID = traceID
	s.state = StateTracking
	s.stopTimer = make(chan struct{})
	s.timerDone = make(chan struct{})
	go s.runTimer(s.opts.SaveInterval, s.stopTimer, s.timerDone)

	slog.Info("tracking: session started", "user_id", userID, "activity_id", activityID, "trace_id", traceID)
	return nil
}

func (s *Session) runTimer(interval time.Duration, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			err := s.Save(context.Background())
			if errors.Is(err, ErrNotTracking) {
				return
			}
			if err != nil {
				slog.Warn("tracking: periodic save failed, retrying next tick",
					"activity_id", s.ActivityID(), "trace_id", s.TraceID(), "error", err)
			}
			for _, fn := range s.tickHooks {
				ctx, cancel := context.WithTimeout(context.Background(), s.opts.StoreTimeout)
				fn(ctx)
				cancel()
			}
		}
	}
}

// OnFix feeds one GPS sample into the trackers and buffers it for the next
// flush. Start and stop fixes also set the clock and the start/end positions,
// which are persisted with the next save.
func (s *Session) OnFix(fix Fix, isStart, isStop bool) error {
	if !geo.Valid(fix.Point) {
		return ErrInvalidFix
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateTracking {
		return ErrNotTracking
	}

	s.pending = append(s.pending, trace.NewPoint(fix.Point, fix.Timestamp, fix.Altitude))

	signal := metrics.SignalNormal
	if isStart {
		signal = metrics.SignalStart
		s.clock.SetStart(fix.Timestamp)
		s.startPos = activity.NewPosition(fix.Point, fix.Timestamp, fix.Altitude)
	}
	if isStop {
		signal = metrics.SignalStop
		s.clock.SetStop(fix.Timestamp)
		s.endPos = activity.NewPosition(fix.Point, fix.Timestamp, fix.Altitude)
	}

	s.distance.AddPoint(fix.Point)
	s.elevation.Process(fix.Altitude, signal)

	if !s.hasFix {
		s.firstTs = fix.Timestamp
		s.hasFix = true
	}
	s.lastTs = fix.Timestamp
	return nil
}

// StartLap closes the open lap, if any, and opens a new one at ts.
func (s *Session) StartLap(ts int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateTracking {
		return ErrNotTracking
	}
	cur, _ := s.elevation.Current()
	s.laps.StartLap(ts, s.distance.Total(), cur, s.elevation.Data().Gain)
	return nil
}

// SetWeight changes the body weight used for calorie estimates from the next
// save on.
func (s *Session) SetWeight(kg float64) error {
	if err := metrics.ValidateWeight(kg); err != nil {
		return err
	}
	s.mu.Lock()
	s.weightKg = kg
	s.mu.Unlock()
	return nil
}

// Save flushes buffered points and writes the current snapshot to the
// activity. A failed flush puts the batch back in front of newer fixes.
func (s *Session) Save(ctx context.Context) error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.Lock()
	if s.state != StateTracking {
		s.mu.Unlock()
		return ErrNotTracking
	}
	batch, patch, stats := s.takeSnapshotLocked()
	s.mu.Unlock()

	return s.persist(ctx, batch, patch, stats)
}

// End performs the final save, then finalizes the trace with final even if
// that save failed, so the trace never stays recording.
func (s *Session) End(ctx context.Context, final trace.State) (Stats, error) {
	s.mu.Lock()
	if s.state != StateTracking {
		s.mu.Unlock()
		return Stats{}, ErrNotTracking
	}
	s.state = StateFinalized
	stop, done := s.stopTimer, s.timerDone
	s.mu.Unlock()

	// The timer sees StateFinalized and can no longer start a save.
	close(stop)
	<-done

	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.Lock()
	if s.laps.Current() != nil {
		elev, _ := s.elevation.Current()
		s.laps.EndLap(s.lastTs, s.distance.Total(), elev, s.elevation.Data().Gain)
	}
	batch, patch, stats := s.takeSnapshotLocked()
	s.mu.Unlock()

	saveErr := s.persist(ctx, batch, patch, stats)
	if saveErr != nil {
		slog.Error("tracking: final save failed, finalizing with persisted data",
			"activity_id", s.activityID, "trace_id", s.traceID, "error", saveErr)
	}

	fctx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	_, finErr := s.traces.Finalize(fctx, s.traceID, final)
	cancel()
	if finErr != nil {
		finErr = fmt.Errorf("finalize trace %s: %w", s.traceID, finErr)
	}

	stats = s.Stats()
	slog.Info("tracking: session ended", "user_id", s.userID, "activity_id", s.activityID,
		"trace_id", s.traceID, "state", final, "distance_m", stats.DistanceM)
	return stats, errors.Join(saveErr, finErr)
}

// takeSnapshotLocked takes the pending batch and builds the activity patch.
// The calorie estimate for the interval since the previous snapshot is
// accumulated here. Callers hold mu.
func (s *Session) takeSnapshotLocked() ([]trace.Point, activity.Update, Stats) {
	batch := s.pending
	s.pending = nil

	dist := s.distance.Total()
	elev := s.elevation.Data()
	duration := s.elapsedLocked()

	segDist := dist - s.segment.distance
	segDur := duration - s.segment.durationMs
	if segDur > 0 && segDist > 0 {
		speed := metrics.SpeedKmh(segDist, segDur)
		s.calories.Add(s.calories.CaloriesForSegment(speed, elev.Gain-s.segment.gain, segDist, segDur, s.weightKg))
	}
	s.segment = segmentMark{distance: dist, gain: elev.Gain, durationMs: duration}

	avgSpeed := metrics.SpeedKmh(dist, duration)
	moving := float64(duration) / 1000
	kcal := s.calories.Total()
	patch := activity.Update{
		DurationMs:        &duration,
		MovingDurationS:   &moving,
		DistanceM:         &dist,
		AvgSpeedKmh:       &avgSpeed,
		ElevationGainM:    &elev.Gain,
		ElevationLossM:    &elev.Loss,
		StartPosition:     s.startPos,
		EndPosition:       s.endPos,
		EstimatedCalories: &kcal,
	}
	if _, ok := s.elevation.Current(); ok {
		patch.AltitudeMaxM = &elev.AltMax
		patch.AltitudeMinM = &elev.AltMin
	}
	if start, ok := s.clock.Start(); ok {
		t := time.UnixMilli(start).UTC()
		patch.StartedAt = &t
	}
	if stop, ok := s.clock.Stop(); ok {
		t := time.UnixMilli(stop).UTC()
		patch.StoppedAt = &t
	}
	if s.laps.Count() > 0 {
		patch.Laps = s.laps.Laps()
	}
	return batch, patch, s.statsLocked()
}

// elapsedLocked runs from the start fix (or the first fix) to the stop fix
// (or the latest fix while the activity is still running).
func (s *Session) elapsedLocked() int64 {
	if !s.hasFix {
		return 0
	}
	start, ok := s.clock.Start()
	if !ok {
		start = s.firstTs
	}
	end, ok := s.clock.Stop()
	if !ok {
		end = s.lastTs
	}
	if end <= start {
		return 0
	}
	return end - start
}

func (s *Session) persist(ctx context.Context, batch []trace.Point, patch activity.Update, stats Stats) error {
	if len(batch) > 0 {
		cctx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
		_, err := s.traces.AppendPoints(cctx, s.traceID, batch)
		cancel()
		if err != nil {
			s.requeue(batch)
			return fmt.Errorf("flush %d points: %w", len(batch), err)
		}
	}

	cctx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	_, err := s.activities.Update(cctx, s.activityID, patch)
	cancel()
	if err != nil {
		return fmt.Errorf("update activity: %w", err)
	}

	slog.Debug("tracking: saved", "activity_id", s.activityID, "points", len(batch), "distance_m", stats.DistanceM)
	for _, fn := range s.hooks {
		fn(ctx, stats)
	}
	return nil
}

func (s *Session) requeue(batch []trace.Point) {
	s.mu.Lock()
	defer s.mu.Unlock()
	merged := make([]trace.Point, 0, len(batch)+len(s.pending))
	merged = append(merged, batch...)
	s.pending = append(merged, s.pending...)
}

// Stats returns a snapshot of the session's metrics.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statsLocked()
}

func (s *Session) statsLocked() Stats {
	dist := s.distance.Total()
	duration := s.elapsedLocked()
	return Stats{
		ActivityID:     s.activityID,
		TraceID:        s.traceID,
		State:          s.state.String(),
		DistanceM:      dist,
		DurationMs:     duration,
		AvgSpeedKmh:    metrics.SpeedKmh(dist, duration),
		Elevation:      s.elevation.Data(),
		Calories:       s.calories.Total(),
		PointsBuffered: len(s.pending),
		Laps:           s.laps.Summary(),
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) ActivityID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activityID
}

func (s *Session) TraceID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.traceID
}
