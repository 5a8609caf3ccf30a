package activity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"backend-livetrack/internal/db"
	"backend-livetrack/internal/metrics"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const defaultListLimit = 20

type Service struct {
	db  db.Querier
	now func() time.Time
}

func NewService(db db.Querier) *Service {
	return &Service{db: db, now: time.Now}
}

// CreateBlank inserts an empty activity that a live session fills in.
func (s *Service) CreateBlank(ctx context.Context, userID string, t Type) (string, error) {
	if !validID(userID) {
		return "", ErrInvalidID
	}
	if t == "" {
		t = TypeRun
	}
	if !t.Valid() {
		return "", ErrInvalidType
	}
	id := uuid.NewString()
	now := s.now().UTC()
	_, err := s.db.Exec(ctx, `
		INSERT INTO activities (id, user_id, activity_type, date, started_at, stopped_at)
		VALUES ($1,$2,$3,$4,$4,$4)
	`, id, userID, string(t), now)
	if err != nil {
		return "", err
	}
	slog.Debug("activity: blank created", "activity_id", id, "user_id", userID)
	return id, nil
}

// Create stores a completed activity and adds it to the user's totals.
func (s *Service) Create(ctx context.Context, a Activity) (Activity, error) {
	if err := validate(a); err != nil {
		return Activity{}, err
	}
	a.ID = uuid.NewString()
	if a.Date.IsZero() {
		a.Date = a.StartedAt
	}
	if a.Laps == nil {
		a.Laps = []metrics.Lap{}
	}
	start, end, laps, err := encodeJSON(a)
	if err != nil {
		return Activity{}, err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return Activity{}, err
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO activities (id, user_id, activity_type, date, started_at, stopped_at, duration_ms,
			moving_duration_s, distance_m, avg_speed_kmh, elevation_gain_m, elevation_loss_m,
			altitude_max_m, altitude_min_m, start_position, end_position, laps, estimated_calories)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
		RETURNING created_at, updated_at
	`, a.ID, a.UserID, string(a.Type), a.Date, a.StartedAt, a.StoppedAt, a.DurationMs,
		a.MovingDurationS, a.DistanceM, a.AvgSpeedKmh, a.ElevationGainM, a.ElevationLossM,
		a.AltitudeMaxM, a.AltitudeMinM, start, end, laps, a.EstimatedCalories).Scan(&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		_ = tx.Rollback(ctx)
		return Activity{}, err
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO user_stats (user_id, total_km, total_time_s, total_activities, total_elevation_m)
		VALUES ($1,$2,$3,1,$4)
		ON CONFLICT (user_id) DO UPDATE SET
			total_km = user_stats.total_km + EXCLUDED.total_km,
			total_time_s = user_stats.total_time_s + EXCLUDED.total_time_s,
			total_activities = user_stats.total_activities + 1,
			total_elevation_m = user_stats.total_elevation_m + EXCLUDED.total_elevation_m,
			updated_at = now()
	`, a.UserID, a.DistanceM/1000, float64(a.DurationMs)/1000, a.ElevationGainM); err != nil {
		_ = tx.Rollback(ctx)
		return Activity{}, fmt.Errorf("update user stats: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Activity{}, err
	}
	return a, nil
}

// Update applies a partial change and returns the stored activity. The row
// is locked while the patch is merged so concurrent patches do not overwrite
// each other.
func (s *Service) Update(ctx context.Context, id string, patch Update) (Activity, error) {
	if patch.Empty() {
		return Activity{}, ErrEmptyUpdate
	}
	if !validID(id) {
		return Activity{}, ErrInvalidID
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return Activity{}, err
	}
	a, err := scanActivity(tx.QueryRow(ctx, selectActivity+` WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		_ = tx.Rollback(ctx)
		return Activity{}, err
	}
	patch.apply(&a)

	start, end, laps, err := encodeJSON(a)
	if err != nil {
		_ = tx.Rollback(ctx)
		return Activity{}, err
	}
	err = tx.QueryRow(ctx, `
		UPDATE activities
		SET started_at=$2, stopped_at=$3, duration_ms=$4, moving_duration_s=$5, distance_m=$6,
			avg_speed_kmh=$7, elevation_gain_m=$8, elevation_loss_m=$9, altitude_max_m=$10,
			altitude_min_m=$11, start_position=$12, end_position=$13, laps=$14,
			estimated_calories=$15, updated_at=now()
		WHERE id=$1
		RETURNING updated_at
	`, a.ID, a.StartedAt, a.StoppedAt, a.DurationMs, a.MovingDurationS, a.DistanceM,
		a.AvgSpeedKmh, a.ElevationGainM, a.ElevationLossM, a.AltitudeMaxM,
		a.AltitudeMinM, start, end, laps, a.EstimatedCalories).Scan(&a.UpdatedAt)
	if err != nil {
		_ = tx.Rollback(ctx)
		if errors.Is(err, pgx.ErrNoRows) {
			return Activity{}, ErrNotFound
		}
		return Activity{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Activity{}, err
	}
	return a, nil
}

func (s *Service) Get(ctx context.Context, id string) (Activity, error) {
	if !validID(id) {
		return Activity{}, ErrInvalidID
	}
	return scanActivity(s.db.QueryRow(ctx, selectActivity+` WHERE id=$1`, id))
}

// List returns a user's activities, newest first.
func (s *Service) List(ctx context.Context, userID string, f ListFilter) ([]Activity, error) {
	if !validID(userID) {
		return nil, ErrInvalidID
	}
	if f.Type != "" && !f.Type.Valid() {
		return nil, ErrInvalidType
	}
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = defaultListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	rows, err := s.db.Query(ctx, selectActivity+`
		WHERE user_id=$1 AND ($2 = '' OR activity_type = $2)
		ORDER BY date DESC
		LIMIT $3 OFFSET $4
	`, userID, string(f.Type), f.Limit, f.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Activity{}
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Service) Stats(ctx context.Context, userID string) (UserStats, error) {
	if !validID(userID) {
		return UserStats{}, ErrInvalidID
	}
	st := UserStats{UserID: userID}
	err := s.db.QueryRow(ctx, `
		SELECT total_km, total_time_s, total_activities, total_elevation_m, updated_at
		FROM user_stats WHERE user_id=$1
	`, userID).Scan(&st.TotalKm, &st.TotalTimeS, &st.TotalActivities, &st.TotalElevationM, &st.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return st, nil
	}
	if err != nil {
		return UserStats{}, err
	}
	return st, nil
}

const selectActivity = `
		SELECT id, user_id, activity_type, date, started_at, stopped_at, duration_ms, moving_duration_s,
			distance_m, avg_speed_kmh, elevation_gain_m, elevation_loss_m, altitude_max_m, altitude_min_m,
			start_position, end_position, laps, estimated_calories, gps_trace_id, created_at, updated_at
		FROM activities`

func scanActivity(row pgx.Row) (Activity, error) {
	var (
		a                Activity
		t                string
		start, end, laps []byte
	)
	err := row.Scan(&a.ID, &a.UserID, &t, &a.Date, &a.StartedAt, &a.StoppedAt, &a.DurationMs, &a.MovingDurationS,
		&a.DistanceM, &a.AvgSpeedKmh, &a.ElevationGainM, &a.ElevationLossM, &a.AltitudeMaxM, &a.AltitudeMinM,
		&start, &end, &laps, &a.EstimatedCalories, &a.GPSTraceID, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Activity{}, ErrNotFound
	}
	if err != nil {
		return Activity{}, err
	}
	a.Type = Type(t)
	if len(start) > 0 {
		if err := json.Unmarshal(start, &a.StartPosition); err != nil {
			return Activity{}, fmt.Errorf("decode start position: %w", err)
		}
	}
	if len(end) > 0 {
		if err := json.Unmarshal(end, &a.EndPosition); err != nil {
			return Activity{}, fmt.Errorf("decode end position: %w", err)
		}
	}
	if len(laps) > 0 {
		if err := json.Unmarshal(laps, &a.Laps); err != nil {
			return Activity{}, fmt.Errorf("decode laps: %w", err)
		}
	}
	return a, nil
}

// encodeJSON renders the jsonb columns. Absent positions stay NULL.
func encodeJSON(a Activity) (start, end, laps []byte, err error) {
	if a.StartPosition != nil {
		if start, err = json.Marshal(a.StartPosition); err != nil {
			return nil, nil, nil, fmt.Errorf("encode start position: %w", err)
		}
	}
	if a.EndPosition != nil {
		if end, err = json.Marshal(a.EndPosition); err != nil {
			return nil, nil, nil, fmt.Errorf("encode end position: %w", err)
		}
	}
	l := a.Laps
	if l == nil {
		l = []metrics.Lap{}
	}
	if laps, err = json.Marshal(l); err != nil {
		return nil, nil, nil, fmt.Errorf("encode laps: %w", err)
	}
	return start, end, laps, nil
}

func validate(a Activity) error {
	if !validID(a.UserID) {
		return ErrInvalidID
	}
	if !a.Type.Valid() {
		return ErrInvalidType
	}
	switch {
	case a.StartedAt.IsZero() || a.StoppedAt.IsZero():
		return fmt.Errorf("%w: started_at and stopped_at are required", ErrInvalidActivity)
	case a.StoppedAt.Before(a.StartedAt):
		return fmt.Errorf("%w: stopped_at before started_at", ErrInvalidActivity)
	case !nonNegative(a.DistanceM) || !nonNegative(a.MovingDurationS) || a.DurationMs < 0:
		return fmt.Errorf("%w: distance and durations must be finite and non-negative", ErrInvalidActivity)
	case !nonNegative(a.ElevationGainM) || !nonNegative(a.ElevationLossM):
		return fmt.Errorf("%w: elevation must be finite and non-negative", ErrInvalidActivity)
	}
	for _, l := range a.Laps {
		if !nonNegative(l.DistanceMeters) || l.DurationMs < 0 {
			return fmt.Errorf("%w: lap %d has negative figures", ErrInvalidActivity, l.Number)
		}
	}
	return nil
}

func nonNegative(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
