package trace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"backend-livetrack/internal/db"
	"backend-livetrack/internal/shared/geo"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/paulmach/orb"
)

type Service struct {
	db db.Querier
}

func NewService(db db.Querier) *Service {
	return &Service{db: db}
}

// CreateBlank opens a recording trace for an existing activity and links it.
func (s *Service) CreateBlank(ctx context.Context, activityID, userID string) (string, error) {
	if !validID(activityID) || !validID(userID) {
		return "", ErrInvalidID
	}
	id := uuid.NewString()

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return "", err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE activities SET gps_trace_id=$2, updated_at=now()
		WHERE id=$1
	`, activityID, id)
	if err != nil {
		_ = tx.Rollback(ctx)
		return "", err
	}
	if tag.RowsAffected() == 0 {
		_ = tx.Rollback(ctx)
		return "", ErrActivityNotFound
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO gps_traces (id, activity_id, user_id, state, gps_buffer, total_points)
		VALUES ($1,$2,$3,$4,'[]'::jsonb,0)
	`, id, activityID, userID, string(StateRecording)); err != nil {
		_ = tx.Rollback(ctx)
		return "", err
	}

	if err := tx.Commit(ctx); err != nil {
		return "", err
	}
	slog.Debug("trace: created", "trace_id", id, "activity_id", activityID)
	return id, nil
}

// AppendPoints adds a batch to the buffer and returns the new point total.
func (s *Service) AppendPoints(ctx context.Context, traceID string, points []Point) (int, error) {
	if len(points) == 0 {
		return 0, ErrEmptyBatch
	}
	if !validID(traceID) {
		return 0, ErrInvalidID
	}
	payload, err := json.Marshal(points)
	if err != nil {
		return 0, fmt.Errorf("encode points: %w", err)
	}

	var total int
	err = s.db.QueryRow(ctx, `
		UPDATE gps_traces
		SET gps_buffer = gps_buffer || $2::jsonb,
		    total_points = total_points + $3
		WHERE id=$1
		RETURNING total_points
	`, traceID, payload, len(points)).Scan(&total)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	return total, nil
}

// Finalize moves a recording trace to a terminal state. Finished traces get
// their buffered path encoded; the buffer is cleared in every case.
func (s *Service) Finalize(ctx context.Context, traceID string, state State) (Trace, error) {
	if !validID(traceID) {
		return Trace{}, ErrInvalidID
	}
	if !state.Terminal() {
		return Trace{}, ErrInvalidState
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return Trace{}, err
	}

	t, err := scanTrace(tx.QueryRow(ctx, selectTrace+` WHERE id=$1 FOR UPDATE`, traceID))
	if err != nil {
		_ = tx.Rollback(ctx)
		return Trace{}, err
	}
	if t.State != StateRecording {
		_ = tx.Rollback(ctx)
		return Trace{}, fmt.Errorf("%w: trace %s is %s", ErrNotRecording, traceID, t.State)
	}

	var encoded *string
	if state == StateFinished && len(t.Buffer) > 0 {
		path := make([]orb.Point, len(t.Buffer))
		for i, p := range t.Buffer {
			path[i] = p.Coordinates()
		}
		e := geo.EncodePath(path)
		encoded = &e
	}

	if _, err := tx.Exec(ctx, `
		UPDATE gps_traces
		SET state=$2, gps_buffer='[]'::jsonb, encoded_polyline=COALESCE($3, encoded_polyline)
		WHERE id=$1
	`, traceID, string(state), encoded); err != nil {
		_ = tx.Rollback(ctx)
		return Trace{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Trace{}, err
	}

	t.State = state
	t.Buffer = nil
	t.BufferSize = 0
	if encoded != nil {
		t.EncodedPolyline = encoded
	}
	slog.Info("trace: finalized", "trace_id", traceID, "state", state, "total_points", t.TotalPoints)
	return t, nil
}

func (s *Service) Get(ctx context.Context, traceID string) (Trace, error) {
	if !validID(traceID) {
		return Trace{}, ErrInvalidID
	}
	return scanTrace(s.db.QueryRow(ctx, selectTrace+` WHERE id=$1`, traceID))
}

func (s *Service) GetByActivity(ctx context.Context, activityID string) (Trace, error) {
	if !validID(activityID) {
		return Trace{}, ErrInvalidID
	}
	return scanTrace(s.db.QueryRow(ctx, selectTrace+` WHERE activity_id=$1`, activityID))
}

const selectTrace = `
		SELECT id, activity_id, user_id, state, gps_buffer, total_points, encoded_polyline, sampling_rate, created_at
		FROM gps_traces`

func scanTrace(row pgx.Row) (Trace, error) {
	var (
		t      Trace
		state  string
		buffer []byte
	)
	err := row.Scan(&t.ID, &t.ActivityID, &t.UserID, &state, &buffer, &t.TotalPoints, &t.EncodedPolyline, &t.SamplingRate, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Trace{}, ErrNotFound
	}
	if err != nil {
		return Trace{}, err
	}
	t.State = State(state)
	if len(buffer) > 0 {
		if err := json.Unmarshal(buffer, &t.Buffer); err != nil {
			return Trace{}, fmt.Errorf("decode gps buffer: %w", err)
		}
	}
	t.BufferSize = len(t.Buffer)
	return t, nil
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
