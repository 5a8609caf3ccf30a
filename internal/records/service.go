package records

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"backend-livetrack/internal/db"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Service persists best performances in Postgres.
type Service struct {
	db db.Querier
}

func NewService(db db.Querier) *Service {
	return &Service{db: db}
}

const selectRecord = `
		SELECT user_id, distance_m, best_chrono_s, best_date, best_activity_id, performance_history, updated_at
		FROM best_performances`

func (s *Service) Get(ctx context.Context, userID string, distanceM float64) (Record, error) {
	if !validID(userID) {
		return Record{}, ErrInvalidID
	}
	return scanRecord(s.db.QueryRow(ctx, selectRecord+` WHERE user_id=$1 AND distance_m=$2`, userID, distanceM))
}

var errRecordCreated = errors.New("record created concurrently")

// Update locks the user's record for distanceM, passes it to fn (nil when the
// user has none yet) and stores the returned record when fn reports a change.
// fn may run twice when a concurrent writer creates the record first.
func (s *Service) Update(ctx context.Context, userID string, distanceM float64, fn func(cur *Record) (Record, bool)) (bool, error) {
	if !validID(userID) {
		return false, ErrInvalidID
	}
	changed, err := s.update(ctx, userID, distanceM, fn)
	if errors.Is(err, errRecordCreated) {
		changed, err = s.update(ctx, userID, distanceM, fn)
	}
	return changed, err
}

func (s *Service) update(ctx context.Context, userID string, distanceM float64, fn func(cur *Record) (Record, bool)) (bool, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return false, err
	}

	var current *Record
	cur, err := scanRecord(tx.QueryRow(ctx, selectRecord+` WHERE user_id=$1 AND distance_m=$2 FOR UPDATE`, userID, distanceM))
	switch {
	case errors.Is(err, ErrNotFound):
	case err != nil:
		_ = tx.Rollback(ctx)
		return false, err
	default:
		current = &cur
	}

	next, changed := fn(current)
	if !changed {
		_ = tx.Rollback(ctx)
		return false, nil
	}
	if !validID(next.Best.ActivityID) {
		_ = tx.Rollback(ctx)
		return false, ErrInvalidID
	}
	history := next.History
	if history == nil {
		history = []Entry{}
	}
	payload, err := json.Marshal(history)
	if err != nil {
		_ = tx.Rollback(ctx)
		return false, fmt.Errorf("encode history: %w", err)
	}

	if current == nil {
		// The row lock cannot cover a missing row, so a concurrent first
		// best is detected by the conflict and retried against that row.
		tag, err := tx.Exec(ctx, `
			INSERT INTO best_performances (user_id, distance_m, best_chrono_s, best_date, best_activity_id, performance_history)
			VALUES ($1,$2,$3,$4,$5,$6)
			ON CONFLICT (user_id, distance_m) DO NOTHING
		`, userID, distanceM, next.Best.ChronoSeconds, next.Best.Date, next.Best.ActivityID, payload)
		if err != nil {
			_ = tx.Rollback(ctx)
			return false, err
		}
		if tag.RowsAffected() == 0 {
			_ = tx.Rollback(ctx)
			return false, errRecordCreated
		}
	} else {
		if _, err := tx.Exec(ctx, `
			UPDATE best_performances
			SET best_chrono_s=$3, best_date=$4, best_activity_id=$5, performance_history=$6, updated_at=now()
			WHERE user_id=$1 AND distance_m=$2
		`, userID, distanceM, next.Best.ChronoSeconds, next.Best.Date, next.Best.ActivityID, payload); err != nil {
			_ = tx.Rollback(ctx)
			return false, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// List returns the user's records ordered by distance.
func (s *Service) List(ctx context.Context, userID string) ([]Record, error) {
	if !validID(userID) {
		return nil, ErrInvalidID
	}
	rows, err := s.db.Query(ctx, selectRecord+` WHERE user_id=$1 ORDER BY distance_m`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Record{}
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanRecord(row pgx.Row) (Record, error) {
	var (
		r       Record
		history []byte
	)
	err := row.Scan(&r.UserID, &r.DistanceM, &r.Best.ChronoSeconds, &r.Best.Date, &r.Best.ActivityID, &history, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, err
	}
	if len(history) > 0 {
		if err := json.Unmarshal(history, &r.History); err != nil {
			return Record{}, fmt.Errorf("decode performance history: %w", err)
		}
	}
	return r, nil
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
