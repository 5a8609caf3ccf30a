package records

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v3"
)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	t.Cleanup(mock.Close)
	return mock
}

func recordColumns() []string {
	return []string{"user_id", "distance_m", "best_chrono_s", "best_date", "best_activity_id", "performance_history", "updated_at"}
}

func TestServiceGet(t *testing.T) {
	mock := newMock(t)
	history := []byte(`[{"chrono_s":3200,"date":"2024-05-01T08:00:00Z","activity_id":"` + activity2 + `"}]`)
	mock.ExpectQuery(`FROM best_performances WHERE user_id=\$1 AND distance_m=\$2`).
		WithArgs(userA, 10000.0).
		WillReturnRows(pgxmock.NewRows(recordColumns()).
			AddRow(userA, 10000.0, 3000.0, time.Now(), activity1, history, time.Now()))

	rec, err := NewService(mock).Get(context.Background(), userA, 10000)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.Best.ChronoSeconds != 3000 || len(rec.History) != 1 || rec.History[0].ChronoSeconds != 3200 {
		t.Fatalf("unexpected record %+v", rec)
	}
	view := rec.HistoryView()
	if view.DistanceLabel != "10K" || view.Actual.ChronoFormatted != "50:00" || view.History[0].Pace != "5:20/km" {
		t.Fatalf("unexpected view %+v", view)
	}
}

func TestServiceGetNotFound(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery(`FROM best_performances`).
		WithArgs(userA, 5000.0).
		WillReturnRows(pgxmock.NewRows(recordColumns()))

	if _, err := NewService(mock).Get(context.Background(), userA, 5000); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func newBest(cur *Record) (Record, bool) {
	best := Entry{ChronoSeconds: 1500, Date: time.Date(2025, 4, 6, 7, 0, 0, 0, time.UTC), ActivityID: activity1}
	if cur == nil {
		return Record{UserID: userA, DistanceM: 5000, Best: best}, true
	}
	if cur.Best.ChronoSeconds <= best.ChronoSeconds {
		return *cur, false
	}
	next := *cur
	next.History = append(append([]Entry{}, cur.History...), cur.Best)
	next.Best = best
	return next, true
}

func TestServiceUpdateInsertsFirstBest(t *testing.T) {
	mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`FROM best_performances WHERE user_id=\$1 AND distance_m=\$2 FOR UPDATE`).
		WithArgs(userA, 5000.0).
		WillReturnRows(pgxmock.NewRows(recordColumns()))
	mock.ExpectExec(`INSERT INTO best_performances .* ON CONFLICT \(user_id, distance_m\) DO NOTHING`).
		WithArgs(userA, 5000.0, 1500.0, pgxmock.AnyArg(), activity1, []byte(`[]`)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	changed, err := NewService(mock).Update(context.Background(), userA, 5000, newBest)
	if err != nil || !changed {
		t.Fatalf("expected insert, got %v %v", changed, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestServiceUpdateLocksAndArchivesPreviousBest(t *testing.T) {
	mock := newMock(t)
	old := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	mock.ExpectBegin()
	mock.ExpectQuery(`FROM best_performances WHERE user_id=\$1 AND distance_m=\$2 FOR UPDATE`).
		WithArgs(userA, 5000.0).
		WillReturnRows(pgxmock.NewRows(recordColumns()).
			AddRow(userA, 5000.0, 1600.0, old, activity2, []byte(`[]`), time.Now()))
	history := []byte(`[{"chrono_s":1600,"date":"2024-05-01T08:00:00Z","activity_id":"` + activity2 + `"}]`)
	mock.ExpectExec(`UPDATE best_performances\s+SET best_chrono_s=\$3`).
		WithArgs(userA, 5000.0, 1500.0, pgxmock.AnyArg(), activity1, history).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	changed, err := NewService(mock).Update(context.Background(), userA, 5000, newBest)
	if err != nil || !changed {
		t.Fatalf("expected update, got %v %v", changed, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestServiceUpdateWithoutImprovementRollsBack(t *testing.T) {
	mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).
		WithArgs(userA, 5000.0).
		WillReturnRows(pgxmock.NewRows(recordColumns()).
			AddRow(userA, 5000.0, 1400.0, time.Now(), activity2, []byte(`[]`), time.Now()))
	mock.ExpectRollback()

	changed, err := NewService(mock).Update(context.Background(), userA, 5000, newBest)
	if err != nil || changed {
		t.Fatalf("expected no change, got %v %v", changed, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestServiceUpdateRetriesWhenFirstBestRaces(t *testing.T) {
	mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).
		WithArgs(userA, 5000.0).
		WillReturnRows(pgxmock.NewRows(recordColumns()))
	mock.ExpectExec(`INSERT INTO best_performances .* DO NOTHING`).
		WithArgs(userA, 5000.0, 1500.0, pgxmock.AnyArg(), activity1, []byte(`[]`)).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).
		WithArgs(userA, 5000.0).
		WillReturnRows(pgxmock.NewRows(recordColumns()).
			AddRow(userA, 5000.0, 1450.0, time.Now(), activity2, []byte(`[]`), time.Now()))
	mock.ExpectRollback()

	changed, err := NewService(mock).Update(context.Background(), userA, 5000, newBest)
	if err != nil || changed {
		t.Fatalf("expected the concurrent faster best to stand, got %v %v", changed, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestServiceUpdateStoreErrorRollsBack(t *testing.T) {
	mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).
		WithArgs(userA, 5000.0).
		WillReturnRows(pgxmock.NewRows(recordColumns()))
	mock.ExpectExec(`INSERT INTO best_performances`).
		WithArgs(userA, 5000.0, 1500.0, pgxmock.AnyArg(), activity1, []byte(`[]`)).
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	if _, err := NewService(mock).Update(context.Background(), userA, 5000, newBest); err == nil {
		t.Fatalf("expected store error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestServiceUpdateRejectsBadIDs(t *testing.T) {
	if _, err := NewService(nil).Update(context.Background(), "u", 5000, newBest); !errors.Is(err, ErrInvalidID) {
		t.Fatalf("expected ErrInvalidID, got %v", err)
	}

	mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).
		WithArgs(userA, 5000.0).
		WillReturnRows(pgxmock.NewRows(recordColumns()))
	mock.ExpectRollback()
	_, err := NewService(mock).Update(context.Background(), userA, 5000, func(*Record) (Record, bool) {
		return Record{Best: Entry{ActivityID: "nope"}}, true
	})
	if !errors.Is(err, ErrInvalidID) {
		t.Fatalf("expected ErrInvalidID for the activity, got %v", err)
	}
}

func TestServiceList(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery(`FROM best_performances WHERE user_id=\$1 ORDER BY distance_m`).
		WithArgs(userA).
		WillReturnRows(pgxmock.NewRows(recordColumns()).
			AddRow(userA, 5000.0, 1500.0, time.Now(), activity1, []byte(`[]`), time.Now()).
			AddRow(userA, 10000.0, 3000.0, time.Now(), activity1, []byte(`[]`), time.Now()))

	recs, err := NewService(mock).List(context.Background(), userA)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(recs) != 2 || recs[1].View().DistanceLabel != "10K" {
		t.Fatalf("unexpected records %+v", recs)
	}
}
