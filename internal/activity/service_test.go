package activity

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"backend-livetrack/internal/metrics"

	"github.com/pashagolub/pgxmock/v3"
)

const (
	userA      = "1f0e2d3c-4b5a-4968-8776-a5b4c3d2e1f0"
	activityID = "7b3c8a52-3f4e-4d7e-9a55-0f1b2c3d4e5f"
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

func anyArgs(n int) []any {
	args := make([]any, n)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

func activityColumns() []string {
	return []string{"id", "user_id", "activity_type", "date", "started_at", "stopped_at", "duration_ms", "moving_duration_s",
		"distance_m", "avg_speed_kmh", "elevation_gain_m", "elevation_loss_m", "altitude_max_m", "altitude_min_m",
		"start_position", "end_position", "laps", "estimated_calories", "gps_trace_id", "created_at", "updated_at"}
}

func blankRow(rows *pgxmock.Rows) *pgxmock.Rows {
	now := time.Now()
	return rows.AddRow(activityID, userA, "run", now, now, now, int64(0), 0.0,
		0.0, 0.0, 0.0, 0.0, nil, nil,
		nil, nil, []byte(`[]`), nil, nil, now, now)
}

func TestCreateBlank(t *testing.T) {
	mock := newMock(t)
	mock.ExpectExec(`INSERT INTO activities \(id, user_id, activity_type, date, started_at, stopped_at\)`).
		WithArgs(pgxmock.AnyArg(), userA, "run", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	id, err := NewService(mock).CreateBlank(context.Background(), userA, "")
	if err != nil || !validID(id) {
		t.Fatalf("create blank: %q %v", id, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreateBlankValidation(t *testing.T) {
	svc := NewService(nil)
	if _, err := svc.CreateBlank(context.Background(), "nope", TypeRun); !errors.Is(err, ErrInvalidID) {
		t.Fatalf("expected ErrInvalidID, got %v", err)
	}
	if _, err := svc.CreateBlank(context.Background(), userA, "swim"); !errors.Is(err, ErrInvalidType) {
		t.Fatalf("expected ErrInvalidType, got %v", err)
	}
}

func TestCreateRollsUpStats(t *testing.T) {
	mock := newMock(t)
	started := time.Date(2025, 4, 6, 7, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO activities .* RETURNING created_at, updated_at`).
		WithArgs(anyArgs(18)...).
		WillReturnRows(pgxmock.NewRows([]string{"created_at", "updated_at"}).AddRow(time.Now(), time.Now()))
	mock.ExpectExec(`INSERT INTO user_stats .* ON CONFLICT \(user_id\) DO UPDATE`).
		WithArgs(userA, 10.0, 3000.0, 42.0).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	a, err := NewService(mock).Create(context.Background(), Activity{
		UserID:          userA,
		Type:            TypeRun,
		StartedAt:       started,
		StoppedAt:       started.Add(50 * time.Minute),
		DurationMs:      3000000,
		MovingDurationS: 3000,
		DistanceM:       10000,
		ElevationGainM:  42,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !validID(a.ID) || !a.Date.Equal(started) || a.Laps == nil {
		t.Fatalf("unexpected activity %+v", a)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreateStatsFailureRollsBack(t *testing.T) {
	mock := newMock(t)
	started := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO activities`).
		WithArgs(anyArgs(18)...).
		WillReturnRows(pgxmock.NewRows([]string{"created_at", "updated_at"}).AddRow(time.Now(), time.Now()))
	mock.ExpectExec(`INSERT INTO user_stats`).
		WithArgs(anyArgs(4)...).
		WillReturnError(errors.New("db down"))
	mock.ExpectRollback()

	_, err := NewService(mock).Create(context.Background(), Activity{UserID: userA, Type: TypeWalk, StartedAt: started, StoppedAt: started})
	if err == nil {
		t.Fatalf("expected error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreateValidation(t *testing.T) {
	svc := NewService(nil)
	now := time.Now()
	cases := []Activity{
		{UserID: userA, Type: TypeRun},
		{UserID: userA, Type: TypeRun, StartedAt: now, StoppedAt: now.Add(-time.Second)},
		{UserID: userA, Type: TypeRun, StartedAt: now, StoppedAt: now, DistanceM: math.NaN()},
		{UserID: userA, Type: TypeRun, StartedAt: now, StoppedAt: now, Laps: []metrics.Lap{{Number: 1, DistanceMeters: -5}}},
	}
	for i, a := range cases {
		if _, err := svc.Create(context.Background(), a); !errors.Is(err, ErrInvalidActivity) {
			t.Fatalf("case %d: expected ErrInvalidActivity, got %v", i, err)
		}
	}
	if _, err := svc.Create(context.Background(), Activity{UserID: userA, Type: "swim", StartedAt: now, StoppedAt: now}); !errors.Is(err, ErrInvalidType) {
		t.Fatalf("expected ErrInvalidType, got %v", err)
	}
}

func TestUpdate(t *testing.T) {
	mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`FROM activities WHERE id=\$1 FOR UPDATE`).
		WithArgs(activityID).
		WillReturnRows(blankRow(pgxmock.NewRows(activityColumns())))
	mock.ExpectQuery(`UPDATE activities\s+SET started_at=\$2`).
		WithArgs(anyArgs(15)...).
		WillReturnRows(pgxmock.NewRows([]string{"updated_at"}).AddRow(time.Now()))
	mock.ExpectCommit()

	dist := 1234.5
	gain := 12.0
	a, err := NewService(mock).Update(context.Background(), activityID, Update{DistanceM: &dist, ElevationGainM: &gain})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if a.DistanceM != 1234.5 || a.ElevationGainM != 12 || a.Type != TypeRun {
		t.Fatalf("unexpected activity %+v", a)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUpdateRejectsEmptyPatch(t *testing.T) {
	if _, err := NewService(nil).Update(context.Background(), activityID, Update{}); !errors.Is(err, ErrEmptyUpdate) {
		t.Fatalf("expected ErrEmptyUpdate, got %v", err)
	}
	dist := 1.0
	if _, err := NewService(nil).Update(context.Background(), "nope", Update{DistanceM: &dist}); !errors.Is(err, ErrInvalidID) {
		t.Fatalf("expected ErrInvalidID, got %v", err)
	}
}

func TestUpdateUnknownActivity(t *testing.T) {
	mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`FROM activities WHERE id=\$1 FOR UPDATE`).
		WithArgs(activityID).
		WillReturnRows(pgxmock.NewRows(activityColumns()))
	mock.ExpectRollback()

	dist := 1.0
	if _, err := NewService(mock).Update(context.Background(), activityID, Update{DistanceM: &dist}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUpdateRollsBackFailedWrite(t *testing.T) {
	mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`FROM activities WHERE id=\$1 FOR UPDATE`).
		WithArgs(activityID).
		WillReturnRows(blankRow(pgxmock.NewRows(activityColumns())))
	mock.ExpectQuery(`UPDATE activities\s+SET started_at=\$2`).
		WithArgs(anyArgs(15)...).
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	dist := 1.0
	if _, err := NewService(mock).Update(context.Background(), activityID, Update{DistanceM: &dist}); err == nil {
		t.Fatalf("expected write error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGetDecodesPositions(t *testing.T) {
	mock := newMock(t)
	now := time.Now()
	traceID := "c0ffee00-1234-4abc-8def-001122334455"
	start := []byte(`{"geometry":{"type":"Point","coordinates":[2.35,48.85]},"timestamp":1000,"altitude":35}`)
	laps := []byte(`[{"number":1,"distance_m":1000,"duration_ms":300000}]`)
	mock.ExpectQuery(`FROM activities WHERE id=\$1`).
		WithArgs(activityID).
		WillReturnRows(pgxmock.NewRows(activityColumns()).AddRow(activityID, userA, "trail", now, now, now, int64(300000), 300.0,
			1000.0, 12.0, 5.0, 1.0, nil, nil,
			start, nil, laps, nil, &traceID, now, now))

	a, err := NewService(mock).Get(context.Background(), activityID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if a.StartPosition == nil || a.StartPosition.Geometry[1] != 48.85 || *a.StartPosition.Altitude != 35 {
		t.Fatalf("unexpected start position %+v", a.StartPosition)
	}
	if a.EndPosition != nil {
		t.Fatalf("expected no end position")
	}
	if len(a.Laps) != 1 || a.Laps[0].DurationMs != 300000 {
		t.Fatalf("unexpected laps %+v", a.Laps)
	}
	if a.GPSTraceID == nil || *a.GPSTraceID != traceID {
		t.Fatalf("unexpected trace id")
	}
}

func TestStatsDefaultsToZero(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery(`FROM user_stats WHERE user_id=\$1`).
		WithArgs(userA).
		WillReturnRows(pgxmock.NewRows([]string{"total_km", "total_time_s", "total_activities", "total_elevation_m", "updated_at"}))

	st, err := NewService(mock).Stats(context.Background(), userA)
	if err != nil || st.TotalActivities != 0 || st.UserID != userA {
		t.Fatalf("unexpected stats %+v %v", st, err)
	}
}

func TestList(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery(`FROM activities\s+WHERE user_id=\$1 AND \(\$2 = '' OR activity_type = \$2\)`).
		WithArgs(userA, "run", 20, 0).
		WillReturnRows(blankRow(pgxmock.NewRows(activityColumns())))

	list, err := NewService(mock).List(context.Background(), userA, ListFilter{Type: TypeRun, Limit: 500, Offset: -3})
	if err != nil || len(list) != 1 {
		t.Fatalf("unexpected list %+v %v", list, err)
	}
	if _, err := NewService(nil).List(context.Background(), userA, ListFilter{Type: "swim"}); !errors.Is(err, ErrInvalidType) {
		t.Fatalf("expected ErrInvalidType, got %v", err)
	}
}
