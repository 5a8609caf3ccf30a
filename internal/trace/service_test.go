package trace

import (
	"context"
	"errors"
	"testing"
	"time"

	"backend-livetrack/internal/shared/geo"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/paulmach/orb"
)

const (
	activityID = "7b3c8a52-3f4e-4d7e-9a55-0f1b2c3d4e5f"
	userID     = "1f0e2d3c-4b5a-4968-8776-a5b4c3d2e1f0"
	traceID    = "c0ffee00-1234-4abc-8def-001122334455"
)

var errDB = errors.New("db error")

type polylineArg struct{ want string }

func (a polylineArg) Match(v any) bool {
	s, ok := v.(*string)
	return ok && s != nil && *s == a.want
}

type nilStringArg struct{}

func (nilStringArg) Match(v any) bool {
	s, ok := v.(*string)
	return ok && s == nil
}

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	t.Cleanup(mock.Close)
	return mock
}

func traceColumns() []string {
	return []string{"id", "activity_id", "user_id", "state", "gps_buffer", "total_points", "encoded_polyline", "sampling_rate", "created_at"}
}

func samplePoints() []Point {
	return []Point{
		NewPoint(orb.Point{0, 0}, 1000, nil),
		NewPoint(orb.Point{0, 0.001}, 2000, nil),
		NewPoint(orb.Point{0, 0.002}, 3000, nil),
	}
}

const sampleBuffer = `[
	{"geometry":{"type":"Point","coordinates":[0,0]},"timestamp":1000},
	{"geometry":{"type":"Point","coordinates":[0,0.001]},"timestamp":2000},
	{"geometry":{"type":"Point","coordinates":[0,0.002]},"timestamp":3000}
]`

func TestCreateBlank(t *testing.T) {
	mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE activities SET gps_trace_id`).
		WithArgs(activityID, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`INSERT INTO gps_traces`).
		WithArgs(pgxmock.AnyArg(), activityID, userID, "recording").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	id, err := NewService(mock).CreateBlank(context.Background(), activityID, userID)
	if err != nil {
		t.Fatalf("create blank: %v", err)
	}
	if !validID(id) {
		t.Fatalf("expected uuid trace id, got %q", id)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreateBlankActivityMissing(t *testing.T) {
	mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE activities SET gps_trace_id`).
		WithArgs(activityID, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	_, err := NewService(mock).CreateBlank(context.Background(), activityID, userID)
	if !errors.Is(err, ErrActivityNotFound) {
		t.Fatalf("expected ErrActivityNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreateBlankInsertError(t *testing.T) {
	mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE activities SET gps_trace_id`).
		WithArgs(activityID, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`INSERT INTO gps_traces`).
		WithArgs(pgxmock.AnyArg(), activityID, userID, "recording").
		WillReturnError(errDB)
	mock.ExpectRollback()

	if _, err := NewService(mock).CreateBlank(context.Background(), activityID, userID); !errors.Is(err, errDB) {
		t.Fatalf("expected db error, got %v", err)
	}
}

func TestCreateBlankMalformedIDs(t *testing.T) {
	svc := NewService(nil)
	if _, err := svc.CreateBlank(context.Background(), "not-a-uuid", userID); !errors.Is(err, ErrInvalidID) {
		t.Fatalf("expected ErrInvalidID for activity, got %v", err)
	}
	if _, err := svc.CreateBlank(context.Background(), activityID, ""); !errors.Is(err, ErrInvalidID) {
		t.Fatalf("expected ErrInvalidID for user, got %v", err)
	}
}

func TestAppendPoints(t *testing.T) {
	mock := newMock(t)

	mock.ExpectQuery(`UPDATE gps_traces\s+SET gps_buffer = gps_buffer \|\| \$2::jsonb`).
		WithArgs(traceID, pgxmock.AnyArg(), 3).
		WillReturnRows(pgxmock.NewRows([]string{"total_points"}).AddRow(3))

	total, err := NewService(mock).AppendPoints(context.Background(), traceID, samplePoints())
	if err != nil {
		t.Fatalf("append points: %v", err)
	}
	if total != 3 {
		t.Fatalf("expected total 3, got %d", total)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAppendPointsValidation(t *testing.T) {
	svc := NewService(nil)
	if _, err := svc.AppendPoints(context.Background(), traceID, nil); !errors.Is(err, ErrEmptyBatch) {
		t.Fatalf("expected ErrEmptyBatch, got %v", err)
	}
	if _, err := svc.AppendPoints(context.Background(), "bad", samplePoints()); !errors.Is(err, ErrInvalidID) {
		t.Fatalf("expected ErrInvalidID, got %v", err)
	}
}

func TestAppendPointsUnknownTrace(t *testing.T) {
	mock := newMock(t)

	mock.ExpectQuery(`UPDATE gps_traces`).
		WithArgs(traceID, pgxmock.AnyArg(), 3).
		WillReturnRows(pgxmock.NewRows([]string{"total_points"}))

	if _, err := NewService(mock).AppendPoints(context.Background(), traceID, samplePoints()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFinalizeFinishedEncodesPath(t *testing.T) {
	mock := newMock(t)
	want := geo.EncodePath([]orb.Point{{0, 0}, {0, 0.001}, {0, 0.002}})

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id, activity_id, user_id, state, gps_buffer.*FOR UPDATE`).
		WithArgs(traceID).
		WillReturnRows(pgxmock.NewRows(traceColumns()).
			AddRow(traceID, activityID, userID, "recording", []byte(sampleBuffer), 3, (*string)(nil), 1.0, time.Now()))
	mock.ExpectExec(`UPDATE gps_traces\s+SET state=\$2, gps_buffer='\[\]'::jsonb`).
		WithArgs(traceID, "finished", polylineArg{want: want}).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	tr, err := NewService(mock).Finalize(context.Background(), traceID, StateFinished)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if tr.State != StateFinished || tr.EncodedPolyline == nil || *tr.EncodedPolyline != want {
		t.Fatalf("unexpected trace: %+v", tr)
	}
	if tr.TotalPoints != 3 || tr.BufferSize != 0 {
		t.Fatalf("unexpected counters: %+v", tr)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestFinalizeInterruptedSkipsEncoding(t *testing.T) {
	mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id, activity_id, user_id, state, gps_buffer.*FOR UPDATE`).
		WithArgs(traceID).
		WillReturnRows(pgxmock.NewRows(traceColumns()).
			AddRow(traceID, activityID, userID, "recording", []byte(sampleBuffer), 3, (*string)(nil), 1.0, time.Now()))
	mock.ExpectExec(`UPDATE gps_traces`).
		WithArgs(traceID, "interrupted", nilStringArg{}).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	tr, err := NewService(mock).Finalize(context.Background(), traceID, StateInterrupted)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if tr.EncodedPolyline != nil {
		t.Fatalf("expected no polyline for interrupted trace")
	}
}

func TestFinalizeTwiceFails(t *testing.T) {
	mock := newMock(t)
	encoded := "_ibE_seK"

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id, activity_id, user_id, state, gps_buffer.*FOR UPDATE`).
		WithArgs(traceID).
		WillReturnRows(pgxmock.NewRows(traceColumns()).
			AddRow(traceID, activityID, userID, "finished", []byte(`[]`), 3, &encoded, 1.0, time.Now()))
	mock.ExpectRollback()

	_, err := NewService(mock).Finalize(context.Background(), traceID, StateFinished)
	if !errors.Is(err, ErrNotRecording) {
		t.Fatalf("expected ErrNotRecording, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestFinalizeValidation(t *testing.T) {
	svc := NewService(nil)
	if _, err := svc.Finalize(context.Background(), traceID, StateRecording); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
	if _, err := svc.Finalize(context.Background(), "x", StateFinished); !errors.Is(err, ErrInvalidID) {
		t.Fatalf("expected ErrInvalidID, got %v", err)
	}
}

func TestFinalizeUnknownTrace(t *testing.T) {
	mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id, activity_id`).
		WithArgs(traceID).
		WillReturnRows(pgxmock.NewRows(traceColumns()))
	mock.ExpectRollback()

	if _, err := NewService(mock).Finalize(context.Background(), traceID, StateFinished); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetAndGetByActivity(t *testing.T) {
	mock := newMock(t)

	mock.ExpectQuery(`FROM gps_traces WHERE id=\$1`).
		WithArgs(traceID).
		WillReturnRows(pgxmock.NewRows(traceColumns()).
			AddRow(traceID, activityID, userID, "recording", []byte(sampleBuffer), 3, (*string)(nil), 1.0, time.Now()))
	mock.ExpectQuery(`FROM gps_traces WHERE activity_id=\$1`).
		WithArgs(activityID).
		WillReturnError(errDB)

	svc := NewService(mock)
	tr, err := svc.Get(context.Background(), traceID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if tr.BufferSize != 3 || tr.Buffer[1].Coordinates() != (orb.Point{0, 0.001}) {
		t.Fatalf("unexpected buffer: %+v", tr.Buffer)
	}
	if _, err := svc.GetByActivity(context.Background(), activityID); !errors.Is(err, errDB) {
		t.Fatalf("expected db error, got %v", err)
	}
}
