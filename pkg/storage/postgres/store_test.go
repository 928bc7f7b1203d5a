package postgres

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/nsyszr/punchclock/pkg/model"
	"github.com/nsyszr/punchclock/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, storage.Interface) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	sdb := sqlx.NewDb(db, "postgres")
	return sdb, mock, NewStore(sdb)
}

var punchedAt = time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

func newEvent() *model.AttendanceEvent {
	return &model.AttendanceEvent{
		DedupKey:     "3f1c",
		EmployeeID:   "E-17",
		DeviceID:     "D1",
		DeviceUserID: "1001",
		PunchedAt:    punchedAt,
		VerifyType:   "fingerprint",
		Status:       "check-in",
	}
}

func TestEventUpsert_Inserted(t *testing.T) {
	db, mock, s := setupMockDB(t)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("ON CONFLICT (dedup_key) DO NOTHING")).
		WithArgs("3f1c", "E-17", "D1", "1001", punchedAt, "fingerprint", "check-in", "", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(42)))

	m := newEvent()
	inserted, err := s.Events().Upsert(context.Background(), m)
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.Equal(t, int64(42), m.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEventUpsert_Duplicate(t *testing.T) {
	db, mock, s := setupMockDB(t)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO attendance_events")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	inserted, err := s.Events().Upsert(context.Background(), newEvent())
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEventUpsert_UniqueViolation(t *testing.T) {
	db, mock, s := setupMockDB(t)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO attendance_events")).
		WillReturnError(&pq.Error{Code: "23505"})

	inserted, err := s.Events().Upsert(context.Background(), newEvent())
	assert.Equal(t, storage.ErrConflict, err)
	assert.False(t, inserted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEventUpsert_DatabaseError(t *testing.T) {
	db, mock, s := setupMockDB(t)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO attendance_events")).
		WillReturnError(assert.AnError)

	_, err := s.Events().Upsert(context.Background(), newEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to upsert attendance event")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEventFetch_Filter(t *testing.T) {
	db, mock, s := setupMockDB(t)
	defer db.Close()

	from := punchedAt.Add(-time.Hour)
	rows := sqlmock.NewRows(sqlParamsEvent).
		AddRow(int64(1), "k1", "E-17", "D1", "1001", punchedAt, "card", "check-in", "", punchedAt)

	mock.ExpectQuery(regexp.QuoteMeta("FROM attendance_events WHERE device_id=$1 AND punched_at>=$2 ORDER BY punched_at, id LIMIT $3")).
		WithArgs("D1", from, 10).
		WillReturnRows(rows)

	events, err := s.Events().Fetch(context.Background(), model.EventFilter{DeviceID: "D1", From: from, Limit: 10})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "k1", events[0].DedupKey)
	assert.Equal(t, "card", events[0].VerifyType)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEventFindByID_NotFound(t *testing.T) {
	db, mock, s := setupMockDB(t)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("FROM attendance_events WHERE id=$1")).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows(sqlParamsEvent))

	_, err := s.Events().FindByID(context.Background(), 7)
	assert.Equal(t, storage.ErrNotFound, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEventUpdateRemark(t *testing.T) {
	db, mock, s := setupMockDB(t)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE attendance_events SET remark=$1 WHERE id=$2")).
		WithArgs("doctor", int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE attendance_events SET remark=$1 WHERE id=$2")).
		WithArgs("doctor", int64(4)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, s.Events().UpdateRemark(context.Background(), 3, "doctor"))
	assert.Equal(t, storage.ErrNotFound, s.Events().UpdateRemark(context.Background(), 4, "doctor"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionAcquire(t *testing.T) {
	db, mock, s := setupMockDB(t)
	defer db.Close()

	expires := time.Now().Add(time.Minute).UTC()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO sync_sessions")).
		WithArgs("D1", "worker-1", expires, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int32(5)))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO sync_sessions")).
		WithArgs("D1", "worker-2", expires, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	first := &model.Session{DeviceID: "D1", Owner: "worker-1", ExpiresAt: expires}
	require.NoError(t, s.Sessions().Acquire(context.Background(), first))
	assert.Equal(t, int32(5), first.ID)

	err := s.Sessions().Acquire(context.Background(), &model.Session{DeviceID: "D1", Owner: "worker-2", ExpiresAt: expires})
	assert.Equal(t, storage.ErrSessionExists, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionAcquireTakeoverGetsNewID(t *testing.T) {
	db, mock, s := setupMockDB(t)
	defer db.Close()

	expires := time.Now().Add(time.Minute).UTC()
	mock.ExpectQuery(regexp.QuoteMeta("SET id = EXCLUDED.id, owner = EXCLUDED.owner")).
		WithArgs("D1", "worker-2", expires, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int32(6)))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM sync_sessions WHERE id=$1")).
		WithArgs(int32(5)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	next := &model.Session{DeviceID: "D1", Owner: "worker-2", ExpiresAt: expires}
	require.NoError(t, s.Sessions().Acquire(context.Background(), next))
	assert.Equal(t, int32(6), next.ID)

	// The holder of the expired lease 5 releases late.
	assert.Equal(t, storage.ErrNotFound, s.Sessions().Release(context.Background(), 5))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRelease(t *testing.T) {
	db, mock, s := setupMockDB(t)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM sync_sessions WHERE id=$1")).
		WithArgs(int32(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.Sessions().Release(context.Background(), 5))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEmployeeResolve(t *testing.T) {
	db, mock, s := setupMockDB(t)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT employee_id FROM employee_mappings")).
		WithArgs("D1", "1001").
		WillReturnRows(sqlmock.NewRows([]string{"employee_id"}).AddRow("E-17"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT employee_id FROM employee_mappings")).
		WithArgs("D1", "9999").
		WillReturnRows(sqlmock.NewRows([]string{"employee_id"}))

	id, err := s.Employees().Resolve(context.Background(), "D1", "1001")
	require.NoError(t, err)
	assert.Equal(t, "E-17", id)

	_, err = s.Employees().Resolve(context.Background(), "D1", "9999")
	assert.Equal(t, storage.ErrNotFound, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeviceCreate(t *testing.T) {
	db, mock, s := setupMockDB(t)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO devices (device_id, name, host, port, comm_key, last_successful_sync, created_at, updated_at)")).
		WithArgs("D1", "Lobby", "10.0.0.5", 4370, 0, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO devices")).
		WillReturnError(&pq.Error{Code: "23505"})

	require.NoError(t, s.Devices().Create(context.Background(), &model.Device{DeviceID: "D1", Name: "Lobby", Host: "10.0.0.5"}))
	assert.Equal(t, storage.ErrConflict, s.Devices().Create(context.Background(), &model.Device{DeviceID: "D1", Host: "10.0.0.5"}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeviceFindByID(t *testing.T) {
	db, mock, s := setupMockDB(t)
	defer db.Close()

	synced := punchedAt.Add(time.Hour)
	rows := sqlmock.NewRows(sqlParamsDevice).
		AddRow("D1", "Lobby", "10.0.0.5", 4370, 0, synced, punchedAt, punchedAt)
	mock.ExpectQuery(regexp.QuoteMeta("FROM devices WHERE device_id=$1")).
		WithArgs("D1").
		WillReturnRows(rows)

	m, err := s.Devices().FindByID(context.Background(), "D1")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.5", m.Host)
	require.NotNil(t, m.LastSuccessfulSync)
	assert.True(t, m.LastSuccessfulSync.Equal(synced))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeviceUpdateLastSync(t *testing.T) {
	db, mock, s := setupMockDB(t)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE devices SET last_successful_sync=$1")).
		WithArgs(punchedAt, sqlmock.AnyArg(), "D1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.Devices().UpdateLastSync(context.Background(), "D1", punchedAt))
	assert.NoError(t, mock.ExpectationsWereMet())
}
