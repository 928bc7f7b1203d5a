package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/nsyszr/punchclock/pkg/model"
	"github.com/nsyszr/punchclock/pkg/storage"
	"github.com/pkg/errors"
)

func newEventStore(db *sqlx.DB) *eventStore {
	return &eventStore{
		db: db,
	}
}

type eventStore struct {
	db *sqlx.DB
}

type sqlDataEvent struct {
	ID           int64     `db:"id"`
	DedupKey     string    `db:"dedup_key"`
	EmployeeID   string    `db:"employee_id"`
	DeviceID     string    `db:"device_id"`
	DeviceUserID string    `db:"device_user_id"`
	PunchedAt    time.Time `db:"punched_at"`
	VerifyType   string    `db:"verify_type"`
	Status       string    `db:"status"`
	Remark       string    `db:"remark"`
	CreatedAt    time.Time `db:"created_at"`
}

var sqlParamsEvent = []string{
	"id",
	"dedup_key",
	"employee_id",
	"device_id",
	"device_user_id",
	"punched_at",
	"verify_type",
	"status",
	"remark",
	"created_at",
}

func (d *sqlDataEvent) Scan(m *model.AttendanceEvent) error {
	createdAt := m.CreatedAt
	if m.CreatedAt.IsZero() {
		createdAt = time.Now().Round(time.Second).UTC()
	}

	d.ID = m.ID
	d.DedupKey = m.DedupKey
	d.EmployeeID = m.EmployeeID
	d.DeviceID = m.DeviceID
	d.DeviceUserID = m.DeviceUserID
	d.PunchedAt = m.PunchedAt.UTC()
	d.VerifyType = m.VerifyType
	d.Status = m.Status
	d.Remark = m.Remark
	d.CreatedAt = createdAt

	return nil
}

func (d *sqlDataEvent) Model() (*model.AttendanceEvent, error) {
	m := &model.AttendanceEvent{
		ID:           d.ID,
		DedupKey:     d.DedupKey,
		EmployeeID:   d.EmployeeID,
		DeviceID:     d.DeviceID,
		DeviceUserID: d.DeviceUserID,
		PunchedAt:    d.PunchedAt.UTC(),
		VerifyType:   d.VerifyType,
		Status:       d.Status,
		Remark:       d.Remark,
		CreatedAt:    d.CreatedAt,
	}

	return m, nil
}

// Upsert relies on the unique index on dedup_key: a duplicate returns no
// row and leaves the ledger untouched.
func (s *eventStore) Upsert(ctx context.Context, m *model.AttendanceEvent) (bool, error) {
	d := sqlDataEvent{}
	if err := d.Scan(m); err != nil {
		return false, errors.Wrap(err, "failed to convert event model to SQL data")
	}

	query := `INSERT INTO attendance_events (dedup_key, employee_id, device_id, device_user_id, punched_at, verify_type, status, remark, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (dedup_key) DO NOTHING
RETURNING id`

	var id int64
	err := s.db.QueryRowxContext(ctx, query,
		d.DedupKey, d.EmployeeID, d.DeviceID, d.DeviceUserID, d.PunchedAt,
		d.VerifyType, d.Status, d.Remark, d.CreatedAt,
	).Scan(&id)
	switch {
	case err == sql.ErrNoRows:
		return false, nil
	case isUniqueViolation(err):
		return false, storage.ErrConflict
	case err != nil:
		return false, errors.Wrap(err, "failed to upsert attendance event")
	}

	m.ID = id
	m.CreatedAt = d.CreatedAt

	return true, nil
}

func (s *eventStore) Fetch(ctx context.Context, filter model.EventFilter) ([]model.AttendanceEvent, error) {
	var conds []string
	var args []interface{}
	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if filter.DeviceID != "" {
		add("device_id=$%d", filter.DeviceID)
	}
	if filter.EmployeeID != "" {
		add("employee_id=$%d", filter.EmployeeID)
	}
	if !filter.From.IsZero() {
		add("punched_at>=$%d", filter.From.UTC())
	}
	if !filter.To.IsZero() {
		add("punched_at<$%d", filter.To.UTC())
	}

	query := fmt.Sprintf("SELECT %s FROM attendance_events", strings.Join(sqlParamsEvent, ", "))
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY punched_at, id"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows := make([]sqlDataEvent, 0)
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "failed to fetch attendance events")
	}

	models := make([]model.AttendanceEvent, 0, len(rows))
	for _, d := range rows {
		m, err := d.Model()
		if err != nil {
			return nil, errors.Wrap(err, "failed to convert SQL data to event model")
		}
		models = append(models, *m)
	}

	return models, nil
}

func (s *eventStore) FindByID(ctx context.Context, id int64) (*model.AttendanceEvent, error) {
	d := sqlDataEvent{}
	query := fmt.Sprintf("SELECT %s FROM attendance_events WHERE id=$1", strings.Join(sqlParamsEvent, ", "))
	if err := s.db.GetContext(ctx, &d, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, storage.ErrNotFound
		}
		return nil, errors.Wrap(err, "failed to find attendance event")
	}

	return d.Model()
}

func (s *eventStore) UpdateRemark(ctx context.Context, id int64, remark string) error {
	query := "UPDATE attendance_events SET remark=$1 WHERE id=$2"
	res, err := s.db.ExecContext(ctx, query, remark, id)
	if err != nil {
		return errors.Wrap(err, "failed to update attendance event remark")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return storage.ErrNotFound
	}

	return nil
}
