package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/nsyszr/punchclock/pkg/model"
	"github.com/nsyszr/punchclock/pkg/storage"
	"github.com/pkg/errors"
)

func newEmployeeStore(db *sqlx.DB) *employeeStore {
	return &employeeStore{
		db: db,
	}
}

type employeeStore struct {
	db *sqlx.DB
}

type sqlDataEmployeeMapping struct {
	DeviceID     string    `db:"device_id"`
	DeviceUserID string    `db:"device_user_id"`
	EmployeeID   string    `db:"employee_id"`
	CreatedAt    time.Time `db:"created_at"`
}

func (d *sqlDataEmployeeMapping) Model() (*model.EmployeeMapping, error) {
	return &model.EmployeeMapping{
		DeviceID:     d.DeviceID,
		DeviceUserID: d.DeviceUserID,
		EmployeeID:   d.EmployeeID,
		CreatedAt:    d.CreatedAt,
	}, nil
}

func (s *employeeStore) Resolve(ctx context.Context, deviceID, deviceUserID string) (string, error) {
	var employeeID string
	query := "SELECT employee_id FROM employee_mappings WHERE device_id=$1 AND device_user_id=$2"
	if err := s.db.GetContext(ctx, &employeeID, query, deviceID, deviceUserID); err != nil {
		if err == sql.ErrNoRows {
			return "", storage.ErrNotFound
		}
		return "", errors.Wrap(err, "failed to resolve device user")
	}

	return employeeID, nil
}

func (s *employeeStore) FetchByDevice(ctx context.Context, deviceID string) ([]model.EmployeeMapping, error) {
	rows := make([]sqlDataEmployeeMapping, 0)
	query := "SELECT device_id, device_user_id, employee_id, created_at FROM employee_mappings WHERE device_id=$1 ORDER BY device_user_id"
	if err := s.db.SelectContext(ctx, &rows, query, deviceID); err != nil {
		return nil, errors.Wrap(err, "failed to fetch employee mappings")
	}

	models := make([]model.EmployeeMapping, 0, len(rows))
	for _, d := range rows {
		m, err := d.Model()
		if err != nil {
			return nil, errors.Wrap(err, "failed to convert SQL data to mapping model")
		}
		models = append(models, *m)
	}

	return models, nil
}

// Create adds or replaces the mapping for the device user.
func (s *employeeStore) Create(ctx context.Context, m *model.EmployeeMapping) error {
	m.CreatedAt = time.Now().Round(time.Second).UTC()

	query := `INSERT INTO employee_mappings (device_id, device_user_id, employee_id, created_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (device_id, device_user_id) DO UPDATE SET employee_id = EXCLUDED.employee_id`
	if _, err := s.db.ExecContext(ctx, query, m.DeviceID, m.DeviceUserID, m.EmployeeID, m.CreatedAt); err != nil {
		return errors.Wrap(err, "failed to create employee mapping")
	}

	return nil
}
