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
	"github.com/nsyszr/punchclock/pkg/terminal/proto"
	"github.com/pkg/errors"
)

func newDeviceStore(db *sqlx.DB) *deviceStore {
	return &deviceStore{
		db: db,
	}
}

type deviceStore struct {
	db *sqlx.DB
}

type sqlDataDevice struct {
	DeviceID           string       `db:"device_id"`
	Name               string       `db:"name"`
	Host               string       `db:"host"`
	Port               int          `db:"port"`
	CommKey            int          `db:"comm_key"`
	LastSuccessfulSync sql.NullTime `db:"last_successful_sync"`
	CreatedAt          time.Time    `db:"created_at"`
	UpdatedAt          time.Time    `db:"updated_at"`
}

var sqlParamsDevice = []string{
	"device_id",
	"name",
	"host",
	"port",
	"comm_key",
	"last_successful_sync",
	"created_at",
	"updated_at",
}

func (d *sqlDataDevice) Scan(m *model.Device) error {
	var createdAt, updatedAt = m.CreatedAt, m.UpdatedAt

	if m.CreatedAt.IsZero() {
		createdAt = time.Now().Round(time.Second).UTC()
	}

	if m.UpdatedAt.IsZero() {
		updatedAt = time.Now().Round(time.Second).UTC()
	}

	d.DeviceID = m.DeviceID
	d.Name = m.Name
	d.Host = m.Host
	d.Port = m.Port
	d.CommKey = m.CommKey
	d.LastSuccessfulSync = sql.NullTime{}
	if m.LastSuccessfulSync != nil {
		d.LastSuccessfulSync = sql.NullTime{Time: *m.LastSuccessfulSync, Valid: true}
	}
	d.CreatedAt = createdAt
	d.UpdatedAt = updatedAt

	return nil
}

func (d *sqlDataDevice) Model() (*model.Device, error) {
	m := &model.Device{
		DeviceID:  d.DeviceID,
		Name:      d.Name,
		Host:      d.Host,
		Port:      d.Port,
		CommKey:   d.CommKey,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
	if d.LastSuccessfulSync.Valid {
		ts := d.LastSuccessfulSync.Time.UTC()
		m.LastSuccessfulSync = &ts
	}

	return m, nil
}

func (s *deviceStore) FetchAll(ctx context.Context) ([]model.Device, error) {
	rows := make([]sqlDataDevice, 0)

	query := fmt.Sprintf("SELECT %s FROM devices ORDER BY device_id", strings.Join(sqlParamsDevice, ", "))
	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, errors.Wrap(err, "failed to fetch all devices")
	}

	models := make([]model.Device, 0, len(rows))
	for _, d := range rows {
		m, err := d.Model()
		if err != nil {
			return nil, errors.Wrap(err, "failed to convert SQL data to device model")
		}
		models = append(models, *m)
	}

	return models, nil
}

func (s *deviceStore) FindByID(ctx context.Context, deviceID string) (*model.Device, error) {
	d := sqlDataDevice{}
	query := fmt.Sprintf("SELECT %s FROM devices WHERE device_id=$1", strings.Join(sqlParamsDevice, ", "))
	if err := s.db.GetContext(ctx, &d, query, deviceID); err != nil {
		if err == sql.ErrNoRows {
			return nil, storage.ErrNotFound
		}
		return nil, errors.Wrap(err, "failed to find device")
	}

	return d.Model()
}

func (s *deviceStore) Create(ctx context.Context, m *model.Device) error {
	// Set default values
	if m.Port == 0 {
		m.Port = proto.DefaultPort
	}

	d := sqlDataDevice{}
	if err := d.Scan(m); err != nil {
		return errors.Wrap(err, "failed to convert device model to SQL data")
	}

	query := fmt.Sprintf(
		"INSERT INTO devices (%s) VALUES (%s)",
		strings.Join(sqlParamsDevice, ", "),
		":"+strings.Join(sqlParamsDevice, ", :"),
	)
	if _, err := s.db.NamedExecContext(ctx, query, d); err != nil {
		if isUniqueViolation(err) {
			return storage.ErrConflict
		}
		return errors.Wrap(err, "failed to create device")
	}
	m.CreatedAt = d.CreatedAt
	m.UpdatedAt = d.UpdatedAt

	return nil
}

func (s *deviceStore) Delete(ctx context.Context, deviceID string) error {
	query := "DELETE FROM devices WHERE device_id=$1"
	res, err := s.db.ExecContext(ctx, query, deviceID)
	if err != nil {
		return errors.Wrap(err, "failed to delete device")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return storage.ErrNotFound
	}

	return nil
}

func (s *deviceStore) UpdateLastSync(ctx context.Context, deviceID string, ts time.Time) error {
	query := "UPDATE devices SET last_successful_sync=$1, updated_at=$2 WHERE device_id=$3"
	res, err := s.db.ExecContext(ctx, query, ts.UTC(), time.Now().Round(time.Second).UTC(), deviceID)
	if err != nil {
		return errors.Wrap(err, "failed to update device last sync")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return storage.ErrNotFound
	}

	return nil
}
