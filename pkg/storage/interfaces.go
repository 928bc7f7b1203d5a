package storage

import (
	"context"
	"time"

	"github.com/nsyszr/punchclock/pkg/model"
)

// Interface is implemented by the storage
type Interface interface {
	Devices() DeviceStore
	Events() EventStore
	Employees() EmployeeStore
	Sessions() SessionStore
}

// DeviceStore is responsible for managing the Device model
type DeviceStore interface {
	FetchAll(ctx context.Context) ([]model.Device, error)
	FindByID(ctx context.Context, deviceID string) (*model.Device, error)
	Create(ctx context.Context, m *model.Device) error
	Delete(ctx context.Context, deviceID string) error
	UpdateLastSync(ctx context.Context, deviceID string, ts time.Time) error
}

// EventStore is responsible for managing the AttendanceEvent ledger.
type EventStore interface {
	// Upsert inserts the event unless a row with the same dedup key exists.
	// The check and the insert are one atomic step. inserted reports
	// whether a new row was written.
	Upsert(ctx context.Context, m *model.AttendanceEvent) (inserted bool, err error)
	Fetch(ctx context.Context, filter model.EventFilter) ([]model.AttendanceEvent, error)
	FindByID(ctx context.Context, id int64) (*model.AttendanceEvent, error)
	UpdateRemark(ctx context.Context, id int64, remark string) error
}

// EmployeeStore is responsible for managing the EmployeeMapping model
type EmployeeStore interface {
	// Resolve returns the employee id mapped to the device user or
	// ErrNotFound.
	Resolve(ctx context.Context, deviceID, deviceUserID string) (string, error)
	FetchByDevice(ctx context.Context, deviceID string) ([]model.EmployeeMapping, error)
	Create(ctx context.Context, m *model.EmployeeMapping) error
}

// SessionStore is responsible for managing sync leases
type SessionStore interface {
	FetchAll(ctx context.Context) ([]model.Session, error)
	FindByDeviceID(ctx context.Context, deviceID string) (*model.Session, error)
	// Acquire creates a lease on m.DeviceID valid until m.ExpiresAt. An
	// expired lease is replaced. A live lease yields ErrSessionExists.
	Acquire(ctx context.Context, m *model.Session) error
	Release(ctx context.Context, id int32) error
}
