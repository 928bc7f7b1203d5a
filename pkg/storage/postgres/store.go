package postgres

import (
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/nsyszr/punchclock/pkg/storage"
	"github.com/pkg/errors"
)

// store contains all PostgreSQL based sub-stores for managing the models
type store struct {
	devices   *deviceStore
	events    *eventStore
	employees *employeeStore
	sessions  *sessionStore
}

// NewStore creates a new PostgreSQL based Storage interface
func NewStore(db *sqlx.DB) storage.Interface {
	return &store{
		devices:   newDeviceStore(db),
		events:    newEventStore(db),
		employees: newEmployeeStore(db),
		sessions:  newSessionStore(db),
	}
}

// Devices returns a sub-store for managing the Device model
func (s *store) Devices() storage.DeviceStore {
	return s.devices
}

// Events returns a sub-store for managing the attendance ledger
func (s *store) Events() storage.EventStore {
	return s.events
}

// Employees returns a sub-store for managing the device user mappings
func (s *store) Employees() storage.EmployeeStore {
	return s.employees
}

// Sessions returns a sub-store for managing sync leases
func (s *store) Sessions() storage.SessionStore {
	return s.sessions
}

const pqUniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pqUniqueViolation
	}
	return false
}
