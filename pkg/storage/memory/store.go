package memory

import "github.com/nsyszr/punchclock/pkg/storage"

// Store contains all memory-based sub-stores for managing the persistent models
type store struct {
	devices   *deviceStore
	events    *eventStore
	employees *employeeStore
	sessions  *sessionStore
}

// NewStore creates a new memory-based Storage interface
func NewStore() storage.Interface {
	return &store{
		devices:   newDeviceStore(),
		events:    newEventStore(),
		employees: newEmployeeStore(),
		sessions:  newSessionStore(),
	}
}

// Devices returns a sub-store for managing the device model
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
