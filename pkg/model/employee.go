package model

import "time"

// EmployeeMapping links a device-local user identifier (badge number as
// enrolled on the terminal) to an employee. The table is maintained
// outside of the sync subsystem.
type EmployeeMapping struct {
	DeviceID     string
	DeviceUserID string
	EmployeeID   string

	CreatedAt time.Time
}
