package model

import "time"

// AttendanceEvent is one row of the attendance ledger. Rows are never
// mutated after creation except for Remark.
type AttendanceEvent struct {
	ID           int64
	DedupKey     string
	EmployeeID   string
	DeviceID     string
	DeviceUserID string
	PunchedAt    time.Time
	VerifyType   string
	Status       string
	Remark       string

	CreatedAt time.Time
}

// EventFilter narrows a ledger listing. Zero values are ignored.
type EventFilter struct {
	DeviceID   string
	EmployeeID string
	From       time.Time
	To         time.Time
	Limit      int
}
