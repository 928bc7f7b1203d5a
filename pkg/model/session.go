package model

import "time"

// Session is a sync lease on one device. A terminal serves one connection
// at a time, so at most one unexpired session exists per device.
type Session struct {
	ID        int32
	DeviceID  string
	Owner     string
	ExpiresAt time.Time

	CreatedAt time.Time
}
