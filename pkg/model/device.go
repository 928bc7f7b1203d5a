package model

import "time"

// Device is a model of the persistency layer. It describes one attendance
// terminal reachable over TCP.
type Device struct {
	DeviceID           string
	Name               string
	Host               string
	Port               int
	CommKey            int
	LastSuccessfulSync *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}
