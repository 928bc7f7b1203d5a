package controller

import (
	"time"

	"github.com/nsyszr/punchclock/pkg/reconcile"
	"github.com/nsyszr/punchclock/pkg/terminal"
)

// Failure kinds raised by the controller itself. Session failures carry
// the terminal error kinds.
const (
	KindDeviceBusy       = "DEVICE_BUSY"
	KindPersistenceError = "PERSISTENCE_ERROR"
	KindCancelled        = string(terminal.KindCancelled)
)

// Result is the outcome of syncing one device. It is not persisted.
type Result struct {
	DeviceID         string                     `json:"deviceId"`
	Address          string                     `json:"address"`
	Success          bool                       `json:"success"`
	ErrorKind        string                     `json:"errorKind,omitempty"`
	Error            string                     `json:"error,omitempty"`
	Info             *terminal.DeviceInfo       `json:"deviceInfo,omitempty"`
	Users            reconcile.UserResult       `json:"users"`
	Punches          reconcile.AttendanceResult `json:"punches"`
	MalformedRecords int                        `json:"malformedRecords"`
	StartedAt        time.Time                  `json:"startedAt"`
	FinishedAt       time.Time                  `json:"finishedAt"`
}

func (r *Result) fail(kind string, err error) {
	r.Success = false
	r.ErrorKind = kind
	r.Error = err.Error()
}

type syncStatusDetails struct {
	Status     string    `json:"status"`
	ErrorKind  string    `json:"error_kind,omitempty"`
	Inserted   int       `json:"inserted"`
	Duplicates int       `json:"duplicates"`
	Unmapped   int       `json:"unmapped"`
	FinishedAt time.Time `json:"finished_at"`
}

func newSyncStatusDetails(r *Result) *syncStatusDetails {
	status := "SUCCEEDED"
	if !r.Success {
		status = "FAILED"
	}
	return &syncStatusDetails{
		Status:     status,
		ErrorKind:  r.ErrorKind,
		Inserted:   r.Punches.Inserted,
		Duplicates: r.Punches.Duplicates,
		Unmapped:   r.Punches.Unmapped,
		FinishedAt: r.FinishedAt,
	}
}
