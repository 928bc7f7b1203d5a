package resource

import (
	"fmt"
	"net"
	"time"

	"github.com/nsyszr/punchclock/pkg/controller"
	"github.com/nsyszr/punchclock/pkg/terminal"
	"github.com/nsyszr/punchclock/pkg/terminal/proto"
)

const DefaultSyncTimeout = 5000

// SyncRequest is the body of POST /api/v1/sync. Port and TimeoutMS are
// pointers so that an explicit zero is told apart from an omitted field.
type SyncRequest struct {
	DeviceID  string `json:"device_id"`
	IPAddress string `json:"ip_address"`
	Port      *int   `json:"port"`
	TimeoutMS *int   `json:"timeout_ms"`
}

type SyncSummary struct {
	Fetched          int      `json:"fetched"`
	Inserted         int      `json:"inserted"`
	Duplicates       int      `json:"duplicates"`
	Unmapped         int      `json:"unmapped"`
	Conflicts        int      `json:"conflicts"`
	Users            int      `json:"users"`
	UnmappedUsers    []string `json:"unmappedUsers"`
	MalformedRecords int      `json:"malformedRecords"`
	DurationMS       int64    `json:"durationMs"`
}

type SyncResponse struct {
	Success    bool                 `json:"success"`
	Records    int                  `json:"records"`
	DeviceInfo *terminal.DeviceInfo `json:"deviceInfo"`
	Message    string               `json:"message"`
	Summary    *SyncSummary         `json:"summary"`
}

type SyncAllResponse struct {
	Success bool                `json:"success"`
	Results []controller.Result `json:"results"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	ErrorKind string `json:"errorKind,omitempty"`
}

// ValidatedSync is a checked SyncRequest with defaults applied.
type ValidatedSync struct {
	DeviceID  string
	IPAddress string
	Port      int
	Timeout   time.Duration
}

func ValidateSyncRequest(r *SyncRequest) (*ValidatedSync, error) {
	if r.DeviceID == "" {
		return nil, fmt.Errorf("device_id is required")
	}
	if r.IPAddress == "" {
		return nil, fmt.Errorf("ip_address is required")
	}
	if net.ParseIP(r.IPAddress) == nil {
		return nil, fmt.Errorf("ip_address %q is not a valid IP address", r.IPAddress)
	}

	out := &ValidatedSync{
		DeviceID:  r.DeviceID,
		IPAddress: r.IPAddress,
		Port:      proto.DefaultPort,
		Timeout:   DefaultSyncTimeout * time.Millisecond,
	}
	if r.Port != nil {
		if err := ValidatePort(*r.Port); err != nil {
			return nil, err
		}
		out.Port = *r.Port
	}
	if r.TimeoutMS != nil {
		if *r.TimeoutMS <= 0 {
			return nil, fmt.Errorf("timeout_ms must be positive")
		}
		out.Timeout = time.Duration(*r.TimeoutMS) * time.Millisecond
	}

	return out, nil
}

func ValidatePort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("port %d is outside 1-65535", port)
	}
	return nil
}

func ValidateHost(host string) error {
	if host == "" {
		return fmt.Errorf("host is required")
	}
	if net.ParseIP(host) == nil {
		return fmt.Errorf("host %q is not a valid IP address", host)
	}
	return nil
}

func NewSyncResponse(r *controller.Result) *SyncResponse {
	return &SyncResponse{
		Success:    true,
		Records:    r.Punches.Inserted,
		DeviceInfo: r.Info,
		Message: fmt.Sprintf("Synced device %s: %d new, %d duplicate, %d unmapped attendance records",
			r.DeviceID, r.Punches.Inserted, r.Punches.Duplicates, r.Punches.Unmapped),
		Summary: &SyncSummary{
			Fetched:          r.Punches.Fetched,
			Inserted:         r.Punches.Inserted,
			Duplicates:       r.Punches.Duplicates,
			Unmapped:         r.Punches.Unmapped,
			Conflicts:        r.Punches.Conflicts,
			Users:            r.Users.Fetched,
			UnmappedUsers:    r.Users.Unmapped,
			MalformedRecords: r.MalformedRecords,
			DurationMS:       r.FinishedAt.Sub(r.StartedAt).Milliseconds(),
		},
	}
}

func NewSyncErrorResponse(r *controller.Result) *ErrorResponse {
	return &ErrorResponse{
		Success:   false,
		Message:   fmt.Sprintf("Sync of device %s failed: %s", r.DeviceID, r.Error),
		ErrorKind: r.ErrorKind,
	}
}
