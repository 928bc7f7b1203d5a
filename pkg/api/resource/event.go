package resource

import (
	"fmt"
	"time"

	"github.com/nsyszr/punchclock/pkg/model"
)

type EventResource struct {
	ID           int64     `json:"id"`
	EmployeeID   string    `json:"employeeId"`
	DeviceID     string    `json:"deviceId"`
	DeviceUserID string    `json:"deviceUserId"`
	PunchedAt    time.Time `json:"punchedAt"`
	VerifyType   string    `json:"verifyType"`
	Status       string    `json:"status"`
	Remark       string    `json:"remark,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

type EventListResource struct {
	Members []*EventResource `json:"members"`
}

type RemarkResource struct {
	Remark string `json:"remark"`
}

func NewEvent(m *model.AttendanceEvent) (out *EventResource) {
	out = &EventResource{
		ID:           m.ID,
		EmployeeID:   m.EmployeeID,
		DeviceID:     m.DeviceID,
		DeviceUserID: m.DeviceUserID,
		PunchedAt:    m.PunchedAt.UTC(),
		VerifyType:   m.VerifyType,
		Status:       m.Status,
		Remark:       m.Remark,
		CreatedAt:    m.CreatedAt,
	}

	return // out
}

func NewEventList(m []model.AttendanceEvent) (out *EventListResource) {
	out = &EventListResource{
		Members: make([]*EventResource, 0, len(m)),
	}

	for i := range m {
		out.Members = append(out.Members, NewEvent(&m[i]))
	}

	return // out
}

const maxRemarkLength = 500

func ValidateRemark(r *RemarkResource) error {
	if len(r.Remark) > maxRemarkLength {
		return fmt.Errorf("remark must not exceed %d characters", maxRemarkLength)
	}
	return nil
}
