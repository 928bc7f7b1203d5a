package resource

import (
	"time"

	"github.com/nsyszr/punchclock/pkg/model"
)

type SessionResource struct {
	ID        int32     `json:"id"`
	DeviceID  string    `json:"deviceId"`
	Owner     string    `json:"owner"`
	ExpiresAt time.Time `json:"expiresAt"`
	CreatedAt time.Time `json:"createdAt"`
}

type SessionListResource struct {
	Members []*SessionResource `json:"members"`
}

func NewSession(m *model.Session) (out *SessionResource) {
	out = &SessionResource{
		ID:        m.ID,
		DeviceID:  m.DeviceID,
		Owner:     m.Owner,
		ExpiresAt: m.ExpiresAt,
		CreatedAt: m.CreatedAt,
	}

	return // out
}

func NewSessionList(m []model.Session) (out *SessionListResource) {
	out = &SessionListResource{
		Members: make([]*SessionResource, 0, len(m)),
	}

	for i := range m {
		out.Members = append(out.Members, NewSession(&m[i]))
	}

	return // out
}
