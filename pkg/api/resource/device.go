package resource

import (
	"fmt"
	"time"

	"github.com/nsyszr/punchclock/pkg/model"
)

type DeviceResource struct {
	DeviceID           string     `json:"deviceId"`
	Name               string     `json:"name"`
	Host               string     `json:"host"`
	Port               int        `json:"port"`
	CommKey            int        `json:"commKey,omitempty"`
	LastSuccessfulSync *time.Time `json:"lastSuccessfulSync,omitempty"`
	CreatedAt          *time.Time `json:"createdAt,omitempty"`
	UpdatedAt          *time.Time `json:"updatedAt,omitempty"`
}

type DeviceListResource struct {
	Members []*DeviceResource `json:"members"`
}

func NewDevice(m *model.Device) (out *DeviceResource) {
	out = &DeviceResource{
		DeviceID:           m.DeviceID,
		Name:               m.Name,
		Host:               m.Host,
		Port:               m.Port,
		LastSuccessfulSync: m.LastSuccessfulSync,
	}

	if !m.CreatedAt.IsZero() {
		out.CreatedAt = &time.Time{}
		*out.CreatedAt = m.CreatedAt.Round(time.Second)
	}
	if !m.UpdatedAt.IsZero() {
		out.UpdatedAt = &time.Time{}
		*out.UpdatedAt = m.UpdatedAt.Round(time.Second)
	}

	return // out
}

func NewDeviceList(m []model.Device) (out *DeviceListResource) {
	out = &DeviceListResource{
		Members: make([]*DeviceResource, 0, len(m)),
	}

	for i := range m {
		out.Members = append(out.Members, NewDevice(&m[i]))
	}

	return // out
}

func ValidateDevice(r *DeviceResource) (m *model.Device, err error) {
	if r.DeviceID == "" {
		return nil, fmt.Errorf("deviceId is required")
	}
	if err := ValidateHost(r.Host); err != nil {
		return nil, err
	}
	if r.Port != 0 {
		if err := ValidatePort(r.Port); err != nil {
			return nil, err
		}
	}
	if r.CommKey < 0 {
		return nil, fmt.Errorf("commKey must not be negative")
	}

	m = &model.Device{
		DeviceID: r.DeviceID,
		Name:     r.Name,
		Host:     r.Host,
		Port:     r.Port,
		CommKey:  r.CommKey,
	}

	return m, nil
}
