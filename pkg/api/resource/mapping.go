package resource

import (
	"fmt"

	"github.com/nsyszr/punchclock/pkg/model"
)

type MappingResource struct {
	DeviceUserID string `json:"deviceUserId"`
	EmployeeID   string `json:"employeeId"`
}

type MappingListResource struct {
	Members []*MappingResource `json:"members"`
}

func NewMappingList(m []model.EmployeeMapping) (out *MappingListResource) {
	out = &MappingListResource{
		Members: make([]*MappingResource, 0, len(m)),
	}

	for _, elem := range m {
		out.Members = append(out.Members, &MappingResource{
			DeviceUserID: elem.DeviceUserID,
			EmployeeID:   elem.EmployeeID,
		})
	}

	return // out
}

func ValidateMapping(deviceID string, r *MappingResource) (*model.EmployeeMapping, error) {
	if r.DeviceUserID == "" {
		return nil, fmt.Errorf("deviceUserId is required")
	}
	if r.EmployeeID == "" {
		return nil, fmt.Errorf("employeeId is required")
	}

	return &model.EmployeeMapping{
		DeviceID:     deviceID,
		DeviceUserID: r.DeviceUserID,
		EmployeeID:   r.EmployeeID,
	}, nil
}
