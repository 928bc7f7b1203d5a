package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/nsyszr/punchclock/pkg/model"
	"github.com/nsyszr/punchclock/pkg/storage"
)

type employeeKey struct {
	deviceID     string
	deviceUserID string
}

type employeeStore struct {
	store map[employeeKey]model.EmployeeMapping
	sync.RWMutex
}

func newEmployeeStore() *employeeStore {
	return &employeeStore{
		store: make(map[employeeKey]model.EmployeeMapping),
	}
}

func (s *employeeStore) Resolve(ctx context.Context, deviceID, deviceUserID string) (string, error) {
	s.RLock()
	defer s.RUnlock()
	if m, ok := s.store[employeeKey{deviceID, deviceUserID}]; ok {
		return m.EmployeeID, nil
	}

	return "", storage.ErrNotFound
}

func (s *employeeStore) FetchByDevice(ctx context.Context, deviceID string) ([]model.EmployeeMapping, error) {
	s.RLock()
	defer s.RUnlock()

	models := make([]model.EmployeeMapping, 0)
	for k, m := range s.store {
		if k.deviceID == deviceID {
			models = append(models, m)
		}
	}
	sort.Slice(models, func(i, j int) bool { return models[i].DeviceUserID < models[j].DeviceUserID })

	return models, nil
}

// Create adds or replaces the mapping for the device user.
func (s *employeeStore) Create(ctx context.Context, m *model.EmployeeMapping) error {
	s.Lock()
	defer s.Unlock()

	m.CreatedAt = time.Now().Round(time.Second).UTC()
	s.store[employeeKey{m.DeviceID, m.DeviceUserID}] = *m

	return nil
}
