package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/nsyszr/punchclock/pkg/model"
	"github.com/nsyszr/punchclock/pkg/storage"
	"github.com/nsyszr/punchclock/pkg/terminal/proto"
)

type deviceStore struct {
	store map[string]model.Device
	sync.RWMutex
}

func newDeviceStore() *deviceStore {
	return &deviceStore{
		store: make(map[string]model.Device),
	}
}

func (s *deviceStore) FetchAll(ctx context.Context) ([]model.Device, error) {
	s.RLock()
	defer s.RUnlock()

	models := make([]model.Device, 0, len(s.store))
	for _, m := range s.store {
		models = append(models, m)
	}
	sort.Slice(models, func(i, j int) bool { return models[i].DeviceID < models[j].DeviceID })

	return models, nil
}

func (s *deviceStore) FindByID(ctx context.Context, deviceID string) (*model.Device, error) {
	s.RLock()
	defer s.RUnlock()
	if m, ok := s.store[deviceID]; ok {
		return &m, nil
	}

	return nil, storage.ErrNotFound
}

func (s *deviceStore) Create(ctx context.Context, m *model.Device) error {
	s.Lock()
	defer s.Unlock()

	if _, ok := s.store[m.DeviceID]; ok {
		return storage.ErrConflict
	}

	// Set default values
	if m.Port == 0 {
		m.Port = proto.DefaultPort
	}

	m.CreatedAt = time.Now().Round(time.Second).UTC()
	m.UpdatedAt = m.CreatedAt

	s.store[m.DeviceID] = *m

	return nil
}

func (s *deviceStore) Delete(ctx context.Context, deviceID string) error {
	s.Lock()
	defer s.Unlock()

	if _, ok := s.store[deviceID]; !ok {
		return storage.ErrNotFound
	}

	delete(s.store, deviceID)

	return nil
}

func (s *deviceStore) UpdateLastSync(ctx context.Context, deviceID string, ts time.Time) error {
	s.Lock()
	defer s.Unlock()

	m, ok := s.store[deviceID]
	if !ok {
		return storage.ErrNotFound
	}

	ts = ts.UTC()
	m.LastSuccessfulSync = &ts
	m.UpdatedAt = time.Now().Round(time.Second).UTC()
	s.store[deviceID] = m

	return nil
}
