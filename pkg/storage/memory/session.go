package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/nsyszr/punchclock/pkg/model"
	"github.com/nsyszr/punchclock/pkg/storage"
)

type sessionStore struct {
	store  map[int32]model.Session
	nextID int32
	sync.RWMutex
}

func newSessionStore() *sessionStore {
	return &sessionStore{
		store:  make(map[int32]model.Session),
		nextID: 1,
	}
}

func (s *sessionStore) FetchAll(ctx context.Context) ([]model.Session, error) {
	s.RLock()
	defer s.RUnlock()

	models := make([]model.Session, 0, len(s.store))
	for _, m := range s.store {
		models = append(models, m)
	}
	sort.Slice(models, func(i, j int) bool { return models[i].ID < models[j].ID })

	return models, nil
}

func (s *sessionStore) FindByDeviceID(ctx context.Context, deviceID string) (*model.Session, error) {
	s.RLock()
	defer s.RUnlock()

	for _, m := range s.store {
		if m.DeviceID == deviceID {
			return &m, nil
		}
	}

	return nil, storage.ErrNotFound
}

func (s *sessionStore) Acquire(ctx context.Context, m *model.Session) error {
	s.Lock()
	defer s.Unlock()

	now := time.Now().UTC()
	for id, existing := range s.store {
		if existing.DeviceID != m.DeviceID {
			continue
		}
		if existing.ExpiresAt.After(now) {
			return storage.ErrSessionExists
		}
		delete(s.store, id)
	}

	m.ID = s.getNextID()
	m.CreatedAt = now.Round(time.Second)
	s.store[m.ID] = *m

	return nil
}

func (s *sessionStore) Release(ctx context.Context, id int32) error {
	s.Lock()
	defer s.Unlock()

	if _, ok := s.store[id]; !ok {
		return storage.ErrNotFound
	}

	delete(s.store, id)

	return nil
}

func (s *sessionStore) getNextID() int32 {
	id := s.nextID
	s.nextID++
	return id
}
