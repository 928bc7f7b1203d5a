package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/nsyszr/punchclock/pkg/model"
	"github.com/nsyszr/punchclock/pkg/storage"
)

type eventStore struct {
	store  map[int64]model.AttendanceEvent
	keys   map[string]int64
	nextID int64
	sync.RWMutex
}

func newEventStore() *eventStore {
	return &eventStore{
		store:  make(map[int64]model.AttendanceEvent),
		keys:   make(map[string]int64),
		nextID: 1,
	}
}

func (s *eventStore) Upsert(ctx context.Context, m *model.AttendanceEvent) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.Lock()
	defer s.Unlock()

	if _, ok := s.keys[m.DedupKey]; ok {
		return false, nil
	}

	m.ID = s.getNextID()
	m.CreatedAt = time.Now().Round(time.Second).UTC()

	s.store[m.ID] = *m
	s.keys[m.DedupKey] = m.ID

	return true, nil
}

func (s *eventStore) Fetch(ctx context.Context, filter model.EventFilter) ([]model.AttendanceEvent, error) {
	s.RLock()
	defer s.RUnlock()

	models := make([]model.AttendanceEvent, 0)
	for _, m := range s.store {
		if filter.DeviceID != "" && m.DeviceID != filter.DeviceID {
			continue
		}
		if filter.EmployeeID != "" && m.EmployeeID != filter.EmployeeID {
			continue
		}
		if !filter.From.IsZero() && m.PunchedAt.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && !m.PunchedAt.Before(filter.To) {
			continue
		}
		models = append(models, m)
	}

	sort.Slice(models, func(i, j int) bool {
		if models[i].PunchedAt.Equal(models[j].PunchedAt) {
			return models[i].ID < models[j].ID
		}
		return models[i].PunchedAt.Before(models[j].PunchedAt)
	})

	if filter.Limit > 0 && len(models) > filter.Limit {
		models = models[:filter.Limit]
	}

	return models, nil
}

func (s *eventStore) FindByID(ctx context.Context, id int64) (*model.AttendanceEvent, error) {
	s.RLock()
	defer s.RUnlock()
	if m, ok := s.store[id]; ok {
		return &m, nil
	}

	return nil, storage.ErrNotFound
}

func (s *eventStore) UpdateRemark(ctx context.Context, id int64, remark string) error {
	s.Lock()
	defer s.Unlock()

	m, ok := s.store[id]
	if !ok {
		return storage.ErrNotFound
	}

	m.Remark = remark
	s.store[id] = m

	return nil
}

func (s *eventStore) getNextID() int64 {
	id := s.nextID
	s.nextID++
	return id
}
