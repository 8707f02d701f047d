package store

import (
	"context"
	"sync"
	"time"

	"github.com/couchcryptid/icon-grid-etl/internal/domain"
)

// MemoryStore is a concurrency-safe in-memory Store. It backs tests and
// local dry runs where no database is available.
type MemoryStore struct {
	mu sync.RWMutex

	files        map[string]*domain.FileRecord
	coordinates  []domain.Coordinate
	observations map[obsKey]*domain.Observation

	renewals int
}

type obsKey struct {
	coordinateID int
	at           time.Time
}

// NewMemoryStore creates an empty MemoryStore serving the given catalog.
func NewMemoryStore(coordinates []domain.Coordinate) *MemoryStore {
	return &MemoryStore{
		files:        make(map[string]*domain.FileRecord),
		coordinates:  coordinates,
		observations: make(map[obsKey]*domain.Observation),
	}
}

func (s *MemoryStore) FindFile(_ context.Context, name string) (*domain.FileRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.files[name]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (s *MemoryStore) SaveFile(_ context.Context, rec *domain.FileRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	s.files[rec.Name] = &cp
	return nil
}

func (s *MemoryStore) OldestUnprocessedModelRun(_ context.Context) (time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var oldest time.Time
	var found bool
	for _, rec := range s.files {
		if !rec.SufficientSize || rec.Persisted || rec.Validity == domain.ValidityInvalid {
			continue
		}
		if !found || rec.ModelRun.Before(oldest) {
			oldest = rec.ModelRun
			found = true
		}
	}
	return oldest, found, nil
}

func (s *MemoryStore) NewestDownloadedModelRun(_ context.Context) (time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var newest time.Time
	var found bool
	for _, rec := range s.files {
		if !found || rec.ModelRun.After(newest) {
			newest = rec.ModelRun
			found = true
		}
	}
	return newest, found, nil
}

func (s *MemoryStore) CoordinatesInRect(_ context.Context, r domain.Rect) ([]domain.Coordinate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Coordinate
	for _, c := range s.coordinates {
		if r.Contains(c.Point()) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *MemoryStore) FindObservations(_ context.Context, coordinateIDs []int, at time.Time) (map[int]*domain.Observation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[int]*domain.Observation)
	for _, id := range coordinateIDs {
		if o, ok := s.observations[obsKey{coordinateID: id, at: at.UTC()}]; ok {
			cp := *o
			out[id] = &cp
		}
	}
	return out, nil
}

func (s *MemoryStore) UpsertObservations(_ context.Context, obs []*domain.Observation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range obs {
		cp := *o
		s.observations[obsKey{coordinateID: o.Coordinate.ID, at: o.Time.UTC()}] = &cp
	}
	return nil
}

func (s *MemoryStore) Renew(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.renewals++
	return nil
}

// Renewals reports how often the session was recycled, for tests.
func (s *MemoryStore) Renewals() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.renewals
}

// ObservationCount reports how many observations are stored, for tests.
func (s *MemoryStore) ObservationCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.observations)
}

func (s *MemoryStore) Close() {}
