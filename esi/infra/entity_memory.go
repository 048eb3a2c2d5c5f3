package infra

import (
	"context"
	"sync"
	"time"

	"killboard-gateway/esi/domain"
)

// MemoryEntityStore é um EntityStore em memória para testes e desenvolvimento.
type MemoryEntityStore struct {
	mu      sync.Mutex
	records map[domain.Kind]map[int64]domain.Record

	upserts int
}

func NewMemoryEntityStore() *MemoryEntityStore {
	return &MemoryEntityStore{records: make(map[domain.Kind]map[int64]domain.Record)}
}

func (s *MemoryEntityStore) FindOne(_ context.Context, kind domain.Kind, id int64) (domain.Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[kind][id]
	if !ok {
		return domain.Record{}, false, nil
	}
	rec.Data = append([]byte(nil), rec.Data...)
	return rec, true, nil
}

func (s *MemoryEntityStore) Upsert(_ context.Context, kind domain.Kind, id int64, rec domain.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	byID, ok := s.records[kind]
	if !ok {
		byID = make(map[int64]domain.Record)
		s.records[kind] = byID
	}
	rec.Data = append([]byte(nil), rec.Data...)
	byID[id] = rec
	s.upserts++
	return nil
}

func (s *MemoryEntityStore) Touch(_ context.Context, kind domain.Kind, id int64, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[kind][id]
	if !ok {
		return false, nil
	}
	rec.UpdatedAt = at
	s.records[kind][id] = rec
	return true, nil
}

// Upserts conta quantas escritas completas foram feitas.
func (s *MemoryEntityStore) Upserts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upserts
}
