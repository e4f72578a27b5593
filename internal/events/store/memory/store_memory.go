// Package memory provides the in-memory event store used in tests and
// single-process deployments.
package memory

import (
	"context"
	"sync"

	"veris/internal/events"
	"veris/pkg/domain"
)

type Store struct {
	mu      sync.RWMutex
	records map[domain.Identifier][]events.Record
}

func NewStore() *Store {
	return &Store{records: make(map[domain.Identifier][]events.Record)}
}

func (s *Store) Append(_ context.Context, rec events.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.Identifier] = append(s.records[rec.Identifier], rec)
	return nil
}

func (s *Store) ListByIdentity(_ context.Context, id domain.Identifier) ([]events.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]events.Record{}, s.records[id]...), nil
}

func (s *Store) ListByKinds(_ context.Context, id domain.Identifier, kinds []events.Kind) ([]events.Record, error) {
	wanted := make(map[events.Kind]struct{}, len(kinds))
	for _, k := range kinds {
		wanted[k] = struct{}{}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []events.Record
	for _, rec := range s.records[id] {
		if _, ok := wanted[rec.Kind]; ok {
			out = append(out, rec)
		}
	}
	return out, nil
}
