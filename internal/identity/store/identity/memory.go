// Package identity implements the canonical identity store: the primary
// identifier index plus the secondary anchor index, kept consistent under
// every mutation.
package identity

import (
	"context"
	"sync"

	"veris/internal/identity/models"
	"veris/pkg/domain"
	"veris/pkg/platform/sentinel"
)

// InMemory keeps both indexes under one mutex so every public operation is
// atomic: no caller ever observes a record whose anchor mapping is missing or
// stale.
type InMemory struct {
	mu       sync.RWMutex
	byID     map[domain.Identifier]*models.Identity
	byAnchor map[domain.Address]domain.Identifier
}

func NewInMemory() *InMemory {
	return &InMemory{
		byID:     make(map[domain.Identifier]*models.Identity),
		byAnchor: make(map[domain.Address]domain.Identifier),
	}
}

// CreateIfVacant inserts the record into both indexes. A slot is occupied
// once a record exists under the identifier; creation never overwrites.
func (s *InMemory) CreateIfVacant(_ context.Context, rec *models.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[rec.Identifier]; ok {
		return sentinel.ErrAlreadyUsed
	}
	if _, ok := s.byAnchor[rec.Anchor]; ok {
		return sentinel.ErrAlreadyUsed
	}

	cp := rec.Clone()
	s.byID[cp.Identifier] = cp
	s.byAnchor[cp.Anchor] = cp.Identifier
	return nil
}

func (s *InMemory) FindByID(_ context.Context, id domain.Identifier) (*models.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if rec, ok := s.byID[id]; ok {
		return rec.Clone(), nil
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemory) FindByAnchor(_ context.Context, anchor domain.Address) (*models.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if id, ok := s.byAnchor[anchor]; ok {
		if rec, ok := s.byID[id]; ok {
			return rec.Clone(), nil
		}
	}
	return nil, sentinel.ErrNotFound
}

// Execute runs an atomic validate-then-mutate against the record. The lock is
// held across validation, mutation, and anchor re-indexing, so either every
// effect of the mutation is visible or none is. When the mutation changes the
// record's anchor, the old mapping is retired and the new one installed in
// the same step.
func (s *InMemory) Execute(
	_ context.Context,
	id domain.Identifier,
	validate func(*models.Identity) error,
	mutate func(*models.Identity),
) (*models.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.byID[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}

	// Mutate a clone so a failed validation or rejected anchor leaves the
	// stored record untouched.
	next := current.Clone()
	if err := validate(next); err != nil {
		return nil, err
	}
	mutate(next)

	if next.Anchor != current.Anchor {
		if _, taken := s.byAnchor[next.Anchor]; taken {
			return nil, sentinel.ErrConflict
		}
		delete(s.byAnchor, current.Anchor)
		s.byAnchor[next.Anchor] = id
	}
	s.byID[id] = next

	return next.Clone(), nil
}
