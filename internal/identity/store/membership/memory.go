// Package membership implements the role-membership primitive backing
// identity member sets. Each identifier namespaces its own set of member
// accounts; grants and revocations are idempotent.
package membership

import (
	"context"
	"sync"

	"veris/pkg/domain"
)

// InMemory is a map-of-sets membership store for tests and single-node use.
type InMemory struct {
	mu   sync.RWMutex
	sets map[domain.Identifier]map[domain.Address]struct{}
}

func NewInMemory() *InMemory {
	return &InMemory{
		sets: make(map[domain.Identifier]map[domain.Address]struct{}),
	}
}

// Grant adds account to the identifier's member set. Granting an existing
// member is a no-op.
func (s *InMemory) Grant(_ context.Context, ns domain.Identifier, account domain.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.sets[ns]
	if !ok {
		set = make(map[domain.Address]struct{})
		s.sets[ns] = set
	}
	set[account] = struct{}{}
	return nil
}

// Revoke removes account from the identifier's member set. Revoking a
// non-member is a no-op.
func (s *InMemory) Revoke(_ context.Context, ns domain.Identifier, account domain.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if set, ok := s.sets[ns]; ok {
		delete(set, account)
		if len(set) == 0 {
			delete(s.sets, ns)
		}
	}
	return nil
}

// Has reports whether account is in the identifier's member set.
func (s *InMemory) Has(_ context.Context, ns domain.Identifier, account domain.Address) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	set, ok := s.sets[ns]
	if !ok {
		return false, nil
	}
	_, ok = set[account]
	return ok, nil
}
