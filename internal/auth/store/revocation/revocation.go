// Package revocation tracks revoked token IDs so compromised bearer tokens
// can be cut off before they expire.
package revocation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"veris/pkg/platform/sentinel"
)

// Clock abstracts time.Now for tests.
type Clock func() time.Time

// TokenRevocationList tracks revoked token JTIs until their natural expiry.
type TokenRevocationList interface {
	RevokeToken(ctx context.Context, jti string, ttl time.Duration) error
	IsTokenRevoked(ctx context.Context, jti string) (bool, error)
	Close()
}

func validateTTL(ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("ttl must be positive: %w", sentinel.ErrInvalidState)
	}
	return nil
}

// InMemoryTRL is a process-local revocation list for tests and single-node
// deployments. Entries are dropped lazily on lookup once expired.
type InMemoryTRL struct {
	mu      sync.RWMutex
	revoked map[string]time.Time
	clock   Clock
}

// InMemoryTRLOption configures an InMemoryTRL instance.
type InMemoryTRLOption func(*InMemoryTRL)

// WithClock sets the clock function for testability.
func WithClock(clock Clock) InMemoryTRLOption {
	return func(trl *InMemoryTRL) {
		if clock != nil {
			trl.clock = clock
		}
	}
}

// NewInMemoryTRL constructs an in-memory token revocation list.
func NewInMemoryTRL(opts ...InMemoryTRLOption) *InMemoryTRL {
	trl := &InMemoryTRL{
		revoked: make(map[string]time.Time),
		clock:   time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(trl)
		}
	}
	return trl
}

// RevokeToken adds a token to the revocation list with TTL.
func (t *InMemoryTRL) RevokeToken(_ context.Context, jti string, ttl time.Duration) error {
	if jti == "" {
		return nil
	}
	if err := validateTTL(ttl); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.revoked[jti] = t.clock().Add(ttl)
	return nil
}

// IsTokenRevoked checks if a token is in the revocation list.
func (t *InMemoryTRL) IsTokenRevoked(_ context.Context, jti string) (bool, error) {
	if jti == "" {
		return false, nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	expiry, ok := t.revoked[jti]
	if !ok {
		return false, nil
	}
	if t.clock().After(expiry) {
		delete(t.revoked, jti)
		return false, nil
	}
	return true, nil
}

// Close is a no-op for the in-memory list.
func (t *InMemoryTRL) Close() {}
