package membership

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"veris/pkg/domain"
)

// Redis key prefix for membership sets
const memberSetKeyPrefix = "membership:ns:"

// Redis is a Redis-backed membership store. Each identifier maps to a set
// keyed by the identifier's hex form, so grant/revoke/has are single set
// operations and naturally idempotent. This is the recommended backing for
// distributed deployments where multiple instances share membership state.
type Redis struct {
	client *redis.Client
}

// NewRedis constructs a Redis-backed membership store.
func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func memberSetKey(ns domain.Identifier) string {
	return memberSetKeyPrefix + ns.String()
}

// Grant adds account to the identifier's member set via SADD.
func (s *Redis) Grant(ctx context.Context, ns domain.Identifier, account domain.Address) error {
	if err := s.client.SAdd(ctx, memberSetKey(ns), account.String()).Err(); err != nil {
		return fmt.Errorf("grant membership: %w", err)
	}
	return nil
}

// Revoke removes account from the identifier's member set via SREM.
func (s *Redis) Revoke(ctx context.Context, ns domain.Identifier, account domain.Address) error {
	if err := s.client.SRem(ctx, memberSetKey(ns), account.String()).Err(); err != nil {
		return fmt.Errorf("revoke membership: %w", err)
	}
	return nil
}

// Has reports whether account is in the identifier's member set via SISMEMBER.
func (s *Redis) Has(ctx context.Context, ns domain.Identifier, account domain.Address) (bool, error) {
	ok, err := s.client.SIsMember(ctx, memberSetKey(ns), account.String()).Result()
	if err != nil {
		return false, fmt.Errorf("check membership: %w", err)
	}
	return ok, nil
}
