//go:build integration

package membership_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"veris/internal/identity/store/membership"
	"veris/pkg/domain"
	"veris/pkg/testutil/containers"
)

type RedisMembershipSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *membership.Redis
}

func TestRedisMembershipSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisMembershipSuite))
}

func (s *RedisMembershipSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.redis = mgr.GetRedis(s.T())
	s.store = membership.NewRedis(s.redis.Client)
}

func (s *RedisMembershipSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func redisNS(b byte) domain.Identifier {
	var id domain.Identifier
	id[0] = b
	return id
}

func redisAcct(b byte) domain.Address {
	var a domain.Address
	a[0] = b
	return a
}

func (s *RedisMembershipSuite) TestGrantHasRevoke() {
	ctx := context.Background()
	ns := redisNS(1)
	member := redisAcct(0xaa)

	ok, err := s.store.Has(ctx, ns, member)
	s.Require().NoError(err)
	s.False(ok)

	s.Require().NoError(s.store.Grant(ctx, ns, member))

	ok, err = s.store.Has(ctx, ns, member)
	s.Require().NoError(err)
	s.True(ok)

	s.Require().NoError(s.store.Revoke(ctx, ns, member))

	ok, err = s.store.Has(ctx, ns, member)
	s.Require().NoError(err)
	s.False(ok)
}

func (s *RedisMembershipSuite) TestIdempotentOperations() {
	ctx := context.Background()
	ns := redisNS(1)
	member := redisAcct(0xaa)

	s.Require().NoError(s.store.Revoke(ctx, ns, member), "revoking a non-member is a no-op")

	s.Require().NoError(s.store.Grant(ctx, ns, member))
	s.Require().NoError(s.store.Grant(ctx, ns, member))

	ok, err := s.store.Has(ctx, ns, member)
	s.Require().NoError(err)
	s.True(ok)
}

func (s *RedisMembershipSuite) TestNamespaceIsolation() {
	ctx := context.Background()
	member := redisAcct(0xaa)

	s.Require().NoError(s.store.Grant(ctx, redisNS(1), member))

	ok, err := s.store.Has(ctx, redisNS(2), member)
	s.Require().NoError(err)
	s.False(ok)
}
