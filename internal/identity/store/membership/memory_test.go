package membership

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"veris/pkg/domain"
)

type MembershipSuite struct {
	suite.Suite
	store *InMemory
	ctx   context.Context
}

func (s *MembershipSuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
}

func TestMembershipSuite(t *testing.T) {
	suite.Run(t, new(MembershipSuite))
}

func nsOf(b byte) domain.Identifier {
	var id domain.Identifier
	id[0] = b
	return id
}

func acctOf(b byte) domain.Address {
	var a domain.Address
	a[0] = b
	return a
}

func (s *MembershipSuite) TestGrantAndHas() {
	ns := nsOf(1)
	member := acctOf(0xaa)

	ok, err := s.store.Has(s.ctx, ns, member)
	s.Require().NoError(err)
	s.False(ok, "fresh namespace has no members")

	s.Require().NoError(s.store.Grant(s.ctx, ns, member))

	ok, err = s.store.Has(s.ctx, ns, member)
	s.Require().NoError(err)
	s.True(ok)
}

func (s *MembershipSuite) TestNamespacesAreIsolated() {
	member := acctOf(0xaa)
	s.Require().NoError(s.store.Grant(s.ctx, nsOf(1), member))

	ok, err := s.store.Has(s.ctx, nsOf(2), member)
	s.Require().NoError(err)
	s.False(ok, "grant in one namespace must not leak into another")
}

func (s *MembershipSuite) TestGrantIsIdempotent() {
	ns := nsOf(1)
	member := acctOf(0xaa)

	s.Require().NoError(s.store.Grant(s.ctx, ns, member))
	s.Require().NoError(s.store.Grant(s.ctx, ns, member))

	ok, err := s.store.Has(s.ctx, ns, member)
	s.Require().NoError(err)
	s.True(ok)
}

func (s *MembershipSuite) TestRevokeIsIdempotent() {
	ns := nsOf(1)
	member := acctOf(0xaa)

	// Revoking a non-member is a no-op, not an error.
	s.Require().NoError(s.store.Revoke(s.ctx, ns, member))

	s.Require().NoError(s.store.Grant(s.ctx, ns, member))
	s.Require().NoError(s.store.Revoke(s.ctx, ns, member))
	s.Require().NoError(s.store.Revoke(s.ctx, ns, member))

	ok, err := s.store.Has(s.ctx, ns, member)
	s.Require().NoError(err)
	s.False(ok)
}

func (s *MembershipSuite) TestGrantRevokeRoundTrip() {
	ns := nsOf(1)
	kept := acctOf(0x01)
	removed := acctOf(0x02)

	s.Require().NoError(s.store.Grant(s.ctx, ns, kept))
	s.Require().NoError(s.store.Grant(s.ctx, ns, removed))
	s.Require().NoError(s.store.Revoke(s.ctx, ns, removed))

	ok, err := s.store.Has(s.ctx, ns, kept)
	s.Require().NoError(err)
	s.True(ok, "revoking one member must not affect the others")

	ok, err = s.store.Has(s.ctx, ns, removed)
	s.Require().NoError(err)
	s.False(ok)
}
