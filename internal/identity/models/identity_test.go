package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veris/internal/identity/derive"
	"veris/pkg/domain"
	dErrors "veris/pkg/domain-errors"
)

func testAddr(b byte) domain.Address {
	var a domain.Address
	a[domain.AddressLen-1] = b
	return a
}

func newTestIdentity(t *testing.T) *Identity {
	t.Helper()
	owner := testAddr(0x01)
	id := derive.Identifier(1, owner)
	ident, err := NewIdentity(id, 1, "alpha", json.RawMessage(`{"k":"v"}`), owner, derive.Anchor(id, "alpha"), time.Now())
	require.NoError(t, err)
	return ident
}

func TestNewIdentity(t *testing.T) {
	t.Run("rejects zero owner", func(t *testing.T) {
		id := derive.Identifier(1, testAddr(0x01))
		_, err := NewIdentity(id, 1, "alpha", nil, domain.Address{}, derive.Anchor(id, "alpha"), time.Now())
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})

	t.Run("starts with no pending owner", func(t *testing.T) {
		ident := newTestIdentity(t)
		assert.True(t, ident.PendingOwner.IsZero())
		assert.False(t, ident.IsZero())
	})

	t.Run("copies the metadata blob", func(t *testing.T) {
		raw := json.RawMessage(`{"k":"v"}`)
		owner := testAddr(0x01)
		id := derive.Identifier(1, owner)
		ident, err := NewIdentity(id, 1, "alpha", raw, owner, derive.Anchor(id, "alpha"), time.Now())
		require.NoError(t, err)

		raw[2] = 'x'
		assert.JSONEq(t, `{"k":"v"}`, string(ident.Metadata))
	})
}

func TestOwnershipHandshake(t *testing.T) {
	ident := newTestIdentity(t)
	candidate := testAddr(0x02)
	now := time.Now()

	t.Run("acceptance without a proposal fails", func(t *testing.T) {
		err := ident.CanAcceptOwnership(candidate)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotPendingOwner))
	})

	t.Run("only the proposed candidate may accept", func(t *testing.T) {
		ident.ApplyPendingOwner(candidate, now)

		err := ident.CanAcceptOwnership(testAddr(0x03))
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotPendingOwner))

		require.NoError(t, ident.CanAcceptOwnership(candidate))
	})

	t.Run("transfer installs the candidate and clears the proposal", func(t *testing.T) {
		ident.ApplyOwnershipTransfer(now)
		assert.Equal(t, candidate, ident.Owner)
		assert.True(t, ident.PendingOwner.IsZero())
	})

	t.Run("a second acceptance fails since the proposal is cleared", func(t *testing.T) {
		err := ident.CanAcceptOwnership(candidate)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotPendingOwner))
	})

	t.Run("zero candidate cancels a pending proposal", func(t *testing.T) {
		ident.ApplyPendingOwner(testAddr(0x04), now)
		ident.ApplyPendingOwner(domain.Address{}, now)
		assert.True(t, ident.PendingOwner.IsZero())
	})
}

func TestApplyRename(t *testing.T) {
	ident := newTestIdentity(t)
	newAnchor := derive.Anchor(ident.Identifier, "beta")
	ident.ApplyRename("beta", newAnchor, time.Now())

	assert.Equal(t, "beta", ident.Name)
	assert.Equal(t, newAnchor, ident.Anchor)
}

func TestClone_IsIndependent(t *testing.T) {
	ident := newTestIdentity(t)
	cp := ident.Clone()

	cp.Name = "mutated"
	cp.Metadata[2] = 'x'

	assert.Equal(t, "alpha", ident.Name)
	assert.JSONEq(t, `{"k":"v"}`, string(ident.Metadata))
}

func TestIsOwnedBy(t *testing.T) {
	ident := newTestIdentity(t)
	assert.True(t, ident.IsOwnedBy(testAddr(0x01)))
	assert.False(t, ident.IsOwnedBy(testAddr(0x02)))

	var empty Identity
	assert.False(t, empty.IsOwnedBy(domain.Address{}), "zero owner never matches, even a zero caller")
}
