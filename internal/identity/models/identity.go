package models

import (
	"bytes"
	"encoding/json"
	"time"

	"veris/pkg/domain"
	dErrors "veris/pkg/domain-errors"
)

// Identity is the aggregate root for a registered identity.
//
// Invariants:
//   - Identifier and Nonce are immutable after creation
//   - Anchor is always derive.Anchor(Identifier, Name); renames update both
//     fields in one step
//   - PendingOwner is either the zero sentinel or a concrete candidate; it
//     becomes Owner only through the two-phase handshake
//   - Membership is tracked outside the record (role store keyed by
//     Identifier) and is independent of ownership
//
// An identity is never deleted; once created it persists indefinitely and all
// further transitions are Active -> Active.
type Identity struct {
	Identifier   domain.Identifier `json:"identifier"`
	Nonce        uint64            `json:"nonce"`
	Name         string            `json:"name"`
	Metadata     json.RawMessage   `json:"metadata,omitempty"`
	Owner        domain.Address    `json:"owner"`
	PendingOwner domain.Address    `json:"pending_owner"`
	Anchor       domain.Address    `json:"anchor"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// NewIdentity constructs a freshly created identity record with no pending
// owner. The caller supplies the already-derived identifier and anchor.
func NewIdentity(id domain.Identifier, nonce uint64, name string, metadata json.RawMessage, owner domain.Address, anchor domain.Address, now time.Time) (*Identity, error) {
	if owner.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "identity owner cannot be the zero address")
	}
	return &Identity{
		Identifier: id,
		Nonce:      nonce,
		Name:       name,
		Metadata:   bytes.Clone(metadata),
		Owner:      owner,
		Anchor:     anchor,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// IsZero reports whether the record is the empty "not found" value. Callers of
// the read operations must treat a zero record as absent.
func (i *Identity) IsZero() bool {
	return i.Identifier.IsZero()
}

// IsOwnedBy reports whether account is the identity's current owner.
func (i *Identity) IsOwnedBy(account domain.Address) bool {
	return !i.Owner.IsZero() && i.Owner == account
}

// ApplyRename writes the new name and its anchor onto the record. The store is
// responsible for retiring the old anchor mapping and installing the new one
// in the same atomic step.
func (i *Identity) ApplyRename(name string, anchor domain.Address, now time.Time) {
	i.Name = name
	i.Anchor = anchor
	i.UpdatedAt = now
}

// ApplyMetadata replaces the opaque metadata blob. The blob is copied, never
// aliased, so callers cannot mutate stored state afterwards.
func (i *Identity) ApplyMetadata(metadata json.RawMessage, now time.Time) {
	i.Metadata = bytes.Clone(metadata)
	i.UpdatedAt = now
}

// ApplyPendingOwner records candidate as the proposed successor owner. The
// zero address cancels an outstanding proposal.
func (i *Identity) ApplyPendingOwner(candidate domain.Address, now time.Time) {
	i.PendingOwner = candidate
	i.UpdatedAt = now
}

// CanAcceptOwnership checks that caller is the currently proposed candidate.
func (i *Identity) CanAcceptOwnership(caller domain.Address) error {
	if i.PendingOwner.IsZero() || i.PendingOwner != caller {
		return dErrors.New(dErrors.CodeNotPendingOwner, "caller is not the pending owner")
	}
	return nil
}

// ApplyOwnershipTransfer completes the handshake: the pending owner becomes
// the owner and the proposal is cleared. Call CanAcceptOwnership first.
func (i *Identity) ApplyOwnershipTransfer(now time.Time) {
	i.Owner = i.PendingOwner
	i.PendingOwner = domain.Address{}
	i.UpdatedAt = now
}

// Clone returns an independent copy of the record, including the metadata
// blob. Stores hand out clones so no caller ever holds a live reference into
// store state.
func (i *Identity) Clone() *Identity {
	cp := *i
	cp.Metadata = bytes.Clone(i.Metadata)
	return &cp
}
