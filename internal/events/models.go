// Package events defines the durable notification trail for registry
// mutations. Every state change emits exactly one record; downstream indexers
// and observers consume the trail through the configured sinks.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"veris/pkg/domain"
	"veris/pkg/requestcontext"
)

// Kind names an event type on the wire and in storage.
type Kind string

const (
	KindIdentityCreated     Kind = "identity_created"
	KindNameUpdated         Kind = "identity_name_updated"
	KindMetadataUpdated     Kind = "identity_metadata_updated"
	KindPendingOwnerUpdated Kind = "identity_pending_owner_updated"
	KindOwnerUpdated        Kind = "identity_owner_updated"
	KindMembersAdded        Kind = "identity_members_added"
	KindMembersRemoved      Kind = "identity_members_removed"
)

var knownKinds = map[Kind]struct{}{
	KindIdentityCreated:     {},
	KindNameUpdated:         {},
	KindMetadataUpdated:     {},
	KindPendingOwnerUpdated: {},
	KindOwnerUpdated:        {},
	KindMembersAdded:        {},
	KindMembersRemoved:      {},
}

// ParseKind validates a wire-format kind name.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if _, ok := knownKinds[k]; !ok {
		return "", fmt.Errorf("unknown event kind %q", s)
	}
	return k, nil
}

// IdentityCreated carries all initial field values of a new identity.
type IdentityCreated struct {
	Identifier domain.Identifier `json:"identifier"`
	Nonce      uint64            `json:"nonce"`
	Name       string            `json:"name"`
	Metadata   json.RawMessage   `json:"metadata,omitempty"`
	Owner      domain.Address    `json:"owner"`
	Anchor     domain.Address    `json:"anchor"`
	Members    []domain.Address  `json:"members,omitempty"`
}

// NameUpdated records a rename together with the freshly derived anchor.
type NameUpdated struct {
	Identifier domain.Identifier `json:"identifier"`
	Name       string            `json:"name"`
	Anchor     domain.Address    `json:"anchor"`
}

// MetadataUpdated records a metadata replacement.
type MetadataUpdated struct {
	Identifier domain.Identifier `json:"identifier"`
	Metadata   json.RawMessage   `json:"metadata,omitempty"`
}

// PendingOwnerUpdated records a proposal (or, with the zero address, a
// cancellation) of the ownership handshake.
type PendingOwnerUpdated struct {
	Identifier   domain.Identifier `json:"identifier"`
	PendingOwner domain.Address    `json:"pending_owner"`
}

// OwnerUpdated records a completed ownership transfer.
type OwnerUpdated struct {
	Identifier domain.Identifier `json:"identifier"`
	Owner      domain.Address    `json:"owner"`
}

// MembersAdded records a batch membership grant.
type MembersAdded struct {
	Identifier domain.Identifier `json:"identifier"`
	Accounts   []domain.Address  `json:"accounts"`
}

// MembersRemoved records a batch membership revocation.
type MembersRemoved struct {
	Identifier domain.Identifier `json:"identifier"`
	Accounts   []domain.Address  `json:"accounts"`
}

// Record is the persisted and streamed envelope around an event payload.
// Keep it transport-agnostic so stores and sinks can fan out.
type Record struct {
	Kind       Kind              `json:"kind"`
	Timestamp  time.Time         `json:"timestamp"`
	Identifier domain.Identifier `json:"identifier"`
	// Actor is the account that performed the mutation; zero for mutations
	// emitted outside an authenticated request (e.g. seeding).
	Actor     domain.Address  `json:"actor"`
	RequestID string          `json:"request_id,omitempty"`
	ClientIP  string          `json:"client_ip,omitempty"`
	Device    string          `json:"device,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

// NewRecord wraps a payload in an envelope enriched with request-scoped
// metadata (actor, request ID, client IP, device summary, request time).
func NewRecord(ctx context.Context, kind Kind, id domain.Identifier, payload any) (Record, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Record{}, fmt.Errorf("marshal %s payload: %w", kind, err)
	}
	return Record{
		Kind:       kind,
		Timestamp:  requestcontext.Now(ctx),
		Identifier: id,
		Actor:      requestcontext.Account(ctx),
		RequestID:  requestcontext.RequestID(ctx),
		ClientIP:   requestcontext.ClientIP(ctx),
		Device:     requestcontext.Device(ctx),
		Payload:    raw,
	}, nil
}
