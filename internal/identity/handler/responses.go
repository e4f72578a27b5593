package handler

import (
	"encoding/json"
	"time"

	"veris/internal/identity/models"
)

// IdentityResponse is the HTTP representation of an identity record.
// A vacant slot renders as the zero record: callers distinguish "found but
// empty" by the all-zero identifier, mirroring the read semantics.
type IdentityResponse struct {
	Identifier   string          `json:"identifier"`
	Nonce        uint64          `json:"nonce"`
	Name         string          `json:"name"`
	Metadata     json.RawMessage `json:"metadata,omitempty"`
	Owner        string          `json:"owner"`
	PendingOwner string          `json:"pending_owner"`
	Anchor       string          `json:"anchor"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// FromIdentity converts a domain record to its HTTP representation.
func FromIdentity(rec *models.Identity) *IdentityResponse {
	return &IdentityResponse{
		Identifier:   rec.Identifier.String(),
		Nonce:        rec.Nonce,
		Name:         rec.Name,
		Metadata:     rec.Metadata,
		Owner:        rec.Owner.String(),
		PendingOwner: rec.PendingOwner.String(),
		Anchor:       rec.Anchor.String(),
		CreatedAt:    rec.CreatedAt,
		UpdatedAt:    rec.UpdatedAt,
	}
}

// CreateIdentityResponse is the HTTP response for POST /identities.
type CreateIdentityResponse struct {
	Identifier string `json:"identifier"`
}

// AccessResponse is the HTTP response for the role predicates.
type AccessResponse struct {
	Owner         bool `json:"owner"`
	Member        bool `json:"member"`
	OwnerOrMember bool `json:"owner_or_member"`
}
