package handler

import (
	"encoding/json"
	"strings"

	"veris/pkg/domain"
	dErrors "veris/pkg/domain-errors"
)

const maxNameLength = 256

// CreateIdentityRequest is the HTTP request body for POST /identities.
type CreateIdentityRequest struct {
	Nonce    uint64          `json:"nonce"`
	Name     string          `json:"name"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
	Owner    string          `json:"owner,omitempty"`
	Members  []string        `json:"members,omitempty"`

	// Parsed values (populated by Validate)
	parsedOwner   domain.Address
	parsedMembers []domain.Address
}

// Validate validates and parses the request.
// Implements the Validatable interface for httputil.DecodeAndPrepare.
func (r *CreateIdentityRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}

	r.Name = strings.TrimSpace(r.Name)
	if r.Name == "" {
		return dErrors.New(dErrors.CodeValidation, "name is required")
	}
	if len(r.Name) > maxNameLength {
		return dErrors.New(dErrors.CodeValidation, "name is too long")
	}

	// Owner is optional; an absent owner defaults to the caller downstream.
	if r.Owner != "" {
		owner, err := domain.ParseAddress(r.Owner)
		if err != nil {
			return err
		}
		r.parsedOwner = owner
	}

	members, err := parseAccounts(r.Members)
	if err != nil {
		return err
	}
	r.parsedMembers = members

	return nil
}

// ParsedOwner returns the validated owner address, zero if omitted.
func (r *CreateIdentityRequest) ParsedOwner() domain.Address {
	return r.parsedOwner
}

// ParsedMembers returns the validated member addresses.
func (r *CreateIdentityRequest) ParsedMembers() []domain.Address {
	return r.parsedMembers
}

// UpdateNameRequest is the HTTP request body for PUT /identities/{identifier}/name.
type UpdateNameRequest struct {
	Name string `json:"name"`
}

func (r *UpdateNameRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.Name = strings.TrimSpace(r.Name)
	if r.Name == "" {
		return dErrors.New(dErrors.CodeValidation, "name is required")
	}
	if len(r.Name) > maxNameLength {
		return dErrors.New(dErrors.CodeValidation, "name is too long")
	}
	return nil
}

// UpdateMetadataRequest is the HTTP request body for PUT /identities/{identifier}/metadata.
// The metadata blob is opaque; it passes through unchanged.
type UpdateMetadataRequest struct {
	Metadata json.RawMessage `json:"metadata"`
}

func (r *UpdateMetadataRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	return nil
}

// ProposeOwnerRequest is the HTTP request body for PUT /identities/{identifier}/owner.
// An empty candidate cancels an outstanding proposal.
type ProposeOwnerRequest struct {
	Candidate string `json:"candidate"`

	parsedCandidate domain.Address
}

func (r *ProposeOwnerRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if r.Candidate != "" {
		candidate, err := domain.ParseAddress(r.Candidate)
		if err != nil {
			return err
		}
		r.parsedCandidate = candidate
	}
	return nil
}

// ParsedCandidate returns the validated candidate address, zero for a
// cancellation.
func (r *ProposeOwnerRequest) ParsedCandidate() domain.Address {
	return r.parsedCandidate
}

// MembersRequest is the HTTP request body for membership grants and
// revocations.
type MembersRequest struct {
	Accounts []string `json:"accounts"`

	parsedAccounts []domain.Address
}

func (r *MembersRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if len(r.Accounts) == 0 {
		return dErrors.New(dErrors.CodeValidation, "accounts is required")
	}
	accounts, err := parseAccounts(r.Accounts)
	if err != nil {
		return err
	}
	r.parsedAccounts = accounts
	return nil
}

// ParsedAccounts returns the validated account addresses.
func (r *MembersRequest) ParsedAccounts() []domain.Address {
	return r.parsedAccounts
}

func parseAccounts(raw []string) ([]domain.Address, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	accounts := make([]domain.Address, 0, len(raw))
	for _, s := range raw {
		account, err := domain.ParseAddress(s)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	return accounts, nil
}
