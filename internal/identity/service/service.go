// Package service orchestrates the identity lifecycle: creation against the
// derived-identifier slot, owner-gated mutations, the two-phase ownership
// handshake, and role membership. Every mutation that commits emits exactly
// one event through the configured sink.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"veris/internal/events"
	"veris/internal/identity/derive"
	"veris/internal/identity/metrics"
	"veris/internal/identity/models"
	"veris/pkg/domain"
	dErrors "veris/pkg/domain-errors"
	"veris/pkg/platform/sentinel"
	"veris/pkg/requestcontext"
)

// IdentityStore persists identity records under the two lookup indexes.
// Execute must apply validate-then-mutate atomically, including anchor
// reindexing, so no caller ever observes a half-applied update.
type IdentityStore interface {
	CreateIfVacant(ctx context.Context, rec *models.Identity) error
	FindByID(ctx context.Context, id domain.Identifier) (*models.Identity, error)
	FindByAnchor(ctx context.Context, anchor domain.Address) (*models.Identity, error)
	Execute(ctx context.Context, id domain.Identifier, validate func(*models.Identity) error, mutate func(*models.Identity)) (*models.Identity, error)
}

// MembershipStore is the role-membership primitive, namespaced by identifier.
// Grant and Revoke are idempotent.
type MembershipStore interface {
	Grant(ctx context.Context, ns domain.Identifier, account domain.Address) error
	Revoke(ctx context.Context, ns domain.Identifier, account domain.Address) error
	Has(ctx context.Context, ns domain.Identifier, account domain.Address) (bool, error)
}

// Registry is the identity lifecycle service.
type Registry struct {
	identities IdentityStore
	members    MembershipStore
	sink       events.Sink
	logger     *slog.Logger
	metrics    *metrics.Metrics
	tracer     trace.Tracer
}

type Option func(r *Registry)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

func WithSink(sink events.Sink) Option {
	return func(r *Registry) {
		r.sink = sink
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) {
		r.metrics = m
	}
}

// New constructs a Registry.
func New(identities IdentityStore, members MembershipStore, opts ...Option) *Registry {
	r := &Registry{
		identities: identities,
		members:    members,
		tracer:     otel.Tracer("veris/identity"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create registers a new identity under the identifier derived from the nonce
// and the calling account. The slot must be vacant; a collision fails with
// NonceUnavailable and the caller retries with a fresh nonce. Each supplied
// member is granted the identifier's membership role.
func (r *Registry) Create(ctx context.Context, nonce uint64, name string, metadata []byte, owner domain.Address, accounts []domain.Address) (domain.Identifier, error) {
	ctx, span := r.tracer.Start(ctx, "registry.Create")
	defer span.End()
	start := time.Now()
	defer r.observeCreate(start)

	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Identifier{}, dErrors.New(dErrors.CodeValidation, "identity name is required")
	}
	if owner.IsZero() {
		owner = requestcontext.Account(ctx)
	}

	caller := requestcontext.Account(ctx)
	id := derive.Identifier(nonce, caller)
	anchor := derive.Anchor(id, name)

	rec, err := models.NewIdentity(id, nonce, name, metadata, owner, anchor, r.now(ctx))
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			return domain.Identifier{}, dErrors.New(dErrors.CodeValidation, dErrors.Message(err))
		}
		return domain.Identifier{}, err
	}

	if err := r.identities.CreateIfVacant(ctx, rec); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			r.incrementNonceCollision()
			return domain.Identifier{}, dErrors.New(dErrors.CodeNonceUnavailable, "identifier slot is already occupied")
		}
		return domain.Identifier{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create identity")
	}

	for _, account := range accounts {
		if err := r.members.Grant(ctx, id, account); err != nil {
			return domain.Identifier{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to grant initial membership")
		}
	}

	r.incrementCreated()
	r.log(ctx, "identity created",
		"identifier", id, "name", name, "owner", owner, "members", len(accounts))
	r.emit(ctx, func(sink events.Sink) error {
		return sink.IdentityCreated(ctx, events.IdentityCreated{
			Identifier: id,
			Nonce:      nonce,
			Name:       name,
			Metadata:   rec.Metadata,
			Owner:      owner,
			Anchor:     anchor,
			Members:    accounts,
		})
	})

	return id, nil
}

// GetByID returns the identity stored under id. A vacant slot yields the zero
// record, not an error; callers distinguish "found but empty" via IsZero.
func (r *Registry) GetByID(ctx context.Context, id domain.Identifier) (*models.Identity, error) {
	start := time.Now()
	defer r.observeLookup(start)

	rec, err := r.identities.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return &models.Identity{}, nil
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load identity")
	}
	return rec, nil
}

// GetByAnchor returns the identity indexed under anchor, or the zero record.
func (r *Registry) GetByAnchor(ctx context.Context, anchor domain.Address) (*models.Identity, error) {
	start := time.Now()
	defer r.observeLookup(start)

	rec, err := r.identities.FindByAnchor(ctx, anchor)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return &models.Identity{}, nil
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load identity by anchor")
	}
	return rec, nil
}

// UpdateName renames the identity and reindexes its anchor in the same atomic
// step. Owner-gated.
func (r *Registry) UpdateName(ctx context.Context, id domain.Identifier, name string) (*models.Identity, error) {
	ctx, span := r.tracer.Start(ctx, "registry.UpdateName")
	defer span.End()
	start := time.Now()
	defer r.observeMutation(start)

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "identity name is required")
	}

	caller := requestcontext.Account(ctx)
	anchor := derive.Anchor(id, name)
	rec, err := r.identities.Execute(ctx, id,
		r.requireOwner(caller),
		func(rec *models.Identity) {
			rec.ApplyRename(name, anchor, r.now(ctx))
		},
	)
	if err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "anchor is already held by another identity")
		}
		return nil, r.mutationError(err, "failed to update identity name")
	}

	r.log(ctx, "identity renamed", "identifier", id, "name", name)
	r.emit(ctx, func(sink events.Sink) error {
		return sink.NameUpdated(ctx, events.NameUpdated{Identifier: id, Name: name, Anchor: anchor})
	})
	return rec, nil
}

// UpdateMetadata replaces the opaque metadata blob. Owner-gated.
func (r *Registry) UpdateMetadata(ctx context.Context, id domain.Identifier, metadata []byte) (*models.Identity, error) {
	ctx, span := r.tracer.Start(ctx, "registry.UpdateMetadata")
	defer span.End()
	start := time.Now()
	defer r.observeMutation(start)

	caller := requestcontext.Account(ctx)
	rec, err := r.identities.Execute(ctx, id,
		r.requireOwner(caller),
		func(rec *models.Identity) {
			rec.ApplyMetadata(metadata, r.now(ctx))
		},
	)
	if err != nil {
		return nil, r.mutationError(err, "failed to update identity metadata")
	}

	r.log(ctx, "identity metadata updated", "identifier", id)
	r.emit(ctx, func(sink events.Sink) error {
		return sink.MetadataUpdated(ctx, events.MetadataUpdated{Identifier: id, Metadata: rec.Metadata})
	})
	return rec, nil
}

// ProposeOwner starts (or, with the zero address, cancels) the ownership
// handshake. Owner-gated; ownership does not change until the candidate
// accepts.
func (r *Registry) ProposeOwner(ctx context.Context, id domain.Identifier, candidate domain.Address) (*models.Identity, error) {
	ctx, span := r.tracer.Start(ctx, "registry.ProposeOwner")
	defer span.End()
	start := time.Now()
	defer r.observeMutation(start)

	caller := requestcontext.Account(ctx)
	rec, err := r.identities.Execute(ctx, id,
		r.requireOwner(caller),
		func(rec *models.Identity) {
			rec.ApplyPendingOwner(candidate, r.now(ctx))
		},
	)
	if err != nil {
		return nil, r.mutationError(err, "failed to propose owner")
	}

	r.log(ctx, "owner proposed", "identifier", id, "candidate", candidate)
	r.emit(ctx, func(sink events.Sink) error {
		return sink.PendingOwnerUpdated(ctx, events.PendingOwnerUpdated{Identifier: id, PendingOwner: candidate})
	})
	return rec, nil
}

// AcceptOwnership completes the handshake. Only the currently proposed
// candidate may call it; the gate is the pending-owner check, not ownership.
func (r *Registry) AcceptOwnership(ctx context.Context, id domain.Identifier) (*models.Identity, error) {
	ctx, span := r.tracer.Start(ctx, "registry.AcceptOwnership")
	defer span.End()
	start := time.Now()
	defer r.observeMutation(start)

	caller := requestcontext.Account(ctx)
	rec, err := r.identities.Execute(ctx, id,
		func(rec *models.Identity) error {
			return rec.CanAcceptOwnership(caller)
		},
		func(rec *models.Identity) {
			rec.ApplyOwnershipTransfer(r.now(ctx))
		},
	)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotPendingOwner, "caller is not the pending owner")
		}
		return nil, r.mutationError(err, "failed to accept ownership")
	}

	r.incrementOwnershipTransfer()
	r.log(ctx, "ownership transferred", "identifier", id, "owner", rec.Owner)
	r.emit(ctx, func(sink events.Sink) error {
		return sink.OwnerUpdated(ctx, events.OwnerUpdated{Identifier: id, Owner: rec.Owner})
	})
	return rec, nil
}

// AddMembers grants the identifier's membership role to each account.
// Owner-gated; grants are idempotent and order-independent.
func (r *Registry) AddMembers(ctx context.Context, id domain.Identifier, accounts []domain.Address) error {
	ctx, span := r.tracer.Start(ctx, "registry.AddMembers")
	defer span.End()
	start := time.Now()
	defer r.observeMutation(start)

	if err := r.authorizeOwner(ctx, id); err != nil {
		return err
	}
	for _, account := range accounts {
		if err := r.members.Grant(ctx, id, account); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to grant membership")
		}
	}

	r.log(ctx, "members added", "identifier", id, "count", len(accounts))
	r.emit(ctx, func(sink events.Sink) error {
		return sink.MembersAdded(ctx, events.MembersAdded{Identifier: id, Accounts: accounts})
	})
	return nil
}

// RemoveMembers revokes the identifier's membership role from each account.
// Owner-gated; revoking a non-member is a no-op.
func (r *Registry) RemoveMembers(ctx context.Context, id domain.Identifier, accounts []domain.Address) error {
	ctx, span := r.tracer.Start(ctx, "registry.RemoveMembers")
	defer span.End()
	start := time.Now()
	defer r.observeMutation(start)

	if err := r.authorizeOwner(ctx, id); err != nil {
		return err
	}
	for _, account := range accounts {
		if err := r.members.Revoke(ctx, id, account); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to revoke membership")
		}
	}

	r.log(ctx, "members removed", "identifier", id, "count", len(accounts))
	r.emit(ctx, func(sink events.Sink) error {
		return sink.MembersRemoved(ctx, events.MembersRemoved{Identifier: id, Accounts: accounts})
	})
	return nil
}

// IsOwner reports whether account currently owns the identity. A vacant slot
// has no owner.
func (r *Registry) IsOwner(ctx context.Context, id domain.Identifier, account domain.Address) (bool, error) {
	rec, err := r.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	return rec.IsOwnedBy(account), nil
}

// IsMember reports whether account holds the identifier's membership role.
func (r *Registry) IsMember(ctx context.Context, id domain.Identifier, account domain.Address) (bool, error) {
	ok, err := r.members.Has(ctx, id, account)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check membership")
	}
	return ok, nil
}

// IsOwnerOrMember is the logical OR of the two predicates. Membership alone
// never authorizes owner-gated operations.
func (r *Registry) IsOwnerOrMember(ctx context.Context, id domain.Identifier, account domain.Address) (bool, error) {
	owner, err := r.IsOwner(ctx, id, account)
	if err != nil {
		return false, err
	}
	if owner {
		return true, nil
	}
	return r.IsMember(ctx, id, account)
}

// requireOwner is the validate callback for owner-gated Execute mutations.
func (r *Registry) requireOwner(caller domain.Address) func(*models.Identity) error {
	return func(rec *models.Identity) error {
		if !rec.IsOwnedBy(caller) {
			return dErrors.New(dErrors.CodeNoAccessToRole, "caller does not own this identity")
		}
		return nil
	}
}

// authorizeOwner gates membership mutations, which do not run through
// Execute. A vacant slot has no owner, so the gate fails for it too.
func (r *Registry) authorizeOwner(ctx context.Context, id domain.Identifier) error {
	caller := requestcontext.Account(ctx)
	rec, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !rec.IsOwnedBy(caller) {
		r.incrementAuthzDenial()
		return dErrors.New(dErrors.CodeNoAccessToRole, "caller does not own this identity")
	}
	return nil
}

// mutationError maps store-level failures from owner-gated Execute calls.
// A missing record behaves like any other record the caller does not own.
func (r *Registry) mutationError(err error, internalMsg string) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		r.incrementAuthzDenial()
		return dErrors.New(dErrors.CodeNoAccessToRole, "caller does not own this identity")
	}
	if dErrors.HasCode(err, dErrors.CodeNoAccessToRole) {
		r.incrementAuthzDenial()
		return err
	}
	if dErrors.HasCode(err, dErrors.CodeNotPendingOwner) {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, internalMsg)
}

// emit publishes through the sink after the mutation has committed. A sink
// failure is logged, not surfaced: the state change already happened and the
// durable trail is reconciled out of band.
func (r *Registry) emit(ctx context.Context, publish func(events.Sink) error) {
	if r.sink == nil {
		return
	}
	if err := publish(r.sink); err != nil && r.logger != nil {
		r.logger.ErrorContext(ctx, "event publish failed", "error", err)
	}
}

// now reads the request-scoped time so every write within one call shares a
// single timestamp. Tests pin it with requestcontext.WithTime.
func (r *Registry) now(ctx context.Context) time.Time {
	return requestcontext.Now(ctx)
}

func (r *Registry) log(ctx context.Context, msg string, attributes ...any) {
	if r.logger == nil {
		return
	}
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		attributes = append(attributes, "request_id", requestID)
	}
	r.logger.InfoContext(ctx, msg, attributes...)
}

func (r *Registry) incrementCreated() {
	if r.metrics != nil {
		r.metrics.IncrementCreated()
	}
}

func (r *Registry) incrementNonceCollision() {
	if r.metrics != nil {
		r.metrics.IncrementNonceCollision()
	}
}

func (r *Registry) incrementOwnershipTransfer() {
	if r.metrics != nil {
		r.metrics.IncrementOwnershipTransfer()
	}
}

func (r *Registry) incrementAuthzDenial() {
	if r.metrics != nil {
		r.metrics.IncrementAuthzDenial()
	}
}

func (r *Registry) observeCreate(start time.Time) {
	if r.metrics != nil {
		r.metrics.ObserveCreate(start)
	}
}

func (r *Registry) observeLookup(start time.Time) {
	if r.metrics != nil {
		r.metrics.ObserveLookup(start)
	}
}

func (r *Registry) observeMutation(start time.Time) {
	if r.metrics != nil {
		r.metrics.ObserveMutation(start)
	}
}
