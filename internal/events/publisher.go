package events

import (
	"context"

	"veris/pkg/domain"
)

// Store persists event records. It is append-only and swappable so tests can
// use the in-memory implementation.
type Store interface {
	Append(ctx context.Context, rec Record) error
	ListByIdentity(ctx context.Context, id domain.Identifier) ([]Record, error)
	ListByKinds(ctx context.Context, id domain.Identifier, kinds []Kind) ([]Record, error)
}

// Publisher is the store-backed Sink. It wraps each payload in a Record
// enriched with request-scoped metadata before appending it.
type Publisher struct {
	store Store
}

func NewPublisher(store Store) *Publisher {
	return &Publisher{store: store}
}

// List exposes the stored trail for an identity, newest last.
func (p *Publisher) List(ctx context.Context, id domain.Identifier) ([]Record, error) {
	return p.store.ListByIdentity(ctx, id)
}

// ListByKinds exposes the trail restricted to the given event kinds.
func (p *Publisher) ListByKinds(ctx context.Context, id domain.Identifier, kinds []Kind) ([]Record, error) {
	return p.store.ListByKinds(ctx, id, kinds)
}

func (p *Publisher) append(ctx context.Context, kind Kind, id domain.Identifier, payload any) error {
	rec, err := NewRecord(ctx, kind, id, payload)
	if err != nil {
		return err
	}
	return p.store.Append(ctx, rec)
}

func (p *Publisher) IdentityCreated(ctx context.Context, ev IdentityCreated) error {
	return p.append(ctx, KindIdentityCreated, ev.Identifier, ev)
}

func (p *Publisher) NameUpdated(ctx context.Context, ev NameUpdated) error {
	return p.append(ctx, KindNameUpdated, ev.Identifier, ev)
}

func (p *Publisher) MetadataUpdated(ctx context.Context, ev MetadataUpdated) error {
	return p.append(ctx, KindMetadataUpdated, ev.Identifier, ev)
}

func (p *Publisher) PendingOwnerUpdated(ctx context.Context, ev PendingOwnerUpdated) error {
	return p.append(ctx, KindPendingOwnerUpdated, ev.Identifier, ev)
}

func (p *Publisher) OwnerUpdated(ctx context.Context, ev OwnerUpdated) error {
	return p.append(ctx, KindOwnerUpdated, ev.Identifier, ev)
}

func (p *Publisher) MembersAdded(ctx context.Context, ev MembersAdded) error {
	return p.append(ctx, KindMembersAdded, ev.Identifier, ev)
}

func (p *Publisher) MembersRemoved(ctx context.Context, ev MembersRemoved) error {
	return p.append(ctx, KindMembersRemoved, ev.Identifier, ev)
}
