package events

import "context"

// Sink receives one call per registry mutation. Implementations must be
// append-only: a sink never rewrites or drops an event it has accepted.
type Sink interface {
	IdentityCreated(ctx context.Context, ev IdentityCreated) error
	NameUpdated(ctx context.Context, ev NameUpdated) error
	MetadataUpdated(ctx context.Context, ev MetadataUpdated) error
	PendingOwnerUpdated(ctx context.Context, ev PendingOwnerUpdated) error
	OwnerUpdated(ctx context.Context, ev OwnerUpdated) error
	MembersAdded(ctx context.Context, ev MembersAdded) error
	MembersRemoved(ctx context.Context, ev MembersRemoved) error
}

// Multi fans out each event to every configured sink in order. The first
// failure aborts the fan-out so the caller can surface it.
type Multi struct {
	sinks []Sink
}

// NewMulti builds a fan-out sink. Nil entries are skipped so callers can pass
// optionally-configured sinks without branching.
func NewMulti(sinks ...Sink) *Multi {
	kept := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			kept = append(kept, s)
		}
	}
	return &Multi{sinks: kept}
}

func (m *Multi) IdentityCreated(ctx context.Context, ev IdentityCreated) error {
	for _, s := range m.sinks {
		if err := s.IdentityCreated(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}

func (m *Multi) NameUpdated(ctx context.Context, ev NameUpdated) error {
	for _, s := range m.sinks {
		if err := s.NameUpdated(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}

func (m *Multi) MetadataUpdated(ctx context.Context, ev MetadataUpdated) error {
	for _, s := range m.sinks {
		if err := s.MetadataUpdated(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}

func (m *Multi) PendingOwnerUpdated(ctx context.Context, ev PendingOwnerUpdated) error {
	for _, s := range m.sinks {
		if err := s.PendingOwnerUpdated(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}

func (m *Multi) OwnerUpdated(ctx context.Context, ev OwnerUpdated) error {
	for _, s := range m.sinks {
		if err := s.OwnerUpdated(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}

func (m *Multi) MembersAdded(ctx context.Context, ev MembersAdded) error {
	for _, s := range m.sinks {
		if err := s.MembersAdded(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}

func (m *Multi) MembersRemoved(ctx context.Context, ev MembersRemoved) error {
	for _, s := range m.sinks {
		if err := s.MembersRemoved(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}
