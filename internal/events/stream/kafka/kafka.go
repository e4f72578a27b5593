// Package kafka streams registry events to a Kafka topic.
//
// Records are keyed by identifier so all events for one identity land on the
// same partition and replay in order.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"veris/internal/events"
	"veris/pkg/domain"
)

const DefaultTopic = "registry.events"

// Sink produces one Kafka record per registry mutation, synchronously, so a
// failed produce surfaces to the caller instead of dropping the event.
type Sink struct {
	client *kgo.Client
	topic  string
}

// New connects to the given brokers and ensures the topic exists.
func New(ctx context.Context, brokers []string, topic string) (*Sink, error) {
	if topic == "" {
		topic = DefaultTopic
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}

	if err := ensureTopic(ctx, client, topic); err != nil {
		client.Close()
		return nil, err
	}

	return &Sink{client: client, topic: topic}, nil
}

func ensureTopic(ctx context.Context, client *kgo.Client, topic string) error {
	adm := kadm.NewClient(client)
	resp, err := adm.CreateTopic(ctx, 1, -1, nil, topic)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", topic, err)
	}
	// Already-exists is the expected steady state on restart.
	if resp.Err != nil && !errors.Is(resp.Err, kerr.TopicAlreadyExists) {
		return fmt.Errorf("create topic %s: %w", topic, resp.Err)
	}
	return nil
}

func (s *Sink) Close() { s.client.Close() }

func (s *Sink) produce(ctx context.Context, kind events.Kind, id domain.Identifier, payload any) error {
	rec, err := events.NewRecord(ctx, kind, id, payload)
	if err != nil {
		return err
	}
	value, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal event record: %w", err)
	}
	res := s.client.ProduceSync(ctx, &kgo.Record{
		Topic: s.topic,
		Key:   id[:],
		Value: value,
	})
	if err := res.FirstErr(); err != nil {
		return fmt.Errorf("produce %s event: %w", kind, err)
	}
	return nil
}

func (s *Sink) IdentityCreated(ctx context.Context, ev events.IdentityCreated) error {
	return s.produce(ctx, events.KindIdentityCreated, ev.Identifier, ev)
}

func (s *Sink) NameUpdated(ctx context.Context, ev events.NameUpdated) error {
	return s.produce(ctx, events.KindNameUpdated, ev.Identifier, ev)
}

func (s *Sink) MetadataUpdated(ctx context.Context, ev events.MetadataUpdated) error {
	return s.produce(ctx, events.KindMetadataUpdated, ev.Identifier, ev)
}

func (s *Sink) PendingOwnerUpdated(ctx context.Context, ev events.PendingOwnerUpdated) error {
	return s.produce(ctx, events.KindPendingOwnerUpdated, ev.Identifier, ev)
}

func (s *Sink) OwnerUpdated(ctx context.Context, ev events.OwnerUpdated) error {
	return s.produce(ctx, events.KindOwnerUpdated, ev.Identifier, ev)
}

func (s *Sink) MembersAdded(ctx context.Context, ev events.MembersAdded) error {
	return s.produce(ctx, events.KindMembersAdded, ev.Identifier, ev)
}

func (s *Sink) MembersRemoved(ctx context.Context, ev events.MembersRemoved) error {
	return s.produce(ctx, events.KindMembersRemoved, ev.Identifier, ev)
}
