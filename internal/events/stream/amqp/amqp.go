// Package amqp streams registry events to a RabbitMQ exchange. Deployments
// that already run an AMQP broker can consume the trail without Kafka; the
// routing key is the event kind so consumers can bind selectively.
package amqp

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"veris/internal/events"
	"veris/pkg/domain"
)

const DefaultExchange = "registry.events"

type Sink struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
}

// New dials the broker and declares a durable topic exchange.
func New(url, exchange string) (*Sink, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return &Sink{conn: conn, channel: ch, exchange: exchange}, nil
}

func (s *Sink) Close() error {
	if err := s.channel.Close(); err != nil {
		s.conn.Close()
		return err
	}
	return s.conn.Close()
}

func (s *Sink) publish(ctx context.Context, kind events.Kind, id domain.Identifier, payload any) error {
	rec, err := events.NewRecord(ctx, kind, id, payload)
	if err != nil {
		return err
	}
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal event record: %w", err)
	}
	err = s.channel.PublishWithContext(ctx, s.exchange, string(kind), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    rec.Timestamp,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish %s event: %w", kind, err)
	}
	return nil
}

func (s *Sink) IdentityCreated(ctx context.Context, ev events.IdentityCreated) error {
	return s.publish(ctx, events.KindIdentityCreated, ev.Identifier, ev)
}

func (s *Sink) NameUpdated(ctx context.Context, ev events.NameUpdated) error {
	return s.publish(ctx, events.KindNameUpdated, ev.Identifier, ev)
}

func (s *Sink) MetadataUpdated(ctx context.Context, ev events.MetadataUpdated) error {
	return s.publish(ctx, events.KindMetadataUpdated, ev.Identifier, ev)
}

func (s *Sink) PendingOwnerUpdated(ctx context.Context, ev events.PendingOwnerUpdated) error {
	return s.publish(ctx, events.KindPendingOwnerUpdated, ev.Identifier, ev)
}

func (s *Sink) OwnerUpdated(ctx context.Context, ev events.OwnerUpdated) error {
	return s.publish(ctx, events.KindOwnerUpdated, ev.Identifier, ev)
}

func (s *Sink) MembersAdded(ctx context.Context, ev events.MembersAdded) error {
	return s.publish(ctx, events.KindMembersAdded, ev.Identifier, ev)
}

func (s *Sink) MembersRemoved(ctx context.Context, ev events.MembersRemoved) error {
	return s.publish(ctx, events.KindMembersRemoved, ev.Identifier, ev)
}
