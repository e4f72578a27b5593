//go:build integration

package kafka_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"veris/internal/events"
	"veris/internal/events/stream/kafka"
	"veris/pkg/domain"
	"veris/pkg/requestcontext"
	"veris/pkg/testutil/containers"
)

func testIdentifier(b byte) domain.Identifier {
	var id domain.Identifier
	id[len(id)-1] = b
	return id
}

func testAccount(b byte) domain.Address {
	var a domain.Address
	a[len(a)-1] = b
	return a
}

func consumeRecords(t *testing.T, brokers []string, topic string, want int) []*kgo.Record {
	t.Helper()

	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(t, err)
	t.Cleanup(client.Close)

	var out []*kgo.Record
	deadline := time.Now().Add(15 * time.Second)
	for len(out) < want && time.Now().Before(deadline) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		fetches := client.PollFetches(ctx)
		cancel()
		fetches.EachRecord(func(rec *kgo.Record) {
			out = append(out, rec)
		})
	}
	require.Len(t, out, want)
	return out
}

func TestSinkProducesEnrichedRecords(t *testing.T) {
	ctx := context.Background()
	rp := containers.GetManager().GetRedpanda(t)

	const topic = "registry.events.enriched"
	sink, err := kafka.New(ctx, rp.Brokers, topic)
	require.NoError(t, err)
	defer sink.Close()

	actor := testAccount(0xA1)
	id := testIdentifier(0x01)
	at := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	reqCtx := requestcontext.WithAccount(ctx, actor)
	reqCtx = requestcontext.WithTime(reqCtx, at)
	reqCtx = requestcontext.WithRequestID(reqCtx, "req-123")

	err = sink.IdentityCreated(reqCtx, events.IdentityCreated{
		Identifier: id,
		Nonce:      7,
		Name:       "treasury",
		Owner:      actor,
	})
	require.NoError(t, err)

	recs := consumeRecords(t, rp.Brokers, topic, 1)
	assert.Equal(t, id[:], recs[0].Key)

	var envelope events.Record
	require.NoError(t, json.Unmarshal(recs[0].Value, &envelope))
	assert.Equal(t, events.KindIdentityCreated, envelope.Kind)
	assert.Equal(t, id, envelope.Identifier)
	assert.Equal(t, actor, envelope.Actor)
	assert.Equal(t, "req-123", envelope.RequestID)
	assert.True(t, envelope.Timestamp.Equal(at))

	var payload events.IdentityCreated
	require.NoError(t, json.Unmarshal(envelope.Payload, &payload))
	assert.Equal(t, uint64(7), payload.Nonce)
	assert.Equal(t, "treasury", payload.Name)
}

func TestSinkKeysByIdentifierForOrdering(t *testing.T) {
	ctx := context.Background()
	rp := containers.GetManager().GetRedpanda(t)

	const topic = "registry.events.ordering"
	sink, err := kafka.New(ctx, rp.Brokers, topic)
	require.NoError(t, err)
	defer sink.Close()

	id := testIdentifier(0x02)
	require.NoError(t, sink.IdentityCreated(ctx, events.IdentityCreated{Identifier: id, Name: "one"}))
	require.NoError(t, sink.NameUpdated(ctx, events.NameUpdated{Identifier: id, Name: "two"}))
	require.NoError(t, sink.MembersAdded(ctx, events.MembersAdded{Identifier: id, Accounts: []domain.Address{testAccount(0xB2)}}))

	recs := consumeRecords(t, rp.Brokers, topic, 3)

	kinds := make([]events.Kind, 0, len(recs))
	for _, rec := range recs {
		assert.Equal(t, id[:], rec.Key)
		var envelope events.Record
		require.NoError(t, json.Unmarshal(rec.Value, &envelope))
		kinds = append(kinds, envelope.Kind)
	}
	assert.Equal(t, []events.Kind{
		events.KindIdentityCreated,
		events.KindNameUpdated,
		events.KindMembersAdded,
	}, kinds)
}

func TestNewIsIdempotentAcrossRestarts(t *testing.T) {
	ctx := context.Background()
	rp := containers.GetManager().GetRedpanda(t)

	const topic = "registry.events.restart"
	first, err := kafka.New(ctx, rp.Brokers, topic)
	require.NoError(t, err)
	first.Close()

	second, err := kafka.New(ctx, rp.Brokers, topic)
	require.NoError(t, err)
	second.Close()
}
