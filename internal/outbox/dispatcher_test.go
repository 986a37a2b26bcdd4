package outbox

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
)

func TestDeliverGroupsByTopicAndFramesPayloads(t *testing.T) {
	producer := &stubProducer{}
	registry := &stubRegistry{id: 42}
	dispatcher := NewDispatcher(nil, producer, registry, time.Second, 5, time.Hour)

	messages := []Message{
		{
			EventID:       1,
			TenantID:      "tenant-1",
			EventType:     "activity.created",
			Topic:         "activity_events",
			SchemaSubject: "activity_events-value",
			PartitionKey:  "tenant-1:user-1",
			Payload:       json.RawMessage(`{"activity_id":"a"}`),
		},
		{
			EventID:       2,
			TenantID:      "tenant-1",
			EventType:     "activity.status_changed",
			Topic:         "activity_status_changed",
			SchemaSubject: "activity_status_changed-value",
			PartitionKey:  "a",
			Payload:       json.RawMessage(`{"activity_id":"a","status":"in_progress"}`),
		},
	}

	require.NoError(t, dispatcher.deliver(context.Background(), messages))
	require.Len(t, producer.writes, 2)

	created := producer.writeForTopic(t, "activity_events")
	require.Len(t, created.messages, 1)
	value := created.messages[0].Value
	require.Equal(t, byte(0), value[0])
	require.Equal(t, uint32(42), binary.BigEndian.Uint32(value[1:5]))
	require.JSONEq(t, `{"activity_id":"a"}`, string(value[5:]))

	var eventType string
	for _, header := range created.messages[0].Headers {
		if header.Key == "event_type" {
			eventType = string(header.Value)
		}
	}
	require.Equal(t, "activity.created", eventType)

	changed := producer.writeForTopic(t, "activity_status_changed")
	require.Len(t, changed.messages, 1)
	require.JSONEq(t, `{"activity_id":"a","status":"in_progress"}`, string(changed.messages[0].Value[5:]))
}

func TestDeliverCachesSchemaIDs(t *testing.T) {
	producer := &stubProducer{}
	registry := &stubRegistry{id: 7}
	dispatcher := NewDispatcher(nil, producer, registry, time.Second, 5, time.Hour)

	msg := Message{
		EventID:       1,
		TenantID:      "tenant-1",
		EventType:     "activity.created",
		Topic:         "activity_events",
		SchemaSubject: "activity_events-value",
		PartitionKey:  "tenant-1:user-1",
		Payload:       json.RawMessage(`{}`),
	}

	require.NoError(t, dispatcher.deliver(context.Background(), []Message{msg, msg}))
	require.NoError(t, dispatcher.deliver(context.Background(), []Message{msg}))

	require.Len(t, registry.calls, 1, "schema registry should be invoked once due to cache")
}

func TestDeliverRejectsUnknownEventType(t *testing.T) {
	producer := &stubProducer{}
	registry := &stubRegistry{id: 7}
	dispatcher := NewDispatcher(nil, producer, registry, time.Second, 5, time.Hour)

	msg := Message{
		EventID:   1,
		EventType: "activity.deleted",
		Topic:     "activity_events",
	}

	require.Error(t, dispatcher.deliver(context.Background(), []Message{msg}))
	require.Empty(t, producer.writes)
}

type stubWrite struct {
	topic    string
	messages []kafka.Message
}

type stubProducer struct {
	writes []stubWrite
	err    error
}

func (p *stubProducer) WriteMessages(_ context.Context, topic string, msgs ...kafka.Message) error {
	if p.err != nil {
		return p.err
	}
	p.writes = append(p.writes, stubWrite{topic: topic, messages: msgs})
	return nil
}

// writeForTopic finds the recorded batch for a topic; batches arrive in map
// iteration order, so position is not meaningful.
func (p *stubProducer) writeForTopic(t *testing.T, topic string) stubWrite {
	t.Helper()
	for _, write := range p.writes {
		if write.topic == topic {
			return write
		}
	}
	t.Fatalf("no write recorded for topic %s", topic)
	return stubWrite{}
}

type stubRegistry struct {
	id    int
	calls []string
}

func (r *stubRegistry) EnsureSchema(_ context.Context, subject, _ string) (int, error) {
	r.calls = append(r.calls, subject)
	return r.id, nil
}
