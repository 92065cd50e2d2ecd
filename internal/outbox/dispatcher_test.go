package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"example.com/useractivity/internal/events"
)

type stubProducer struct {
	mu     sync.Mutex
	err    error
	writes []writtenBatch
}

type writtenBatch struct {
	topic    string
	messages []kafka.Message
}

func (s *stubProducer) WriteMessages(ctx context.Context, topic string, msgs ...kafka.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return s.err
	}

	copied := make([]kafka.Message, len(msgs))
	copy(copied, msgs)

	s.writes = append(s.writes, writtenBatch{
		topic:    topic,
		messages: copied,
	})
	return nil
}

type stubRegistry struct {
	mu    sync.Mutex
	id    int
	err   error
	calls []schemaCall
}

type schemaCall struct {
	subject string
	schema  string
}

func (s *stubRegistry) EnsureSchema(ctx context.Context, subject string, schema string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, schemaCall{subject: subject, schema: schema})
	if s.err != nil {
		return 0, s.err
	}
	if s.id == 0 {
		s.id = 1
	}
	return s.id, nil
}

func recordedMessage(t *testing.T, eventID int64, userID string) Message {
	t.Helper()
	payload, err := json.Marshal(events.ActivityRecorded{
		ActivityID:   "activity-1",
		UserID:       userID,
		ActivityType: "VIEW_PODCAST",
		PodcastID:    "podcast-1",
		OccurredAt:   time.Date(2026, time.March, 14, 9, 0, 0, 0, time.UTC),
		Created:      true,
	})
	require.NoError(t, err)
	return Message{
		EventID:       eventID,
		AggregateType: "user_activity",
		AggregateID:   "activity-1",
		EventType:     events.TypeActivityRecorded,
		Topic:         events.TopicActivityEvents,
		SchemaSubject: events.TopicActivityEvents + "-" + events.TypeActivityRecorded,
		PartitionKey:  userID,
		Payload:       payload,
	}
}

func newTestDispatcher(producer messageWriter, registry schemaRegistrar) *Dispatcher {
	d := NewDispatcher(nil, producer, registry, time.Millisecond, 10, zerolog.Nop())
	d.now = func() time.Time { return time.Date(2026, time.March, 14, 10, 0, 0, 0, time.UTC) }
	return d
}

func TestDeliverFramesMessagesAndCachesSchema(t *testing.T) {
	producer := &stubProducer{}
	registry := &stubRegistry{id: 42}
	d := newTestDispatcher(producer, registry)

	first := recordedMessage(t, 1, "user-1")
	second := recordedMessage(t, 2, "user-2")
	require.NoError(t, d.deliver(context.Background(), []Message{first, second}))

	require.Len(t, registry.calls, 1, "schema id is cached across the batch")
	require.Equal(t, first.SchemaSubject, registry.calls[0].subject)

	require.Len(t, producer.writes, 1)
	batch := producer.writes[0]
	require.Equal(t, events.TopicActivityEvents, batch.topic)
	require.Len(t, batch.messages, 2)

	msg := batch.messages[0]
	require.Equal(t, "user-1", string(msg.Key))
	schemaID, payload, err := DecodeWireFormat(msg.Value)
	require.NoError(t, err)
	require.Equal(t, 42, schemaID)
	require.JSONEq(t, string(first.Payload), string(payload))

	headers := map[string]string{}
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	require.Equal(t, events.TypeActivityRecorded, headers["event_type"])
	require.Equal(t, first.SchemaSubject, headers["schema_subject"])
}

func TestDeliverRejectsUnknownEventType(t *testing.T) {
	producer := &stubProducer{}
	registry := &stubRegistry{}
	d := newTestDispatcher(producer, registry)

	msg := recordedMessage(t, 1, "user-1")
	msg.EventType = "activity.unknown"

	err := d.deliver(context.Background(), []Message{msg})
	require.ErrorContains(t, err, "no schema metadata for event_type=activity.unknown")
	require.Empty(t, producer.writes)
	require.Empty(t, registry.calls)
}

func TestDeliverPropagatesFailures(t *testing.T) {
	t.Run("registry", func(t *testing.T) {
		d := newTestDispatcher(&stubProducer{}, &stubRegistry{err: errors.New("registry down")})
		require.ErrorContains(t, d.deliver(context.Background(), []Message{recordedMessage(t, 1, "user-1")}), "registry down")
	})
	t.Run("producer", func(t *testing.T) {
		d := newTestDispatcher(&stubProducer{err: errors.New("broker down")}, &stubRegistry{id: 3})
		require.ErrorContains(t, d.deliver(context.Background(), []Message{recordedMessage(t, 1, "user-1")}), "broker down")
	})
}

func TestWireFormatRoundTrip(t *testing.T) {
	frame := encodeWireFormat(258, []byte(`{"a":1}`))
	require.Equal(t, []byte{0, 0, 0, 1, 2}, frame[:5])

	id, payload, err := DecodeWireFormat(frame)
	require.NoError(t, err)
	require.Equal(t, 258, id)
	require.Equal(t, `{"a":1}`, string(payload))

	_, _, err = DecodeWireFormat([]byte(`{"a":1}`))
	require.Error(t, err)
}

func TestBackoffDelay(t *testing.T) {
	m := NewDLQManager(nil, 0, 0)
	require.Equal(t, 5, m.maxRetries)
	require.Equal(t, time.Minute, m.backoffDelay(1))
	require.Equal(t, 2*time.Minute, m.backoffDelay(2))
	require.Equal(t, 16*time.Minute, m.backoffDelay(5))
	require.Equal(t, time.Hour, m.backoffDelay(7))
	require.Equal(t, time.Hour, m.backoffDelay(64))
}
