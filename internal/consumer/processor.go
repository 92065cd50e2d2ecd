// Package consumer turns Kafka records into calls on the activity service.
package consumer

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// Reader exposes the minimal kafka.Reader interface needed by the processor.
type Reader interface {
	FetchMessage(context.Context) (kafka.Message, error)
	CommitMessages(context.Context, ...kafka.Message) error
	Close() error
}

// Handler receives decoded messages from Kafka. A returned error means the message
// should be retried; handlers swallow errors for messages that can never succeed.
type Handler interface {
	Handle(context.Context, Message) error
}

// Message is the decoded representation of a Kafka record. Values may be plain JSON
// or carry Schema Registry framing; SchemaID is zero for plain JSON.
type Message struct {
	Topic         string
	Partition     int
	Offset        int64
	Key           string
	Timestamp     time.Time
	EventType     string
	SchemaSubject string
	SchemaID      int
	Payload       json.RawMessage
}

// Option configures optional behaviour for the Processor.
type Option func(*Processor)

// WithLogger overrides the logger used to report errors.
func WithLogger(logger zerolog.Logger) Option {
	return func(p *Processor) {
		p.logger = logger
	}
}

// WithRetry sets how many times a failing message is handed to the handler and the
// initial delay between attempts. The delay doubles on every attempt.
func WithRetry(attempts int, delay time.Duration) Option {
	return func(p *Processor) {
		if attempts > 0 {
			p.attempts = attempts
		}
		if delay >= 0 {
			p.retryDelay = delay
		}
	}
}

// Processor pulls messages from Kafka, decodes them, and dispatches to a Handler.
type Processor struct {
	reader     Reader
	handler    Handler
	logger     zerolog.Logger
	attempts   int
	retryDelay time.Duration
}

// NewProcessor constructs a Processor with the provided reader and handler.
func NewProcessor(reader Reader, handler Handler, opts ...Option) *Processor {
	p := &Processor{
		reader:     reader,
		handler:    handler,
		logger:     zerolog.Nop(),
		attempts:   5,
		retryDelay: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// HandlerError reports a message the handler could not process after every retry.
// The message is left uncommitted so that a new reader redelivers it.
type HandlerError struct {
	Topic     string
	Partition int
	Offset    int64
	Err       error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("handle %s[%d]@%d: %v", e.Topic, e.Partition, e.Offset, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }

// Run starts a blocking loop that processes Kafka messages until the context is
// cancelled or a message exhausts its retries, in which case a *HandlerError is returned.
func (p *Processor) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		msg, err := p.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			p.logger.Warn().Err(err).Msg("fetch error")
			continue
		}

		event, decodeErr := decodeMessage(msg)
		if decodeErr != nil {
			p.logger.Warn().Err(decodeErr).
				Str("topic", msg.Topic).Int("partition", msg.Partition).Int64("offset", msg.Offset).
				Msg("decode error")
			recordDecodeError(msg.Topic)
			// Commit malformed messages to avoid poison-pill loops.
			if commitErr := p.reader.CommitMessages(ctx, msg); commitErr != nil {
				p.logger.Error().Err(commitErr).Msg("commit error after decode failure")
			}
			continue
		}

		if handleErr := p.handleWithRetry(ctx, event); handleErr != nil {
			if errors.Is(handleErr, context.Canceled) {
				return handleErr
			}
			p.logger.Error().Err(handleErr).
				Str("event_type", event.EventType).Str("topic", event.Topic).
				Int("partition", event.Partition).Int64("offset", event.Offset).
				Msg("handler error, stopping before the offset is passed")
			recordHandlerError(event)
			// Commits are positional: fetching on would acknowledge this message with the next one.
			return &HandlerError{Topic: event.Topic, Partition: event.Partition, Offset: event.Offset, Err: handleErr}
		}

		if commitErr := p.reader.CommitMessages(ctx, msg); commitErr != nil {
			p.logger.Error().Err(commitErr).Msg("commit error")
		} else {
			recordProcessed(event)
		}
	}
}

func (p *Processor) handleWithRetry(ctx context.Context, event Message) error {
	delay := p.retryDelay
	var err error
	for attempt := 1; attempt <= p.attempts; attempt++ {
		if err = p.handler.Handle(ctx, event); err == nil {
			return nil
		}
		if attempt == p.attempts {
			break
		}
		p.logger.Debug().Err(err).Int("attempt", attempt).Msg("handler failed, retrying")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return err
}

func decodeMessage(msg kafka.Message) (Message, error) {
	if len(msg.Value) == 0 {
		return Message{}, errors.New("empty payload")
	}

	eventType, _ := headerValue(msg, "event_type")
	schemaSubject, _ := headerValue(msg, "schema_subject")

	out := Message{
		Topic:         msg.Topic,
		Partition:     msg.Partition,
		Offset:        msg.Offset,
		Key:           string(msg.Key),
		Timestamp:     msg.Time,
		EventType:     string(eventType),
		SchemaSubject: string(schemaSubject),
	}

	value := msg.Value
	if value[0] == 0 {
		if len(value) < 5 {
			return Message{}, errors.New("invalid framed payload length")
		}
		out.SchemaID = int(binary.BigEndian.Uint32(value[1:5]))
		value = value[5:]
	}
	if !json.Valid(value) {
		return Message{}, errors.New("payload is not valid JSON")
	}
	out.Payload = json.RawMessage(append([]byte(nil), value...))
	return out, nil
}

func headerValue(msg kafka.Message, key string) ([]byte, bool) {
	for _, header := range msg.Headers {
		if header.Key == key {
			return header.Value, true
		}
	}
	return nil, false
}
