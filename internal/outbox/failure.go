package outbox

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// maxReasonLength bounds the failure text stored with a dead-lettered event.
const maxReasonLength = 1024

// DLQWriter dead-letters activity events that could not be delivered.
type DLQWriter struct {
	pool *pgxpool.Pool
}

// NewDLQWriter returns a writer over pool.
func NewDLQWriter(pool *pgxpool.Pool) *DLQWriter {
	return &DLQWriter{pool: pool}
}

// WriteBatch stores every message in outbox_dlq in one transaction, due for an
// immediate first retry.
func (w *DLQWriter) WriteBatch(ctx context.Context, messages []Message, reason string) error {
	if len(messages) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, msg := range messages {
		batch.Queue(
			`INSERT INTO outbox_dlq (event_id, event_type, topic, payload, reason, aggregate_type, aggregate_id, schema_subject, partition_key, next_retry_at)
             VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9, NOW())`,
			msg.EventID, msg.EventType, msg.Topic, []byte(msg.Payload), dlqReason(reason, msg),
			msg.AggregateType, msg.AggregateID, msg.SchemaSubject, msg.PartitionKey,
		)
	}

	return pgx.BeginFunc(ctx, w.pool, func(tx pgx.Tx) error {
		return tx.SendBatch(ctx, batch).Close()
	})
}

func dlqReason(reason string, msg Message) string {
	text := fmt.Sprintf("%s (topic=%s user=%s)", reason, msg.Topic, msg.PartitionKey)
	if len(text) > maxReasonLength {
		text = text[:maxReasonLength]
	}
	return text
}
