// Package postgres provides Postgres-backed persistence for activities and outbox events.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/useractivity/internal/domain"
	"example.com/useractivity/internal/events"
)

const selectColumns = `activity_id, user_id, activity_type, podcast_id, comment_id, occurred_at`

// Option configures the Store.
type Option func(*Store)

// WithOutbox toggles writing outbox events alongside mutations.
func WithOutbox(enabled bool) Option {
	return func(s *Store) {
		s.outbox = enabled
	}
}

// Store implements domain.ActivityRepository on a pgx pool. Deduplication relies on
// the unique index over (user_id, activity_type, podcast_id).
type Store struct {
	pool   *pgxpool.Pool
	outbox bool
}

// NewStore constructs a Store. Outbox events are written unless disabled.
func NewStore(pool *pgxpool.Pool, opts ...Option) *Store {
	s := &Store{pool: pool, outbox: true}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Upsert inserts the record or refreshes the timestamp of the record sharing its dedup key.
func (s *Store) Upsert(ctx context.Context, record domain.ActivityRecord) (stored domain.ActivityRecord, created bool, err error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return domain.ActivityRecord{}, false, err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	const stmt = `INSERT INTO user_activities (activity_id, user_id, activity_type, podcast_id, comment_id, occurred_at)
        VALUES ($1,$2,$3,$4,$5,$6)
        ON CONFLICT (user_id, activity_type, podcast_id)
        DO UPDATE SET occurred_at = GREATEST(user_activities.occurred_at, EXCLUDED.occurred_at)
        RETURNING ` + selectColumns + `, (xmax = 0) AS inserted`

	row := tx.QueryRow(ctx, stmt,
		record.ID,
		record.UserID,
		string(record.Type),
		record.PodcastID,
		record.CommentID,
		record.Timestamp,
	)
	var activityType string
	if err = row.Scan(&stored.ID, &stored.UserID, &activityType, &stored.PodcastID, &stored.CommentID, &stored.Timestamp, &created); err != nil {
		return domain.ActivityRecord{}, false, err
	}
	stored.Type = domain.ActivityType(activityType)
	stored.Timestamp = stored.Timestamp.UTC()

	if s.outbox {
		payload := events.ActivityRecorded{
			ActivityID:   stored.ID,
			UserID:       stored.UserID,
			ActivityType: string(stored.Type),
			PodcastID:    stored.PodcastID,
			CommentID:    stored.CommentID,
			OccurredAt:   stored.Timestamp,
			Created:      created,
		}
		dedupeKey := fmt.Sprintf("%s:%s:%d", stored.ID, events.TypeActivityRecorded, stored.Timestamp.UnixNano())
		if err = insertOutbox(ctx, tx, stored, events.TypeActivityRecorded, dedupeKey, payload); err != nil {
			return domain.ActivityRecord{}, false, err
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return domain.ActivityRecord{}, false, err
	}
	return stored, created, nil
}

// FindByKey returns the record for the dedup key or nil.
func (s *Store) FindByKey(ctx context.Context, key domain.DedupKey) (*domain.ActivityRecord, error) {
	query := `SELECT ` + selectColumns + ` FROM user_activities
        WHERE user_id=$1 AND activity_type=$2 AND podcast_id=$3`
	return s.queryOne(ctx, query, key.UserID, string(key.Type), key.PodcastID)
}

// Get retrieves an activity by ID.
func (s *Store) Get(ctx context.Context, activityID string) (*domain.ActivityRecord, error) {
	query := `SELECT ` + selectColumns + ` FROM user_activities WHERE activity_id=$1`
	return s.queryOne(ctx, query, activityID)
}

func (s *Store) queryOne(ctx context.Context, query string, args ...any) (*domain.ActivityRecord, error) {
	rec, err := scanRecord(s.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

// ListByUserAndType returns the user's activities of one type, newest first.
func (s *Store) ListByUserAndType(ctx context.Context, userID string, activityType domain.ActivityType) ([]domain.ActivityRecord, error) {
	query := `SELECT ` + selectColumns + ` FROM user_activities
        WHERE user_id=$1 AND activity_type=$2
        ORDER BY occurred_at DESC, seq ASC`

	rows, err := s.pool.Query(ctx, query, userID, string(activityType))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]domain.ActivityRecord, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// Delete removes a single activity and records an activity.removed event.
func (s *Store) Delete(ctx context.Context, record domain.ActivityRecord) error {
	return s.DeleteMany(ctx, []domain.ActivityRecord{record})
}

// DeleteMany removes the activities in one transaction.
func (s *Store) DeleteMany(ctx context.Context, records []domain.ActivityRecord) (err error) {
	if len(records) == 0 {
		return nil
	}
	ids := make([]string, 0, len(records))
	for _, rec := range records {
		ids = append(ids, rec.ID)
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	rows, err := tx.Query(ctx, `DELETE FROM user_activities WHERE activity_id = ANY($1) RETURNING `+selectColumns, ids)
	if err != nil {
		return err
	}
	removed := make([]domain.ActivityRecord, 0, len(ids))
	for rows.Next() {
		rec, scanErr := scanRecord(rows)
		if scanErr != nil {
			rows.Close()
			err = scanErr
			return err
		}
		removed = append(removed, rec)
	}
	rows.Close()
	if err = rows.Err(); err != nil {
		return err
	}

	if s.outbox {
		removedAt := time.Now().UTC()
		for _, rec := range removed {
			payload := events.ActivityRemoved{
				ActivityID:   rec.ID,
				UserID:       rec.UserID,
				ActivityType: string(rec.Type),
				PodcastID:    rec.PodcastID,
				RemovedAt:    removedAt,
			}
			dedupeKey := fmt.Sprintf("%s:%s", rec.ID, events.TypeActivityRemoved)
			if err = insertOutbox(ctx, tx, rec, events.TypeActivityRemoved, dedupeKey, payload); err != nil {
				return err
			}
		}
	}

	err = tx.Commit(ctx)
	return err
}

func insertOutbox(ctx context.Context, tx pgx.Tx, record domain.ActivityRecord, eventType, dedupeKey string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	meta, ok := eventCatalog[eventType]
	if !ok {
		return fmt.Errorf("unknown event type: %s", eventType)
	}

	const stmt = `INSERT INTO outbox (aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        ON CONFLICT (dedupe_key) DO NOTHING`

	_, err = tx.Exec(ctx, stmt,
		"user_activity",
		record.ID,
		eventType,
		meta.Topic,
		meta.SchemaSubject,
		meta.PartitionKeyFn(record),
		body,
		dedupeKey,
	)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (domain.ActivityRecord, error) {
	var rec domain.ActivityRecord
	var activityType string
	if err := row.Scan(&rec.ID, &rec.UserID, &activityType, &rec.PodcastID, &rec.CommentID, &rec.Timestamp); err != nil {
		return domain.ActivityRecord{}, err
	}
	rec.Type = domain.ActivityType(activityType)
	rec.Timestamp = rec.Timestamp.UTC()
	return rec, nil
}

// EventMetadata describes how to route an outbox event.
type EventMetadata struct {
	Topic          string
	SchemaSubject  string
	PartitionKeyFn func(domain.ActivityRecord) string
}

var eventCatalog = map[string]EventMetadata{
	events.TypeActivityRecorded: {
		Topic:         events.TopicActivityEvents,
		SchemaSubject: events.TopicActivityEvents + "-" + events.TypeActivityRecorded,
		PartitionKeyFn: func(r domain.ActivityRecord) string {
			return r.UserID
		},
	},
	events.TypeActivityRemoved: {
		Topic:         events.TopicActivityEvents,
		SchemaSubject: events.TopicActivityEvents + "-" + events.TypeActivityRemoved,
		PartitionKeyFn: func(r domain.ActivityRecord) string {
			return r.UserID
		},
	},
}
