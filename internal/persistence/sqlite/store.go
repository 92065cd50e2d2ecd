// Package sqlite provides an embedded activity store for single-node deployments.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"example.com/useractivity/internal/domain"
)

const schema = `
	CREATE TABLE IF NOT EXISTS user_activities (
		seq           INTEGER PRIMARY KEY AUTOINCREMENT,
		activity_id   TEXT NOT NULL UNIQUE,
		user_id       TEXT NOT NULL,
		activity_type TEXT NOT NULL,
		podcast_id    TEXT NOT NULL DEFAULT '',
		comment_id    TEXT NOT NULL DEFAULT '',
		occurred_at   INTEGER NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS user_activities_dedup_idx
		ON user_activities (user_id, activity_type, podcast_id);

	CREATE INDEX IF NOT EXISTS user_activities_timeline_idx
		ON user_activities (user_id, activity_type, occurred_at DESC, seq);
`

const selectColumns = `activity_id, user_id, activity_type, podcast_id, comment_id, occurred_at`

// Store implements domain.ActivityRepository on SQLite. Timestamps are stored as
// Unix nanoseconds so ordering is exact.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and initialises the schema.
// Use ":memory:" for a private in-memory database.
func Open(ctx context.Context, path string) (*Store, error) {
	if path != ":memory:" && !strings.HasPrefix(path, "file:") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// A single connection serialises writers, which makes the upsert transaction atomic
	// and keeps ":memory:" databases from splitting across connections.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA busy_timeout = 5000", "PRAGMA journal_mode = WAL"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("applying %q: %w", pragma, err)
		}
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Upsert inserts the record or refreshes the timestamp of the record sharing its dedup key.
func (s *Store) Upsert(ctx context.Context, record domain.ActivityRecord) (domain.ActivityRecord, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.ActivityRecord{}, false, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO user_activities (activity_id, user_id, activity_type, podcast_id, comment_id, occurred_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (user_id, activity_type, podcast_id) DO NOTHING`,
		record.ID, record.UserID, string(record.Type), record.PodcastID, record.CommentID, record.Timestamp.UnixNano(),
	)
	if err != nil {
		return domain.ActivityRecord{}, false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return domain.ActivityRecord{}, false, err
	}
	created := affected == 1

	if !created {
		if _, err := tx.ExecContext(ctx,
			`UPDATE user_activities SET occurred_at = MAX(occurred_at, ?)
			 WHERE user_id = ? AND activity_type = ? AND podcast_id = ?`,
			record.Timestamp.UnixNano(), record.UserID, string(record.Type), record.PodcastID,
		); err != nil {
			return domain.ActivityRecord{}, false, err
		}
	}

	row := tx.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM user_activities WHERE user_id = ? AND activity_type = ? AND podcast_id = ?`,
		record.UserID, string(record.Type), record.PodcastID,
	)
	stored, err := scanRecord(row)
	if err != nil {
		return domain.ActivityRecord{}, false, err
	}

	if err := tx.Commit(); err != nil {
		return domain.ActivityRecord{}, false, err
	}
	return stored, created, nil
}

// FindByKey returns the record for the dedup key or nil.
func (s *Store) FindByKey(ctx context.Context, key domain.DedupKey) (*domain.ActivityRecord, error) {
	return s.queryOne(ctx,
		`SELECT `+selectColumns+` FROM user_activities WHERE user_id = ? AND activity_type = ? AND podcast_id = ?`,
		key.UserID, string(key.Type), key.PodcastID,
	)
}

// Get retrieves an activity by ID.
func (s *Store) Get(ctx context.Context, activityID string) (*domain.ActivityRecord, error) {
	return s.queryOne(ctx, `SELECT `+selectColumns+` FROM user_activities WHERE activity_id = ?`, activityID)
}

func (s *Store) queryOne(ctx context.Context, query string, args ...any) (*domain.ActivityRecord, error) {
	rec, err := scanRecord(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

// ListByUserAndType returns the user's activities of one type, newest first.
func (s *Store) ListByUserAndType(ctx context.Context, userID string, activityType domain.ActivityType) ([]domain.ActivityRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM user_activities
		 WHERE user_id = ? AND activity_type = ?
		 ORDER BY occurred_at DESC, seq ASC`,
		userID, string(activityType),
	)
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
	return results, rows.Err()
}

// Delete removes a single activity.
func (s *Store) Delete(ctx context.Context, record domain.ActivityRecord) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM user_activities WHERE activity_id = ?`, record.ID)
	return err
}

// DeleteMany removes the activities in one transaction.
func (s *Store) DeleteMany(ctx context.Context, records []domain.ActivityRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `DELETE FROM user_activities WHERE activity_id = ?`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, rec := range records {
		if _, err := stmt.ExecContext(ctx, rec.ID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (domain.ActivityRecord, error) {
	var rec domain.ActivityRecord
	var activityType string
	var occurredAt int64
	if err := row.Scan(&rec.ID, &rec.UserID, &activityType, &rec.PodcastID, &rec.CommentID, &occurredAt); err != nil {
		return domain.ActivityRecord{}, err
	}
	rec.Type = domain.ActivityType(activityType)
	rec.Timestamp = time.Unix(0, occurredAt).UTC()
	return rec, nil
}
