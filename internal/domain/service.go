// Package domain defines the business logic for the user activity service.
package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"example.com/useractivity/internal/observability"
)

// ActivityRepository captures persistence operations.
//
// Upsert must be atomic on the record's DedupKey: concurrent calls for the same key
// leave exactly one record behind. ListByUserAndType returns records ordered by
// Timestamp descending with ties in insertion order.
type ActivityRepository interface {
	Upsert(ctx context.Context, record ActivityRecord) (ActivityRecord, bool, error)
	FindByKey(ctx context.Context, key DedupKey) (*ActivityRecord, error)
	Get(ctx context.Context, activityID string) (*ActivityRecord, error)
	ListByUserAndType(ctx context.Context, userID string, activityType ActivityType) ([]ActivityRecord, error)
	Delete(ctx context.Context, record ActivityRecord) error
	DeleteMany(ctx context.Context, records []ActivityRecord) error
}

// TargetResolver looks up the podcasts and comments activities point at.
// Implementations return ErrTargetNotFound for unknown identifiers.
type TargetResolver interface {
	ResolvePodcast(ctx context.Context, podcastID string) (*PodcastSummary, error)
	ResolveComment(ctx context.Context, commentID string) (*CommentSummary, error)
}

const defaultEnrichConcurrency = 8

// Option configures optional behaviour for the Service.
type Option func(*Service)

// WithClock overrides the time source used to stamp activities.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLocation sets the reference time zone used to bucket activities into days.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.location = loc
		}
	}
}

// WithEnrichConcurrency bounds the number of concurrent target lookups per page.
func WithEnrichConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.enrichConcurrency = n
		}
	}
}

// Service orchestrates activity workflows: recording, day-bucketed retrieval and pruning.
type Service struct {
	repo              ActivityRepository
	targets           TargetResolver
	now               func() time.Time
	location          *time.Location
	enrichConcurrency int
}

// NewService constructs a Service.
func NewService(repo ActivityRepository, targets TargetResolver, opts ...Option) *Service {
	s := &Service{
		repo:              repo,
		targets:           targets,
		now:               time.Now,
		location:          time.UTC,
		enrichConcurrency: defaultEnrichConcurrency,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Location returns the reference time zone used for day bucketing.
func (s *Service) Location() *time.Location {
	return s.location
}

// RecordActivityInput captures an activity intent from the API or consumer layer.
type RecordActivityInput struct {
	UserID    string
	Type      ActivityType
	PodcastID string
	CommentID string
}

// Validate ensures the intent can be recorded.
func (in RecordActivityInput) Validate() error {
	if strings.TrimSpace(in.UserID) == "" {
		return fmt.Errorf("%w: user id is required", ErrInvalidActivity)
	}
	if !in.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownActivityType, in.Type)
	}
	return nil
}

// RecordActivity inserts a new record for the intent's dedup key or refreshes the
// timestamp of the existing one. The boolean reports whether a record was created.
func (s *Service) RecordActivity(ctx context.Context, input RecordActivityInput) (*ActivityRecord, bool, error) {
	input.UserID = strings.TrimSpace(input.UserID)
	input.PodcastID = strings.TrimSpace(input.PodcastID)
	input.CommentID = strings.TrimSpace(input.CommentID)
	if err := input.Validate(); err != nil {
		return nil, false, err
	}

	if input.PodcastID != "" {
		if _, err := s.targets.ResolvePodcast(ctx, input.PodcastID); err != nil {
			return nil, false, fmt.Errorf("resolve podcast %s: %w", input.PodcastID, err)
		}
	}
	if input.CommentID != "" {
		if _, err := s.targets.ResolveComment(ctx, input.CommentID); err != nil {
			return nil, false, fmt.Errorf("resolve comment %s: %w", input.CommentID, err)
		}
	}

	// Nothing has been written yet, so a cancelled request leaves the store untouched.
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	candidate := ActivityRecord{
		ID:        uuid.NewString(),
		UserID:    input.UserID,
		Type:      input.Type,
		PodcastID: input.PodcastID,
		CommentID: input.CommentID,
		Timestamp: s.now().UTC(),
	}

	stored, created, err := s.repo.Upsert(ctx, candidate)
	if err != nil {
		return nil, false, storageFailure("upsert", err)
	}

	observability.RecordActivityRecorded(string(stored.Type), created, stored.Timestamp)
	return &stored, created, nil
}

// FindActivity returns the live record for a dedup key, or nil when there is none.
func (s *Service) FindActivity(ctx context.Context, key DedupKey) (*ActivityRecord, error) {
	rec, err := s.repo.FindByKey(ctx, key)
	if err != nil {
		return nil, storageFailure("find", err)
	}
	return rec, nil
}

// RemoveActivity deletes the record with the given id when it has the given type.
// Unknown ids and type mismatches are no-ops.
func (s *Service) RemoveActivity(ctx context.Context, activityID string, activityType ActivityType) error {
	return s.remove(ctx, activityID, activityType, func(ActivityRecord) bool { return true })
}

// RemoveOwnedActivity behaves like RemoveActivity but also treats records owned by
// another user as not found.
func (s *Service) RemoveOwnedActivity(ctx context.Context, userID, activityID string, activityType ActivityType) error {
	return s.remove(ctx, activityID, activityType, func(rec ActivityRecord) bool { return rec.UserID == userID })
}

func (s *Service) remove(ctx context.Context, activityID string, activityType ActivityType, allowed func(ActivityRecord) bool) error {
	activityID = strings.TrimSpace(activityID)
	if activityID == "" {
		return nil
	}

	rec, err := s.repo.Get(ctx, activityID)
	if err != nil {
		return storageFailure("get", err)
	}
	if rec == nil || rec.Type != activityType || !allowed(*rec) {
		return nil
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, *rec); err != nil {
		return storageFailure("delete", err)
	}
	observability.RecordActivitiesRemoved(string(activityType), 1)
	return nil
}

// RemoveAllActivitiesOfType deletes every record of the given type for the user and
// returns how many were removed. Deletion is best effort: a failure part-way through
// is reported without restoring records already deleted.
func (s *Service) RemoveAllActivitiesOfType(ctx context.Context, userID string, activityType ActivityType) (int, error) {
	records, err := s.repo.ListByUserAndType(ctx, userID, activityType)
	if err != nil {
		return 0, storageFailure("list", err)
	}
	if len(records) == 0 {
		return 0, nil
	}

	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := s.repo.DeleteMany(ctx, records); err != nil {
		return 0, storageFailure("delete many", err)
	}
	observability.RecordActivitiesRemoved(string(activityType), len(records))
	return len(records), nil
}

// IsClientError reports whether err is caused by the caller rather than the service.
func IsClientError(err error) bool {
	return errors.Is(err, ErrTargetNotFound) ||
		errors.Is(err, ErrPageOutOfRange) ||
		errors.Is(err, ErrInvalidActivity) ||
		errors.Is(err, ErrUnknownActivityType)
}
