package domain

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"example.com/useractivity/internal/observability"
)

const dayLayout = "2006-01-02"

// dayBucket holds the records that fall on one calendar day, newest first.
type dayBucket struct {
	day     time.Time // midnight of the day in the reference location
	records []ActivityRecord
}

// groupByDay partitions records by calendar day in loc. Buckets are ordered most
// recent day first; records within a bucket by timestamp descending, keeping the
// input order for equal timestamps.
func groupByDay(records []ActivityRecord, loc *time.Location) []dayBucket {
	ordered := slices.Clone(records)
	slices.SortStableFunc(ordered, func(a, b ActivityRecord) int {
		return b.Timestamp.Compare(a.Timestamp)
	})

	index := make(map[string]int)
	buckets := make([]dayBucket, 0)
	for _, rec := range ordered {
		local := rec.Timestamp.In(loc)
		day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
		key := day.Format(dayLayout)
		i, ok := index[key]
		if !ok {
			i = len(buckets)
			index[key] = i
			buckets = append(buckets, dayBucket{day: day})
		}
		buckets[i].records = append(buckets[i].records, rec)
	}

	slices.SortStableFunc(buckets, func(a, b dayBucket) int {
		return b.day.Compare(a.day)
	})
	return buckets
}

// GetActivityPage returns one calendar day of the user's activity of the given type.
// Page 0 is the most recent day with at least one record.
func (s *Service) GetActivityPage(ctx context.Context, userID string, activityType ActivityType, pageIndex int) (*Page, error) {
	if !activityType.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownActivityType, activityType)
	}
	if pageIndex < 0 {
		return nil, fmt.Errorf("%w: page %d", ErrPageOutOfRange, pageIndex)
	}

	records, err := s.repo.ListByUserAndType(ctx, userID, activityType)
	if err != nil {
		return nil, storageFailure("list", err)
	}

	if len(records) == 0 {
		return &Page{Content: []ActivityView{}, CurrentPage: pageIndex}, nil
	}

	buckets := groupByDay(records, s.location)
	if pageIndex >= len(buckets) {
		observability.RecordPageOutOfRange(string(activityType))
		return nil, fmt.Errorf("%w: page %d of %d", ErrPageOutOfRange, pageIndex, len(buckets))
	}

	selected := buckets[pageIndex]
	content, err := s.materialize(ctx, selected.records)
	if err != nil {
		return nil, err
	}

	observability.RecordPageServed(string(activityType))
	return &Page{
		Content:       content,
		CurrentPage:   pageIndex,
		TotalPages:    len(buckets),
		TotalElements: len(records),
		Day:           selected.day.Format(dayLayout),
	}, nil
}

// materialize builds views for the records, resolving each distinct podcast once.
// Targets that fail to resolve yield a view without a podcast; only cancellation
// of ctx fails the page.
func (s *Service) materialize(ctx context.Context, records []ActivityRecord) ([]ActivityView, error) {
	podcastIDs := make([]string, 0, len(records))
	for _, rec := range records {
		if rec.PodcastID != "" && !slices.Contains(podcastIDs, rec.PodcastID) {
			podcastIDs = append(podcastIDs, rec.PodcastID)
		}
	}

	var mu sync.Mutex
	podcasts := make(map[string]*PodcastSummary, len(podcastIDs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.enrichConcurrency)
	for _, id := range podcastIDs {
		id := id
		g.Go(func() error {
			summary, err := s.targets.ResolvePodcast(gctx, id)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				if !errors.Is(err, ErrTargetNotFound) {
					observability.RecordEnrichmentFailure()
				}
				return nil
			}
			mu.Lock()
			podcasts[id] = summary
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	views := make([]ActivityView, 0, len(records))
	for _, rec := range records {
		views = append(views, ActivityView{
			ID:        rec.ID,
			Type:      rec.Type,
			Timestamp: rec.Timestamp,
			CommentID: rec.CommentID,
			Podcast:   podcasts[rec.PodcastID],
		})
	}
	return views, nil
}
