// Package storetest holds the conformance suite every activity store must pass.
package storetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"example.com/useractivity/internal/domain"
)

// Factory returns an empty store for a single sub-test.
type Factory func(t *testing.T) domain.ActivityRepository

var base = time.Date(2026, time.March, 14, 9, 0, 0, 0, time.UTC)

func record(userID string, activityType domain.ActivityType, podcastID string, ts time.Time) domain.ActivityRecord {
	return domain.ActivityRecord{
		ID:        uuid.NewString(),
		UserID:    userID,
		Type:      activityType,
		PodcastID: podcastID,
		Timestamp: ts,
	}
}

// Run executes the suite against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("UpsertCreatesThenRefreshes", func(t *testing.T) { testUpsertCreatesThenRefreshes(t, newStore(t)) })
	t.Run("UpsertNeverMovesBackwards", func(t *testing.T) { testUpsertNeverMovesBackwards(t, newStore(t)) })
	t.Run("DistinctPodcastsAreIndependent", func(t *testing.T) { testDistinctPodcasts(t, newStore(t)) })
	t.Run("AbsentPodcastDeduplicates", func(t *testing.T) { testAbsentPodcast(t, newStore(t)) })
	t.Run("ListOrdering", func(t *testing.T) { testListOrdering(t, newStore(t)) })
	t.Run("ListScopedByUserAndType", func(t *testing.T) { testListScope(t, newStore(t)) })
	t.Run("LookupsOfMissingRecords", func(t *testing.T) { testMissing(t, newStore(t)) })
	t.Run("Delete", func(t *testing.T) { testDelete(t, newStore(t)) })
	t.Run("DeleteMany", func(t *testing.T) { testDeleteMany(t, newStore(t)) })
	t.Run("ConcurrentUpsertSameKey", func(t *testing.T) { testConcurrentUpsert(t, newStore(t)) })
}

func testUpsertCreatesThenRefreshes(t *testing.T, store domain.ActivityRepository) {
	ctx := context.Background()

	first := record("user-1", domain.ActivityViewPodcast, "podcast-1", base)
	first.CommentID = "comment-1"
	stored, created, err := store.Upsert(ctx, first)
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, first.ID, stored.ID)

	second := record("user-1", domain.ActivityViewPodcast, "podcast-1", base.Add(5*time.Minute))
	stored, created, err = store.Upsert(ctx, second)
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, first.ID, stored.ID, "refresh keeps the original identity")
	require.Equal(t, "comment-1", stored.CommentID, "refresh changes only the timestamp")
	require.True(t, stored.Timestamp.Equal(base.Add(5*time.Minute)))

	found, err := store.FindByKey(ctx, first.Key())
	require.NoError(t, err)
	require.NotNil(t, found)
	require.Equal(t, first.ID, found.ID)
	require.True(t, found.Timestamp.Equal(base.Add(5*time.Minute)))

	all, err := store.ListByUserAndType(ctx, "user-1", domain.ActivityViewPodcast)
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func testUpsertNeverMovesBackwards(t *testing.T, store domain.ActivityRepository) {
	ctx := context.Background()

	_, _, err := store.Upsert(ctx, record("user-1", domain.ActivityViewPodcast, "podcast-1", base.Add(time.Hour)))
	require.NoError(t, err)
	stored, created, err := store.Upsert(ctx, record("user-1", domain.ActivityViewPodcast, "podcast-1", base))
	require.NoError(t, err)
	require.False(t, created)
	require.True(t, stored.Timestamp.Equal(base.Add(time.Hour)))
}

func testDistinctPodcasts(t *testing.T, store domain.ActivityRepository) {
	ctx := context.Background()

	a, createdA, err := store.Upsert(ctx, record("user-1", domain.ActivityViewPodcast, "podcast-1", base))
	require.NoError(t, err)
	b, createdB, err := store.Upsert(ctx, record("user-1", domain.ActivityViewPodcast, "podcast-2", base))
	require.NoError(t, err)

	require.True(t, createdA)
	require.True(t, createdB)
	require.NotEqual(t, a.ID, b.ID)

	all, err := store.ListByUserAndType(ctx, "user-1", domain.ActivityViewPodcast)
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func testAbsentPodcast(t *testing.T, store domain.ActivityRepository) {
	ctx := context.Background()

	_, created, err := store.Upsert(ctx, record("user-1", domain.ActivityLikeComment, "", base))
	require.NoError(t, err)
	require.True(t, created)
	_, created, err = store.Upsert(ctx, record("user-1", domain.ActivityLikeComment, "", base.Add(time.Minute)))
	require.NoError(t, err)
	require.False(t, created)

	all, err := store.ListByUserAndType(ctx, "user-1", domain.ActivityLikeComment)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Empty(t, all[0].PodcastID)
}

func testListOrdering(t *testing.T, store domain.ActivityRepository) {
	ctx := context.Background()

	older := record("user-1", domain.ActivityViewPodcast, "podcast-old", base)
	tieFirst := record("user-1", domain.ActivityViewPodcast, "podcast-tie-1", base.Add(time.Hour))
	tieSecond := record("user-1", domain.ActivityViewPodcast, "podcast-tie-2", base.Add(time.Hour))
	newest := record("user-1", domain.ActivityViewPodcast, "podcast-new", base.Add(2*time.Hour))

	for _, rec := range []domain.ActivityRecord{older, tieFirst, tieSecond, newest} {
		_, _, err := store.Upsert(ctx, rec)
		require.NoError(t, err)
	}

	all, err := store.ListByUserAndType(ctx, "user-1", domain.ActivityViewPodcast)
	require.NoError(t, err)
	require.Len(t, all, 4)
	require.Equal(t, newest.ID, all[0].ID)
	require.Equal(t, tieFirst.ID, all[1].ID, "equal timestamps keep insertion order")
	require.Equal(t, tieSecond.ID, all[2].ID)
	require.Equal(t, older.ID, all[3].ID)
}

func testListScope(t *testing.T, store domain.ActivityRepository) {
	ctx := context.Background()

	for _, rec := range []domain.ActivityRecord{
		record("user-1", domain.ActivityViewPodcast, "podcast-1", base),
		record("user-1", domain.ActivityLikePodcast, "podcast-1", base),
		record("user-2", domain.ActivityViewPodcast, "podcast-1", base),
	} {
		_, _, err := store.Upsert(ctx, rec)
		require.NoError(t, err)
	}

	all, err := store.ListByUserAndType(ctx, "user-1", domain.ActivityViewPodcast)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Equal(t, "user-1", all[0].UserID)
	require.Equal(t, domain.ActivityViewPodcast, all[0].Type)

	none, err := store.ListByUserAndType(ctx, "user-3", domain.ActivityViewPodcast)
	require.NoError(t, err)
	require.Empty(t, none)
}

func testMissing(t *testing.T, store domain.ActivityRepository) {
	ctx := context.Background()

	got, err := store.Get(ctx, uuid.NewString())
	require.NoError(t, err)
	require.Nil(t, got)

	found, err := store.FindByKey(ctx, domain.DedupKey{UserID: "nobody", Type: domain.ActivityViewPodcast, PodcastID: "p"})
	require.NoError(t, err)
	require.Nil(t, found)
}

func testDelete(t *testing.T, store domain.ActivityRepository) {
	ctx := context.Background()

	rec, _, err := store.Upsert(ctx, record("user-1", domain.ActivityViewPodcast, "podcast-1", base))
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, rec))
	got, err := store.Get(ctx, rec.ID)
	require.NoError(t, err)
	require.Nil(t, got)

	require.NoError(t, store.Delete(ctx, rec), "deleting a missing record is not an error")

	again, created, err := store.Upsert(ctx, record("user-1", domain.ActivityViewPodcast, "podcast-1", base.Add(time.Minute)))
	require.NoError(t, err)
	require.True(t, created, "the dedup key is free again after deletion")
	require.NotEqual(t, rec.ID, again.ID)
}

func testDeleteMany(t *testing.T, store domain.ActivityRepository) {
	ctx := context.Background()

	var records []domain.ActivityRecord
	for i, podcast := range []string{"podcast-1", "podcast-2", "podcast-3"} {
		rec, _, err := store.Upsert(ctx, record("user-1", domain.ActivityViewPodcast, podcast, base.Add(time.Duration(i)*time.Minute)))
		require.NoError(t, err)
		records = append(records, rec)
	}
	keep, _, err := store.Upsert(ctx, record("user-1", domain.ActivityLikePodcast, "podcast-1", base))
	require.NoError(t, err)

	require.NoError(t, store.DeleteMany(ctx, records))

	left, err := store.ListByUserAndType(ctx, "user-1", domain.ActivityViewPodcast)
	require.NoError(t, err)
	require.Empty(t, left)

	got, err := store.Get(ctx, keep.ID)
	require.NoError(t, err)
	require.NotNil(t, got)

	require.NoError(t, store.DeleteMany(ctx, nil))
}

func testConcurrentUpsert(t *testing.T, store domain.ActivityRepository) {
	ctx := context.Background()
	const writers = 16

	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, err := store.Upsert(ctx, record("user-1", domain.ActivityViewPodcast, "podcast-1", base.Add(time.Duration(i)*time.Second)))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	all, err := store.ListByUserAndType(ctx, "user-1", domain.ActivityViewPodcast)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.True(t, all[0].Timestamp.Equal(base.Add((writers-1)*time.Second)))
}
