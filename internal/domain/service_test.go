package domain_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/useractivity/internal/catalog"
	"example.com/useractivity/internal/domain"
	"example.com/useractivity/internal/persistence/memory"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

type fixture struct {
	store    *memory.Store
	catalog  *catalog.StaticResolver
	clock    *clock
	service  *domain.Service
	location *time.Location
}

func newFixture(t *testing.T, opts ...domain.Option) *fixture {
	t.Helper()
	f := &fixture{
		store:    memory.NewStore(),
		catalog:  catalog.NewStaticResolver(),
		clock:    &clock{now: time.Date(2026, time.March, 14, 9, 0, 0, 0, time.UTC)},
		location: time.UTC,
	}
	for _, id := range []string{"p1", "p2", "p3", "P", "Q"} {
		f.catalog.AddPodcast(domain.PodcastSummary{ID: id, Title: "Podcast " + id})
	}
	f.catalog.AddComment(domain.CommentSummary{ID: "c1", PodcastID: "p1"})
	f.catalog.AddComment(domain.CommentSummary{ID: "c2", PodcastID: "p1"})

	opts = append([]domain.Option{domain.WithClock(f.clock.Now)}, opts...)
	f.service = domain.NewService(f.store, f.catalog, opts...)
	return f
}

func (f *fixture) record(t *testing.T, userID string, activityType domain.ActivityType, podcastID string, at time.Time) *domain.ActivityRecord {
	t.Helper()
	f.clock.Set(at)
	rec, _, err := f.service.RecordActivity(context.Background(), domain.RecordActivityInput{
		UserID:    userID,
		Type:      activityType,
		PodcastID: podcastID,
	})
	require.NoError(t, err)
	return rec
}

func day(d, h, m int) time.Time {
	return time.Date(2026, time.March, d, h, m, 0, 0, time.UTC)
}

func TestRecordActivityDeduplicates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var first *domain.ActivityRecord
	for i := 0; i < 5; i++ {
		f.clock.Set(day(14, 9, i))
		rec, created, err := f.service.RecordActivity(ctx, domain.RecordActivityInput{
			UserID:    "user-1",
			Type:      domain.ActivityViewPodcast,
			PodcastID: "p1",
		})
		require.NoError(t, err)
		if i == 0 {
			require.True(t, created)
			first = rec
			continue
		}
		require.False(t, created)
		require.Equal(t, first.ID, rec.ID)
	}

	require.Equal(t, 1, f.store.Len())
	found, err := f.service.FindActivity(ctx, domain.DedupKey{UserID: "user-1", Type: domain.ActivityViewPodcast, PodcastID: "p1"})
	require.NoError(t, err)
	require.NotNil(t, found)
	require.True(t, found.Timestamp.Equal(day(14, 9, 4)), "timestamp is the last call's time")
}

func TestRecordActivityDistinctTargets(t *testing.T) {
	f := newFixture(t)

	a := f.record(t, "user-1", domain.ActivityViewPodcast, "p1", day(14, 9, 0))
	b := f.record(t, "user-1", domain.ActivityViewPodcast, "p2", day(14, 9, 1))
	c := f.record(t, "user-1", domain.ActivityLikePodcast, "p1", day(14, 9, 2))
	d := f.record(t, "user-2", domain.ActivityViewPodcast, "p1", day(14, 9, 3))

	ids := map[string]struct{}{a.ID: {}, b.ID: {}, c.ID: {}, d.ID: {}}
	require.Len(t, ids, 4)
	require.Equal(t, 4, f.store.Len())
}

func TestRecordActivityCommentKeepsPodcastKeyedDedup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, created, err := f.service.RecordActivity(ctx, domain.RecordActivityInput{
		UserID: "user-1", Type: domain.ActivityLikeComment, PodcastID: "p1", CommentID: "c1",
	})
	require.NoError(t, err)
	require.True(t, created)

	f.clock.Set(day(14, 10, 0))
	second, created, err := f.service.RecordActivity(ctx, domain.RecordActivityInput{
		UserID: "user-1", Type: domain.ActivityLikeComment, PodcastID: "p1", CommentID: "c2",
	})
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, "c1", second.CommentID, "a refresh only moves the timestamp")
}

func TestRecordActivityWithoutTargets(t *testing.T) {
	f := newFixture(t)

	a := f.record(t, "user-1", domain.ActivityViewPodcast, "", day(14, 9, 0))
	b := f.record(t, "user-1", domain.ActivityViewPodcast, "", day(14, 9, 5))
	require.Equal(t, a.ID, b.ID)
	require.Equal(t, 1, f.store.Len())
}

func TestRecordActivityTargetNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _, err := f.service.RecordActivity(ctx, domain.RecordActivityInput{
		UserID: "user-1", Type: domain.ActivityViewPodcast, PodcastID: "missing",
	})
	require.ErrorIs(t, err, domain.ErrTargetNotFound)

	_, _, err = f.service.RecordActivity(ctx, domain.RecordActivityInput{
		UserID: "user-1", Type: domain.ActivityLikeComment, PodcastID: "p1", CommentID: "missing",
	})
	require.ErrorIs(t, err, domain.ErrTargetNotFound)
	require.True(t, domain.IsClientError(err))

	require.Equal(t, 0, f.store.Len(), "a failed resolution never writes")
}

func TestRecordActivityValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _, err := f.service.RecordActivity(ctx, domain.RecordActivityInput{UserID: " ", Type: domain.ActivityViewPodcast})
	require.ErrorIs(t, err, domain.ErrInvalidActivity)

	_, _, err = f.service.RecordActivity(ctx, domain.RecordActivityInput{UserID: "user-1", Type: "SHARE_PODCAST"})
	require.ErrorIs(t, err, domain.ErrUnknownActivityType)
	require.Equal(t, 0, f.store.Len())
}

func TestRecordActivityCancelledContextLeavesStoreUntouched(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := f.service.RecordActivity(ctx, domain.RecordActivityInput{
		UserID: "user-1", Type: domain.ActivityViewPodcast,
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 0, f.store.Len())
}

func TestRecordActivityConcurrentSameKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	created := 0
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := f.service.RecordActivity(ctx, domain.RecordActivityInput{
				UserID: "user-1", Type: domain.ActivityViewPodcast, PodcastID: "p1",
			})
			require.NoError(t, err)
			if ok {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 1, created)
	require.Equal(t, 1, f.store.Len())
}

func TestGetActivityPageDayOrdering(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	d3 := f.record(t, "user-1", domain.ActivityViewPodcast, "p3", day(12, 8, 0))
	d1 := f.record(t, "user-1", domain.ActivityViewPodcast, "p1", day(14, 8, 0))
	d2 := f.record(t, "user-1", domain.ActivityViewPodcast, "p2", day(13, 8, 0))

	for i, want := range []*domain.ActivityRecord{d1, d2, d3} {
		page, err := f.service.GetActivityPage(ctx, "user-1", domain.ActivityViewPodcast, i)
		require.NoError(t, err)
		require.Len(t, page.Content, 1)
		require.Equal(t, want.ID, page.Content[0].ID)
		require.Equal(t, i, page.CurrentPage)
		require.Equal(t, 3, page.TotalPages)
		require.Equal(t, 3, page.TotalElements)
	}

	_, err := f.service.GetActivityPage(ctx, "user-1", domain.ActivityViewPodcast, 3)
	require.ErrorIs(t, err, domain.ErrPageOutOfRange)

	_, err = f.service.GetActivityPage(ctx, "user-1", domain.ActivityViewPodcast, -1)
	require.ErrorIs(t, err, domain.ErrPageOutOfRange)
}

func TestGetActivityPageWithinDayOrdering(t *testing.T) {
	f := newFixture(t)

	early := f.record(t, "user-1", domain.ActivityLikePodcast, "p1", day(14, 8, 0))
	late := f.record(t, "user-1", domain.ActivityLikePodcast, "p2", day(14, 17, 30))

	page, err := f.service.GetActivityPage(context.Background(), "user-1", domain.ActivityLikePodcast, 0)
	require.NoError(t, err)
	require.Len(t, page.Content, 2)
	require.Equal(t, late.ID, page.Content[0].ID)
	require.Equal(t, early.ID, page.Content[1].ID)
	require.Equal(t, "2026-03-14", page.Day)
	require.Equal(t, 1, page.TotalPages)
}

func TestGetActivityPageEmpty(t *testing.T) {
	f := newFixture(t)

	page, err := f.service.GetActivityPage(context.Background(), "user-1", domain.ActivityViewPodcast, 0)
	require.NoError(t, err)
	require.Empty(t, page.Content)
	require.NotNil(t, page.Content)
	require.Zero(t, page.TotalPages)
	require.Zero(t, page.TotalElements)
	require.Empty(t, page.Day)
}

func TestGetActivityPageScenario(t *testing.T) {
	f := newFixture(t)

	p := f.record(t, "U", domain.ActivityViewPodcast, "P", day(14, 9, 0))
	again := f.record(t, "U", domain.ActivityViewPodcast, "P", day(14, 9, 5))
	require.Equal(t, p.ID, again.ID)
	q := f.record(t, "U", domain.ActivityViewPodcast, "Q", day(13, 10, 0))

	page, err := f.service.GetActivityPage(context.Background(), "U", domain.ActivityViewPodcast, 0)
	require.NoError(t, err)
	require.Len(t, page.Content, 1)
	require.Equal(t, p.ID, page.Content[0].ID)
	require.True(t, page.Content[0].Timestamp.Equal(day(14, 9, 5)))
	require.Equal(t, 2, page.TotalPages)
	require.Equal(t, 2, page.TotalElements)
	require.NotNil(t, page.Content[0].Podcast)
	require.Equal(t, "Podcast P", page.Content[0].Podcast.Title)

	page, err = f.service.GetActivityPage(context.Background(), "U", domain.ActivityViewPodcast, 1)
	require.NoError(t, err)
	require.Len(t, page.Content, 1)
	require.Equal(t, q.ID, page.Content[0].ID)
}

func TestGetActivityPageBucketsInReferenceLocation(t *testing.T) {
	tokyo := time.FixedZone("UTC+9", 9*60*60)
	f := newFixture(t, domain.WithLocation(tokyo))

	// 23:30 UTC on the 13th is already the 14th in the reference zone.
	late := f.record(t, "user-1", domain.ActivityViewPodcast, "p1", day(13, 23, 30))
	morning := f.record(t, "user-1", domain.ActivityViewPodcast, "p2", day(14, 1, 0))

	page, err := f.service.GetActivityPage(context.Background(), "user-1", domain.ActivityViewPodcast, 0)
	require.NoError(t, err)
	require.Equal(t, 1, page.TotalPages)
	require.Equal(t, "2026-03-14", page.Day)
	require.Equal(t, []string{morning.ID, late.ID}, []string{page.Content[0].ID, page.Content[1].ID})
}

func TestGetActivityPageVanishedTarget(t *testing.T) {
	f := newFixture(t)
	rec := f.record(t, "user-1", domain.ActivityViewPodcast, "p1", day(14, 9, 0))
	f.catalog.RemovePodcast("p1")

	page, err := f.service.GetActivityPage(context.Background(), "user-1", domain.ActivityViewPodcast, 0)
	require.NoError(t, err)
	require.Len(t, page.Content, 1)
	require.Equal(t, rec.ID, page.Content[0].ID)
	require.Nil(t, page.Content[0].Podcast)
}

type flakyResolver struct {
	*catalog.StaticResolver
	fail bool
}

func (r *flakyResolver) ResolvePodcast(ctx context.Context, id string) (*domain.PodcastSummary, error) {
	if r.fail {
		return nil, errors.New("catalog unavailable")
	}
	return r.StaticResolver.ResolvePodcast(ctx, id)
}

func TestGetActivityPageEnrichmentFailureKeepsRecord(t *testing.T) {
	static := catalog.NewStaticResolver()
	static.AddPodcast(domain.PodcastSummary{ID: "p1"})
	resolver := &flakyResolver{StaticResolver: static}
	store := memory.NewStore()
	service := domain.NewService(store, resolver)
	ctx := context.Background()

	_, _, err := service.RecordActivity(ctx, domain.RecordActivityInput{UserID: "user-1", Type: domain.ActivityViewPodcast, PodcastID: "p1"})
	require.NoError(t, err)

	resolver.fail = true
	page, err := service.GetActivityPage(ctx, "user-1", domain.ActivityViewPodcast, 0)
	require.NoError(t, err)
	require.Len(t, page.Content, 1)
	require.Nil(t, page.Content[0].Podcast)
}

func TestGetActivityPageUnknownType(t *testing.T) {
	f := newFixture(t)
	_, err := f.service.GetActivityPage(context.Background(), "user-1", "SHARE_PODCAST", 0)
	require.ErrorIs(t, err, domain.ErrUnknownActivityType)
}

func TestRemoveActivityIdempotentAndTypeScoped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec := f.record(t, "user-1", domain.ActivityViewPodcast, "p1", day(14, 9, 0))

	require.NoError(t, f.service.RemoveActivity(ctx, "does-not-exist", domain.ActivityViewPodcast))

	require.NoError(t, f.service.RemoveActivity(ctx, rec.ID, domain.ActivityLikePodcast))
	require.Equal(t, 1, f.store.Len(), "a type mismatch is treated as not found")

	require.NoError(t, f.service.RemoveActivity(ctx, rec.ID, domain.ActivityViewPodcast))
	require.Equal(t, 0, f.store.Len())
	require.NoError(t, f.service.RemoveActivity(ctx, rec.ID, domain.ActivityViewPodcast))
}

func TestRemoveOwnedActivity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec := f.record(t, "user-1", domain.ActivityViewPodcast, "p1", day(14, 9, 0))

	require.NoError(t, f.service.RemoveOwnedActivity(ctx, "user-2", rec.ID, domain.ActivityViewPodcast))
	require.Equal(t, 1, f.store.Len())

	require.NoError(t, f.service.RemoveOwnedActivity(ctx, "user-1", rec.ID, domain.ActivityViewPodcast))
	require.Equal(t, 0, f.store.Len())
}

func TestRemoveAllActivitiesOfType(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.record(t, "user-1", domain.ActivityViewPodcast, "p1", day(14, 9, 0))
	f.record(t, "user-1", domain.ActivityViewPodcast, "p2", day(13, 9, 0))
	f.record(t, "user-1", domain.ActivityLikePodcast, "p1", day(14, 9, 0))
	f.record(t, "user-2", domain.ActivityViewPodcast, "p1", day(14, 9, 0))

	removed, err := f.service.RemoveAllActivitiesOfType(ctx, "user-1", domain.ActivityViewPodcast)
	require.NoError(t, err)
	require.Equal(t, 2, removed)
	require.Equal(t, 2, f.store.Len())

	removed, err = f.service.RemoveAllActivitiesOfType(ctx, "user-1", domain.ActivityViewPodcast)
	require.NoError(t, err)
	require.Zero(t, removed)

	page, err := f.service.GetActivityPage(ctx, "user-1", domain.ActivityViewPodcast, 0)
	require.NoError(t, err)
	require.Zero(t, page.TotalElements)
}

type failingRepo struct {
	domain.ActivityRepository
	err error
}

func (r failingRepo) Upsert(context.Context, domain.ActivityRecord) (domain.ActivityRecord, bool, error) {
	return domain.ActivityRecord{}, false, r.err
}

func (r failingRepo) ListByUserAndType(context.Context, string, domain.ActivityType) ([]domain.ActivityRecord, error) {
	return nil, r.err
}

func (r failingRepo) Get(context.Context, string) (*domain.ActivityRecord, error) {
	return nil, r.err
}

func TestStorageFailuresAreWrapped(t *testing.T) {
	driverErr := errors.New("connection reset")
	service := domain.NewService(failingRepo{err: driverErr}, catalog.NewOpenResolver())
	ctx := context.Background()

	_, _, err := service.RecordActivity(ctx, domain.RecordActivityInput{UserID: "user-1", Type: domain.ActivityViewPodcast, PodcastID: "p1"})
	require.ErrorIs(t, err, domain.ErrStorageFailure)
	require.ErrorIs(t, err, driverErr)
	var storageErr *domain.StorageError
	require.ErrorAs(t, err, &storageErr)
	require.Equal(t, "upsert", storageErr.Op)
	require.False(t, domain.IsClientError(err))

	_, err = service.GetActivityPage(ctx, "user-1", domain.ActivityViewPodcast, 0)
	require.ErrorIs(t, err, domain.ErrStorageFailure)

	err = service.RemoveActivity(ctx, "id", domain.ActivityViewPodcast)
	require.ErrorIs(t, err, domain.ErrStorageFailure)

	_, err = service.RemoveAllActivitiesOfType(ctx, "user-1", domain.ActivityViewPodcast)
	require.ErrorIs(t, err, domain.ErrStorageFailure)
}

func TestUnconfiguredCatalogRejectsUnknownTargets(t *testing.T) {
	store := memory.NewStore()
	service := domain.NewService(store, catalog.NewResolver("", time.Second, false))

	_, _, err := service.RecordActivity(context.Background(), domain.RecordActivityInput{
		UserID: "user-1", Type: domain.ActivityViewPodcast, PodcastID: "does-not-exist",
	})
	require.ErrorIs(t, err, domain.ErrTargetNotFound)
	require.Equal(t, 0, store.Len())
}

func TestOpenCatalogRecordsWithoutInventingViews(t *testing.T) {
	service := domain.NewService(memory.NewStore(), catalog.NewResolver("", time.Second, true))
	ctx := context.Background()

	_, created, err := service.RecordActivity(ctx, domain.RecordActivityInput{
		UserID: "user-1", Type: domain.ActivityViewPodcast, PodcastID: "unlisted",
	})
	require.NoError(t, err)
	require.True(t, created)

	page, err := service.GetActivityPage(ctx, "user-1", domain.ActivityViewPodcast, 0)
	require.NoError(t, err)
	require.Len(t, page.Content, 1)
	require.Nil(t, page.Content[0].Podcast)
}
