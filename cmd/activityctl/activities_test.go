package main

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/useractivity/internal/api"
	"example.com/useractivity/internal/catalog"
	"example.com/useractivity/internal/domain"
	"example.com/useractivity/internal/persistence/memory"
)

func TestActivityCommands(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	resolver := catalog.NewStaticResolver()
	resolver.AddPodcast(domain.PodcastSummary{ID: "podcast-1", Title: "Episode one"})

	now := time.Date(2026, time.May, 2, 10, 0, 0, 0, time.UTC)
	service := domain.NewService(store, resolver, domain.WithClock(func() time.Time { return now }))

	rec, _, err := service.RecordActivity(ctx, domain.RecordActivityInput{
		UserID:    "user-1",
		Type:      domain.ActivityLikePodcast,
		PodcastID: "podcast-1",
	})
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, runPage(ctx, service, "user-1", "like_podcast", 0, &out))

	var page api.PageResponse
	require.NoError(t, json.Unmarshal(out.Bytes(), &page))
	require.Len(t, page.Content, 1)
	require.Equal(t, "2026-05-02", page.Day)
	require.Equal(t, 1, page.TotalPages)
	require.Equal(t, "Episode one", page.Content[0].Podcast.Title)
	require.Contains(t, out.String(), `"current_page": 0`)
	require.Contains(t, out.String(), `"total_elements": 1`)

	err = runPage(ctx, service, "user-1", "like_podcast", 1, &out)
	require.ErrorIs(t, err, domain.ErrPageOutOfRange)

	err = runPage(ctx, service, "user-1", "bookmark", 0, &out)
	require.ErrorIs(t, err, domain.ErrUnknownActivityType)

	out.Reset()
	require.NoError(t, runPrune(ctx, service, "someone-else", "LIKE_PODCAST", rec.ID, &out))
	require.Equal(t, 1, store.Len())

	require.NoError(t, runPrune(ctx, service, "user-1", "LIKE_PODCAST", rec.ID, &out))
	require.Equal(t, 0, store.Len())

	out.Reset()
	require.NoError(t, runPruneAll(ctx, service, "user-1", "LIKE_PODCAST", &out))
	require.Contains(t, out.String(), "removed 0")
}
