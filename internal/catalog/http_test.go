package catalog

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/useractivity/internal/domain"
)

func newCatalogServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/podcasts/podcast-1", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "podcast-1",
			"title": "Deep Dive",
			"thumbnailUrl": "https://cdn.example.com/p1.png",
			"views": 42,
			"totalLikes": 7,
			"totalComments": 3,
			"username": "host",
			"createdDay": "2026-01-02T10:00:00Z",
			"active": true
		}`))
	})
	mux.HandleFunc("/api/v1/podcasts/broken", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	})
	mux.HandleFunc("/api/v1/comments/comment-1", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"comment-1","podcastId":"podcast-1","content":"great"}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPResolverResolvesPodcast(t *testing.T) {
	srv := newCatalogServer(t)
	resolver := NewHTTPResolver(srv.URL, time.Second)

	podcast, err := resolver.ResolvePodcast(context.Background(), "podcast-1")
	require.NoError(t, err)
	require.Equal(t, "Deep Dive", podcast.Title)
	require.Equal(t, int64(42), podcast.Views)
	require.Equal(t, "host", podcast.Username)
	require.True(t, podcast.Active)
	require.True(t, podcast.CreatedDay.Equal(time.Date(2026, time.January, 2, 10, 0, 0, 0, time.UTC)))
}

func TestHTTPResolverResolvesComment(t *testing.T) {
	srv := newCatalogServer(t)
	resolver := NewHTTPResolver(srv.URL, time.Second)

	comment, err := resolver.ResolveComment(context.Background(), "comment-1")
	require.NoError(t, err)
	require.Equal(t, "podcast-1", comment.PodcastID)
}

func TestHTTPResolverMapsNotFound(t *testing.T) {
	srv := newCatalogServer(t)
	resolver := NewHTTPResolver(srv.URL, time.Second)

	_, err := resolver.ResolvePodcast(context.Background(), "missing")
	require.ErrorIs(t, err, domain.ErrTargetNotFound)

	_, err = resolver.ResolveComment(context.Background(), "missing")
	require.ErrorIs(t, err, domain.ErrTargetNotFound)
}

func TestHTTPResolverSurfacesUpstreamFailures(t *testing.T) {
	srv := newCatalogServer(t)
	resolver := NewHTTPResolver(srv.URL, time.Second)

	_, err := resolver.ResolvePodcast(context.Background(), "broken")
	require.Error(t, err)
	require.False(t, errors.Is(err, domain.ErrTargetNotFound))
	require.Contains(t, err.Error(), "502")
}

func TestStaticResolver(t *testing.T) {
	ctx := context.Background()
	resolver := NewStaticResolver()
	resolver.AddPodcast(domain.PodcastSummary{ID: "podcast-1", Title: "One"})
	resolver.AddComment(domain.CommentSummary{ID: "comment-1", PodcastID: "podcast-1"})

	p, err := resolver.ResolvePodcast(ctx, "podcast-1")
	require.NoError(t, err)
	require.Equal(t, "One", p.Title)

	_, err = resolver.ResolveComment(ctx, "comment-1")
	require.NoError(t, err)

	resolver.RemovePodcast("podcast-1")
	_, err = resolver.ResolvePodcast(ctx, "podcast-1")
	require.ErrorIs(t, err, domain.ErrTargetNotFound)

	open := NewOpenResolver()
	p, err = open.ResolvePodcast(ctx, "anything")
	require.NoError(t, err)
	require.Nil(t, p, "unknown ids resolve without an invented summary")
}

func TestNewResolverFailsClosed(t *testing.T) {
	ctx := context.Background()

	_, err := NewResolver("", time.Second, false).ResolvePodcast(ctx, "does-not-exist")
	require.ErrorIs(t, err, domain.ErrTargetNotFound)
	_, err = NewResolver("", time.Second, false).ResolveComment(ctx, "does-not-exist")
	require.ErrorIs(t, err, domain.ErrTargetNotFound)

	require.IsType(t, &StaticResolver{}, NewResolver("", time.Second, true))
	require.IsType(t, &HTTPResolver{}, NewResolver("http://catalog.local", time.Second, false))
}
