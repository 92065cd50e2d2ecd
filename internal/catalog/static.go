package catalog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"example.com/useractivity/internal/domain"
)

// StaticResolver serves targets from an in-memory catalog. It backs local
// development and tests.
type StaticResolver struct {
	mu       sync.RWMutex
	podcasts map[string]domain.PodcastSummary
	comments map[string]domain.CommentSummary
	open     bool
}

// NewStaticResolver returns an empty catalog that rejects unknown identifiers.
func NewStaticResolver() *StaticResolver {
	return &StaticResolver{
		podcasts: make(map[string]domain.PodcastSummary),
		comments: make(map[string]domain.CommentSummary),
	}
}

// NewOpenResolver returns a catalog that accepts any identifier. Ids that were never
// added resolve without a summary, so pages show them with no podcast view.
func NewOpenResolver() *StaticResolver {
	r := NewStaticResolver()
	r.open = true
	return r
}

// AddPodcast registers or replaces a podcast.
func (r *StaticResolver) AddPodcast(p domain.PodcastSummary) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.podcasts[p.ID] = p
}

// AddComment registers or replaces a comment.
func (r *StaticResolver) AddComment(c domain.CommentSummary) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.comments[c.ID] = c
}

// RemovePodcast drops a podcast, simulating deletion upstream.
func (r *StaticResolver) RemovePodcast(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.podcasts, id)
}

// ResolvePodcast implements domain.TargetResolver.
func (r *StaticResolver) ResolvePodcast(ctx context.Context, podcastID string) (*domain.PodcastSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.podcasts[podcastID]
	if !ok {
		if r.open {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: podcast %s", domain.ErrTargetNotFound, podcastID)
	}
	return &p, nil
}

// ResolveComment implements domain.TargetResolver.
func (r *StaticResolver) ResolveComment(ctx context.Context, commentID string) (*domain.CommentSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.comments[commentID]
	if !ok {
		if r.open {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: comment %s", domain.ErrTargetNotFound, commentID)
	}
	return &c, nil
}

// NewResolver returns an HTTP resolver for baseURL. Without a base URL it returns an
// open resolver when open is set, and otherwise an empty catalog that rejects every id.
func NewResolver(baseURL string, timeout time.Duration, open bool) domain.TargetResolver {
	switch {
	case baseURL != "":
		return NewHTTPResolver(baseURL, timeout)
	case open:
		return NewOpenResolver()
	default:
		return NewStaticResolver()
	}
}
