// Package catalog resolves podcast and comment identifiers against the content catalog.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"

	"example.com/useractivity/internal/domain"
)

// HTTPResolver calls the catalog service REST API.
type HTTPResolver struct {
	client *resty.Client
}

// NewHTTPResolver creates a resolver for the catalog rooted at baseURL.
func NewHTTPResolver(baseURL string, timeout time.Duration) *HTTPResolver {
	c := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Accept", "application/json").
		SetTimeout(timeout)

	return &HTTPResolver{client: c}
}

type podcastResponse struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Content       string    `json:"content"`
	ThumbnailURL  string    `json:"thumbnailUrl"`
	VideoURL      string    `json:"videoUrl"`
	Views         int64     `json:"views"`
	TotalLikes    int64     `json:"totalLikes"`
	TotalComments int64     `json:"totalComments"`
	Username      string    `json:"username"`
	CreatedDay    time.Time `json:"createdDay"`
	LastEdited    time.Time `json:"lastEdited"`
	Active        bool      `json:"active"`
}

type commentResponse struct {
	ID        string `json:"id"`
	PodcastID string `json:"podcastId"`
	Content   string `json:"content"`
}

// ResolvePodcast implements domain.TargetResolver.
func (r *HTTPResolver) ResolvePodcast(ctx context.Context, podcastID string) (*domain.PodcastSummary, error) {
	var body podcastResponse
	if err := r.get(ctx, "/api/v1/podcasts/"+url.PathEscape(podcastID), podcastID, &body); err != nil {
		return nil, err
	}
	return &domain.PodcastSummary{
		ID:            body.ID,
		Title:         body.Title,
		Content:       body.Content,
		ThumbnailURL:  body.ThumbnailURL,
		VideoURL:      body.VideoURL,
		Views:         body.Views,
		TotalLikes:    body.TotalLikes,
		TotalComments: body.TotalComments,
		Username:      body.Username,
		CreatedDay:    body.CreatedDay,
		LastEdited:    body.LastEdited,
		Active:        body.Active,
	}, nil
}

// ResolveComment implements domain.TargetResolver.
func (r *HTTPResolver) ResolveComment(ctx context.Context, commentID string) (*domain.CommentSummary, error) {
	var body commentResponse
	if err := r.get(ctx, "/api/v1/comments/"+url.PathEscape(commentID), commentID, &body); err != nil {
		return nil, err
	}
	return &domain.CommentSummary{ID: body.ID, PodcastID: body.PodcastID, Content: body.Content}, nil
}

func (r *HTTPResolver) get(ctx context.Context, path, id string, out any) error {
	resp, err := r.client.R().
		SetContext(ctx).
		Get(path)
	if err != nil {
		return fmt.Errorf("catalog request: %w", err)
	}

	switch resp.StatusCode() {
	case http.StatusOK:
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrTargetNotFound, id)
	default:
		return fmt.Errorf("catalog status %d: %s", resp.StatusCode(), resp.String())
	}

	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("decode catalog response: %w", err)
	}
	return nil
}
