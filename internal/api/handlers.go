// Package api exposes HTTP handlers for the activity service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"example.com/useractivity/internal/auth"
	"example.com/useractivity/internal/domain"
)

// statusClientClosedRequest is the de facto status for requests the client abandoned.
const statusClientClosedRequest = 499

// Handler coordinates HTTP requests with the domain service.
type Handler struct {
	service *domain.Service
	log     zerolog.Logger
}

// NewHandler builds a Handler.
func NewHandler(service *domain.Service, log zerolog.Logger) *Handler {
	return &Handler{service: service, log: log}
}

// Routes wires endpoints to a chi router. Authentication is applied by the caller.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(h.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", healthz)
	r.Route("/v1/activities", func(r chi.Router) {
		r.Post("/", h.recordActivity)
		r.Get("/{type}/days", h.getActivityPage)
		r.Delete("/{type}/{activityID}", h.removeActivity)
		r.Delete("/{type}", h.removeAllActivities)
	})
	return r
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		h.log.Info().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

func (h *Handler) recordActivity(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireScope(w, r, auth.ScopeActivitiesWrite)
	if !ok {
		return
	}

	var req RecordActivityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	activityType, err := domain.ParseActivityType(req.ActivityType)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	record, created, err := h.service.RecordActivity(r.Context(), domain.RecordActivityInput{
		UserID:    claims.UserID(),
		Type:      activityType,
		PodcastID: req.PodcastID,
		CommentID: req.CommentID,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, RecordActivityResponse{
		ActivityID:   record.ID,
		ActivityType: string(record.Type),
		Timestamp:    record.Timestamp,
		Created:      created,
	})
}

func (h *Handler) getActivityPage(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireScope(w, r, auth.ScopeActivitiesRead)
	if !ok {
		return
	}

	activityType, err := domain.ParseActivityType(chi.URLParam(r, "type"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	pageIndex := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("page")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation_failed", "page must be an integer")
			return
		}
		pageIndex = parsed
	}

	page, err := h.service.GetActivityPage(r.Context(), claims.UserID(), activityType, pageIndex)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, NewPageResponse(page))
}

func (h *Handler) removeActivity(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireScope(w, r, auth.ScopeActivitiesWrite)
	if !ok {
		return
	}

	activityType, err := domain.ParseActivityType(chi.URLParam(r, "type"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	if err := h.service.RemoveOwnedActivity(r.Context(), claims.UserID(), chi.URLParam(r, "activityID"), activityType); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) removeAllActivities(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireScope(w, r, auth.ScopeActivitiesWrite)
	if !ok {
		return
	}

	activityType, err := domain.ParseActivityType(chi.URLParam(r, "type"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	removed, err := h.service.RemoveAllActivitiesOfType(r.Context(), claims.UserID(), activityType)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.log.Debug().Str("user_id", claims.UserID()).Str("activity_type", string(activityType)).Int("removed", removed).Msg("activities pruned")
	w.WriteHeader(http.StatusNoContent)
}

// requireScope resolves the caller and checks the scope.
func requireScope(w http.ResponseWriter, r *http.Request, scope string) (*auth.Claims, bool) {
	claims, ok := auth.FromContext(r.Context())
	if !ok || claims.UserID() == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return nil, false
	}
	if claims.Allows(scope) {
		return claims, true
	}
	writeError(w, http.StatusForbidden, "forbidden", "scope "+scope+" required")
	return nil, false
}

func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrTargetNotFound):
		writeError(w, http.StatusNotFound, "target_not_found", err.Error())
	case errors.Is(err, domain.ErrPageOutOfRange):
		writeError(w, http.StatusBadRequest, "page_out_of_range", err.Error())
	case errors.Is(err, domain.ErrUnknownActivityType):
		writeError(w, http.StatusBadRequest, "unknown_activity_type", err.Error())
	case errors.Is(err, domain.ErrInvalidActivity):
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
	case errors.Is(err, context.Canceled):
		h.log.Debug().Err(err).Str("request_id", middleware.GetReqID(r.Context())).Msg("request cancelled by client")
		writeError(w, statusClientClosedRequest, "request_cancelled", "request cancelled")
	case errors.Is(err, context.DeadlineExceeded):
		h.log.Debug().Err(err).Str("request_id", middleware.GetReqID(r.Context())).Msg("request deadline exceeded")
		writeError(w, http.StatusServiceUnavailable, "timeout", "request timed out")
	default:
		h.log.Error().Stack().Err(err).
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("path", r.URL.Path).
			Msg("request failed")
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
	}
}

// RecordActivityRequest is the payload for POST /v1/activities.
type RecordActivityRequest struct {
	ActivityType string `json:"activity_type"`
	PodcastID    string `json:"podcast_id,omitempty"`
	CommentID    string `json:"comment_id,omitempty"`
}

// Validate ensures request correctness.
func (r RecordActivityRequest) Validate() error {
	if strings.TrimSpace(r.ActivityType) == "" {
		return errors.New("activity_type is required")
	}
	return nil
}

// RecordActivityResponse describes the response body for record.
type RecordActivityResponse struct {
	ActivityID   string    `json:"activity_id"`
	ActivityType string    `json:"activity_type"`
	Timestamp    time.Time `json:"timestamp"`
	Created      bool      `json:"created"`
}

// PodcastView exposes the podcast an activity refers to.
type PodcastView struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Content       string    `json:"content,omitempty"`
	ThumbnailURL  string    `json:"thumbnail_url,omitempty"`
	VideoURL      string    `json:"video_url,omitempty"`
	Views         int64     `json:"views"`
	TotalLikes    int64     `json:"total_likes"`
	TotalComments int64     `json:"total_comments"`
	Username      string    `json:"username,omitempty"`
	CreatedDay    time.Time `json:"created_day,omitzero"`
	LastEdited    time.Time `json:"last_edited,omitzero"`
	Active        bool      `json:"active"`
}

// ActivityView is one timeline entry.
type ActivityView struct {
	ActivityID   string       `json:"activity_id"`
	ActivityType string       `json:"activity_type"`
	Timestamp    time.Time    `json:"timestamp"`
	CommentID    string       `json:"comment_id,omitempty"`
	Podcast      *PodcastView `json:"podcast,omitempty"`
}

// PageResponse packages one day of activity.
type PageResponse struct {
	Content       []ActivityView `json:"content"`
	CurrentPage   int            `json:"current_page"`
	TotalPages    int            `json:"total_pages"`
	TotalElements int            `json:"total_elements"`
	Day           string         `json:"day,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// NewPageResponse maps a domain page onto the JSON envelope served by the API.
func NewPageResponse(page *domain.Page) PageResponse {
	items := make([]ActivityView, 0, len(page.Content))
	for _, view := range page.Content {
		item := ActivityView{
			ActivityID:   view.ID,
			ActivityType: string(view.Type),
			Timestamp:    view.Timestamp,
			CommentID:    view.CommentID,
		}
		if p := view.Podcast; p != nil {
			item.Podcast = &PodcastView{
				ID:            p.ID,
				Title:         p.Title,
				Content:       p.Content,
				ThumbnailURL:  p.ThumbnailURL,
				VideoURL:      p.VideoURL,
				Views:         p.Views,
				TotalLikes:    p.TotalLikes,
				TotalComments: p.TotalComments,
				Username:      p.Username,
				CreatedDay:    p.CreatedDay,
				LastEdited:    p.LastEdited,
				Active:        p.Active,
			}
		}
		items = append(items, item)
	}
	return PageResponse{
		Content:       items,
		CurrentPage:   page.CurrentPage,
		TotalPages:    page.TotalPages,
		TotalElements: page.TotalElements,
		Day:           page.Day,
	}
}
