package domain

import (
	"fmt"
	"strings"
	"time"
)

// ActivityType enumerates the kinds of user actions the service tracks.
type ActivityType string

const (
	ActivityViewPodcast    ActivityType = "VIEW_PODCAST"
	ActivityLikePodcast    ActivityType = "LIKE_PODCAST"
	ActivityCommentPodcast ActivityType = "COMMENT_PODCAST"
	ActivityLikeComment    ActivityType = "LIKE_COMMENT"
)

var knownActivityTypes = map[ActivityType]struct{}{
	ActivityViewPodcast:    {},
	ActivityLikePodcast:    {},
	ActivityCommentPodcast: {},
	ActivityLikeComment:    {},
}

// ParseActivityType normalises raw input ("view_podcast", "VIEW-PODCAST") into a known ActivityType.
func ParseActivityType(raw string) (ActivityType, error) {
	normalized := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(raw), "-", "_"))
	t := ActivityType(normalized)
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownActivityType, raw)
	}
	return t, nil
}

// Valid reports whether t is part of the closed enumeration.
func (t ActivityType) Valid() bool {
	_, ok := knownActivityTypes[t]
	return ok
}

func (t ActivityType) String() string { return string(t) }

// ActivityRecord is the persisted unit of user activity. At most one record exists per DedupKey.
type ActivityRecord struct {
	ID        string
	UserID    string
	Type      ActivityType
	PodcastID string // empty when the activity has no podcast target
	CommentID string // empty when the activity has no comment target
	Timestamp time.Time
}

// Key returns the deduplication key of the record.
func (r ActivityRecord) Key() DedupKey {
	return DedupKey{UserID: r.UserID, Type: r.Type, PodcastID: r.PodcastID}
}

// DedupKey identifies the single live record for a (user, type, podcast) triple.
// An empty PodcastID is the absent target and is a valid key component.
type DedupKey struct {
	UserID    string
	Type      ActivityType
	PodcastID string
}

func (k DedupKey) String() string {
	return k.UserID + "|" + string(k.Type) + "|" + k.PodcastID
}

// PodcastSummary is the denormalised podcast view attached to timeline entries.
type PodcastSummary struct {
	ID            string
	Title         string
	Content       string
	ThumbnailURL  string
	VideoURL      string
	Views         int64
	TotalLikes    int64
	TotalComments int64
	Username      string
	CreatedDay    time.Time
	LastEdited    time.Time
	Active        bool
}

// CommentSummary is the minimal view of a resolved comment target.
type CommentSummary struct {
	ID        string
	PodcastID string
	Content   string
}

// ActivityView is a timeline entry enriched with its resolved target.
type ActivityView struct {
	ID        string
	Type      ActivityType
	Timestamp time.Time
	CommentID string
	Podcast   *PodcastSummary // nil when the activity has no podcast or it no longer resolves
}

// Page is one calendar day of a user's activity.
type Page struct {
	Content       []ActivityView
	CurrentPage   int
	TotalPages    int
	TotalElements int
	Day           string // YYYY-MM-DD in the reference location, empty for empty pages
}
