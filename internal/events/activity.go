// Package events defines the event payloads exchanged over Kafka.
package events

import "time"

const (
	// TypeActivityRecorded is emitted after an activity is inserted or refreshed.
	TypeActivityRecorded = "activity.recorded"
	// TypeActivityRemoved is emitted after an activity is deleted.
	TypeActivityRemoved = "activity.removed"
	// TypeActivityIntent is consumed from upstream services that observed a user action.
	TypeActivityIntent = "activity.intent"

	// TopicActivityEvents carries recorded and removed events, keyed by user.
	TopicActivityEvents = "user_activity_events"
	// TopicActivityIntents carries intents produced by the podcast services.
	TopicActivityIntents = "user_activity_intents"
)

// ActivityRecorded represents the message emitted when an activity is stored.
type ActivityRecorded struct {
	ActivityID   string    `json:"activity_id"`
	UserID       string    `json:"user_id"`
	ActivityType string    `json:"activity_type"`
	PodcastID    string    `json:"podcast_id,omitempty"`
	CommentID    string    `json:"comment_id,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
	Created      bool      `json:"created"`
}

// ActivityRemoved represents the message emitted when an activity is deleted.
type ActivityRemoved struct {
	ActivityID   string    `json:"activity_id"`
	UserID       string    `json:"user_id"`
	ActivityType string    `json:"activity_type"`
	PodcastID    string    `json:"podcast_id,omitempty"`
	RemovedAt    time.Time `json:"removed_at"`
}

// ActivityIntent asks the service to record an activity on behalf of a user.
type ActivityIntent struct {
	UserID       string `json:"user_id"`
	ActivityType string `json:"activity_type"`
	PodcastID    string `json:"podcast_id,omitempty"`
	CommentID    string `json:"comment_id,omitempty"`
}
