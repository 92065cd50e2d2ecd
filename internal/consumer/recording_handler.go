package consumer

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rs/zerolog"

	"example.com/useractivity/internal/domain"
	"example.com/useractivity/internal/events"
)

// Recorder is the slice of the domain service the handler needs.
type Recorder interface {
	RecordActivity(ctx context.Context, input domain.RecordActivityInput) (*domain.ActivityRecord, bool, error)
}

// RecordingHandler records activity intents consumed from Kafka.
type RecordingHandler struct {
	recorder Recorder
	logger   zerolog.Logger
}

// NewRecordingHandler constructs a handler that forwards intents to recorder.
func NewRecordingHandler(recorder Recorder, logger zerolog.Logger) *RecordingHandler {
	return &RecordingHandler{recorder: recorder, logger: logger}
}

// Handle decodes an activity intent and records it. Intents that can never be
// recorded are dropped and counted; storage failures are returned for retry.
func (h *RecordingHandler) Handle(ctx context.Context, msg Message) error {
	if msg.EventType != "" && msg.EventType != events.TypeActivityIntent {
		h.logger.Debug().Str("event_type", msg.EventType).Msg("ignoring unrelated event")
		return nil
	}

	var intent events.ActivityIntent
	if err := json.Unmarshal(msg.Payload, &intent); err != nil {
		h.reject(msg, "malformed", err)
		return nil
	}

	activityType, err := domain.ParseActivityType(intent.ActivityType)
	if err != nil {
		h.reject(msg, "unknown_type", err)
		return nil
	}

	record, created, err := h.recorder.RecordActivity(ctx, domain.RecordActivityInput{
		UserID:    intent.UserID,
		Type:      activityType,
		PodcastID: intent.PodcastID,
		CommentID: intent.CommentID,
	})
	switch {
	case err == nil:
		h.logger.Debug().
			Str("activity_id", record.ID).
			Str("user_id", record.UserID).
			Bool("created", created).
			Msg("intent recorded")
		return nil
	case errors.Is(err, domain.ErrTargetNotFound):
		h.reject(msg, "target_not_found", err)
		return nil
	case domain.IsClientError(err):
		h.reject(msg, "invalid", err)
		return nil
	default:
		return err
	}
}

func (h *RecordingHandler) reject(msg Message, reason string, err error) {
	recordRejectedIntent(reason)
	h.logger.Warn().Err(err).
		Str("reason", reason).
		Str("topic", msg.Topic).
		Int64("offset", msg.Offset).
		Msg("dropping activity intent")
}
