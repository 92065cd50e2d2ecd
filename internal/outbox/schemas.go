package outbox

const activityRecordedSchema = `{
  "type": "object",
  "title": "ActivityRecorded",
  "properties": {
    "activity_id": {"type": "string"},
    "user_id": {"type": "string"},
    "activity_type": {"type": "string", "enum": ["VIEW_PODCAST", "LIKE_PODCAST", "COMMENT_PODCAST", "LIKE_COMMENT"]},
    "podcast_id": {"type": "string"},
    "comment_id": {"type": "string"},
    "occurred_at": {"type": "string", "format": "date-time"},
    "created": {"type": "boolean"}
  },
  "required": ["activity_id", "user_id", "activity_type", "occurred_at", "created"],
  "additionalProperties": false
}`

const activityRemovedSchema = `{
  "type": "object",
  "title": "ActivityRemoved",
  "properties": {
    "activity_id": {"type": "string"},
    "user_id": {"type": "string"},
    "activity_type": {"type": "string", "enum": ["VIEW_PODCAST", "LIKE_PODCAST", "COMMENT_PODCAST", "LIKE_COMMENT"]},
    "podcast_id": {"type": "string"},
    "removed_at": {"type": "string", "format": "date-time"}
  },
  "required": ["activity_id", "user_id", "activity_type", "removed_at"],
  "additionalProperties": false
}`
