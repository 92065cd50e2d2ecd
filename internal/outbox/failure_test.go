package outbox

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"example.com/useractivity/internal/events"
)

func TestDLQReason(t *testing.T) {
	msg := Message{Topic: events.TopicActivityEvents, PartitionKey: "user-1"}

	require.Equal(t, "broker down (topic=user_activity_events user=user-1)", dlqReason("broker down", msg))

	long := dlqReason(strings.Repeat("x", 2*maxReasonLength), msg)
	require.Len(t, long, maxReasonLength)
}
