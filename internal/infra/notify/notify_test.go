package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rentalhub/internal/app/policies"
	"rentalhub/internal/infra/storage/memory"
)

func TestOutboxNotifierStoresRequest(t *testing.T) {
	at := time.Date(2026, 9, 1, 7, 0, 0, 0, time.UTC)
	box := memory.NewOutbox()
	n := OutboxNotifier{Outbox: box, Now: func() time.Time { return at }}

	err := n.Notify(context.Background(), "host", "c1", policies.MessageSummary{MessageID: "m1", SenderID: "guest", Preview: "door code?"})
	require.NoError(t, err)

	records := box.Drain()
	require.Len(t, records, 1)
	assert.Equal(t, "chat.notification_requested", records[0].Name)
	assert.Equal(t, "host", records[0].Aggregate)
	assert.Equal(t, at, records[0].OccurredAt)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(records[0].Payload, &payload))
	assert.Equal(t, "door code?", payload["Summary"])
	assert.Equal(t, "c1", payload["ConversationID"])
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	n := LogNotifier{Logger: slog.New(slog.NewJSONHandler(&buf, nil))}
	require.NoError(t, n.Notify(context.Background(), "host", "c1", policies.MessageSummary{MessageID: "m1"}))
	assert.Contains(t, buf.String(), `"recipient_id":"host"`)

	assert.NoError(t, LogNotifier{}.Notify(context.Background(), "host", "c1", policies.MessageSummary{}))
}
