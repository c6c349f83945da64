package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	appoutbox "rentalhub/internal/app/outbox"
	"rentalhub/internal/domain/messaging"
	"rentalhub/internal/domain/shared/events"
	"rentalhub/internal/infra/storage/memory"
)

type published struct {
	topic   string
	key     string
	payload []byte
	headers map[string]string
}

type fakeProducer struct {
	fail error
	sent []published
}

func (p *fakeProducer) Publish(_ context.Context, topic, key string, payload []byte, headers map[string]string) error {
	if p.fail != nil {
		return p.fail
	}
	p.sent = append(p.sent, published{topic: topic, key: key, payload: payload, headers: headers})
	return nil
}

func seed(t *testing.T, box *memory.Outbox, evs ...events.DomainEvent) {
	t.Helper()
	encoder := appoutbox.JSONEventEncoder{}
	require.NoError(t, appoutbox.RecordDomainEvents(context.Background(), box, encoder, evs))
}

func TestWorkerPublishesCloudEvents(t *testing.T) {
	at := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	box := memory.NewOutbox()
	seed(t, box,
		messaging.MessageSent{MessageID: "m1", ConversationID: "c1", SenderID: "guest", Recipients: []string{"host"}, Preview: "hi", At: at},
		messaging.NotificationRequested{ConversationID: "c1", RecipientID: "host", MessageID: "m1", SenderID: "guest", Summary: "hi", At: at},
	)
	producer := &fakeProducer{}
	w := &Worker{Source: box, Producer: producer, TopicPrefix: "prod.", ID: "w1"}

	n, err := w.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Len(t, producer.sent, 2)

	first := producer.sent[0]
	assert.Equal(t, "prod.conversation.events.v1", first.topic)
	assert.Equal(t, "c1", first.key)
	assert.Equal(t, "application/cloudevents+json", first.headers["content-type"])
	assert.Equal(t, "conversation.message_sent.v1", first.headers["ce_type"])

	var evt map[string]any
	require.NoError(t, json.Unmarshal(first.payload, &evt))
	assert.Equal(t, "1.0", evt["specversion"])
	assert.Equal(t, "app://rentalhub", evt["source"])
	assert.Equal(t, "c1", evt["subject"])
	data, ok := evt["data"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "guest", data["SenderID"])

	assert.Equal(t, "prod.chat.events.v1", producer.sent[1].topic)
	assert.Equal(t, "host", producer.sent[1].key)

	rest, err := box.Claim(context.Background(), "w1")
	require.NoError(t, err)
	assert.Nil(t, rest)
}

func TestWorkerBacksOffOnPublishFailure(t *testing.T) {
	at := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	box := memory.NewOutbox()
	seed(t, box, messaging.ConversationStarted{ConversationID: "c1", Participants: []string{"a", "b"}, At: at})

	producer := &fakeProducer{fail: errors.New("broker unavailable")}
	now := time.Now()
	w := &Worker{Source: box, Producer: producer, Backoff: []time.Duration{time.Hour}, Now: func() time.Time { return now }}

	n, err := w.Drain(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	again, err := box.Claim(context.Background(), "w2")
	require.NoError(t, err)
	assert.Nil(t, again, "record is parked until the backoff elapses")
}

func TestWorkerRequiresDependencies(t *testing.T) {
	err := (&Worker{}).Run(context.Background())
	assert.ErrorIs(t, err, ErrWorkerNotConfigured)
}

func TestNextRetryUsesLastBackoffStep(t *testing.T) {
	now := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	w := &Worker{Backoff: []time.Duration{time.Second, 5 * time.Second}, Now: func() time.Time { return now }}
	assert.Equal(t, now.Add(time.Second), w.nextRetry(0))
	assert.Equal(t, now.Add(5*time.Second), w.nextRetry(1))
	assert.Equal(t, now.Add(5*time.Second), w.nextRetry(7))

	w.Backoff = nil
	assert.Equal(t, now.Add(5*time.Second), w.nextRetry(0))
}

func TestClaimFilterTakesOverExpiredLeases(t *testing.T) {
	now := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	filter := claimFilter(now, time.Minute)
	branches, ok := filter["$or"].(bson.A)
	require.True(t, ok)
	require.Len(t, branches, 2)
	assert.Equal(t, bson.M{"state": stateClaimed, "claimed_at": bson.M{"$lte": now.Add(-time.Minute)}}, branches[1])
}
