package mongo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"rentalhub/internal/domain/messaging"
	"rentalhub/internal/domain/shared/errs"
)

func TestConversationDocumentRoundTrip(t *testing.T) {
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	conv, err := messaging.NewConversation(messaging.NewConversationParams{
		ID:           "c1",
		Participants: []string{"guest", "host"},
		PropertyID:   "p1",
		CreatedAt:    at,
	})
	require.NoError(t, err)
	conv.SetLastMessage(messaging.LastMessage{ID: "m1", SenderID: "guest", Preview: "$hi", CreatedAt: at.Add(time.Minute)})
	conv.IncrementUnread("guest")

	doc := newConversationDocument(conv)
	assert.Equal(t, "guest,host", doc.ParticipantsKey)
	assert.Equal(t, map[string]int{"guest": 0, "host": 1}, doc.Unread)

	raw, err := bson.Marshal(doc)
	require.NoError(t, err)
	var decoded conversationDocument
	require.NoError(t, bson.Unmarshal(raw, &decoded))

	got := decoded.toDomain()
	assert.Equal(t, conv.ID, got.ID)
	assert.Equal(t, conv.Participants, got.Participants)
	assert.Equal(t, messaging.StatusActive, got.Status)
	assert.Equal(t, 1, got.UnreadFor("host"))
	require.NotNil(t, got.LastMessage)
	assert.Equal(t, "$hi", got.LastMessage.Preview)
	assert.Equal(t, at.Add(time.Minute), got.UpdatedAt)
}

func TestConversationDocumentKeepsBlocker(t *testing.T) {
	doc := conversationDocument{ID: "c1", Participants: []string{"guest", "host"}, Status: "blocked", BlockedBy: "host"}
	raw, err := bson.Marshal(doc)
	require.NoError(t, err)
	var decoded conversationDocument
	require.NoError(t, bson.Unmarshal(raw, &decoded))

	got := decoded.toDomain()
	assert.Equal(t, messaging.StatusBlocked, got.Status)
	assert.Equal(t, "host", got.BlockedBy)
}

func TestConversationDocumentFillsMissingCounters(t *testing.T) {
	doc := conversationDocument{ID: "c1", Participants: []string{"a", "b"}, Unread: map[string]int{"a": -2}}
	got := doc.toDomain()
	assert.Equal(t, map[string]int{"a": 0, "b": 0}, got.Unread)
	assert.Nil(t, got.LastMessage)
}

func TestMessageDocumentRoundTrip(t *testing.T) {
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	msg, err := messaging.NewMessage(messaging.NewMessageParams{
		ID:             "m1",
		ConversationID: "c1",
		SenderID:       "guest",
		Content:        "keys under the mat",
		Attachments:    []messaging.Attachment{{URL: "https://cdn/x.pdf", Name: "x.pdf", Size: 10, MimeType: "application/pdf"}},
		CreatedAt:      at,
	})
	require.NoError(t, err)
	msg.MarkRead("host", at.Add(time.Second))
	msg.HideFor("host")

	raw, err := bson.Marshal(newMessageDocument(msg))
	require.NoError(t, err)
	var decoded messageDocument
	require.NoError(t, bson.Unmarshal(raw, &decoded))

	got := decoded.toDomain()
	assert.Equal(t, msg.Content, got.Content)
	assert.Equal(t, messaging.AttachmentDocument, got.Attachments[0].Kind)
	assert.True(t, got.ReadByUser("guest"))
	assert.True(t, got.ReadByUser("host"))
	assert.True(t, got.HiddenFor("host"))
	assert.Equal(t, messaging.DeliverySent, got.Status)
}

func TestMessageListFilter(t *testing.T) {
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	filter := messageListFilter("c1", messaging.MessageQuery{
		ViewerID: "guest",
		Before:   &messaging.Cursor{At: at, ID: "m9"},
	})
	assert.Equal(t, "c1", filter["conversation_id"])
	assert.Equal(t, bson.M{"$ne": "guest"}, filter["deleted_for"])
	or, ok := filter["$or"].(bson.A)
	require.True(t, ok)
	require.Len(t, or, 2)
	assert.Equal(t, bson.M{"created_at": at, "_id": bson.M{"$lt": "m9"}}, or[1])

	plain := messageListFilter("c1", messaging.MessageQuery{})
	assert.NotContains(t, plain, "$or")
	assert.NotContains(t, plain, "deleted_for")
}

func TestHasMore(t *testing.T) {
	assert.True(t, hasMore(0, 10, 11))
	assert.False(t, hasMore(10, 1, 11))
	assert.False(t, hasMore(20, 0, 11))
}

func TestClassify(t *testing.T) {
	assert.NoError(t, classify(nil, "x"))

	err := classify(context.DeadlineExceeded, "mongo: list")
	assert.ErrorIs(t, err, errs.Transient)

	err = classify(errors.New("boom"), "mongo: list")
	assert.Equal(t, errs.KindUnknown, errs.KindOf(err))
	assert.Contains(t, err.Error(), "boom")

	assert.Same(t, messaging.ErrConversationNotFound, classify(messaging.ErrConversationNotFound, "x"))
}

func TestIdempotencyDocumentKeepsKind(t *testing.T) {
	doc := idempotencyDocument{Key: "k", Error: "blocked", ErrorKind: int(errs.KindAuthorization)}
	rec := doc.toRecord()
	assert.Equal(t, errs.KindAuthorization, rec.ErrorKind)
	assert.Equal(t, "blocked", rec.Error)

	store := &IdempotencyStore{ttl: time.Hour, now: func() time.Time { return time.Date(2026, 1, 1, 2, 0, 1, 0, time.UTC) }}
	assert.True(t, store.expired(time.Date(2026, 1, 1, 1, 0, 0, 0, time.UTC)))
	assert.False(t, store.expired(time.Date(2026, 1, 1, 1, 30, 0, 0, time.UTC)))
}
