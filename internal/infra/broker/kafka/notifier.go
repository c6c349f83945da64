package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"rentalhub/internal/app/policies"
	"rentalhub/internal/domain/messaging"
)

const notificationsTopic = "chat.notifications.v1"

type Publisher interface {
	Publish(ctx context.Context, topic string, key string, payload []byte, headers map[string]string) error
}

// Notifier hands offline notifications straight to the notification
// service topic, keyed by recipient so one user's notifications stay ordered.
type Notifier struct {
	Publisher   Publisher
	TopicPrefix string
	Source      string
	Now         func() time.Time
}

func NewNotifier(publisher Publisher, topicPrefix string) *Notifier {
	return &Notifier{Publisher: publisher, TopicPrefix: topicPrefix, Source: "app://rentalhub", Now: time.Now}
}

func (n *Notifier) Topic() string {
	return n.TopicPrefix + notificationsTopic
}

func (n *Notifier) Notify(ctx context.Context, recipientID, conversationID string, summary policies.MessageSummary) error {
	ev := messaging.NotificationRequested{
		ConversationID: messaging.ConversationID(conversationID),
		RecipientID:    recipientID,
		MessageID:      messaging.MessageID(summary.MessageID),
		SenderID:       summary.SenderID,
		Summary:        summary.Preview,
		At:             n.now(),
	}
	payload, err := json.Marshal(map[string]any{
		"specversion":     "1.0",
		"id":              uuid.NewString(),
		"type":            ev.EventName() + ".v1",
		"source":          n.Source,
		"subject":         recipientID,
		"time":            ev.At,
		"datacontenttype": "application/json",
		"data": map[string]string{
			"conversation_id": conversationID,
			"recipient_id":    recipientID,
			"message_id":      summary.MessageID,
			"sender_id":       summary.SenderID,
			"summary":         summary.Preview,
		},
	})
	if err != nil {
		return err
	}
	headers := map[string]string{
		"content-type": "application/cloudevents+json",
		"ce_type":      ev.EventName() + ".v1",
	}
	return n.Publisher.Publish(ctx, n.Topic(), recipientID, payload, headers)
}

func (n *Notifier) now() time.Time {
	if n.Now == nil {
		return time.Now().UTC()
	}
	return n.Now().UTC()
}

var _ policies.Notifier = (*Notifier)(nil)
