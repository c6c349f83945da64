// Package notify reaches participants that have no live connection.
package notify

import (
	"context"
	"log/slog"
	"time"

	appoutbox "rentalhub/internal/app/outbox"
	"rentalhub/internal/app/policies"
	"rentalhub/internal/domain/messaging"
	"rentalhub/internal/domain/shared/events"
)

// LogNotifier only records the request. Used when no broker is configured.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) Notify(ctx context.Context, recipientID, conversationID string, summary policies.MessageSummary) error {
	if n.Logger == nil {
		return nil
	}
	n.Logger.InfoContext(ctx, "offline notification",
		"recipient_id", recipientID,
		"conversation_id", conversationID,
		"message_id", summary.MessageID,
		"sender_id", summary.SenderID,
	)
	return nil
}

// OutboxNotifier stores a NotificationRequested event; the outbox relay
// delivers it to the broker with retries.
type OutboxNotifier struct {
	Outbox  appoutbox.Outbox
	Encoder appoutbox.EventEncoder
	Now     func() time.Time
}

func (n OutboxNotifier) Notify(ctx context.Context, recipientID, conversationID string, summary policies.MessageSummary) error {
	now := time.Now
	if n.Now != nil {
		now = n.Now
	}
	ev := messaging.NotificationRequested{
		ConversationID: messaging.ConversationID(conversationID),
		RecipientID:    recipientID,
		MessageID:      messaging.MessageID(summary.MessageID),
		SenderID:       summary.SenderID,
		Summary:        summary.Preview,
		At:             now().UTC(),
	}
	return appoutbox.RecordDomainEvents(ctx, n.Outbox, n.Encoder, []events.DomainEvent{ev})
}

var (
	_ policies.Notifier = LogNotifier{}
	_ policies.Notifier = OutboxNotifier{}
)
