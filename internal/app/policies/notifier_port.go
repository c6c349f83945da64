package policies

import "context"

// Notifier reaches a participant that has no live connection.
type Notifier interface {
	Notify(ctx context.Context, recipientID, conversationID string, summary MessageSummary) error
}

type MessageSummary struct {
	MessageID string
	SenderID  string
	Preview   string
}
