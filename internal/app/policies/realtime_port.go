package policies

import "context"

// Outbound real-time event names.
const (
	EventNewMessage          = "new_message"
	EventMessagesRead        = "messages_read"
	EventTypingStart         = "typing_start"
	EventTypingEnd           = "typing_end"
	EventConversationUpdated = "conversation_updated"
	EventError               = "error"
)

func ConversationRoom(conversationID string) string { return "conversation:" + conversationID }

func UserRoom(userID string) string { return "user:" + userID }

// Broadcaster fans events out to live connections. Delivery is best effort.
type Broadcaster interface {
	Broadcast(ctx context.Context, room, event string, payload any)
}

// Presence answers whether a user currently holds a live connection.
type Presence interface {
	IsOnline(ctx context.Context, userID string) bool
}
