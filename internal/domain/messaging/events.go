package messaging

import "time"

type ConversationStarted struct {
	ConversationID ConversationID
	Participants   []string
	PropertyID     string
	BookingID      string
	At             time.Time
}

func (e ConversationStarted) EventName() string     { return "conversation.started" }
func (e ConversationStarted) AggregateID() string   { return string(e.ConversationID) }
func (e ConversationStarted) OccurredAt() time.Time { return e.At }

type MessageSent struct {
	MessageID      MessageID
	ConversationID ConversationID
	SenderID       string
	Recipients     []string
	Preview        string
	At             time.Time
}

func (e MessageSent) EventName() string     { return "conversation.message_sent" }
func (e MessageSent) AggregateID() string   { return string(e.ConversationID) }
func (e MessageSent) OccurredAt() time.Time { return e.At }

type MessagesRead struct {
	ConversationID ConversationID
	ReaderID       string
	MessageIDs     []MessageID
	At             time.Time
}

func (e MessagesRead) EventName() string     { return "conversation.messages_read" }
func (e MessagesRead) AggregateID() string   { return string(e.ConversationID) }
func (e MessagesRead) OccurredAt() time.Time { return e.At }

type ConversationStatusChanged struct {
	ConversationID ConversationID
	ActorID        string
	From           ConversationStatus
	To             ConversationStatus
	At             time.Time
}

func (e ConversationStatusChanged) EventName() string     { return "conversation.status_changed" }
func (e ConversationStatusChanged) AggregateID() string   { return string(e.ConversationID) }
func (e ConversationStatusChanged) OccurredAt() time.Time { return e.At }

// NotificationRequested asks the notification service to reach a recipient
// that had no live connection when a message arrived.
type NotificationRequested struct {
	ConversationID ConversationID
	RecipientID    string
	MessageID      MessageID
	SenderID       string
	Summary        string
	At             time.Time
}

func (e NotificationRequested) EventName() string     { return "chat.notification_requested" }
func (e NotificationRequested) AggregateID() string   { return e.RecipientID }
func (e NotificationRequested) OccurredAt() time.Time { return e.At }
