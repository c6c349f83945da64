package messaging

import (
	"context"
	"time"
)

type ConversationQuery struct {
	UserID string
	// Status filters by conversation status; empty matches every status.
	Status ConversationStatus
	Page   int
	Limit  int
}

func (q ConversationQuery) Offset() int {
	return offset(q.Page, q.Limit)
}

type ConversationPage struct {
	Items   []*Conversation
	Total   int
	HasMore bool
}

type MessageQuery struct {
	ViewerID string
	Page     int
	Limit    int
	// Before switches to cursor pagination and takes precedence over Page.
	Before *Cursor
}

func (q MessageQuery) Offset() int {
	if q.Before != nil {
		return 0
	}
	return offset(q.Page, q.Limit)
}

type MessagePage struct {
	Items   []*Message
	HasMore bool
}

func offset(page, limit int) int {
	if page < 1 || limit < 1 {
		return 0
	}
	return (page - 1) * limit
}

type ConversationRepository interface {
	// CreateOrGet stores conv unless a conversation with the same participant
	// set exists, in which case that one is returned with created=false.
	CreateOrGet(ctx context.Context, conv *Conversation) (stored *Conversation, created bool, err error)
	ByID(ctx context.Context, id ConversationID) (*Conversation, error)
	ListForUser(ctx context.Context, query ConversationQuery) (ConversationPage, error)
	SetLastMessage(ctx context.Context, id ConversationID, last LastMessage) error
	IncrementUnread(ctx context.Context, id ConversationID, excludingUserID string) error
	DecrementUnread(ctx context.Context, id ConversationID, userID string, by int) error
	SetUnread(ctx context.Context, id ConversationID, userID string, value int) error
	// SetStatus stores status together with the participant who blocked, or
	// an empty blockedBy when status is not blocked.
	SetStatus(ctx context.Context, id ConversationID, status ConversationStatus, blockedBy string, at time.Time) error
}

type MessageRepository interface {
	Append(ctx context.Context, msg *Message) error
	ByID(ctx context.Context, id MessageID) (*Message, error)
	ListForConversation(ctx context.Context, id ConversationID, query MessageQuery) (MessagePage, error)
	// UnreadIDs lists messages userID has not read and has not hidden.
	UnreadIDs(ctx context.Context, id ConversationID, userID string) ([]MessageID, error)
	// MarkRead adds receipts and returns only the ids that gained one.
	MarkRead(ctx context.Context, id ConversationID, ids []MessageID, userID string, at time.Time) ([]MessageID, error)
	// RefreshStatus promotes the given messages to READ where every
	// participant holds a receipt and returns how many changed.
	RefreshStatus(ctx context.Context, id ConversationID, ids []MessageID, participants []string, at time.Time) (int, error)
	// MarkDelivered moves a SENT message to DELIVERED.
	MarkDelivered(ctx context.Context, id MessageID, at time.Time) (bool, error)
	HideFor(ctx context.Context, id MessageID, userID string, at time.Time) error
	Remove(ctx context.Context, id MessageID) error
}
