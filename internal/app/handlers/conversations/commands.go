package conversations

import "rentalhub/internal/app/dto"

const (
	createConversationKey = "conversations.create"
	sendMessageKey        = "conversations.send_message"
	listMessagesKey       = "conversations.list_messages"
	markReadKey           = "conversations.mark_read"
	changeStatusKey       = "conversations.change_status"
	deleteMessageKey      = "conversations.delete_message"
	listConversationsKey  = "conversations.list"
	getConversationKey    = "conversations.get"
)

// CreateConversationCommand opens (or finds) a conversation between the
// creator and the listed participants.
type CreateConversationCommand struct {
	CreatorID      string   `validate:"required"`
	ParticipantIDs []string `validate:"required,min=1,max=50,dive,required,max=128"`
	PropertyID     string   `validate:"max=128"`
	BookingID      string   `validate:"max=128"`
	Group          bool
	RequestKey     string `validate:"max=128"`
}

func (CreateConversationCommand) Key() string       { return createConversationKey }
func (c CreateConversationCommand) ActorID() string { return c.CreatorID }
func (CreateConversationCommand) ResultPrototype() any {
	return new(dto.Conversation)
}
func (c CreateConversationCommand) IdempotencyKey() string {
	if c.RequestKey == "" {
		return ""
	}
	return c.CreatorID + ":" + c.RequestKey
}

type SendMessageCommand struct {
	SenderID       string           `validate:"required"`
	ConversationID string           `validate:"required"`
	Content        string           `validate:"max=5000"`
	Attachments    []dto.Attachment `validate:"max=10"`
	RequestKey     string           `validate:"max=128"`
}

func (SendMessageCommand) Key() string       { return sendMessageKey }
func (c SendMessageCommand) ActorID() string { return c.SenderID }
func (SendMessageCommand) ResultPrototype() any {
	return new(dto.ChatMessage)
}
func (c SendMessageCommand) IdempotencyKey() string {
	if c.RequestKey == "" {
		return ""
	}
	return c.SenderID + ":" + c.ConversationID + ":" + c.RequestKey
}

// ListMessagesCommand reads a page of messages. It is a command because
// viewing marks messages read. Page offsets shift when new messages arrive
// between requests; Before with the returned NextCursor does not.
type ListMessagesCommand struct {
	ViewerID       string `validate:"required"`
	ConversationID string `validate:"required"`
	Page           int    `validate:"min=0"`
	Limit          int    `validate:"min=0,max=100"`
	Before         string
}

func (ListMessagesCommand) Key() string       { return listMessagesKey }
func (c ListMessagesCommand) ActorID() string { return c.ViewerID }

// MarkReadCommand marks MessageIDs read, or the whole conversation when empty.
type MarkReadCommand struct {
	ReaderID       string   `validate:"required"`
	ConversationID string   `validate:"required"`
	MessageIDs     []string `validate:"max=500,dive,required"`
}

func (MarkReadCommand) Key() string       { return markReadKey }
func (c MarkReadCommand) ActorID() string { return c.ReaderID }

type ChangeStatusCommand struct {
	UserID         string `validate:"required"`
	ConversationID string `validate:"required"`
	Status         string `validate:"required,oneof=active archived blocked"`
}

func (ChangeStatusCommand) Key() string       { return changeStatusKey }
func (c ChangeStatusCommand) ActorID() string { return c.UserID }

// DeleteMessageCommand hides a message for the caller only.
type DeleteMessageCommand struct {
	UserID         string `validate:"required"`
	ConversationID string `validate:"required"`
	MessageID      string `validate:"required"`
}

func (DeleteMessageCommand) Key() string       { return deleteMessageKey }
func (c DeleteMessageCommand) ActorID() string { return c.UserID }

type ListConversationsQuery struct {
	UserID string `validate:"required"`
	Status string `validate:"omitempty,oneof=active archived blocked all"`
	Page   int    `validate:"min=0"`
	Limit  int    `validate:"min=0,max=100"`
}

func (ListConversationsQuery) Key() string       { return listConversationsKey }
func (q ListConversationsQuery) ActorID() string { return q.UserID }

type GetConversationQuery struct {
	UserID         string `validate:"required"`
	ConversationID string `validate:"required"`
}

func (GetConversationQuery) Key() string       { return getConversationKey }
func (q GetConversationQuery) ActorID() string { return q.UserID }
