package dto

import "time"

// Conversation is a conversation as seen by one participant.
type Conversation struct {
	ID           string       `json:"id"`
	Participants []string     `json:"participants"`
	PropertyID   string       `json:"property_id,omitempty"`
	BookingID    string       `json:"booking_id,omitempty"`
	Status       string       `json:"status"`
	BlockedBy    string       `json:"blocked_by,omitempty"`
	LastMessage  *LastMessage `json:"last_message,omitempty"`
	UnreadCount  int          `json:"unread_count"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
	// Created is true when the request started a new conversation.
	Created bool `json:"-"`
}

type LastMessage struct {
	ID        string    `json:"id"`
	SenderID  string    `json:"sender_id"`
	Preview   string    `json:"preview"`
	CreatedAt time.Time `json:"created_at"`
}

// ConversationList is a paginated collection.
type ConversationList struct {
	Items   []Conversation `json:"items"`
	Page    int            `json:"page"`
	Limit   int            `json:"limit"`
	Total   int            `json:"total"`
	HasMore bool           `json:"has_more"`
}

type Attachment struct {
	Kind     string `json:"kind"`
	URL      string `json:"url"`
	Name     string `json:"name,omitempty"`
	Size     int64  `json:"size"`
	MimeType string `json:"mime_type,omitempty"`
}

type ReadReceipt struct {
	UserID string    `json:"user_id"`
	ReadAt time.Time `json:"read_at"`
}

// ChatMessage contains a single message payload.
type ChatMessage struct {
	ID             string        `json:"id"`
	ConversationID string        `json:"conversation_id"`
	SenderID       string        `json:"sender_id"`
	Content        string        `json:"content"`
	Attachments    []Attachment  `json:"attachments"`
	ReadBy         []ReadReceipt `json:"read_by"`
	Status         string        `json:"status"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// ChatMessageList is a page of messages, newest first.
type ChatMessageList struct {
	Items      []ChatMessage `json:"items"`
	Page       int           `json:"page,omitempty"`
	Limit      int           `json:"limit"`
	HasMore    bool          `json:"has_more"`
	NextCursor string        `json:"next_cursor,omitempty"`
}

// ReadResult reports the outcome of a mark-read request.
type ReadResult struct {
	ConversationID string    `json:"conversation_id"`
	ReaderID       string    `json:"reader_id"`
	MessageIDs     []string  `json:"message_ids"`
	ReadAt         time.Time `json:"read_at"`
	UnreadCount    int       `json:"unread_count"`
}
