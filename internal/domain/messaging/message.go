package messaging

import (
	"cmp"
	"slices"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	MaxContentLength = 5000
	MaxAttachments   = 10
	previewLength    = 120
)

type MessageID string

type DeliveryStatus string

const (
	DeliverySent      DeliveryStatus = "SENT"
	DeliveryDelivered DeliveryStatus = "DELIVERED"
	DeliveryRead      DeliveryStatus = "READ"
)

func (s DeliveryStatus) rank() int {
	switch s {
	case DeliveryDelivered:
		return 1
	case DeliveryRead:
		return 2
	default:
		return 0
	}
}

type ReadReceipt struct {
	UserID string
	ReadAt time.Time
}

type Message struct {
	ID             MessageID
	ConversationID ConversationID
	SenderID       string
	Content        string
	Attachments    []Attachment
	ReadBy         []ReadReceipt
	Status         DeliveryStatus
	DeletedFor     []string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type NewMessageParams struct {
	ID             MessageID
	ConversationID ConversationID
	SenderID       string
	Content        string
	Attachments    []Attachment
	CreatedAt      time.Time
}

func NewMessage(params NewMessageParams) (*Message, error) {
	if strings.TrimSpace(string(params.ID)) == "" {
		return nil, ErrMessageID
	}
	if strings.TrimSpace(string(params.ConversationID)) == "" {
		return nil, ErrConversationID
	}
	sender := strings.TrimSpace(params.SenderID)
	if sender == "" {
		return nil, ErrInvalidParticipant
	}
	content := strings.TrimSpace(params.Content)
	if utf8.RuneCountInString(content) > MaxContentLength {
		return nil, ErrContentTooLong
	}
	if len(params.Attachments) > MaxAttachments {
		return nil, ErrTooManyAttachments
	}
	attachments := make([]Attachment, 0, len(params.Attachments))
	for _, a := range params.Attachments {
		a = a.Normalize()
		if err := a.Validate(); err != nil {
			return nil, err
		}
		attachments = append(attachments, a)
	}
	if content == "" && len(attachments) == 0 {
		return nil, ErrEmptyMessage
	}
	at := params.CreatedAt.UTC().Truncate(time.Millisecond)
	return &Message{
		ID:             params.ID,
		ConversationID: params.ConversationID,
		SenderID:       sender,
		Content:        content,
		Attachments:    attachments,
		ReadBy:         []ReadReceipt{{UserID: sender, ReadAt: at}},
		Status:         DeliverySent,
		CreatedAt:      at,
		UpdatedAt:      at,
	}, nil
}

func (m *Message) ReadByUser(userID string) bool {
	return slices.ContainsFunc(m.ReadBy, func(r ReadReceipt) bool { return r.UserID == userID })
}

// MarkRead adds a receipt for userID and reports whether one was added.
func (m *Message) MarkRead(userID string, at time.Time) bool {
	if m.ReadByUser(userID) {
		return false
	}
	m.ReadBy = append(m.ReadBy, ReadReceipt{UserID: userID, ReadAt: at.UTC()})
	m.UpdatedAt = at.UTC()
	return true
}

func (m *Message) HiddenFor(userID string) bool {
	return slices.Contains(m.DeletedFor, userID)
}

func (m *Message) HideFor(userID string) bool {
	if m.HiddenFor(userID) {
		return false
	}
	m.DeletedFor = append(m.DeletedFor, userID)
	return true
}

// Promote advances the delivery status. Status never moves backwards.
func (m *Message) Promote(status DeliveryStatus) bool {
	if status.rank() <= m.Status.rank() {
		return false
	}
	m.Status = status
	return true
}

// RefreshStatus promotes the message to READ once every participant holds a
// receipt.
func (m *Message) RefreshStatus(participants []string) bool {
	if !ReadByAll(m.ReadBy, participants) {
		return false
	}
	return m.Promote(DeliveryRead)
}

func ReadByAll(readBy []ReadReceipt, participants []string) bool {
	for _, p := range participants {
		if !slices.ContainsFunc(readBy, func(r ReadReceipt) bool { return r.UserID == p }) {
			return false
		}
	}
	return len(participants) > 0
}

func (m *Message) Cursor() Cursor {
	return Cursor{At: m.CreatedAt, ID: m.ID}
}

func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	out := *m
	out.Attachments = slices.Clone(m.Attachments)
	out.ReadBy = slices.Clone(m.ReadBy)
	out.DeletedFor = slices.Clone(m.DeletedFor)
	return &out
}

// NewestFirst orders by creation time descending, ties broken by id descending.
func NewestFirst(a, b *Message) int {
	if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
		return c
	}
	return cmp.Compare(b.ID, a.ID)
}

// Preview builds the short text shown in conversation lists and notifications.
func Preview(content string, attachments []Attachment) string {
	content = strings.Join(strings.Fields(content), " ")
	if content == "" {
		if len(attachments) == 0 {
			return ""
		}
		return "[" + string(attachments[0].Kind) + "]"
	}
	if utf8.RuneCountInString(content) <= previewLength {
		return content
	}
	runes := []rune(content)
	return strings.TrimSpace(string(runes[:previewLength])) + "…"
}
