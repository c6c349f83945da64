package scylla

import (
	"slices"
	"strings"
	"time"

	"rentalhub/internal/domain/messaging"
)

type conversationRow struct {
	ID              string
	Participants    []string
	ParticipantsKey string
	PropertyID      string
	BookingID       string
	Status          string
	BlockedBy       string
	LastMessageID   string
	LastSenderID    string
	LastPreview     string
	LastMessageAt   time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func newConversationRow(conv *messaging.Conversation) conversationRow {
	row := conversationRow{
		ID:              string(conv.ID),
		Participants:    slices.Clone(conv.Participants),
		ParticipantsKey: conv.Key(),
		PropertyID:      conv.PropertyID,
		BookingID:       conv.BookingID,
		Status:          string(conv.Status),
		BlockedBy:       conv.BlockedBy,
		CreatedAt:       conv.CreatedAt.UTC(),
		UpdatedAt:       conv.UpdatedAt.UTC(),
	}
	if last := conv.LastMessage; last != nil {
		row.LastMessageID = string(last.ID)
		row.LastSenderID = last.SenderID
		row.LastPreview = last.Preview
		row.LastMessageAt = last.CreatedAt.UTC()
	}
	return row
}

// values follows conversationColumns.
func (r *conversationRow) values() []any {
	var lastAt any
	if !r.LastMessageAt.IsZero() {
		lastAt = r.LastMessageAt
	}
	return []any{
		r.ID, r.Participants, r.ParticipantsKey, r.PropertyID, r.BookingID, r.Status, r.BlockedBy,
		r.LastMessageID, r.LastSenderID, r.LastPreview, lastAt, r.CreatedAt, r.UpdatedAt,
	}
}

func (r *conversationRow) dest() []any {
	return []any{
		&r.ID, &r.Participants, &r.ParticipantsKey, &r.PropertyID, &r.BookingID, &r.Status, &r.BlockedBy,
		&r.LastMessageID, &r.LastSenderID, &r.LastPreview, &r.LastMessageAt, &r.CreatedAt, &r.UpdatedAt,
	}
}

func (r conversationRow) toDomain(unread map[string]int) *messaging.Conversation {
	counters := make(map[string]int, len(r.Participants))
	for _, p := range r.Participants {
		counters[p] = max(0, unread[p])
	}
	conv := &messaging.Conversation{
		ID:           messaging.ConversationID(r.ID),
		Participants: slices.Clone(r.Participants),
		PropertyID:   r.PropertyID,
		BookingID:    r.BookingID,
		Status:       messaging.ConversationStatus(r.Status),
		BlockedBy:    r.BlockedBy,
		Unread:       counters,
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
	}
	if r.LastMessageID != "" {
		conv.LastMessage = &messaging.LastMessage{
			ID:        messaging.MessageID(r.LastMessageID),
			SenderID:  r.LastSenderID,
			Preview:   r.LastPreview,
			CreatedAt: r.LastMessageAt.UTC(),
		}
	}
	return conv
}

const messageColumns = `conversation_id, created_at, message_id, sender_id, content, attachments, status, read_by, deleted_for, updated_at`

type attachmentUDT struct {
	Kind     string `cql:"kind"`
	URL      string `cql:"url"`
	Name     string `cql:"name"`
	Size     int64  `cql:"size"`
	MimeType string `cql:"mime_type"`
}

type messageRow struct {
	ConversationID string
	CreatedAt      time.Time
	ID             string
	SenderID       string
	Content        string
	Attachments    []attachmentUDT
	Status         string
	ReadBy         map[string]time.Time
	DeletedFor     []string
	UpdatedAt      time.Time
}

func newMessageRow(msg *messaging.Message) messageRow {
	row := messageRow{
		ConversationID: string(msg.ConversationID),
		CreatedAt:      msg.CreatedAt.UTC(),
		ID:             string(msg.ID),
		SenderID:       msg.SenderID,
		Content:        msg.Content,
		Attachments:    make([]attachmentUDT, 0, len(msg.Attachments)),
		Status:         string(msg.Status),
		ReadBy:         make(map[string]time.Time, len(msg.ReadBy)),
		DeletedFor:     slices.Clone(msg.DeletedFor),
		UpdatedAt:      msg.UpdatedAt.UTC(),
	}
	for _, a := range msg.Attachments {
		row.Attachments = append(row.Attachments, attachmentUDT{
			Kind:     string(a.Kind),
			URL:      a.URL,
			Name:     a.Name,
			Size:     a.Size,
			MimeType: a.MimeType,
		})
	}
	for _, rr := range msg.ReadBy {
		row.ReadBy[rr.UserID] = rr.ReadAt.UTC()
	}
	return row
}

// values follows messageColumns.
func (r *messageRow) values() []any {
	return []any{
		r.ConversationID, r.CreatedAt, r.ID, r.SenderID, r.Content, r.Attachments,
		r.Status, r.ReadBy, r.DeletedFor, r.UpdatedAt,
	}
}

func (r *messageRow) dest() []any {
	return []any{
		&r.ConversationID, &r.CreatedAt, &r.ID, &r.SenderID, &r.Content, &r.Attachments,
		&r.Status, &r.ReadBy, &r.DeletedFor, &r.UpdatedAt,
	}
}

// toDomain orders receipts by read time so the sender's own receipt stays
// first.
func (r messageRow) toDomain() *messaging.Message {
	msg := &messaging.Message{
		ID:             messaging.MessageID(r.ID),
		ConversationID: messaging.ConversationID(r.ConversationID),
		SenderID:       r.SenderID,
		Content:        r.Content,
		Attachments:    make([]messaging.Attachment, 0, len(r.Attachments)),
		ReadBy:         make([]messaging.ReadReceipt, 0, len(r.ReadBy)),
		Status:         messaging.DeliveryStatus(r.Status),
		DeletedFor:     slices.Clone(r.DeletedFor),
		CreatedAt:      r.CreatedAt.UTC(),
		UpdatedAt:      r.UpdatedAt.UTC(),
	}
	for _, a := range r.Attachments {
		msg.Attachments = append(msg.Attachments, messaging.Attachment{
			Kind:     messaging.AttachmentKind(a.Kind),
			URL:      a.URL,
			Name:     a.Name,
			Size:     a.Size,
			MimeType: a.MimeType,
		})
	}
	for user, at := range r.ReadBy {
		msg.ReadBy = append(msg.ReadBy, messaging.ReadReceipt{UserID: user, ReadAt: at.UTC()})
	}
	slices.SortFunc(msg.ReadBy, func(a, b messaging.ReadReceipt) int {
		if c := a.ReadAt.Compare(b.ReadAt); c != 0 {
			return c
		}
		return strings.Compare(a.UserID, b.UserID)
	})
	return msg
}

func recentFirst(a, b *messaging.Conversation) int {
	if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
		return c
	}
	return strings.Compare(string(b.ID), string(a.ID))
}

func latest(current, at time.Time) time.Time {
	if at.After(current) {
		return at.UTC()
	}
	return current.UTC()
}

func paginate[T any](items []T, offset, limit int) ([]T, bool) {
	if offset >= len(items) {
		return []T{}, false
	}
	end := len(items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return items[offset:end], end < len(items)
}
