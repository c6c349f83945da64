package mongo

import (
	"time"

	"rentalhub/internal/domain/messaging"
)

type conversationDocument struct {
	ID              string               `bson:"_id"`
	Participants    []string             `bson:"participants"`
	ParticipantsKey string               `bson:"participants_key"`
	PropertyID      string               `bson:"property_id,omitempty"`
	BookingID       string               `bson:"booking_id,omitempty"`
	Status          string               `bson:"status"`
	BlockedBy       string               `bson:"blocked_by,omitempty"`
	LastMessage     *lastMessageDocument `bson:"last_message,omitempty"`
	Unread          map[string]int       `bson:"unread"`
	CreatedAt       time.Time            `bson:"created_at"`
	UpdatedAt       time.Time            `bson:"updated_at"`
}

type lastMessageDocument struct {
	ID        string    `bson:"id"`
	SenderID  string    `bson:"sender_id"`
	Preview   string    `bson:"preview"`
	CreatedAt time.Time `bson:"created_at"`
}

type messageDocument struct {
	ID             string               `bson:"_id"`
	ConversationID string               `bson:"conversation_id"`
	SenderID       string               `bson:"sender_id"`
	Content        string               `bson:"content"`
	Attachments    []attachmentDocument `bson:"attachments"`
	ReadBy         []receiptDocument    `bson:"read_by"`
	Status         string               `bson:"status"`
	DeletedFor     []string             `bson:"deleted_for"`
	CreatedAt      time.Time            `bson:"created_at"`
	UpdatedAt      time.Time            `bson:"updated_at"`
}

type attachmentDocument struct {
	Kind     string `bson:"kind"`
	URL      string `bson:"url"`
	Name     string `bson:"name,omitempty"`
	Size     int64  `bson:"size"`
	MimeType string `bson:"mime_type,omitempty"`
}

type receiptDocument struct {
	UserID string    `bson:"user_id"`
	ReadAt time.Time `bson:"read_at"`
}

func newConversationDocument(conv *messaging.Conversation) conversationDocument {
	unread := make(map[string]int, len(conv.Participants))
	for _, id := range conv.Participants {
		unread[id] = conv.UnreadFor(id)
	}
	doc := conversationDocument{
		ID:              string(conv.ID),
		Participants:    append([]string(nil), conv.Participants...),
		ParticipantsKey: conv.Key(),
		PropertyID:      conv.PropertyID,
		BookingID:       conv.BookingID,
		Status:          string(conv.Status),
		BlockedBy:       conv.BlockedBy,
		Unread:          unread,
		CreatedAt:       conv.CreatedAt.UTC(),
		UpdatedAt:       conv.UpdatedAt.UTC(),
	}
	if conv.LastMessage != nil {
		last := newLastMessageDocument(*conv.LastMessage)
		doc.LastMessage = &last
	}
	return doc
}

func newLastMessageDocument(last messaging.LastMessage) lastMessageDocument {
	return lastMessageDocument{
		ID:        string(last.ID),
		SenderID:  last.SenderID,
		Preview:   last.Preview,
		CreatedAt: last.CreatedAt.UTC(),
	}
}

func (d conversationDocument) toDomain() *messaging.Conversation {
	unread := make(map[string]int, len(d.Participants))
	for _, id := range d.Participants {
		unread[id] = max(0, d.Unread[id])
	}
	conv := &messaging.Conversation{
		ID:           messaging.ConversationID(d.ID),
		Participants: append([]string(nil), d.Participants...),
		PropertyID:   d.PropertyID,
		BookingID:    d.BookingID,
		Status:       messaging.ConversationStatus(d.Status),
		BlockedBy:    d.BlockedBy,
		Unread:       unread,
		CreatedAt:    d.CreatedAt.UTC(),
		UpdatedAt:    d.UpdatedAt.UTC(),
	}
	if d.LastMessage != nil {
		conv.LastMessage = &messaging.LastMessage{
			ID:        messaging.MessageID(d.LastMessage.ID),
			SenderID:  d.LastMessage.SenderID,
			Preview:   d.LastMessage.Preview,
			CreatedAt: d.LastMessage.CreatedAt.UTC(),
		}
	}
	return conv
}

func newMessageDocument(msg *messaging.Message) messageDocument {
	doc := messageDocument{
		ID:             string(msg.ID),
		ConversationID: string(msg.ConversationID),
		SenderID:       msg.SenderID,
		Content:        msg.Content,
		Attachments:    make([]attachmentDocument, 0, len(msg.Attachments)),
		ReadBy:         make([]receiptDocument, 0, len(msg.ReadBy)),
		Status:         string(msg.Status),
		DeletedFor:     append([]string{}, msg.DeletedFor...),
		CreatedAt:      msg.CreatedAt.UTC(),
		UpdatedAt:      msg.UpdatedAt.UTC(),
	}
	for _, a := range msg.Attachments {
		doc.Attachments = append(doc.Attachments, attachmentDocument{
			Kind:     string(a.Kind),
			URL:      a.URL,
			Name:     a.Name,
			Size:     a.Size,
			MimeType: a.MimeType,
		})
	}
	for _, r := range msg.ReadBy {
		doc.ReadBy = append(doc.ReadBy, receiptDocument{UserID: r.UserID, ReadAt: r.ReadAt.UTC()})
	}
	return doc
}

func (d messageDocument) toDomain() *messaging.Message {
	msg := &messaging.Message{
		ID:             messaging.MessageID(d.ID),
		ConversationID: messaging.ConversationID(d.ConversationID),
		SenderID:       d.SenderID,
		Content:        d.Content,
		Attachments:    make([]messaging.Attachment, 0, len(d.Attachments)),
		ReadBy:         make([]messaging.ReadReceipt, 0, len(d.ReadBy)),
		Status:         messaging.DeliveryStatus(d.Status),
		DeletedFor:     append([]string(nil), d.DeletedFor...),
		CreatedAt:      d.CreatedAt.UTC(),
		UpdatedAt:      d.UpdatedAt.UTC(),
	}
	for _, a := range d.Attachments {
		msg.Attachments = append(msg.Attachments, messaging.Attachment{
			Kind:     messaging.AttachmentKind(a.Kind),
			URL:      a.URL,
			Name:     a.Name,
			Size:     a.Size,
			MimeType: a.MimeType,
		})
	}
	for _, r := range d.ReadBy {
		msg.ReadBy = append(msg.ReadBy, messaging.ReadReceipt{UserID: r.UserID, ReadAt: r.ReadAt.UTC()})
	}
	return msg
}

func unreadField(userID string) string {
	return "unread." + userID
}

func hasMore(offset, returned, total int) bool {
	return offset+returned < total
}

func messageIDStrings(ids []messaging.MessageID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}
