package dto

import "rentalhub/internal/domain/messaging"

// ConversationFor renders conv for viewer.
func ConversationFor(conv *messaging.Conversation, viewerID string) Conversation {
	out := Conversation{
		ID:           string(conv.ID),
		Participants: append([]string(nil), conv.Participants...),
		PropertyID:   conv.PropertyID,
		BookingID:    conv.BookingID,
		Status:       string(conv.Status),
		BlockedBy:    conv.BlockedBy,
		UnreadCount:  conv.UnreadFor(viewerID),
		CreatedAt:    conv.CreatedAt,
		UpdatedAt:    conv.UpdatedAt,
	}
	if last := conv.LastMessage; last != nil {
		out.LastMessage = &LastMessage{
			ID:        string(last.ID),
			SenderID:  last.SenderID,
			Preview:   last.Preview,
			CreatedAt: last.CreatedAt,
		}
	}
	return out
}

func Message(msg *messaging.Message) ChatMessage {
	out := ChatMessage{
		ID:             string(msg.ID),
		ConversationID: string(msg.ConversationID),
		SenderID:       msg.SenderID,
		Content:        msg.Content,
		Attachments:    make([]Attachment, 0, len(msg.Attachments)),
		ReadBy:         make([]ReadReceipt, 0, len(msg.ReadBy)),
		Status:         string(msg.Status),
		CreatedAt:      msg.CreatedAt,
		UpdatedAt:      msg.UpdatedAt,
	}
	for _, a := range msg.Attachments {
		out.Attachments = append(out.Attachments, Attachment{
			Kind:     string(a.Kind),
			URL:      a.URL,
			Name:     a.Name,
			Size:     a.Size,
			MimeType: a.MimeType,
		})
	}
	for _, r := range msg.ReadBy {
		out.ReadBy = append(out.ReadBy, ReadReceipt{UserID: r.UserID, ReadAt: r.ReadAt})
	}
	return out
}

// AttachmentsToDomain converts request attachments. Kinds are validated by
// the domain.
func AttachmentsToDomain(in []Attachment) []messaging.Attachment {
	if len(in) == 0 {
		return nil
	}
	out := make([]messaging.Attachment, 0, len(in))
	for _, a := range in {
		out = append(out, messaging.Attachment{
			Kind:     messaging.AttachmentKind(a.Kind),
			URL:      a.URL,
			Name:     a.Name,
			Size:     a.Size,
			MimeType: a.MimeType,
		})
	}
	return out
}

func MessageIDs(ids []messaging.MessageID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, string(id))
	}
	return out
}
