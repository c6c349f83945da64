package realtime

import (
	"encoding/json"

	"rentalhub/internal/app/dto"
	"rentalhub/internal/domain/shared/errs"
)

// Inbound event names.
const (
	EventJoinChat    = "join_chat"
	EventLeaveChat   = "leave_chat"
	EventSendMessage = "send_message"
	EventTypingStart = "typing_start"
	EventTypingEnd   = "typing_end"
	EventMarkRead    = "mark_read"
)

// CodeRateLimited is reported when a connection exceeds its inbound budget.
const CodeRateLimited = "rate_limited"

// Frame is the envelope used in both directions.
type Frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type outFrame struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

func encodeFrame(event string, payload any) ([]byte, error) {
	return json.Marshal(outFrame{Type: event, Data: payload})
}

type roomPayload struct {
	ConversationID string `json:"conversation_id" validate:"required,max=128"`
}

type sendPayload struct {
	ConversationID string           `json:"conversation_id" validate:"required,max=128"`
	Content        string           `json:"content" validate:"max=5000"`
	Attachments    []dto.Attachment `json:"attachments" validate:"max=10"`
	ClientID       string           `json:"client_id" validate:"max=128"`
}

type markReadPayload struct {
	ConversationID string   `json:"conversation_id" validate:"required,max=128"`
	MessageIDs     []string `json:"message_ids" validate:"max=500,dive,required"`
}

// TypingPayload is broadcast to the room for typing_start and typing_end.
type TypingPayload struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
}

// ErrorPayload is sent to the originating connection only.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Event   string `json:"event,omitempty"`
}

func errorPayload(event string, err error) ErrorPayload {
	return ErrorPayload{Code: errs.KindOf(err).String(), Message: errs.Message(err), Event: event}
}
