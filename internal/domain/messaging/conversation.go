package messaging

import (
	"slices"
	"strings"
	"time"

	"rentalhub/internal/domain/shared/events"
)

type ConversationID string

type ConversationStatus string

const (
	StatusActive   ConversationStatus = "active"
	StatusArchived ConversationStatus = "archived"
	StatusBlocked  ConversationStatus = "blocked"
)

// ParseStatus accepts the empty string as "any status".
func ParseStatus(raw string) (ConversationStatus, error) {
	switch s := ConversationStatus(strings.ToLower(strings.TrimSpace(raw))); s {
	case "", "all":
		return "", nil
	case StatusActive, StatusArchived, StatusBlocked:
		return s, nil
	default:
		return "", ErrInvalidStatus
	}
}

type LastMessage struct {
	ID        MessageID
	SenderID  string
	Preview   string
	CreatedAt time.Time
}

type Conversation struct {
	ID           ConversationID
	Participants []string
	PropertyID   string
	BookingID    string
	Status       ConversationStatus
	BlockedBy    string // participant who blocked; empty unless Status is blocked
	LastMessage  *LastMessage
	Unread       map[string]int
	CreatedAt    time.Time
	UpdatedAt    time.Time
	events.EventRecorder
}

type NewConversationParams struct {
	ID           ConversationID
	Participants []string
	PropertyID   string
	BookingID    string
	Group        bool // more than two participants without property or booking context
	CreatedAt    time.Time
}

func NewConversation(params NewConversationParams) (*Conversation, error) {
	if strings.TrimSpace(string(params.ID)) == "" {
		return nil, ErrConversationID
	}
	participants, err := NormalizeParticipants(params.Participants)
	if err != nil {
		return nil, err
	}
	if len(participants) < 2 {
		return nil, ErrTooFewParticipants
	}
	propertyID := strings.TrimSpace(params.PropertyID)
	bookingID := strings.TrimSpace(params.BookingID)
	if !params.Group && propertyID == "" && bookingID == "" && len(participants) != 2 {
		return nil, ErrDirectChatSize
	}
	at := params.CreatedAt.UTC().Truncate(time.Millisecond)
	unread := make(map[string]int, len(participants))
	for _, id := range participants {
		unread[id] = 0
	}
	conv := &Conversation{
		ID:           params.ID,
		Participants: participants,
		PropertyID:   propertyID,
		BookingID:    bookingID,
		Status:       StatusActive,
		Unread:       unread,
		CreatedAt:    at,
		UpdatedAt:    at,
	}
	conv.Record(ConversationStarted{
		ConversationID: conv.ID,
		Participants:   slices.Clone(participants),
		PropertyID:     propertyID,
		BookingID:      bookingID,
		At:             at,
	})
	return conv, nil
}

// NormalizeParticipants trims, deduplicates and sorts participant ids so that
// equal sets compare equal regardless of input order.
func NormalizeParticipants(ids []string) ([]string, error) {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, raw := range ids {
		id := strings.TrimSpace(raw)
		if id == "" || strings.ContainsAny(id, ".$,") {
			return nil, ErrInvalidParticipant
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	slices.Sort(out)
	return out, nil
}

// ParticipantsKey is the canonical lookup key of a normalized participant set.
func ParticipantsKey(participants []string) string {
	return strings.Join(participants, ",")
}

func (c *Conversation) Key() string {
	return ParticipantsKey(c.Participants)
}

func (c *Conversation) IsDirect() bool {
	return c.PropertyID == "" && c.BookingID == ""
}

func (c *Conversation) HasParticipant(userID string) bool {
	_, found := slices.BinarySearch(c.Participants, userID)
	return found
}

func (c *Conversation) UnreadFor(userID string) int {
	if c.Unread == nil {
		return 0
	}
	return c.Unread[userID]
}

// Recipients lists every participant except the sender.
func (c *Conversation) Recipients(senderID string) []string {
	out := make([]string, 0, len(c.Participants))
	for _, id := range c.Participants {
		if id != senderID {
			out = append(out, id)
		}
	}
	return out
}

// Accept checks that sender may post msg and records the resulting event.
func (c *Conversation) Accept(msg *Message) error {
	if msg.ConversationID != c.ID {
		return ErrForeignMessage
	}
	if !c.HasParticipant(msg.SenderID) {
		return ErrNotParticipant
	}
	if c.Status == StatusBlocked {
		return ErrConversationBlocked
	}
	c.Record(MessageSent{
		MessageID:      msg.ID,
		ConversationID: c.ID,
		SenderID:       msg.SenderID,
		Recipients:     c.Recipients(msg.SenderID),
		Preview:        Preview(msg.Content, msg.Attachments),
		At:             msg.CreatedAt,
	})
	return nil
}

// ApplyMessage moves the last-message pointer and bumps unread counters for
// every recipient. Archived conversations become active again.
func (c *Conversation) ApplyMessage(msg *Message) {
	c.SetLastMessage(LastMessage{
		ID:        msg.ID,
		SenderID:  msg.SenderID,
		Preview:   Preview(msg.Content, msg.Attachments),
		CreatedAt: msg.CreatedAt,
	})
	c.IncrementUnread(msg.SenderID)
	if c.Status == StatusArchived {
		c.Status = StatusActive
	}
}

func (c *Conversation) SetLastMessage(last LastMessage) {
	l := last
	c.LastMessage = &l
	if last.CreatedAt.After(c.UpdatedAt) {
		c.UpdatedAt = last.CreatedAt
	}
}

func (c *Conversation) IncrementUnread(excludingUserID string) {
	if c.Unread == nil {
		c.Unread = make(map[string]int, len(c.Participants))
	}
	for _, id := range c.Participants {
		if id != excludingUserID {
			c.Unread[id]++
		}
	}
}

// DecrementUnread lowers a counter without letting it go negative.
func (c *Conversation) DecrementUnread(userID string, by int) {
	if c.Unread == nil || by <= 0 {
		return
	}
	c.Unread[userID] = max(0, c.Unread[userID]-by)
}

func (c *Conversation) SetUnread(userID string, value int) {
	if c.Unread == nil {
		c.Unread = make(map[string]int, len(c.Participants))
	}
	c.Unread[userID] = max(0, value)
}

// ChangeStatus moves the conversation to status on behalf of actor. It
// reports whether anything changed. Once blocked, only the participant who
// blocked the conversation may move it to another status.
func (c *Conversation) ChangeStatus(actorID string, status ConversationStatus, at time.Time) (bool, error) {
	if !c.HasParticipant(actorID) {
		return false, ErrNotParticipant
	}
	switch status {
	case StatusActive, StatusArchived, StatusBlocked:
	default:
		return false, ErrInvalidStatus
	}
	if c.Status == status {
		return false, nil
	}
	if c.Status == StatusBlocked && c.BlockedBy != "" && c.BlockedBy != actorID {
		return false, ErrBlockedByOther
	}
	from := c.Status
	c.Status = status
	c.BlockedBy = ""
	if status == StatusBlocked {
		c.BlockedBy = actorID
	}
	c.UpdatedAt = at.UTC()
	c.Record(ConversationStatusChanged{
		ConversationID: c.ID,
		ActorID:        actorID,
		From:           from,
		To:             status,
		At:             c.UpdatedAt,
	})
	return true, nil
}

// Clone returns a deep copy without pending events.
func (c *Conversation) Clone() *Conversation {
	if c == nil {
		return nil
	}
	out := &Conversation{
		ID:           c.ID,
		Participants: slices.Clone(c.Participants),
		PropertyID:   c.PropertyID,
		BookingID:    c.BookingID,
		Status:       c.Status,
		BlockedBy:    c.BlockedBy,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
	if c.LastMessage != nil {
		last := *c.LastMessage
		out.LastMessage = &last
	}
	if c.Unread != nil {
		out.Unread = make(map[string]int, len(c.Unread))
		for k, v := range c.Unread {
			out.Unread[k] = v
		}
	}
	return out
}
