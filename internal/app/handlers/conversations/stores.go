package conversations

import (
	"context"
	"time"

	"rentalhub/internal/app/uow"
	"rentalhub/internal/domain/messaging"
)

// ConversationStore applies conversation rules to the repository bound to a
// unit of work.
type ConversationStore struct {
	repo messaging.ConversationRepository
}

func NewConversationStore(unit uow.UnitOfWork) ConversationStore {
	return ConversationStore{repo: unit.Conversations()}
}

// Create returns the conversation with the same participant set if one
// exists, otherwise stores conv.
func (s ConversationStore) Create(ctx context.Context, conv *messaging.Conversation) (*messaging.Conversation, bool, error) {
	if len(conv.Participants) < 2 {
		return nil, false, messaging.ErrTooFewParticipants
	}
	return s.repo.CreateOrGet(ctx, conv)
}

// LoadFor loads a conversation userID participates in.
func (s ConversationStore) LoadFor(ctx context.Context, id messaging.ConversationID, userID string) (*messaging.Conversation, error) {
	conv, err := s.repo.ByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(userID) {
		return nil, messaging.ErrNotParticipant
	}
	return conv, nil
}

func (s ConversationStore) FindForUser(ctx context.Context, query messaging.ConversationQuery) (messaging.ConversationPage, error) {
	return s.repo.ListForUser(ctx, query)
}

func (s ConversationStore) SetUnread(ctx context.Context, id messaging.ConversationID, userID string, value int) error {
	return s.repo.SetUnread(ctx, id, userID, max(0, value))
}

func (s ConversationStore) IncrementUnread(ctx context.Context, id messaging.ConversationID, excludingUserID string) error {
	return s.repo.IncrementUnread(ctx, id, excludingUserID)
}

func (s ConversationStore) Archive(ctx context.Context, id messaging.ConversationID, userID string, at time.Time) (*messaging.Conversation, bool, error) {
	return s.ChangeStatus(ctx, id, userID, messaging.StatusArchived, at)
}

func (s ConversationStore) ChangeStatus(ctx context.Context, id messaging.ConversationID, userID string, status messaging.ConversationStatus, at time.Time) (*messaging.Conversation, bool, error) {
	conv, err := s.repo.ByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	changed, err := conv.ChangeStatus(userID, status, at)
	if err != nil || !changed {
		return conv, false, err
	}
	if err := s.repo.SetStatus(ctx, id, status, conv.BlockedBy, at); err != nil {
		return nil, false, err
	}
	return conv, true, nil
}

// ApplyMessage moves the last-message pointer and bumps recipients' unread
// counters for a freshly appended message.
func (s ConversationStore) ApplyMessage(ctx context.Context, conv *messaging.Conversation, msg *messaging.Message) error {
	last := messaging.LastMessage{
		ID:        msg.ID,
		SenderID:  msg.SenderID,
		Preview:   messaging.Preview(msg.Content, msg.Attachments),
		CreatedAt: msg.CreatedAt,
	}
	if err := s.repo.SetLastMessage(ctx, conv.ID, last); err != nil {
		return err
	}
	if err := s.repo.IncrementUnread(ctx, conv.ID, msg.SenderID); err != nil {
		return err
	}
	if conv.Status == messaging.StatusArchived {
		if err := s.repo.SetStatus(ctx, conv.ID, messaging.StatusActive, "", msg.CreatedAt); err != nil {
			return err
		}
	}
	conv.ApplyMessage(msg)
	return nil
}

// ReadOutcome lists the messages that gained a receipt in one read pass.
type ReadOutcome struct {
	IDs []messaging.MessageID
	At  time.Time
}

// MessageStore keeps messages and their read markers.
type MessageStore struct {
	conversations messaging.ConversationRepository
	messages      messaging.MessageRepository
}

func NewMessageStore(unit uow.UnitOfWork) MessageStore {
	return MessageStore{conversations: unit.Conversations(), messages: unit.Messages()}
}

// Append stores msg after checking that the conversation exists and accepts
// the sender. The loaded conversation is returned for follow-up updates.
func (s MessageStore) Append(ctx context.Context, msg *messaging.Message) (*messaging.Conversation, error) {
	conv, err := s.conversations.ByID(ctx, msg.ConversationID)
	if err != nil {
		return nil, err
	}
	if err := conv.Accept(msg); err != nil {
		return nil, err
	}
	if err := s.messages.Append(ctx, msg); err != nil {
		return nil, err
	}
	return conv, nil
}

// Remove deletes a message that could not be fully applied.
func (s MessageStore) Remove(ctx context.Context, id messaging.MessageID) error {
	return s.messages.Remove(ctx, id)
}

// ListForConversation marks everything viewerID has not read yet as read,
// resets the viewer's unread counter to zero and returns the requested page.
func (s MessageStore) ListForConversation(ctx context.Context, conv *messaging.Conversation, query messaging.MessageQuery, at time.Time) (messaging.MessagePage, ReadOutcome, error) {
	outcome, err := s.MarkAllRead(ctx, conv, query.ViewerID, at)
	if err != nil {
		return messaging.MessagePage{}, ReadOutcome{}, err
	}
	page, err := s.messages.ListForConversation(ctx, conv.ID, query)
	if err != nil {
		return messaging.MessagePage{}, ReadOutcome{}, err
	}
	return page, outcome, nil
}

// MarkRead records receipts for ids. Marking an already-read message is a
// no-op.
func (s MessageStore) MarkRead(ctx context.Context, conv *messaging.Conversation, ids []messaging.MessageID, userID string, at time.Time) (ReadOutcome, error) {
	newly, err := s.messages.MarkRead(ctx, conv.ID, ids, userID, at)
	if err != nil {
		return ReadOutcome{}, err
	}
	if len(newly) == 0 {
		return ReadOutcome{At: at}, nil
	}
	if _, err := s.messages.RefreshStatus(ctx, conv.ID, newly, conv.Participants, at); err != nil {
		return ReadOutcome{}, err
	}
	if err := s.conversations.DecrementUnread(ctx, conv.ID, userID, len(newly)); err != nil {
		return ReadOutcome{}, err
	}
	conv.DecrementUnread(userID, len(newly))
	return ReadOutcome{IDs: newly, At: at}, nil
}

// MarkAllRead reads every visible message and resets the reader's counter.
func (s MessageStore) MarkAllRead(ctx context.Context, conv *messaging.Conversation, userID string, at time.Time) (ReadOutcome, error) {
	outcome, err := s.markUnread(ctx, conv, userID, at)
	if err != nil {
		return ReadOutcome{}, err
	}
	if err := s.conversations.SetUnread(ctx, conv.ID, userID, 0); err != nil {
		return ReadOutcome{}, err
	}
	conv.SetUnread(userID, 0)
	return outcome, nil
}

// Hide removes a message from userID's view. An unread message is read first
// so the reader's counter stays in step.
func (s MessageStore) Hide(ctx context.Context, conv *messaging.Conversation, id messaging.MessageID, userID string, at time.Time) error {
	msg, err := s.messages.ByID(ctx, id)
	if err != nil {
		return err
	}
	if msg.ConversationID != conv.ID {
		return messaging.ErrMessageNotFound
	}
	if !msg.ReadByUser(userID) {
		if _, err := s.MarkRead(ctx, conv, []messaging.MessageID{id}, userID, at); err != nil {
			return err
		}
	}
	return s.messages.HideFor(ctx, id, userID, at)
}

func (s MessageStore) markUnread(ctx context.Context, conv *messaging.Conversation, userID string, at time.Time) (ReadOutcome, error) {
	unread, err := s.messages.UnreadIDs(ctx, conv.ID, userID)
	if err != nil {
		return ReadOutcome{}, err
	}
	if len(unread) == 0 {
		return ReadOutcome{At: at}, nil
	}
	newly, err := s.messages.MarkRead(ctx, conv.ID, unread, userID, at)
	if err != nil {
		return ReadOutcome{}, err
	}
	if len(newly) > 0 {
		if _, err := s.messages.RefreshStatus(ctx, conv.ID, newly, conv.Participants, at); err != nil {
			return ReadOutcome{}, err
		}
	}
	return ReadOutcome{IDs: newly, At: at}, nil
}
