package conversations

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"rentalhub/internal/app/dto"
	"rentalhub/internal/app/outbox"
	"rentalhub/internal/app/policies"
	"rentalhub/internal/app/uow"
	"rentalhub/internal/domain/messaging"
	"rentalhub/internal/domain/shared/events"
)

const (
	defaultConversationLimit = 20
	defaultMessageLimit      = 50
	maxPageLimit             = 100
	defaultNotifyTimeout     = 10 * time.Second
)

var errServiceNotConfigured = errors.New("conversations: service not configured")

// Service orchestrates conversation writes and the live notifications that
// follow them. Broadcasts and offline notifications only run after the unit
// of work commits.
type Service struct {
	UoWFactory    uow.UoWFactory
	Broadcaster   policies.Broadcaster
	Presence      policies.Presence
	Notifier      policies.Notifier
	Outbox        outbox.Outbox
	Encoder       outbox.EventEncoder
	Logger        *slog.Logger
	Clock         func() time.Time
	NewID         func() string
	NotifyTimeout time.Duration
}

func (s *Service) ensureDependencies() error {
	if s == nil || s.UoWFactory == nil {
		return errServiceNotConfigured
	}
	return nil
}

func (s *Service) now() time.Time {
	if s.Clock != nil {
		return s.Clock().UTC()
	}
	return time.Now().UTC()
}

func (s *Service) newID() string {
	if s.NewID != nil {
		return s.NewID()
	}
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func (s *Service) begin(ctx context.Context, readOnly bool) (*uow.Scope, error) {
	if err := s.ensureDependencies(); err != nil {
		return nil, err
	}
	return uow.Enter(ctx, s.UoWFactory, uow.TxOptions{ReadOnly: readOnly})
}

func (s *Service) CreateConversation(ctx context.Context, cmd CreateConversationCommand) (dto.Conversation, error) {
	now := s.now()
	conv, err := messaging.NewConversation(messaging.NewConversationParams{
		ID:           messaging.ConversationID(s.newID()),
		Participants: append([]string{cmd.CreatorID}, cmd.ParticipantIDs...),
		PropertyID:   cmd.PropertyID,
		BookingID:    cmd.BookingID,
		Group:        cmd.Group,
		CreatedAt:    now,
	})
	if err != nil {
		return dto.Conversation{}, err
	}
	scope, err := s.begin(ctx, false)
	if err != nil {
		return dto.Conversation{}, err
	}
	defer scope.Close()

	stored, created, err := NewConversationStore(scope.Unit).Create(scope.Ctx, conv)
	if err != nil {
		return dto.Conversation{}, err
	}
	if created {
		if err := s.recordEvents(scope.Ctx, conv.Pull()); err != nil {
			return dto.Conversation{}, err
		}
		snapshot := stored.Clone()
		scope.Unit.AfterCommit(func(ctx context.Context) {
			s.broadcastConversation(ctx, snapshot)
		})
	}
	if err := scope.Commit(); err != nil {
		return dto.Conversation{}, err
	}
	out := dto.ConversationFor(stored, cmd.CreatorID)
	out.Created = created
	return out, nil
}

func (s *Service) GetConversation(ctx context.Context, q GetConversationQuery) (dto.Conversation, error) {
	scope, err := s.begin(ctx, true)
	if err != nil {
		return dto.Conversation{}, err
	}
	defer scope.Close()

	conv, err := NewConversationStore(scope.Unit).LoadFor(scope.Ctx, messaging.ConversationID(q.ConversationID), q.UserID)
	if err != nil {
		return dto.Conversation{}, err
	}
	return dto.ConversationFor(conv, q.UserID), nil
}

func (s *Service) ListConversations(ctx context.Context, q ListConversationsQuery) (dto.ConversationList, error) {
	status, err := messaging.ParseStatus(q.Status)
	if err != nil {
		return dto.ConversationList{}, err
	}
	if q.Status == "" {
		status = messaging.StatusActive
	}
	page, limit := normalizePage(q.Page, q.Limit, defaultConversationLimit)

	scope, err := s.begin(ctx, true)
	if err != nil {
		return dto.ConversationList{}, err
	}
	defer scope.Close()

	result, err := NewConversationStore(scope.Unit).FindForUser(scope.Ctx, messaging.ConversationQuery{
		UserID: q.UserID,
		Status: status,
		Page:   page,
		Limit:  limit,
	})
	if err != nil {
		return dto.ConversationList{}, err
	}
	out := dto.ConversationList{
		Items:   make([]dto.Conversation, 0, len(result.Items)),
		Page:    page,
		Limit:   limit,
		Total:   result.Total,
		HasMore: result.HasMore,
	}
	for _, conv := range result.Items {
		out.Items = append(out.Items, dto.ConversationFor(conv, q.UserID))
	}
	return out, nil
}

// SendMessage appends a message and updates the conversation in one unit.
// A failed conversation update removes the appended message again.
func (s *Service) SendMessage(ctx context.Context, cmd SendMessageCommand) (dto.ChatMessage, error) {
	msg, err := messaging.NewMessage(messaging.NewMessageParams{
		ID:             messaging.MessageID(s.newID()),
		ConversationID: messaging.ConversationID(cmd.ConversationID),
		SenderID:       cmd.SenderID,
		Content:        cmd.Content,
		Attachments:    dto.AttachmentsToDomain(cmd.Attachments),
		CreatedAt:      s.now(),
	})
	if err != nil {
		return dto.ChatMessage{}, err
	}
	scope, err := s.begin(ctx, false)
	if err != nil {
		return dto.ChatMessage{}, err
	}
	defer scope.Close()

	messages := NewMessageStore(scope.Unit)
	conv, err := messages.Append(scope.Ctx, msg)
	if err != nil {
		return dto.ChatMessage{}, err
	}
	if err := NewConversationStore(scope.Unit).ApplyMessage(scope.Ctx, conv, msg); err != nil {
		if rmErr := messages.Remove(context.WithoutCancel(scope.Ctx), msg.ID); rmErr != nil {
			s.logWarn("compensation failed", "message_id", msg.ID, "err", rmErr)
		}
		return dto.ChatMessage{}, err
	}
	if err := s.recordEvents(scope.Ctx, conv.Pull()); err != nil {
		return dto.ChatMessage{}, err
	}
	snapshot, sent := conv.Clone(), msg.Clone()
	scope.Unit.AfterCommit(func(ctx context.Context) {
		s.afterSend(ctx, snapshot, sent)
	})
	if err := scope.Commit(); err != nil {
		return dto.ChatMessage{}, err
	}
	return dto.Message(msg), nil
}

// ListMessages returns a page of messages and marks everything the viewer
// had not read as read.
func (s *Service) ListMessages(ctx context.Context, cmd ListMessagesCommand) (dto.ChatMessageList, error) {
	page, limit := normalizePage(cmd.Page, cmd.Limit, defaultMessageLimit)
	query := messaging.MessageQuery{ViewerID: cmd.ViewerID, Page: page, Limit: limit}
	if cmd.Before != "" {
		cursor, err := messaging.ParseCursor(cmd.Before)
		if err != nil {
			return dto.ChatMessageList{}, err
		}
		query.Before = &cursor
		query.Page = 0
	}
	scope, err := s.begin(ctx, false)
	if err != nil {
		return dto.ChatMessageList{}, err
	}
	defer scope.Close()

	conv, err := NewConversationStore(scope.Unit).LoadFor(scope.Ctx, messaging.ConversationID(cmd.ConversationID), cmd.ViewerID)
	if err != nil {
		return dto.ChatMessageList{}, err
	}
	result, outcome, err := NewMessageStore(scope.Unit).ListForConversation(scope.Ctx, conv, query, s.now())
	if err != nil {
		return dto.ChatMessageList{}, err
	}
	if err := s.afterRead(scope, conv, cmd.ViewerID, outcome); err != nil {
		return dto.ChatMessageList{}, err
	}
	if err := scope.Commit(); err != nil {
		return dto.ChatMessageList{}, err
	}

	out := dto.ChatMessageList{
		Items:   make([]dto.ChatMessage, 0, len(result.Items)),
		Page:    query.Page,
		Limit:   limit,
		HasMore: result.HasMore,
	}
	for _, msg := range result.Items {
		out.Items = append(out.Items, dto.Message(msg))
	}
	if result.HasMore && len(result.Items) > 0 {
		out.NextCursor = result.Items[len(result.Items)-1].Cursor().String()
	}
	return out, nil
}

func (s *Service) MarkRead(ctx context.Context, cmd MarkReadCommand) (dto.ReadResult, error) {
	scope, err := s.begin(ctx, false)
	if err != nil {
		return dto.ReadResult{}, err
	}
	defer scope.Close()

	conv, err := NewConversationStore(scope.Unit).LoadFor(scope.Ctx, messaging.ConversationID(cmd.ConversationID), cmd.ReaderID)
	if err != nil {
		return dto.ReadResult{}, err
	}
	store := NewMessageStore(scope.Unit)
	now := s.now()
	var outcome ReadOutcome
	if len(cmd.MessageIDs) == 0 {
		outcome, err = store.MarkAllRead(scope.Ctx, conv, cmd.ReaderID, now)
	} else {
		ids := make([]messaging.MessageID, 0, len(cmd.MessageIDs))
		for _, id := range cmd.MessageIDs {
			ids = append(ids, messaging.MessageID(id))
		}
		outcome, err = store.MarkRead(scope.Ctx, conv, ids, cmd.ReaderID, now)
	}
	if err != nil {
		return dto.ReadResult{}, err
	}
	if err := s.afterRead(scope, conv, cmd.ReaderID, outcome); err != nil {
		return dto.ReadResult{}, err
	}
	if err := scope.Commit(); err != nil {
		return dto.ReadResult{}, err
	}
	return dto.ReadResult{
		ConversationID: string(conv.ID),
		ReaderID:       cmd.ReaderID,
		MessageIDs:     dto.MessageIDs(outcome.IDs),
		ReadAt:         now,
		UnreadCount:    conv.UnreadFor(cmd.ReaderID),
	}, nil
}

// ChangeStatus archives, restores or blocks a conversation for all of its
// participants.
func (s *Service) ChangeStatus(ctx context.Context, cmd ChangeStatusCommand) (dto.Conversation, error) {
	status, err := messaging.ParseStatus(cmd.Status)
	if err != nil {
		return dto.Conversation{}, err
	}
	if status == "" {
		return dto.Conversation{}, messaging.ErrInvalidStatus
	}
	scope, err := s.begin(ctx, false)
	if err != nil {
		return dto.Conversation{}, err
	}
	defer scope.Close()

	conv, changed, err := NewConversationStore(scope.Unit).ChangeStatus(scope.Ctx, messaging.ConversationID(cmd.ConversationID), cmd.UserID, status, s.now())
	if err != nil {
		return dto.Conversation{}, err
	}
	if changed {
		if err := s.recordEvents(scope.Ctx, conv.Pull()); err != nil {
			return dto.Conversation{}, err
		}
		snapshot := conv.Clone()
		scope.Unit.AfterCommit(func(ctx context.Context) {
			s.broadcastConversation(ctx, snapshot)
		})
	}
	if err := scope.Commit(); err != nil {
		return dto.Conversation{}, err
	}
	return dto.ConversationFor(conv, cmd.UserID), nil
}

func (s *Service) ArchiveConversation(ctx context.Context, userID, conversationID string) (dto.Conversation, error) {
	return s.ChangeStatus(ctx, ChangeStatusCommand{UserID: userID, ConversationID: conversationID, Status: string(messaging.StatusArchived)})
}

func (s *Service) UnarchiveConversation(ctx context.Context, userID, conversationID string) (dto.Conversation, error) {
	return s.ChangeStatus(ctx, ChangeStatusCommand{UserID: userID, ConversationID: conversationID, Status: string(messaging.StatusActive)})
}

func (s *Service) BlockConversation(ctx context.Context, userID, conversationID string) (dto.Conversation, error) {
	return s.ChangeStatus(ctx, ChangeStatusCommand{UserID: userID, ConversationID: conversationID, Status: string(messaging.StatusBlocked)})
}

// DeleteMessage hides a message from the caller's view only.
func (s *Service) DeleteMessage(ctx context.Context, cmd DeleteMessageCommand) (struct{}, error) {
	scope, err := s.begin(ctx, false)
	if err != nil {
		return struct{}{}, err
	}
	defer scope.Close()

	conv, err := NewConversationStore(scope.Unit).LoadFor(scope.Ctx, messaging.ConversationID(cmd.ConversationID), cmd.UserID)
	if err != nil {
		return struct{}{}, err
	}
	if err := NewMessageStore(scope.Unit).Hide(scope.Ctx, conv, messaging.MessageID(cmd.MessageID), cmd.UserID, s.now()); err != nil {
		return struct{}{}, err
	}
	return struct{}{}, scope.Commit()
}

// AuthorizeJoin checks that userID may subscribe to a conversation room.
func (s *Service) AuthorizeJoin(ctx context.Context, userID, conversationID string) error {
	scope, err := s.begin(ctx, true)
	if err != nil {
		return err
	}
	defer scope.Close()
	_, err = NewConversationStore(scope.Unit).LoadFor(scope.Ctx, messaging.ConversationID(conversationID), userID)
	return err
}

func (s *Service) afterRead(scope *uow.Scope, conv *messaging.Conversation, readerID string, outcome ReadOutcome) error {
	if len(outcome.IDs) == 0 {
		return nil
	}
	event := messaging.MessagesRead{ConversationID: conv.ID, ReaderID: readerID, MessageIDs: outcome.IDs, At: outcome.At}
	if err := s.recordEvents(scope.Ctx, []events.DomainEvent{event}); err != nil {
		return err
	}
	payload := dto.ReadResult{
		ConversationID: string(conv.ID),
		ReaderID:       readerID,
		MessageIDs:     dto.MessageIDs(outcome.IDs),
		ReadAt:         outcome.At,
		UnreadCount:    conv.UnreadFor(readerID),
	}
	view := dto.ConversationFor(conv, readerID)
	scope.Unit.AfterCommit(func(ctx context.Context) {
		s.broadcast(ctx, policies.ConversationRoom(payload.ConversationID), policies.EventMessagesRead, payload)
		s.broadcast(ctx, policies.UserRoom(readerID), policies.EventConversationUpdated, view)
	})
	return nil
}

func (s *Service) afterSend(ctx context.Context, conv *messaging.Conversation, msg *messaging.Message) {
	ctx = context.WithoutCancel(ctx)
	recipients := conv.Recipients(msg.SenderID)
	offline := make([]string, 0, len(recipients))
	for _, id := range recipients {
		if s.Presence == nil || !s.Presence.IsOnline(ctx, id) {
			offline = append(offline, id)
		}
	}
	if len(offline) < len(recipients) && s.markDelivered(ctx, msg) {
		msg.Promote(messaging.DeliveryDelivered)
	}
	s.broadcast(ctx, policies.ConversationRoom(string(conv.ID)), policies.EventNewMessage, dto.Message(msg))
	s.broadcastConversation(ctx, conv)

	summary := policies.MessageSummary{
		MessageID: string(msg.ID),
		SenderID:  msg.SenderID,
		Preview:   messaging.Preview(msg.Content, msg.Attachments),
	}
	for _, id := range offline {
		s.notify(ctx, id, string(conv.ID), summary)
	}
}

func (s *Service) markDelivered(ctx context.Context, msg *messaging.Message) bool {
	scope, err := s.begin(ctx, false)
	if err != nil {
		s.logWarn("mark delivered", "message_id", msg.ID, "err", err)
		return false
	}
	defer scope.Close()
	changed, err := scope.Unit.Messages().MarkDelivered(scope.Ctx, msg.ID, s.now())
	if err == nil {
		err = scope.Commit()
	}
	if err != nil {
		s.logWarn("mark delivered", "message_id", msg.ID, "err", err)
		return false
	}
	return changed
}

func (s *Service) broadcastConversation(ctx context.Context, conv *messaging.Conversation) {
	for _, id := range conv.Participants {
		s.broadcast(ctx, policies.UserRoom(id), policies.EventConversationUpdated, dto.ConversationFor(conv, id))
	}
}

func (s *Service) broadcast(ctx context.Context, room, event string, payload any) {
	if s.Broadcaster == nil {
		return
	}
	s.Broadcaster.Broadcast(ctx, room, event, payload)
}

// notify runs detached; failures are logged and never reach the sender.
func (s *Service) notify(ctx context.Context, recipientID, conversationID string, summary policies.MessageSummary) {
	if s.Notifier == nil {
		return
	}
	timeout := s.NotifyTimeout
	if timeout <= 0 {
		timeout = defaultNotifyTimeout
	}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				s.logWarn("notifier panic", "recipient_id", recipientID, "panic", r)
			}
		}()
		nctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		if err := s.Notifier.Notify(nctx, recipientID, conversationID, summary); err != nil {
			s.logWarn("offline notification failed", "recipient_id", recipientID, "conversation_id", conversationID, "err", err)
		}
	}()
}

func (s *Service) recordEvents(ctx context.Context, evs []events.DomainEvent) error {
	if s.Outbox == nil {
		return nil
	}
	return outbox.RecordDomainEvents(ctx, s.Outbox, s.Encoder, evs)
}

func (s *Service) logWarn(msg string, args ...any) {
	if s.Logger != nil {
		s.Logger.Warn(msg, args...)
	}
}

func normalizePage(page, limit, def int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = def
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	return page, limit
}
