package scylla

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"time"

	"github.com/gocql/gocql"

	"rentalhub/internal/domain/messaging"
)

const conversationColumns = `id, participants, participants_key, property_id, booking_id, status, blocked_by,
	last_message_id, last_message_sender_id, last_message_preview, last_message_at, created_at, updated_at`

// ConversationRepository stores conversations in Scylla. Participant sets
// are claimed with a lightweight transaction on conversations_by_key.
type ConversationRepository struct {
	session *gocql.Session
	logger  *slog.Logger
}

func NewConversationRepository(session *gocql.Session, logger *slog.Logger) *ConversationRepository {
	return &ConversationRepository{session: session, logger: logger}
}

func (r *ConversationRepository) CreateOrGet(ctx context.Context, conv *messaging.Conversation) (*messaging.Conversation, bool, error) {
	row := newConversationRow(conv)
	if err := r.session.Query(`INSERT INTO conversations (`+conversationColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		row.values()...).WithContext(ctx).Exec(); err != nil {
		return nil, false, classify(err, "scylla: insert conversation")
	}

	existing := map[string]any{}
	applied, err := r.session.Query(`INSERT INTO conversations_by_key (participants_key, conversation_id) VALUES (?, ?) IF NOT EXISTS`,
		row.ParticipantsKey, row.ID).WithContext(ctx).MapScanCAS(existing)
	if err != nil {
		return nil, false, classify(err, "scylla: claim participants")
	}
	if !applied {
		if err := r.session.Query(`DELETE FROM conversations WHERE id = ?`, row.ID).WithContext(ctx).Exec(); err != nil {
			r.logWarn("drop losing conversation row", "conversation_id", row.ID, "err", err)
		}
		winner, _ := existing["conversation_id"].(string)
		stored, err := r.ByID(ctx, messaging.ConversationID(winner))
		if err != nil {
			return nil, false, err
		}
		return stored, false, nil
	}

	batch := r.session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	for _, p := range conv.Participants {
		batch.Query(`INSERT INTO conversations_by_user (user_id, conversation_id) VALUES (?, ?)`, p, row.ID)
	}
	if err := r.session.ExecuteBatch(batch); err != nil {
		return nil, false, classify(err, "scylla: index conversation")
	}
	return conv.Clone(), true, nil
}

func (r *ConversationRepository) ByID(ctx context.Context, id messaging.ConversationID) (*messaging.Conversation, error) {
	var row conversationRow
	if err := r.session.Query(`SELECT `+conversationColumns+` FROM conversations WHERE id = ? LIMIT 1`, string(id)).
		WithContext(ctx).Scan(row.dest()...); err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return nil, messaging.ErrConversationNotFound
		}
		return nil, classify(err, "scylla: load conversation")
	}
	unread, err := r.unread(ctx, id)
	if err != nil {
		return nil, err
	}
	return row.toDomain(unread), nil
}

// ListForUser reads the user's index partition, loads every conversation and
// sorts in process; a participant's inbox is small enough for that.
func (r *ConversationRepository) ListForUser(ctx context.Context, query messaging.ConversationQuery) (messaging.ConversationPage, error) {
	iter := r.session.Query(`SELECT conversation_id FROM conversations_by_user WHERE user_id = ?`, query.UserID).
		WithContext(ctx).Iter()
	var (
		id  string
		ids []string
	)
	for iter.Scan(&id) {
		ids = append(ids, id)
	}
	if err := iter.Close(); err != nil {
		return messaging.ConversationPage{}, classify(err, "scylla: list conversation ids")
	}

	matched := make([]*messaging.Conversation, 0, len(ids))
	for _, id := range ids {
		conv, err := r.ByID(ctx, messaging.ConversationID(id))
		if errors.Is(err, messaging.ErrConversationNotFound) {
			continue
		}
		if err != nil {
			return messaging.ConversationPage{}, err
		}
		if query.Status != "" && conv.Status != query.Status {
			continue
		}
		matched = append(matched, conv)
	}
	slices.SortFunc(matched, recentFirst)
	items, more := paginate(matched, query.Offset(), query.Limit)
	return messaging.ConversationPage{Items: items, Total: len(matched), HasMore: more}, nil
}

func (r *ConversationRepository) SetLastMessage(ctx context.Context, id messaging.ConversationID, last messaging.LastMessage) error {
	updatedAt, err := r.updatedAt(ctx, id)
	if err != nil {
		return err
	}
	return classify(r.session.Query(`UPDATE conversations SET last_message_id = ?, last_message_sender_id = ?, last_message_preview = ?,
		last_message_at = ?, updated_at = ? WHERE id = ?`,
		string(last.ID), last.SenderID, last.Preview, last.CreatedAt.UTC(), latest(updatedAt, last.CreatedAt), string(id)).
		WithContext(ctx).Exec(), "scylla: set last message")
}

func (r *ConversationRepository) IncrementUnread(ctx context.Context, id messaging.ConversationID, excludingUserID string) error {
	conv, err := r.ByID(ctx, id)
	if err != nil {
		return err
	}
	recipients := conv.Recipients(excludingUserID)
	if len(recipients) == 0 {
		return nil
	}
	batch := r.session.NewBatch(gocql.CounterBatch).WithContext(ctx)
	for _, p := range recipients {
		batch.Query(`UPDATE conversation_unread SET unread = unread + 1 WHERE conversation_id = ? AND user_id = ?`, string(id), p)
	}
	return classify(r.session.ExecuteBatch(batch), "scylla: increment unread")
}

// DecrementUnread reads the counter first so it never goes below zero.
// Counters have no conditional updates, so two concurrent readers may both
// observe the same value; the next full read resets it.
func (r *ConversationRepository) DecrementUnread(ctx context.Context, id messaging.ConversationID, userID string, by int) error {
	if by <= 0 {
		return nil
	}
	current, err := r.counter(ctx, id, userID)
	if err != nil {
		return err
	}
	return r.addUnread(ctx, id, userID, -min(current, int64(by)))
}

func (r *ConversationRepository) SetUnread(ctx context.Context, id messaging.ConversationID, userID string, value int) error {
	current, err := r.counter(ctx, id, userID)
	if err != nil {
		return err
	}
	return r.addUnread(ctx, id, userID, int64(max(0, value))-current)
}

func (r *ConversationRepository) SetStatus(ctx context.Context, id messaging.ConversationID, status messaging.ConversationStatus, blockedBy string, at time.Time) error {
	updatedAt, err := r.updatedAt(ctx, id)
	if err != nil {
		return err
	}
	return classify(r.session.Query(`UPDATE conversations SET status = ?, blocked_by = ?, updated_at = ? WHERE id = ?`,
		string(status), blockedBy, latest(updatedAt, at), string(id)).WithContext(ctx).Exec(), "scylla: set status")
}

func (r *ConversationRepository) unread(ctx context.Context, id messaging.ConversationID) (map[string]int, error) {
	iter := r.session.Query(`SELECT user_id, unread FROM conversation_unread WHERE conversation_id = ?`, string(id)).
		WithContext(ctx).Iter()
	out := make(map[string]int)
	var (
		user  string
		count int64
	)
	for iter.Scan(&user, &count) {
		out[user] = int(max(0, count))
	}
	if err := iter.Close(); err != nil {
		return nil, classify(err, "scylla: load unread")
	}
	return out, nil
}

func (r *ConversationRepository) counter(ctx context.Context, id messaging.ConversationID, userID string) (int64, error) {
	if _, err := r.updatedAt(ctx, id); err != nil {
		return 0, err
	}
	var count int64
	err := r.session.Query(`SELECT unread FROM conversation_unread WHERE conversation_id = ? AND user_id = ?`, string(id), userID).
		WithContext(ctx).Scan(&count)
	if errors.Is(err, gocql.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, classify(err, "scylla: load unread")
	}
	return max(0, count), nil
}

func (r *ConversationRepository) addUnread(ctx context.Context, id messaging.ConversationID, userID string, delta int64) error {
	if delta == 0 {
		return nil
	}
	return classify(r.session.Query(`UPDATE conversation_unread SET unread = unread + ? WHERE conversation_id = ? AND user_id = ?`,
		delta, string(id), userID).WithContext(ctx).Exec(), "scylla: update unread")
}

func (r *ConversationRepository) updatedAt(ctx context.Context, id messaging.ConversationID) (time.Time, error) {
	var at time.Time
	err := r.session.Query(`SELECT updated_at FROM conversations WHERE id = ?`, string(id)).WithContext(ctx).Scan(&at)
	if errors.Is(err, gocql.ErrNotFound) {
		return time.Time{}, messaging.ErrConversationNotFound
	}
	if err != nil {
		return time.Time{}, classify(err, "scylla: load conversation")
	}
	return at, nil
}

func (r *ConversationRepository) logWarn(msg string, args ...any) {
	if r.logger != nil {
		r.logger.Warn(msg, args...)
	}
}

var _ messaging.ConversationRepository = (*ConversationRepository)(nil)
