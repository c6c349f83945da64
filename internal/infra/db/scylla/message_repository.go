package scylla

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/gocql/gocql"

	"rentalhub/internal/domain/messaging"
)

const pageSize = 200

// MessageRepository keeps messages in a per-conversation partition ordered
// newest first, with messages_by_id resolving a bare id to its clustering
// key.
type MessageRepository struct {
	session *gocql.Session
}

func NewMessageRepository(session *gocql.Session) *MessageRepository {
	return &MessageRepository{session: session}
}

func (r *MessageRepository) Append(ctx context.Context, msg *messaging.Message) error {
	row := newMessageRow(msg)
	batch := r.session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	batch.Query(`INSERT INTO messages (`+messageColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, row.values()...)
	batch.Query(`INSERT INTO messages_by_id (message_id, conversation_id, created_at) VALUES (?, ?, ?)`,
		row.ID, row.ConversationID, row.CreatedAt)
	return classify(r.session.ExecuteBatch(batch), "scylla: append message")
}

func (r *MessageRepository) ByID(ctx context.Context, id messaging.MessageID) (*messaging.Message, error) {
	var (
		convID    string
		createdAt time.Time
	)
	err := r.session.Query(`SELECT conversation_id, created_at FROM messages_by_id WHERE message_id = ?`, string(id)).
		WithContext(ctx).Scan(&convID, &createdAt)
	if errors.Is(err, gocql.ErrNotFound) {
		return nil, messaging.ErrMessageNotFound
	}
	if err != nil {
		return nil, classify(err, "scylla: resolve message")
	}
	return r.load(ctx, convID, createdAt, string(id))
}

// ListForConversation walks the partition in clustering order. Hidden
// messages are filtered here because CQL cannot express "set does not
// contain".
func (r *MessageRepository) ListForConversation(ctx context.Context, id messaging.ConversationID, query messaging.MessageQuery) (messaging.MessagePage, error) {
	var q *gocql.Query
	if query.Before != nil {
		q = r.session.Query(`SELECT `+messageColumns+` FROM messages WHERE conversation_id = ? AND (created_at, message_id) < (?, ?)`,
			string(id), query.Before.At.UTC(), string(query.Before.ID))
	} else {
		q = r.session.Query(`SELECT `+messageColumns+` FROM messages WHERE conversation_id = ?`, string(id))
	}
	iter := q.WithContext(ctx).PageSize(pageSize).Iter()

	skip := query.Offset()
	items := make([]*messaging.Message, 0)
	more := false
	var row messageRow
	for iter.Scan(row.dest()...) {
		msg := row.toDomain()
		row = messageRow{}
		if query.ViewerID != "" && msg.HiddenFor(query.ViewerID) {
			continue
		}
		if skip > 0 {
			skip--
			continue
		}
		if query.Limit > 0 && len(items) == query.Limit {
			more = true
			break
		}
		items = append(items, msg)
	}
	if err := iter.Close(); err != nil {
		return messaging.MessagePage{}, classify(err, "scylla: list messages")
	}
	return messaging.MessagePage{Items: items, HasMore: more}, nil
}

func (r *MessageRepository) UnreadIDs(ctx context.Context, id messaging.ConversationID, userID string) ([]messaging.MessageID, error) {
	iter := r.session.Query(`SELECT message_id, read_by, deleted_for FROM messages WHERE conversation_id = ?`, string(id)).
		WithContext(ctx).PageSize(pageSize).Iter()
	out := make([]messaging.MessageID, 0)
	var (
		mid        string
		readBy     map[string]time.Time
		deletedFor []string
	)
	for iter.Scan(&mid, &readBy, &deletedFor) {
		if _, read := readBy[userID]; !read && !slices.Contains(deletedFor, userID) {
			out = append(out, messaging.MessageID(mid))
		}
		readBy, deletedFor = nil, nil
	}
	if err := iter.Close(); err != nil {
		return nil, classify(err, "scylla: unread messages")
	}
	slices.Sort(out)
	return out, nil
}

func (r *MessageRepository) MarkRead(ctx context.Context, id messaging.ConversationID, ids []messaging.MessageID, userID string, at time.Time) ([]messaging.MessageID, error) {
	at = at.UTC()
	newly := make([]messaging.MessageID, 0, len(ids))
	for _, mid := range ids {
		msg, err := r.ByID(ctx, mid)
		if errors.Is(err, messaging.ErrMessageNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if msg.ConversationID != id || msg.ReadByUser(userID) {
			continue
		}
		if err := r.session.Query(`UPDATE messages SET read_by[?] = ?, updated_at = ? WHERE conversation_id = ? AND created_at = ? AND message_id = ?`,
			userID, at, at, string(id), msg.CreatedAt, string(mid)).WithContext(ctx).Exec(); err != nil {
			return nil, classify(err, "scylla: mark read")
		}
		newly = append(newly, mid)
	}
	return newly, nil
}

func (r *MessageRepository) RefreshStatus(ctx context.Context, id messaging.ConversationID, ids []messaging.MessageID, participants []string, at time.Time) (int, error) {
	changed := 0
	for _, mid := range ids {
		msg, err := r.ByID(ctx, mid)
		if errors.Is(err, messaging.ErrMessageNotFound) {
			continue
		}
		if err != nil {
			return changed, err
		}
		if msg.ConversationID != id || !msg.RefreshStatus(participants) {
			continue
		}
		if err := r.setStatus(ctx, msg, at); err != nil {
			return changed, err
		}
		changed++
	}
	return changed, nil
}

// MarkDelivered uses a conditional update so a concurrent READ promotion is
// never overwritten.
func (r *MessageRepository) MarkDelivered(ctx context.Context, id messaging.MessageID, at time.Time) (bool, error) {
	msg, err := r.ByID(ctx, id)
	if err != nil {
		return false, err
	}
	if msg.Status != messaging.DeliverySent {
		return false, nil
	}
	applied, err := r.session.Query(`UPDATE messages SET status = ?, updated_at = ? WHERE conversation_id = ? AND created_at = ? AND message_id = ? IF status = ?`,
		string(messaging.DeliveryDelivered), at.UTC(), string(msg.ConversationID), msg.CreatedAt, string(id), string(messaging.DeliverySent)).
		WithContext(ctx).MapScanCAS(map[string]any{})
	if err != nil {
		return false, classify(err, "scylla: mark delivered")
	}
	return applied, nil
}

func (r *MessageRepository) HideFor(ctx context.Context, id messaging.MessageID, userID string, at time.Time) error {
	msg, err := r.ByID(ctx, id)
	if err != nil {
		return err
	}
	if msg.HiddenFor(userID) {
		return nil
	}
	return classify(r.session.Query(`UPDATE messages SET deleted_for = deleted_for + ?, updated_at = ? WHERE conversation_id = ? AND created_at = ? AND message_id = ?`,
		[]string{userID}, at.UTC(), string(msg.ConversationID), msg.CreatedAt, string(id)).WithContext(ctx).Exec(), "scylla: hide message")
}

func (r *MessageRepository) Remove(ctx context.Context, id messaging.MessageID) error {
	msg, err := r.ByID(ctx, id)
	if errors.Is(err, messaging.ErrMessageNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	batch := r.session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	batch.Query(`DELETE FROM messages WHERE conversation_id = ? AND created_at = ? AND message_id = ?`,
		string(msg.ConversationID), msg.CreatedAt, string(id))
	batch.Query(`DELETE FROM messages_by_id WHERE message_id = ?`, string(id))
	return classify(r.session.ExecuteBatch(batch), "scylla: remove message")
}

func (r *MessageRepository) load(ctx context.Context, convID string, createdAt time.Time, id string) (*messaging.Message, error) {
	var row messageRow
	err := r.session.Query(`SELECT `+messageColumns+` FROM messages WHERE conversation_id = ? AND created_at = ? AND message_id = ?`,
		convID, createdAt, id).WithContext(ctx).Scan(row.dest()...)
	if errors.Is(err, gocql.ErrNotFound) {
		return nil, messaging.ErrMessageNotFound
	}
	if err != nil {
		return nil, classify(err, "scylla: load message")
	}
	return row.toDomain(), nil
}

func (r *MessageRepository) setStatus(ctx context.Context, msg *messaging.Message, at time.Time) error {
	return classify(r.session.Query(`UPDATE messages SET status = ?, updated_at = ? WHERE conversation_id = ? AND created_at = ? AND message_id = ?`,
		string(msg.Status), at.UTC(), string(msg.ConversationID), msg.CreatedAt, string(msg.ID)).WithContext(ctx).Exec(), "scylla: set status")
}

var _ messaging.MessageRepository = (*MessageRepository)(nil)
