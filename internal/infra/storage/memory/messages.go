package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"rentalhub/internal/domain/messaging"
)

// MessageRepository keeps messages in process memory.
type MessageRepository struct {
	mu    sync.RWMutex
	items map[messaging.MessageID]*messaging.Message
}

func NewMessageRepository() *MessageRepository {
	return &MessageRepository{items: make(map[messaging.MessageID]*messaging.Message)}
}

func (r *MessageRepository) Append(ctx context.Context, msg *messaging.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[msg.ID] = msg.Clone()
	return nil
}

func (r *MessageRepository) ByID(ctx context.Context, id messaging.MessageID) (*messaging.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	msg, ok := r.items[id]
	if !ok {
		return nil, messaging.ErrMessageNotFound
	}
	return msg.Clone(), nil
}

func (r *MessageRepository) ListForConversation(ctx context.Context, id messaging.ConversationID, query messaging.MessageQuery) (messaging.MessagePage, error) {
	r.mu.RLock()
	matched := make([]*messaging.Message, 0)
	for _, msg := range r.items {
		if msg.ConversationID != id || msg.HiddenFor(query.ViewerID) {
			continue
		}
		if query.Before != nil && !query.Before.Precedes(msg) {
			continue
		}
		matched = append(matched, msg.Clone())
	}
	r.mu.RUnlock()

	slices.SortFunc(matched, messaging.NewestFirst)
	items, hasMore := paginate(matched, query.Offset(), query.Limit)
	return messaging.MessagePage{Items: items, HasMore: hasMore}, nil
}

func (r *MessageRepository) UnreadIDs(ctx context.Context, id messaging.ConversationID, userID string) ([]messaging.MessageID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]messaging.MessageID, 0)
	for _, msg := range r.items {
		if msg.ConversationID == id && !msg.ReadByUser(userID) && !msg.HiddenFor(userID) {
			out = append(out, msg.ID)
		}
	}
	slices.Sort(out)
	return out, nil
}

func (r *MessageRepository) MarkRead(ctx context.Context, id messaging.ConversationID, ids []messaging.MessageID, userID string, at time.Time) ([]messaging.MessageID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	newly := make([]messaging.MessageID, 0, len(ids))
	for _, mid := range ids {
		msg, ok := r.items[mid]
		if !ok || msg.ConversationID != id {
			continue
		}
		if msg.MarkRead(userID, at) {
			newly = append(newly, mid)
		}
	}
	return newly, nil
}

func (r *MessageRepository) RefreshStatus(ctx context.Context, id messaging.ConversationID, ids []messaging.MessageID, participants []string, at time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	changed := 0
	for _, mid := range ids {
		msg, ok := r.items[mid]
		if !ok || msg.ConversationID != id {
			continue
		}
		if msg.RefreshStatus(participants) {
			msg.UpdatedAt = at.UTC()
			changed++
		}
	}
	return changed, nil
}

func (r *MessageRepository) MarkDelivered(ctx context.Context, id messaging.MessageID, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	msg, ok := r.items[id]
	if !ok {
		return false, messaging.ErrMessageNotFound
	}
	if msg.Status != messaging.DeliverySent {
		return false, nil
	}
	msg.Promote(messaging.DeliveryDelivered)
	msg.UpdatedAt = at.UTC()
	return true, nil
}

func (r *MessageRepository) HideFor(ctx context.Context, id messaging.MessageID, userID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	msg, ok := r.items[id]
	if !ok {
		return messaging.ErrMessageNotFound
	}
	if msg.HideFor(userID) {
		msg.UpdatedAt = at.UTC()
	}
	return nil
}

func (r *MessageRepository) Remove(ctx context.Context, id messaging.MessageID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, id)
	return nil
}

var _ messaging.MessageRepository = (*MessageRepository)(nil)
