package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"rentalhub/internal/domain/messaging"
)

// ConversationRepository keeps conversations in process memory.
type ConversationRepository struct {
	mu    sync.RWMutex
	items map[messaging.ConversationID]*messaging.Conversation
	byKey map[string]messaging.ConversationID
}

func NewConversationRepository() *ConversationRepository {
	return &ConversationRepository{
		items: make(map[messaging.ConversationID]*messaging.Conversation),
		byKey: make(map[string]messaging.ConversationID),
	}
}

func (r *ConversationRepository) CreateOrGet(ctx context.Context, conv *messaging.Conversation) (*messaging.Conversation, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.byKey[conv.Key()]; ok {
		return r.items[id].Clone(), false, nil
	}
	r.items[conv.ID] = conv.Clone()
	r.byKey[conv.Key()] = conv.ID
	return conv.Clone(), true, nil
}

func (r *ConversationRepository) ByID(ctx context.Context, id messaging.ConversationID) (*messaging.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conv, ok := r.items[id]
	if !ok {
		return nil, messaging.ErrConversationNotFound
	}
	return conv.Clone(), nil
}

func (r *ConversationRepository) ListForUser(ctx context.Context, query messaging.ConversationQuery) (messaging.ConversationPage, error) {
	r.mu.RLock()
	matched := make([]*messaging.Conversation, 0)
	for _, conv := range r.items {
		if !conv.HasParticipant(query.UserID) {
			continue
		}
		if query.Status != "" && conv.Status != query.Status {
			continue
		}
		matched = append(matched, conv.Clone())
	}
	r.mu.RUnlock()

	slices.SortFunc(matched, func(a, b *messaging.Conversation) int {
		if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
			return c
		}
		if b.ID > a.ID {
			return 1
		}
		if b.ID < a.ID {
			return -1
		}
		return 0
	})
	items, hasMore := paginate(matched, query.Offset(), query.Limit)
	return messaging.ConversationPage{Items: items, Total: len(matched), HasMore: hasMore}, nil
}

func (r *ConversationRepository) SetLastMessage(ctx context.Context, id messaging.ConversationID, last messaging.LastMessage) error {
	return r.update(id, func(conv *messaging.Conversation) {
		conv.SetLastMessage(last)
	})
}

func (r *ConversationRepository) IncrementUnread(ctx context.Context, id messaging.ConversationID, excludingUserID string) error {
	return r.update(id, func(conv *messaging.Conversation) {
		conv.IncrementUnread(excludingUserID)
	})
}

func (r *ConversationRepository) DecrementUnread(ctx context.Context, id messaging.ConversationID, userID string, by int) error {
	return r.update(id, func(conv *messaging.Conversation) {
		conv.DecrementUnread(userID, by)
	})
}

func (r *ConversationRepository) SetUnread(ctx context.Context, id messaging.ConversationID, userID string, value int) error {
	return r.update(id, func(conv *messaging.Conversation) {
		conv.SetUnread(userID, value)
	})
}

func (r *ConversationRepository) SetStatus(ctx context.Context, id messaging.ConversationID, status messaging.ConversationStatus, blockedBy string, at time.Time) error {
	return r.update(id, func(conv *messaging.Conversation) {
		conv.Status = status
		conv.BlockedBy = blockedBy
		if at.After(conv.UpdatedAt) {
			conv.UpdatedAt = at.UTC()
		}
	})
}

func (r *ConversationRepository) update(id messaging.ConversationID, fn func(*messaging.Conversation)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.items[id]
	if !ok {
		return messaging.ErrConversationNotFound
	}
	fn(conv)
	return nil
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

var _ messaging.ConversationRepository = (*ConversationRepository)(nil)
