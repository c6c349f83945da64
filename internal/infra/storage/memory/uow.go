package memory

import (
	"context"
	"errors"

	"rentalhub/internal/app/uow"
	"rentalhub/internal/domain/messaging"
)

// Factory wires in-memory repositories into a unit-of-work boundary.
type Factory struct {
	Conversations messaging.ConversationRepository
	Messages      messaging.MessageRepository
}

// ErrFactoryMisconfigured indicates missing repositories.
var ErrFactoryMisconfigured = errors.New("memory: unit of work factory misconfigured")

func NewFactory() Factory {
	return Factory{Conversations: NewConversationRepository(), Messages: NewMessageRepository()}
}

// Begin starts a boundary without isolation. Writes apply immediately and
// callers compensate on failure.
func (f Factory) Begin(ctx context.Context, opts uow.TxOptions) (uow.UnitOfWork, error) {
	if f.Conversations == nil || f.Messages == nil {
		return nil, ErrFactoryMisconfigured
	}
	return &Unit{conversations: f.Conversations, messages: f.Messages}, nil
}

type Unit struct {
	uow.Hooks
	conversations messaging.ConversationRepository
	messages      messaging.MessageRepository
}

func (u *Unit) Conversations() messaging.ConversationRepository { return u.conversations }

func (u *Unit) Messages() messaging.MessageRepository { return u.messages }

func (u *Unit) Commit(ctx context.Context) error {
	u.Run(ctx)
	return nil
}

func (u *Unit) Rollback(ctx context.Context) error {
	u.Discard()
	return nil
}

var _ uow.UoWFactory = Factory{}
