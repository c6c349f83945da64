package scylla

import (
	"context"
	"errors"
	"log/slog"

	"github.com/gocql/gocql"

	"rentalhub/internal/app/uow"
	"rentalhub/internal/domain/messaging"
)

// Factory hands out units over a shared session. Scylla has no multi-row
// transactions: writes apply as they happen and the conversation service
// compensates when a later step fails.
type Factory struct {
	Session *gocql.Session
	Logger  *slog.Logger
}

var ErrUnitOfWorkNotConfigured = errors.New("scylla: unit of work factory missing session")

func (f Factory) Begin(ctx context.Context, opts uow.TxOptions) (uow.UnitOfWork, error) {
	if f.Session == nil {
		return nil, ErrUnitOfWorkNotConfigured
	}
	return &Unit{
		conversations: NewConversationRepository(f.Session, f.Logger),
		messages:      NewMessageRepository(f.Session),
	}, nil
}

type Unit struct {
	uow.Hooks
	conversations *ConversationRepository
	messages      *MessageRepository
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
