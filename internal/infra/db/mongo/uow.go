package mongo

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"rentalhub/internal/app/uow"
	"rentalhub/internal/domain/messaging"
)

// Factory wires Mongo sessions into the generic UnitOfWork interface.
// Transactions need a replica set; without them writes apply immediately and
// the service compensates on failure.
type Factory struct {
	DB           *mongo.Database
	Transactions bool
}

var ErrUnitOfWorkNotConfigured = errors.New("mongo: unit of work factory missing database")

// Begin starts a session and, when enabled, a transaction on it.
func (f Factory) Begin(ctx context.Context, opts uow.TxOptions) (uow.UnitOfWork, error) {
	if f.DB == nil {
		return nil, ErrUnitOfWorkNotConfigured
	}
	unit := &Unit{
		base:          ctx,
		conversations: NewConversationRepository(f.DB),
		messages:      NewMessageRepository(f.DB),
	}
	if !f.Transactions || opts.ReadOnly {
		return unit, nil
	}
	session, err := f.DB.Client().StartSession()
	if err != nil {
		return nil, classify(err, "mongo: start session")
	}
	txnOpts := options.Transaction().SetReadConcern(f.DB.ReadConcern()).SetWriteConcern(f.DB.WriteConcern())
	if err := session.StartTransaction(txnOpts); err != nil {
		session.EndSession(ctx)
		return nil, classify(err, "mongo: start transaction")
	}
	unit.session = session
	return unit, nil
}

type Unit struct {
	uow.Hooks
	base    context.Context
	session mongo.Session

	conversations *ConversationRepository
	messages      *MessageRepository
}

func (u *Unit) Conversations() messaging.ConversationRepository { return u.conversations }

func (u *Unit) Messages() messaging.MessageRepository { return u.messages }

// Commit commits the transaction and then runs after-commit hooks on the
// context the unit was started with, outside the finished session.
func (u *Unit) Commit(ctx context.Context) error {
	if u.session != nil {
		defer u.session.EndSession(ctx)
		if err := u.session.CommitTransaction(ctx); err != nil {
			u.Discard()
			return classify(err, "mongo: commit")
		}
	}
	u.Run(u.base)
	return nil
}

func (u *Unit) Rollback(ctx context.Context) error {
	u.Discard()
	if u.session == nil {
		return nil
	}
	defer u.session.EndSession(ctx)
	return classify(u.session.AbortTransaction(ctx), "mongo: abort")
}

// InjectContext binds the session to ctx so repositories join the transaction.
func (u *Unit) InjectContext(ctx context.Context) context.Context {
	if u.session == nil {
		return ctx
	}
	return mongo.NewSessionContext(ctx, u.session)
}

var (
	_ uow.UoWFactory      = Factory{}
	_ uow.ContextInjector = (*Unit)(nil)
)
