package uow

import (
	"context"

	"rentalhub/internal/domain/messaging"
)

// UnitOfWork coordinates repositories inside a transaction boundary.
type UnitOfWork interface {
	Conversations() messaging.ConversationRepository
	Messages() messaging.MessageRepository

	// AfterCommit registers fn to run once Commit succeeds. Hooks are
	// dropped on rollback.
	AfterCommit(fn func(ctx context.Context))

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// UoWFactory starts unit of work instances.
type UoWFactory interface {
	Begin(ctx context.Context, opts TxOptions) (UnitOfWork, error)
}

// TxOptions configure transaction boundaries.
type TxOptions struct {
	ReadOnly bool
}

// ContextInjector is implemented by units that bind driver state (sessions)
// to the context repositories run with.
type ContextInjector interface {
	InjectContext(ctx context.Context) context.Context
}
