package uow

import (
	"context"
	"errors"
)

var ErrUnitOfWorkMissing = errors.New("uow: unit of work missing from context")

type ctxKey struct{}

// ContextWithUnitOfWork stores the provided unit of work in context.
func ContextWithUnitOfWork(ctx context.Context, unit UnitOfWork) context.Context {
	return context.WithValue(ctx, ctxKey{}, unit)
}

// FromContext retrieves a unit of work from context if present.
func FromContext(ctx context.Context) (UnitOfWork, bool) {
	val := ctx.Value(ctxKey{})
	if val == nil {
		return nil, false
	}
	unit, ok := val.(UnitOfWork)
	return unit, ok
}

// Scope is a unit of work joined or started by a handler.
type Scope struct {
	Unit    UnitOfWork
	Ctx     context.Context
	managed bool
	done    bool
}

// Enter reuses the unit already carried by ctx or begins a new one owned by
// the returned scope. Owned units must be finished with Commit or Close.
func Enter(ctx context.Context, factory UoWFactory, opts TxOptions) (*Scope, error) {
	if unit, ok := FromContext(ctx); ok {
		return &Scope{Unit: unit, Ctx: ctx}, nil
	}
	if factory == nil {
		return nil, ErrUnitOfWorkMissing
	}
	unit, err := factory.Begin(ctx, opts)
	if err != nil {
		return nil, err
	}
	execCtx := ctx
	if injector, ok := unit.(ContextInjector); ok {
		execCtx = injector.InjectContext(ctx)
	}
	execCtx = ContextWithUnitOfWork(execCtx, unit)
	return &Scope{Unit: unit, Ctx: execCtx, managed: true}, nil
}

// Commit commits owned units. Joined units are committed by their owner.
func (s *Scope) Commit() error {
	if !s.managed || s.done {
		return nil
	}
	s.done = true
	return s.Unit.Commit(s.Ctx)
}

// Close rolls back an owned unit that was not committed.
func (s *Scope) Close() {
	if !s.managed || s.done {
		return
	}
	s.done = true
	_ = s.Unit.Rollback(s.Ctx)
}
