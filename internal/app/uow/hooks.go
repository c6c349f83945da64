package uow

import (
	"context"
	"sync"
)

// Hooks stores after-commit callbacks for unit implementations.
type Hooks struct {
	mu  sync.Mutex
	fns []func(context.Context)
}

func (h *Hooks) AfterCommit(fn func(ctx context.Context)) {
	if fn == nil {
		return
	}
	h.mu.Lock()
	h.fns = append(h.fns, fn)
	h.mu.Unlock()
}

// Run executes and clears the registered callbacks in registration order.
// Callbacks see a context without the finished unit so they can start new
// ones.
func (h *Hooks) Run(ctx context.Context) {
	ctx = context.WithValue(ctx, ctxKey{}, nil)
	h.mu.Lock()
	fns := h.fns
	h.fns = nil
	h.mu.Unlock()
	for _, fn := range fns {
		fn(ctx)
	}
}

func (h *Hooks) Discard() {
	h.mu.Lock()
	h.fns = nil
	h.mu.Unlock()
}
