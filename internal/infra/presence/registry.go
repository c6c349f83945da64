package presence

import (
	"context"
	"errors"
	"hash/fnv"
	"log/slog"
	"sort"
	"sync"
)

var ErrClosed = errors.New("presence: registry closed")

// Handle identifies one live connection.
type Handle string

// Mirror shares presence with other gateway instances. Implementations are
// best effort; the local table always wins for users connected here.
type Mirror interface {
	Touch(ctx context.Context, userIDs ...string) error
	Clear(ctx context.Context, userID string) error
	IsOnline(ctx context.Context, userID string) (bool, error)
}

const userStripes = 64

// Registry tracks which users hold live connections on this instance.
type Registry struct {
	Mirror Mirror
	Logger *slog.Logger

	mu       sync.RWMutex
	byUser   map[string]map[Handle]struct{}
	byHandle map[Handle]string
	closed   bool

	// users orders table changes and mirror calls for the same user, so the
	// mirror always ends in the state of the last local change.
	users [userStripes]sync.Mutex
}

func NewRegistry(mirror Mirror, logger *slog.Logger) *Registry {
	return &Registry{
		Mirror:   mirror,
		Logger:   logger,
		byUser:   make(map[string]map[Handle]struct{}),
		byHandle: make(map[Handle]string),
	}
}

// Connect records handle for userID. A user may hold any number of handles.
func (r *Registry) Connect(ctx context.Context, userID string, handle Handle) error {
	unlock := r.lockUser(userID)
	defer unlock()

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	if r.byUser == nil {
		r.byUser = make(map[string]map[Handle]struct{})
		r.byHandle = make(map[Handle]string)
	}
	handles, ok := r.byUser[userID]
	if !ok {
		handles = make(map[Handle]struct{})
		r.byUser[userID] = handles
	}
	handles[handle] = struct{}{}
	r.byHandle[handle] = userID
	r.mu.Unlock()

	r.mirrorCall("touch", userID, func() error { return r.Mirror.Touch(ctx, userID) })
	return nil
}

// Disconnect removes only handle. It reports the owning user and whether that
// user has no handles left on this instance.
func (r *Registry) Disconnect(ctx context.Context, handle Handle) (string, bool) {
	r.mu.RLock()
	userID, ok := r.byHandle[handle]
	r.mu.RUnlock()
	if !ok {
		return "", false
	}
	unlock := r.lockUser(userID)
	defer unlock()

	r.mu.Lock()
	if owner, ok := r.byHandle[handle]; !ok || owner != userID {
		r.mu.Unlock()
		return "", false
	}
	delete(r.byHandle, handle)
	handles := r.byUser[userID]
	delete(handles, handle)
	offline := len(handles) == 0
	if offline {
		delete(r.byUser, userID)
	}
	r.mu.Unlock()

	if offline {
		r.mirrorCall("clear", userID, func() error { return r.Mirror.Clear(ctx, userID) })
	}
	return userID, offline
}

// IsOnline checks the local table first, then the mirror.
func (r *Registry) IsOnline(ctx context.Context, userID string) bool {
	if r.ConnectedHere(userID) {
		return true
	}
	if r.Mirror == nil {
		return false
	}
	online, err := r.Mirror.IsOnline(ctx, userID)
	if err != nil {
		r.logWarn("presence mirror lookup failed", "user_id", userID, "err", err)
		return false
	}
	return online
}

func (r *Registry) ConnectedHere(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[userID]) > 0
}

func (r *Registry) Handles(userID string) []Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Handle, 0, len(r.byUser[userID]))
	for h := range r.byUser[userID] {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Users lists users connected to this instance.
func (r *Registry) Users() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byUser))
	for id := range r.byUser {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Refresh re-announces local users to the mirror.
func (r *Registry) Refresh(ctx context.Context) error {
	if r.Mirror == nil {
		return nil
	}
	users := r.Users()
	if len(users) == 0 {
		return nil
	}
	return r.Mirror.Touch(ctx, users...)
}

// Close drops every entry and rejects further connects.
func (r *Registry) Close(ctx context.Context) {
	r.mu.Lock()
	users := make([]string, 0, len(r.byUser))
	for id := range r.byUser {
		users = append(users, id)
	}
	r.byUser = make(map[string]map[Handle]struct{})
	r.byHandle = make(map[Handle]string)
	r.closed = true
	r.mu.Unlock()

	for _, id := range users {
		userID := id
		unlock := r.lockUser(userID)
		r.mirrorCall("clear", userID, func() error { return r.Mirror.Clear(ctx, userID) })
		unlock()
	}
}

func (r *Registry) lockUser(userID string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	m := &r.users[h.Sum32()%userStripes]
	m.Lock()
	return m.Unlock
}

func (r *Registry) mirrorCall(op, userID string, fn func() error) {
	if r.Mirror == nil {
		return
	}
	if err := fn(); err != nil {
		r.logWarn("presence mirror "+op+" failed", "user_id", userID, "err", err)
	}
}

func (r *Registry) logWarn(msg string, args ...any) {
	if r.Logger != nil {
		r.Logger.Warn(msg, args...)
	}
}
