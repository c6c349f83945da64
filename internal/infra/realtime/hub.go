package realtime

import (
	"context"
	"log/slog"
	"sync"
)

// Relay forwards encoded frames to other gateway instances.
type Relay interface {
	Publish(ctx context.Context, room string, frame []byte, except string) error
}

// Hub owns room membership for the connections on this instance.
type Hub struct {
	Logger *slog.Logger
	Relay  Relay

	mu    sync.RWMutex
	rooms map[string]map[*Conn]struct{}
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{Logger: logger, rooms: make(map[string]map[*Conn]struct{})}
}

// Broadcast sends event to every connection in room, here and on peers.
func (h *Hub) Broadcast(ctx context.Context, room, event string, payload any) {
	h.broadcast(ctx, room, event, payload, nil)
}

// BroadcastExcept is Broadcast without the originating connection.
func (h *Hub) BroadcastExcept(ctx context.Context, room, event string, payload any, except *Conn) {
	h.broadcast(ctx, room, event, payload, except)
}

func (h *Hub) broadcast(ctx context.Context, room, event string, payload any, except *Conn) {
	frame, err := encodeFrame(event, payload)
	if err != nil {
		h.logWarn("encode frame", "event", event, "err", err)
		return
	}
	exceptID := ""
	if except != nil {
		exceptID = string(except.ID())
	}
	h.Deliver(room, frame, exceptID)
	if h.Relay == nil {
		return
	}
	if err := h.Relay.Publish(ctx, room, frame, exceptID); err != nil {
		h.logWarn("relay publish failed", "room", room, "event", event, "err", err)
	}
}

// Deliver fans a pre-encoded frame out to local members of room.
func (h *Hub) Deliver(room string, frame []byte, except string) int {
	h.mu.RLock()
	members := make([]*Conn, 0, len(h.rooms[room]))
	for c := range h.rooms[room] {
		if string(c.ID()) != except {
			members = append(members, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range members {
		c.enqueue(frame)
	}
	return len(members)
}

func (h *Hub) join(room string, c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms == nil {
		h.rooms = make(map[string]map[*Conn]struct{})
	}
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Conn]struct{})
		h.rooms[room] = members
	}
	members[c] = struct{}{}
}

func (h *Hub) leave(room string, c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(room, c)
}

func (h *Hub) leaveAll(c *Conn, rooms []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, room := range rooms {
		h.removeLocked(room, c)
	}
}

func (h *Hub) removeLocked(room string, c *Conn) {
	members, ok := h.rooms[room]
	if !ok {
		return
	}
	delete(members, c)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
}

// Members counts local connections in room.
func (h *Hub) Members(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

func (h *Hub) logWarn(msg string, args ...any) {
	if h.Logger != nil {
		h.Logger.Warn(msg, args...)
	}
}
