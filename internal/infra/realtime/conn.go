package realtime

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"rentalhub/internal/app/policies"
	"rentalhub/internal/domain/shared/errs"
	"rentalhub/internal/infra/presence"
)

var errMalformedFrame = errs.New(errs.KindValidation, "malformed frame")

// Conn is one authenticated websocket. A reader feeds a bounded inbound queue
// drained in order by a processor; a writer drains the outbound queue.
type Conn struct {
	id     presence.Handle
	userID string
	ctx    context.Context
	ws     *websocket.Conn
	gw     *Gateway

	send    chan []byte
	inbound chan Frame
	limiter *rate.Limiter

	mu    sync.Mutex
	rooms map[string]struct{}

	done      chan struct{}
	closeOnce sync.Once
}

func (c *Conn) ID() presence.Handle { return c.id }

func (c *Conn) UserID() string { return c.userID }

// enqueue never blocks; a full queue drops the frame.
func (c *Conn) enqueue(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		c.gw.logWarn("outbound queue full, frame dropped", "conn_id", c.id, "user_id", c.userID)
		return false
	}
}

func (c *Conn) sendEvent(event string, payload any) {
	frame, err := encodeFrame(event, payload)
	if err != nil {
		c.gw.logWarn("encode frame", "event", event, "err", err)
		return
	}
	c.enqueue(frame)
}

func (c *Conn) sendError(event string, err error) {
	c.sendEvent(policies.EventError, errorPayload(event, err))
}

func (c *Conn) addRoom(room string) {
	c.mu.Lock()
	c.rooms[room] = struct{}{}
	c.mu.Unlock()
	c.gw.Hub.join(room, c)
}

func (c *Conn) removeRoom(room string) {
	c.mu.Lock()
	delete(c.rooms, room)
	c.mu.Unlock()
	c.gw.Hub.leave(room, c)
}

func (c *Conn) inRoom(room string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.rooms[room]
	return ok
}

func (c *Conn) roomList() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.rooms))
	for room := range c.rooms {
		out = append(out, room)
	}
	sort.Strings(out)
	return out
}

func (c *Conn) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.ws.Close()
	})
}

func (c *Conn) readLoop() {
	defer close(c.inbound)
	opts := c.gw.options()
	c.ws.SetReadLimit(opts.ReadLimit)
	pongWait := opts.PingInterval * 2
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.gw.logDebug("websocket read failed", "conn_id", c.id, "err", err)
			}
			return
		}
		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil || frame.Type == "" {
			c.sendError("", errMalformedFrame)
			continue
		}
		if !c.limiter.Allow() {
			c.gw.logWarn("inbound rate limit exceeded", "conn_id", c.id, "user_id", c.userID, "event", frame.Type)
			c.sendEvent(policies.EventError, ErrorPayload{Code: CodeRateLimited, Message: "too many events", Event: frame.Type})
			continue
		}
		select {
		case c.inbound <- frame:
		case <-c.done:
			return
		}
	}
}

func (c *Conn) processLoop() {
	for frame := range c.inbound {
		c.gw.handle(c, frame)
	}
}

func (c *Conn) writeLoop() {
	opts := c.gw.options()
	ticker := time.NewTicker(opts.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case frame := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(opts.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.close()
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(opts.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		case <-c.done:
			return
		}
	}
}
