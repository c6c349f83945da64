package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"rentalhub/internal/app/commands"
	"rentalhub/internal/app/dto"
	"rentalhub/internal/app/handlers/conversations"
	"rentalhub/internal/app/middleware"
	"rentalhub/internal/app/policies"
	"rentalhub/internal/domain/shared/errs"
	"rentalhub/internal/infra/presence"
	"rentalhub/internal/infra/security"
)

type TokenVerifier interface {
	Verify(raw string) (security.Principal, error)
}

// JoinAuthorizer decides whether a user may subscribe to a conversation room.
type JoinAuthorizer interface {
	AuthorizeJoin(ctx context.Context, userID, conversationID string) error
}

type Options struct {
	ReadLimit      int64
	PingInterval   time.Duration
	WriteTimeout   time.Duration
	SendBuffer     int
	InboundBuffer  int
	EventRate      float64
	EventBurst     int
	HandlerTimeout time.Duration
	AllowedOrigins []string
}

func (o Options) withDefaults() Options {
	if o.ReadLimit <= 0 {
		o.ReadLimit = 64 << 10
	}
	if o.PingInterval <= 0 {
		o.PingInterval = 30 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 256
	}
	if o.InboundBuffer <= 0 {
		o.InboundBuffer = 32
	}
	if o.EventRate <= 0 {
		o.EventRate = 10
	}
	if o.EventBurst <= 0 {
		o.EventBurst = 20
	}
	if o.HandlerTimeout <= 0 {
		o.HandlerTimeout = 15 * time.Second
	}
	return o
}

// Gateway upgrades authenticated requests to websockets and routes their
// events to the conversation commands.
type Gateway struct {
	Hub       *Hub
	Presence  *presence.Registry
	Verifier  TokenVerifier
	Commands  commands.Bus
	Joins     JoinAuthorizer
	Validator middleware.Validator
	Logger    *slog.Logger
	Options   Options

	initOnce sync.Once
	opts     Options
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[*Conn]struct{}
	wg    sync.WaitGroup
}

func (g *Gateway) init() {
	g.initOnce.Do(func() {
		g.opts = g.Options.withDefaults()
		g.conns = make(map[*Conn]struct{})
		g.upgrader = websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     g.checkOrigin,
		}
	})
}

func (g *Gateway) options() Options {
	g.init()
	return g.opts
}

func (g *Gateway) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(g.Options.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range g.Options.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.init()
	principal, err := g.authenticate(r)
	if err != nil {
		writeAuthError(w, err)
		return
	}
	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logDebug("websocket upgrade failed", "err", err)
		return
	}

	c := &Conn{
		id:      presence.Handle(uuid.NewString()),
		userID:  principal.UserID,
		ctx:     context.WithoutCancel(r.Context()),
		ws:      ws,
		gw:      g,
		send:    make(chan []byte, g.opts.SendBuffer),
		inbound: make(chan Frame, g.opts.InboundBuffer),
		limiter: rate.NewLimiter(rate.Limit(g.opts.EventRate), g.opts.EventBurst),
		rooms:   make(map[string]struct{}),
		done:    make(chan struct{}),
	}
	if g.Presence != nil {
		if err := g.Presence.Connect(c.ctx, c.userID, c.id); err != nil {
			g.logWarn("presence connect failed", "user_id", c.userID, "err", err)
			_ = ws.Close()
			return
		}
	}
	g.track(c)
	c.addRoom(policies.UserRoom(c.userID))
	g.logInfo("websocket connected", "conn_id", c.id, "user_id", c.userID)

	processed := make(chan struct{})
	go c.writeLoop()
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		defer close(processed)
		c.processLoop()
	}()

	c.readLoop()
	c.close()
	if g.Presence != nil {
		g.Presence.Disconnect(c.ctx, c.id)
	}
	// queued events still run; rooms are dropped once they have
	<-processed
	g.Hub.leaveAll(c, c.roomList())
	g.untrack(c)
	g.logInfo("websocket disconnected", "conn_id", c.id, "user_id", c.userID)
}

func (g *Gateway) authenticate(r *http.Request) (security.Principal, error) {
	if g.Verifier == nil {
		return security.Principal{}, errs.New(errs.KindAuthentication, "authentication unavailable")
	}
	token := bearerToken(r.Header.Get("Authorization"))
	if token == "" {
		token = strings.TrimSpace(r.URL.Query().Get("token"))
	}
	return g.Verifier.Verify(token)
}

func (g *Gateway) handle(c *Conn, frame Frame) {
	ctx, cancel := context.WithTimeout(c.ctx, g.opts.HandlerTimeout)
	defer cancel()

	var err error
	switch frame.Type {
	case EventJoinChat:
		err = g.join(ctx, c, frame.Data)
	case EventLeaveChat:
		err = g.leave(ctx, c, frame.Data)
	case EventSendMessage:
		err = g.sendMessage(ctx, c, frame.Data)
	case EventTypingStart, EventTypingEnd:
		err = g.typing(ctx, c, frame.Type, frame.Data)
	case EventMarkRead:
		err = g.markRead(ctx, c, frame.Data)
	default:
		err = errs.New(errs.KindValidation, "unknown event "+frame.Type)
	}
	if err != nil {
		g.logDebug("websocket event failed", "conn_id", c.id, "event", frame.Type, "err", err)
		c.sendError(frame.Type, err)
	}
}

func (g *Gateway) join(ctx context.Context, c *Conn, raw json.RawMessage) error {
	var p roomPayload
	if err := g.decode(ctx, raw, &p); err != nil {
		return err
	}
	if g.Joins == nil {
		return errs.New(errs.KindTransient, "conversations unavailable")
	}
	if err := g.Joins.AuthorizeJoin(ctx, c.userID, p.ConversationID); err != nil {
		return err
	}
	c.addRoom(policies.ConversationRoom(p.ConversationID))
	return nil
}

func (g *Gateway) leave(ctx context.Context, c *Conn, raw json.RawMessage) error {
	var p roomPayload
	if err := g.decode(ctx, raw, &p); err != nil {
		return err
	}
	c.removeRoom(policies.ConversationRoom(p.ConversationID))
	return nil
}

func (g *Gateway) sendMessage(ctx context.Context, c *Conn, raw json.RawMessage) error {
	var p sendPayload
	if err := g.decode(ctx, raw, &p); err != nil {
		return err
	}
	_, err := commands.Dispatch[conversations.SendMessageCommand, dto.ChatMessage](ctx, g.Commands, conversations.SendMessageCommand{
		SenderID:       c.userID,
		ConversationID: p.ConversationID,
		Content:        p.Content,
		Attachments:    p.Attachments,
		RequestKey:     p.ClientID,
	})
	return err
}

func (g *Gateway) typing(ctx context.Context, c *Conn, event string, raw json.RawMessage) error {
	var p roomPayload
	if err := g.decode(ctx, raw, &p); err != nil {
		return err
	}
	room := policies.ConversationRoom(p.ConversationID)
	if !c.inRoom(room) {
		return errs.New(errs.KindAuthorization, "join the conversation first")
	}
	g.Hub.BroadcastExcept(ctx, room, event, TypingPayload{ConversationID: p.ConversationID, UserID: c.userID}, c)
	return nil
}

func (g *Gateway) markRead(ctx context.Context, c *Conn, raw json.RawMessage) error {
	var p markReadPayload
	if err := g.decode(ctx, raw, &p); err != nil {
		return err
	}
	_, err := commands.Dispatch[conversations.MarkReadCommand, dto.ReadResult](ctx, g.Commands, conversations.MarkReadCommand{
		ReaderID:       c.userID,
		ConversationID: p.ConversationID,
		MessageIDs:     p.MessageIDs,
	})
	return err
}

func (g *Gateway) decode(ctx context.Context, raw json.RawMessage, out any) error {
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return errs.Wrap(errs.KindValidation, err, "malformed payload")
	}
	if g.Validator != nil {
		return g.Validator.Validate(ctx, out)
	}
	return nil
}

func (g *Gateway) track(c *Conn) {
	g.mu.Lock()
	g.conns[c] = struct{}{}
	g.mu.Unlock()
}

func (g *Gateway) untrack(c *Conn) {
	g.mu.Lock()
	delete(g.conns, c)
	g.mu.Unlock()
}

// Connections counts live connections on this instance.
func (g *Gateway) Connections() int {
	g.init()
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.conns)
}

// Shutdown closes every connection and waits for queued events to finish.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.init()
	g.mu.Lock()
	for c := range g.conns {
		c.close()
	}
	g.mu.Unlock()

	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *Gateway) logInfo(msg string, args ...any) {
	if g.Logger != nil {
		g.Logger.Info(msg, args...)
	}
}

func (g *Gateway) logWarn(msg string, args ...any) {
	if g.Logger != nil {
		g.Logger.Warn(msg, args...)
	}
}

func (g *Gateway) logDebug(msg string, args ...any) {
	if g.Logger != nil {
		g.Logger.Debug(msg, args...)
	}
}

func bearerToken(header string) string {
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}

func writeAuthError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "error", "message": errs.Message(err)})
}
