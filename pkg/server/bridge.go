package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/NicolasHaas/gomoderate/pkg/model"
	"github.com/NicolasHaas/gomoderate/pkg/punish"
)

// Bridge request types, sent by the game server.
const (
	BridgeJoin     = "join"
	BridgeLeave    = "leave"
	BridgeChat     = "chat"
	BridgeCommand  = "command"
	BridgeConsole  = "console"
	BridgeGameMode = "gamemode"
)

// Bridge event types, sent to the game server. Login, chat and command
// answers reuse the request type and echo its Ref.
const (
	BridgeSend       = "send"
	BridgeDisconnect = "disconnect"
	BridgeError      = "error"
)

// BridgeRequest is one frame from the game server.
type BridgeRequest struct {
	Type     string    `json:"type"`
	Ref      string    `json:"ref,omitempty"`
	Player   uuid.UUID `json:"player"`
	Name     string    `json:"name,omitempty"`
	IP       string    `json:"ip,omitempty"`
	World    string    `json:"world,omitempty"`
	GameMode string    `json:"game_mode,omitempty"`
	Line     string    `json:"line,omitempty"`
}

// BridgeEvent is one frame to the game server.
type BridgeEvent struct {
	Type    string    `json:"type"`
	Ref     string    `json:"ref,omitempty"`
	Player  uuid.UUID `json:"player"`
	Allowed bool      `json:"allowed,omitempty"`
	Held    bool      `json:"held,omitempty"`
	Handled bool      `json:"handled,omitempty"`
	Message string    `json:"message,omitempty"`
}

const bridgeQueue = 1024

// Bridge lets a game server in another process use the moderation server
// over a websocket. Players joined through a connection are removed when it
// closes.
type Bridge struct {
	base     context.Context
	srv      *Server
	token    string
	upgrader websocket.Upgrader
	log      *slog.Logger
}

// NewBridge creates a bridge. Connections must present token as a bearer
// token and are closed when ctx ends.
func NewBridge(ctx context.Context, srv *Server, token string) *Bridge {
	return &Bridge{
		base:  ctx,
		srv:   srv,
		token: token,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			// game servers are not browsers
			CheckOrigin: func(*http.Request) bool { return true },
		},
		log: slog.Default().With("component", "bridge"),
	}
}

// Handler routes /bridge to the websocket endpoint.
func (b *Bridge) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/bridge", b.serveWS).Methods(http.MethodGet)
	return r
}

func (b *Bridge) authorized(r *http.Request) bool {
	got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	return ok && b.token != "" && subtle.ConstantTimeCompare([]byte(got), []byte(b.token)) == 1
}

// bridgeLink is one game server connection.
type bridgeLink struct {
	out    chan BridgeEvent
	ctx    context.Context
	cancel context.CancelFunc
	log    *slog.Logger

	mu      sync.Mutex
	players map[uuid.UUID]struct{}
}

// emit queues an event without blocking. A link that falls this far behind
// is dropped.
func (l *bridgeLink) emit(ev BridgeEvent) {
	select {
	case <-l.ctx.Done():
	case l.out <- ev:
	default:
		l.log.Warn("bridge queue full, closing link", "type", ev.Type)
		l.cancel()
	}
}

func (l *bridgeLink) track(id uuid.UUID, on bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if on {
		l.players[id] = struct{}{}
	} else {
		delete(l.players, id)
	}
}

func (l *bridgeLink) tracked() []uuid.UUID {
	l.mu.Lock()
	defer l.mu.Unlock()
	ids := make([]uuid.UUID, 0, len(l.players))
	for id := range l.players {
		ids = append(ids, id)
	}
	return ids
}

// bridgeConn routes a player's messages back over the link.
type bridgeConn struct {
	link *bridgeLink
	id   uuid.UUID
}

func (c bridgeConn) Send(message string) {
	c.link.emit(BridgeEvent{Type: BridgeSend, Player: c.id, Message: message})
}

func (c bridgeConn) Disconnect(message string) {
	c.link.track(c.id, false)
	c.link.emit(BridgeEvent{Type: BridgeDisconnect, Player: c.id, Message: message})
}

func (b *Bridge) serveWS(w http.ResponseWriter, r *http.Request) {
	if !b.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.log.Warn("bridge upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	defer func() { _ = conn.Close() }()

	ctx, cancel := context.WithCancel(b.base)
	defer cancel()
	link := &bridgeLink{
		out:     make(chan BridgeEvent, bridgeQueue),
		ctx:     ctx,
		cancel:  cancel,
		log:     b.log.With("remote", r.RemoteAddr),
		players: make(map[uuid.UUID]struct{}),
	}
	link.log.Info("bridge connected")

	go func() {
		for {
			select {
			case <-ctx.Done():
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
				_ = conn.Close()
				return
			case ev := <-link.out:
				_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteJSON(ev); err != nil {
					cancel()
					return
				}
			}
		}
	}()

	for {
		var req BridgeRequest
		if err := conn.ReadJSON(&req); err != nil {
			var closeErr *websocket.CloseError
			if !errors.As(err, &closeErr) && ctx.Err() == nil {
				link.log.Warn("bridge read failed", "err", err)
			}
			break
		}
		b.handle(link, req)
	}
	cancel()

	for _, id := range link.tracked() {
		b.srv.Leave(id)
	}
	link.log.Info("bridge disconnected")
}

// handle dispatches one request. Blocking entry points run on their own
// goroutine so a slow store does not stall the reader.
func (b *Bridge) handle(link *bridgeLink, req BridgeRequest) {
	ctx := link.ctx
	fail := func(msg string) {
		link.emit(BridgeEvent{Type: BridgeError, Ref: req.Ref, Player: req.Player, Message: msg})
	}
	needPlayer := req.Type != BridgeConsole
	if needPlayer && req.Player == uuid.Nil {
		fail("player is required")
		return
	}

	switch req.Type {
	case BridgeJoin:
		go func() {
			sess := model.Session{ID: req.Player, Name: req.Name, IP: req.IP, World: req.World, GameMode: req.GameMode}
			d := b.srv.Join(ctx, sess, bridgeConn{link: link, id: req.Player})
			if d.Allowed {
				link.track(req.Player, true)
				if ctx.Err() != nil {
					// link closed while the login was checked
					b.srv.Leave(req.Player)
					return
				}
			}
			link.emit(BridgeEvent{Type: BridgeJoin, Ref: req.Ref, Player: req.Player, Allowed: d.Allowed, Message: d.Message})
		}()
	case BridgeLeave:
		link.track(req.Player, false)
		b.srv.Leave(req.Player)
	case BridgeChat:
		go func() {
			d, err := b.srv.Chat(ctx, req.Player)
			if err != nil {
				fail(err.Error())
				return
			}
			link.emit(BridgeEvent{Type: BridgeChat, Ref: req.Ref, Player: req.Player, Allowed: d.Allowed, Held: d.Held, Message: d.Message})
		}()
	case BridgeCommand:
		go func() {
			reply, err := b.srv.Command(ctx, req.Player, req.Line)
			if err != nil {
				fail(err.Error())
				return
			}
			link.emit(BridgeEvent{Type: BridgeCommand, Ref: req.Ref, Player: req.Player, Handled: reply.Handled})
		}()
	case BridgeConsole:
		go func() {
			reply, err := b.srv.ConsoleCommand(ctx, req.Line)
			if err != nil {
				fail(err.Error())
				return
			}
			if reply.Handled {
				err = reply.Wait(ctx)
			}
			if ctx.Err() != nil {
				return
			}
			ev := BridgeEvent{Type: BridgeConsole, Ref: req.Ref, Handled: reply.Handled, Message: reply.Text}
			if err != nil && ev.Message == "" {
				ev.Message = punish.UserText(err)
			}
			link.emit(ev)
		}()
	case BridgeGameMode:
		b.srv.GameModeChanged(req.Player, req.GameMode)
	default:
		fail("unknown request type " + req.Type)
	}
}

// serveBridge runs the bridge listener until ctx ends.
func (s *Server) serveBridge(ctx context.Context, addr, token string) error {
	hs := &http.Server{
		Addr:              addr,
		Handler:           NewBridge(ctx, s, token).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = hs.Shutdown(shutdownCtx)
	}()
	slog.Info("bridge listening", "addr", addr)
	if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
