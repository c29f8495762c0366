// Package room implements the single shared chat room: who is joined, and
// how events from one connection reach the others.
package room

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/johndosdos/livechat/internal/model"
	"github.com/johndosdos/livechat/internal/session"
	"github.com/johndosdos/livechat/internal/store"
	"github.com/johndosdos/livechat/internal/validator"
)

// DefaultHistoryLimit is how many recent messages a joiner receives.
const DefaultHistoryLimit = 20

// User-facing error messages.
const (
	ErrMsgUsernameRequired = "Username is required and must be a non-empty string"
	ErrMsgAlreadyJoined    = "Connection already joined under a different username"
	ErrMsgHistory          = "Could not load chat history"
	ErrMsgFieldsRequired   = "Username and content are required"
	ErrMsgInvalidMessage   = "Invalid message data"
	ErrMsgNotJoined        = "User not properly joined or username mismatch"
	ErrMsgSendFailed       = "Failed to send message"
)

const joinConfirmedMessage = "Successfully joined the chat"

// Conn is one client connection as seen by the Engine. Emit is called with the
// Engine's lock held and must not block; a connection that cannot take the
// event drops it.
type Conn interface {
	ID() string
	Emit(e model.Event)
}

// Messages is the persistence the Engine needs. Callers of CreateMessage have
// already validated the input.
type Messages interface {
	CreateMessage(ctx context.Context, username, content string) (model.Message, error)
	RecentMessages(ctx context.Context, limit int) ([]model.Message, error)
}

// Publisher mirrors persisted messages to an external stream.
type Publisher interface {
	Publish(ctx context.Context, msg model.Message) error
}

type Option func(*Engine)

func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

func WithHistoryLimit(n int) Option {
	return func(e *Engine) { e.historyLimit = n }
}

func WithPublisher(p Publisher) Option {
	return func(e *Engine) { e.publisher = p }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// member is a joined connection. Until its history has been sent, broadcasts
// for it are held in pending.
type member struct {
	conn    Conn
	live    bool
	pending []model.Event
}

// Engine owns the session table and the room's member connections. The
// session table and the member set always change together under mu, and
// broadcasts are emitted under mu so every member sees them in one order. No
// lock is held while waiting on Messages.
type Engine struct {
	mu       sync.Mutex
	sessions *session.Table
	members  map[string]*member

	messages     Messages
	publisher    Publisher
	historyLimit int
	now          func() time.Time
	log          *slog.Logger
}

func NewEngine(messages Messages, opts ...Option) *Engine {
	e := &Engine{
		sessions:     session.NewTable(),
		members:      make(map[string]*member),
		messages:     messages,
		historyLimit: DefaultHistoryLimit,
		now:          func() time.Time { return time.Now().UTC() },
		log:          slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Handle dispatches a decoded client request.
func (e *Engine) Handle(ctx context.Context, conn Conn, req model.Request) {
	switch r := req.(type) {
	case model.JoinRequest:
		e.Join(ctx, conn, r.Username)
	case model.SendRequest:
		e.Send(ctx, conn, r.Username, r.Content)
	case model.TypingRequest:
		e.Typing(ctx, conn, r.IsTyping)
	}
}

// Join registers conn under username and sends it the recent history. Messages
// broadcast while the history loads follow it, minus those it already holds.
// A connection that is already joined under the same name is confirmed again
// without a second announcement; a different name is rejected.
func (e *Engine) Join(ctx context.Context, conn Conn, username string) {
	trimmed := validator.Trim(username)
	if trimmed == "" {
		e.reject(ctx, conn, model.EventJoin, model.Error{Message: ErrMsgUsernameRequired})
		return
	}

	if res := validator.ValidateUsername(trimmed); !res.Valid {
		e.reject(ctx, conn, model.EventJoin, model.Error{Message: res.Errors[0], Details: res.Errors})
		return
	}

	e.mu.Lock()
	if existing, ok := e.sessions.Get(conn.ID()); ok {
		e.mu.Unlock()
		if existing.Username != trimmed {
			e.reject(ctx, conn, model.EventJoin, model.Error{Message: ErrMsgAlreadyJoined})
			return
		}
		conn.Emit(model.JoinConfirmed{Username: trimmed, Message: joinConfirmedMessage})
		return
	}
	s := e.sessions.Put(conn.ID(), trimmed, e.now())
	e.members[conn.ID()] = &member{conn: conn}
	e.mu.Unlock()

	e.log.InfoContext(ctx, "user joined",
		"connection_id", conn.ID(),
		"username", s.Username)

	conn.Emit(model.JoinConfirmed{Username: s.Username, Message: joinConfirmedMessage})

	history, err := e.messages.RecentMessages(ctx, e.historyLimit)
	if err != nil {
		e.log.ErrorContext(ctx, "failed to load chat history",
			"error", err,
			"connection_id", conn.ID())
	}

	if !e.goLive(conn, history, err) {
		e.log.DebugContext(ctx, "client left while joining",
			"connection_id", conn.ID())
		return
	}

	e.broadcast(model.UserJoined{Username: s.Username, Timestamp: e.now()}, conn.ID())
}

// goLive sends the joiner its history, then the broadcasts held while the
// history loaded, and marks it live. It reports false when the connection
// left in the meantime.
func (e *Engine) goLive(conn Conn, history []model.Message, historyErr error) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	m, ok := e.members[conn.ID()]
	if !ok || m.live {
		return false
	}

	seen := make(map[uuid.UUID]struct{}, len(history))
	if historyErr != nil {
		conn.Emit(model.Error{Message: ErrMsgHistory})
	} else {
		if history == nil {
			history = []model.Message{}
		}
		for _, msg := range history {
			seen[msg.ID] = struct{}{}
		}
		conn.Emit(model.ChatHistory{Messages: history, Count: len(history)})
	}

	for _, ev := range m.pending {
		if mr, ok := ev.(model.MessageReceived); ok {
			if _, dup := seen[mr.ID]; dup {
				continue
			}
		}
		conn.Emit(ev)
	}
	m.pending = nil
	m.live = true
	return true
}

// Send validates, persists and broadcasts a message to every member,
// including the sender.
func (e *Engine) Send(ctx context.Context, conn Conn, username, content string) {
	if username == "" || content == "" {
		e.reject(ctx, conn, model.EventSend, model.Error{Message: ErrMsgFieldsRequired})
		return
	}

	if res := validator.ValidateMessage(username, content); !res.Valid {
		e.reject(ctx, conn, model.EventSend, model.Error{Message: ErrMsgInvalidMessage, Details: res.Errors})
		return
	}

	s, ok := e.sessions.Get(conn.ID())
	if !ok || s.Username != validator.Trim(username) {
		e.reject(ctx, conn, model.EventSend, model.Error{Message: ErrMsgNotJoined})
		return
	}

	msg, err := e.messages.CreateMessage(ctx, username, content)
	if err != nil {
		var vErr *store.ValidationError
		if errors.As(err, &vErr) {
			e.reject(ctx, conn, model.EventSend, model.Error{Message: ErrMsgInvalidMessage, Details: vErr.Errors})
			return
		}
		e.log.ErrorContext(ctx, "failed to store message",
			"error", err,
			"connection_id", conn.ID(),
			"username", s.Username)
		conn.Emit(model.Error{Message: ErrMsgSendFailed, Details: []string{err.Error()}})
		return
	}

	// Members are read at broadcast time, so a sender that left while the
	// message was being stored is simply not among the targets.
	e.broadcast(model.NewMessageReceived(msg), "")

	if e.publisher != nil {
		if err := e.publisher.Publish(ctx, msg); err != nil {
			e.log.WarnContext(ctx, "failed to mirror message",
				"error", err,
				"message_id", msg.ID.String())
		}
	}
}

// Typing relays a typing indicator to the other members. Connections that
// have not joined are ignored without an error.
func (e *Engine) Typing(ctx context.Context, conn Conn, isTyping bool) {
	s, ok := e.sessions.Get(conn.ID())
	if !ok {
		return
	}

	e.broadcast(model.UserTyping{Username: s.Username, IsTyping: isTyping}, conn.ID())
}

// Disconnect removes conn from the room and tells the remaining members. It
// is safe to call more than once.
func (e *Engine) Disconnect(ctx context.Context, conn Conn, reason string) {
	e.mu.Lock()
	s, ok := e.sessions.Remove(conn.ID())
	m, wasMember := e.members[conn.ID()]
	announced := wasMember && m.live
	delete(e.members, conn.ID())
	e.mu.Unlock()

	if !ok {
		e.log.DebugContext(ctx, "unjoined client disconnected",
			"connection_id", conn.ID(),
			"reason", reason)
		return
	}

	e.log.InfoContext(ctx, "user left",
		"connection_id", conn.ID(),
		"username", s.Username,
		"reason", reason)

	// Nobody heard about a join that never finished.
	if !announced {
		return
	}
	e.broadcast(model.UserLeft{Username: s.Username, Timestamp: e.now(), Reason: reason}, conn.ID())
}

// ConnectedCount returns the number of joined connections.
func (e *Engine) ConnectedCount() int {
	return e.sessions.Count()
}

// ConnectedUsers returns a snapshot of every joined session.
func (e *Engine) ConnectedUsers() []model.Session {
	return e.sessions.Values()
}

func (e *Engine) Session(connectionID string) (model.Session, bool) {
	return e.sessions.Get(connectionID)
}

// broadcast emits ev to every member except the one with id exclude. Members
// still loading their history get it once they go live.
func (e *Engine) broadcast(ev model.Event, exclude string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for id, m := range e.members {
		if id == exclude {
			continue
		}
		if !m.live {
			m.pending = append(m.pending, ev)
			continue
		}
		m.conn.Emit(ev)
	}
}

func (e *Engine) reject(ctx context.Context, conn Conn, event string, ev model.Error) {
	e.log.WarnContext(ctx, "rejected client event",
		"event", event,
		"connection_id", conn.ID(),
		"error", ev.Message,
		"details", ev.Details)
	conn.Emit(ev)
}
