// Package websocket adapts WebSocket connections to the room engine.
package websocket

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/johndosdos/livechat/internal/model"
	"github.com/johndosdos/livechat/internal/room"
)

const (
	pingInterval = 30 * time.Second
	pongWait     = 10 * time.Second
	writeWait    = 10 * time.Second
)

// Engine is the part of the room engine a connection talks to.
type Engine interface {
	Handle(ctx context.Context, conn room.Conn, req model.Request)
	Disconnect(ctx context.Context, conn room.Conn, reason string)
}

type Client struct {
	id         string
	conn       *websocket.Conn
	engine     Engine
	MessageCh  chan model.Event
	messageLim *rate.Limiter
	typingLim  *rate.Limiter
	pingFailed atomic.Bool
	log        *slog.Logger
}

func NewClient(conn *websocket.Conn, engine Engine, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	id := uuid.NewString()
	return &Client{
		id:        id,
		conn:      conn,
		engine:    engine,
		MessageCh: make(chan model.Event, 64),
		log:       log.With("connection_id", id),
	}
}

func (c *Client) SetMessageLimiter(requests int, window time.Duration) {
	c.messageLim = rate.NewLimiter(rate.Every(window/time.Duration(requests)), requests)
}

func (c *Client) SetTypingLimiter(requests int, window time.Duration) {
	c.typingLim = rate.NewLimiter(rate.Every(window/time.Duration(requests)), requests)
}

func (c *Client) ID() string { return c.id }

// Emit queues an event for the write loop. Events for a slow client are
// dropped rather than blocking the sender.
func (c *Client) Emit(e model.Event) {
	select {
	case c.MessageCh <- e:
	default:
		c.log.Warn("skipping event - channel full or client slow",
			"event", e.EventName())
	}
}

// Serve runs the connection until the peer goes away or ctx is cancelled.
// It blocks; the engine sees the disconnect before Serve returns.
func (c *Client) Serve(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go c.WriteMessage(ctx)
	go c.Keepalive(ctx)
	c.ReadMessage(ctx)
}

// WriteMessage writes queued events to the outgoing websocket stream.
func (c *Client) WriteMessage(ctx context.Context) {
	for {
		select {
		case ev := <-c.MessageCh:
			p, err := model.EncodeEvent(ev)
			if err != nil {
				c.log.ErrorContext(ctx, "failed to encode event",
					"error", err,
					"event", ev.EventName())
				continue
			}

			writeCtx, cancel := context.WithTimeout(ctx, writeWait)
			err = c.conn.Write(writeCtx, websocket.MessageText, p)
			cancel()
			if err != nil {
				if ctx.Err() == nil {
					c.log.WarnContext(ctx, "failed to write event",
						"error", err,
						"event", ev.EventName())
				}
				return
			}

		case <-ctx.Done():
			return
		}
	}
}

// Keepalive pings the peer periodically. Proxies drop idle connections, and
// a peer that stops answering is disconnected.
func (c *Client) Keepalive(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, pongWait)
			err := c.conn.Ping(pingCtx)
			cancel()
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				c.log.WarnContext(ctx, "failed to send ping signal", "error", err)
				c.pingFailed.Store(true)
				c.conn.CloseNow()
				return
			}

		case <-ctx.Done():
			return
		}
	}
}
