package websocket

import (
	"context"
	"errors"

	"github.com/coder/websocket"

	"github.com/johndosdos/livechat/internal/model"
)

// Disconnect reasons reported in user-left events.
const (
	ReasonClientDisconnect = "client namespace disconnect"
	ReasonTransportClose   = "transport close"
	ReasonPingTimeout      = "ping timeout"
	ReasonServerShutdown   = "server shutting down"
)

const (
	errMsgTextOnly    = "Only text frames are supported"
	errMsgBadPayload  = "Invalid event payload"
	errMsgUnknown     = "Unknown event"
	errMsgRateLimited = "Too many messages, slow down"
)

// ReadMessage reads incoming frames and hands them to the engine until the
// connection ends, then reports the disconnect.
func (c *Client) ReadMessage(ctx context.Context) {
	reason := ReasonTransportClose
	defer func() {
		c.engine.Disconnect(context.WithoutCancel(ctx), c, reason)
		c.conn.CloseNow()
	}()

	for {
		msgType, p, err := c.conn.Read(ctx)
		if err != nil {
			reason = c.disconnectReason(ctx, err)
			if reason == ReasonTransportClose {
				c.log.InfoContext(ctx, "connection closed", "error", err)
			}
			return
		}

		if msgType != websocket.MessageText {
			c.Emit(model.Error{Message: errMsgTextOnly})
			continue
		}

		req, err := model.DecodeRequest(p)
		if err != nil {
			c.rejectFrame(ctx, err)
			continue
		}

		if !c.allow(req) {
			continue
		}

		c.engine.Handle(ctx, c, req)
	}
}

func (c *Client) rejectFrame(ctx context.Context, err error) {
	c.log.WarnContext(ctx, "failed to process payload from client", "error", err)

	ev := model.Error{Message: errMsgBadPayload}
	if errors.Is(err, model.ErrUnknownEvent) {
		ev.Message = errMsgUnknown
	}
	var protoErr *model.ProtocolError
	if errors.As(err, &protoErr) {
		ev.Details = protoErr.Details()
	}
	c.Emit(ev)
}

// allow applies the per-connection rate limits. Excess sends are reported;
// excess typing signals are dropped quietly.
func (c *Client) allow(req model.Request) bool {
	switch req.(type) {
	case model.SendRequest:
		if c.messageLim != nil && !c.messageLim.Allow() {
			c.Emit(model.Error{Message: errMsgRateLimited})
			return false
		}
	case model.TypingRequest:
		if c.typingLim != nil && !c.typingLim.Allow() {
			return false
		}
	}
	return true
}

func (c *Client) disconnectReason(ctx context.Context, err error) string {
	if c.pingFailed.Load() {
		return ReasonPingTimeout
	}
	if ctx.Err() != nil {
		return ReasonServerShutdown
	}

	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return ReasonClientDisconnect
	}
	return ReasonTransportClose
}
