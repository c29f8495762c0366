package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/johndosdos/livechat/internal/room"
	ws "github.com/johndosdos/livechat/internal/websocket"
)

// WsOptions configures accepted origins and per-connection rate limits. A
// zero rate disables that limit.
type WsOptions struct {
	OriginPatterns []string
	MessageRate    int
	MessageWindow  time.Duration
	TypingRate     int
	TypingWindow   time.Duration
}

// ServeWs handles the client's websocket connection upgrade.
func ServeWs(engine *room.Engine, opts WsOptions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: opts.OriginPatterns,
		})
		if err != nil {
			slog.WarnContext(ctx, "failed to upgrade connection to websocket", "error", err)
			return
		}

		c := ws.NewClient(conn, engine, slog.Default())
		if opts.MessageRate > 0 {
			c.SetMessageLimiter(opts.MessageRate, opts.MessageWindow)
		}
		if opts.TypingRate > 0 {
			c.SetTypingLimiter(opts.TypingRate, opts.TypingWindow)
		}

		slog.InfoContext(ctx, "client connected",
			"connection_id", c.ID(),
			"remote_addr", r.RemoteAddr)

		// Serve blocks until the connection ends; the request context is only
		// valid while this handler runs.
		c.Serve(ctx)
	}
}
