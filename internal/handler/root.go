package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/johndosdos/livechat/internal/model"
	"github.com/johndosdos/livechat/internal/room"
	"github.com/johndosdos/livechat/internal/store"
)

const apiVersion = "1.0.0"

// Pinger reports database reachability. It is nil when messages are kept in
// memory.
type Pinger interface {
	Ping(ctx context.Context) error
}

var messageEndpoints = map[string]string{
	"GET /api/messages":        "Get paginated messages",
	"POST /api/messages":       "Create new message",
	"GET /api/messages/recent": "Get recent messages",
	"GET /api/messages/stats":  "Get database statistics",
	"GET /api/messages/{id}":   "Get message by ID",
}

// ServeHealth reports process, database and room status.
func ServeHealth(db Pinger, engine *room.Engine, environment string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		status, dbStatus, code := "OK", "memory", http.StatusOK
		if db != nil {
			pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			err := db.Ping(pingCtx)
			cancel()

			dbStatus = "connected"
			if err != nil {
				slog.WarnContext(ctx, "database ping failed", "error", err)
				status, dbStatus, code = "ERROR", "disconnected", http.StatusServiceUnavailable
			}
		}

		writeJSON(w, r, code, map[string]any{
			"status":         status,
			"timestamp":      time.Now().UTC(),
			"environment":    environment,
			"database":       dbStatus,
			"connectedUsers": engine.ConnectedCount(),
		})
	}
}

// ServeIndex describes the service, its statistics and its real-time events.
func ServeIndex(svc *store.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		body := map[string]any{
			"message": "Live Chat Backend API",
			"version": apiVersion,
			"apiEndpoints": map[string]string{
				"health":         "GET /health",
				"api":            "GET /api",
				"messages":       "GET /api/messages",
				"createMessage":  "POST /api/messages",
				"recentMessages": "GET /api/messages/recent",
				"messageStats":   "GET /api/messages/stats",
				"websocket":      "GET /ws",
			},
			"socketEvents": map[string][]string{
				"client": {model.EventJoin, model.EventSend, model.EventTyping},
				"server": {
					model.EventJoinConfirmed,
					model.EventChatHistory,
					model.EventMessageReceived,
					model.EventUserJoined,
					model.EventUserTyping,
					model.EventUserLeft,
					model.EventError,
				},
			},
		}

		stats, err := svc.Stats(ctx)
		if err != nil {
			slog.WarnContext(ctx, "failed to retrieve statistics", "error", err)
			body["error"] = err.Error()
		} else {
			body["statistics"] = stats
		}

		writeJSON(w, r, http.StatusOK, body)
	}
}

// ServeAPIIndex lists the REST endpoints.
func ServeAPIIndex() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, r, http.StatusOK, map[string]any{
			"message":   "Live Chat API v" + apiVersion,
			"status":    "Active",
			"timestamp": time.Now().UTC(),
			"endpoints": map[string]any{"messages": messageEndpoints},
		})
	}
}

func NotFound() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondError(w, r, http.StatusNotFound, "Route not found", "Cannot "+r.Method+" "+r.URL.Path, nil)
	}
}

func MethodNotAllowed() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondError(w, r, http.StatusMethodNotAllowed, "Method not allowed", "Cannot "+r.Method+" "+r.URL.Path, nil)
	}
}
