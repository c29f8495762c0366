package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/johndosdos/livechat/internal"
	ratelimiter "github.com/johndosdos/livechat/internal/rate_limiter"
	"github.com/johndosdos/livechat/internal/room"
	"github.com/johndosdos/livechat/internal/store"
)

// Deps holds everything the router serves. DB and APILimiter may be nil.
type Deps struct {
	Service     *store.Service
	Engine      *room.Engine
	DB          Pinger
	Environment string

	AllowedOrigins []string
	MaxBodyBytes   int64
	APILimiter     *ratelimiter.Limiter
	Ws             WsOptions

	Log *slog.Logger
}

func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(internal.Middleware(d.Log))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.NotFound(NotFound())
	r.MethodNotAllowed(MethodNotAllowed())

	r.Get("/", ServeIndex(d.Service))
	r.Get("/health", ServeHealth(d.DB, d.Engine, d.Environment))
	r.Get("/ws", ServeWs(d.Engine, d.Ws))

	r.Route("/api", func(r chi.Router) {
		if d.APILimiter != nil {
			r.Use(d.APILimiter.Middleware)
		}
		if d.MaxBodyBytes > 0 {
			r.Use(middleware.RequestSize(d.MaxBodyBytes))
		}

		r.Get("/", ServeAPIIndex())
		r.Route("/messages", func(r chi.Router) {
			r.Get("/", ListMessages(d.Service))
			r.Post("/", CreateMessage(d.Service))
			r.Get("/recent", RecentMessages(d.Service))
			r.Get("/stats", MessageStats(d.Service))
			r.Get("/{id}", GetMessage(d.Service))
		})
	})

	return r
}
