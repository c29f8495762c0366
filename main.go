// Package main our entry point.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/johndosdos/livechat/internal/broker"
	"github.com/johndosdos/livechat/internal/config"
	"github.com/johndosdos/livechat/internal/handler"
	ratelimiter "github.com/johndosdos/livechat/internal/rate_limiter"
	"github.com/johndosdos/livechat/internal/room"
	"github.com/johndosdos/livechat/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	log := newLogger(cfg)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("server stopped with error", "error", err)
		os.Exit(1)
	}

	log.Info("Server stopped")
}

func newLogger(cfg config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:     cfg.Level(),
		AddSource: !cfg.IsProduction(),
	}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("Starting application...", "environment", cfg.Environment)

	// Init store
	var (
		messages store.Store
		db       handler.Pinger
	)

	if cfg.DBURL != "" {
		log.Info("Initializing Database connection...")

		pool, err := pgxpool.New(ctx, cfg.DBURL)
		if err != nil {
			return fmt.Errorf("could not connect to the postgresql database: %w", err)
		}
		defer pool.Close()

		if err := store.Migrate(ctx, pool); err != nil {
			return err
		}

		pg := store.NewPGStore(pool)
		messages, db = pg, pg
	} else {
		log.Warn("DB_URL is not set; messages are kept in memory")
		messages = store.NewMemoryStore()
	}

	svc := store.NewService(messages, log)

	engineOpts := []room.Option{
		room.WithLogger(log),
		room.WithHistoryLimit(cfg.HistoryLimit),
	}

	// Init NATS
	if cfg.NATSURL != "" {
		log.Info("Initializing NATS connection...")

		conn, js, err := broker.Connect(ctx, cfg.NATSURL, broker.Credentials{
			CredsFile: cfg.NATSCred,
			User:      cfg.NATSUser,
			Password:  cfg.NATSPassword,
		})
		if err != nil {
			return err
		}
		defer func() {
			if err := conn.Drain(); err != nil {
				log.Warn("couldn't drain NATS conn", "error", err)
			}
		}()

		engineOpts = append(engineOpts, room.WithPublisher(broker.NewPublisher(js)))
	}

	engine := room.NewEngine(svc, engineOpts...)

	var apiLimiter *ratelimiter.Limiter
	if cfg.APIRate > 0 {
		apiLimiter = ratelimiter.New(cfg.APIRate, cfg.APIWindow,
			ratelimiter.WithIdleTTL(10*time.Minute, time.Minute),
			ratelimiter.WithLogger(log))
		defer apiLimiter.Stop()
	}

	router := handler.NewRouter(handler.Deps{
		Service:        svc,
		Engine:         engine,
		DB:             db,
		Environment:    cfg.Environment,
		AllowedOrigins: cfg.AllowedOrigins,
		MaxBodyBytes:   cfg.MaxBodyBytes,
		APILimiter:     apiLimiter,
		Ws: handler.WsOptions{
			OriginPatterns: cfg.OriginHosts(),
			MessageRate:    cfg.MessageRate,
			MessageWindow:  cfg.MessageWindow,
			TypingRate:     cfg.TypingRate,
			TypingWindow:   cfg.TypingWindow,
		},
		Log: log,
	})

	// Websocket handlers run on the signal context so open connections are
	// closed on shutdown; Shutdown itself does not wait for hijacked conns.
	server := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       30 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("Server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	log.Info("Shutdown signal received; shutting down...",
		"connected_users", engine.ConnectedCount())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return nil
}
