package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/parleychat/parley/internal/api"
	"github.com/parleychat/parley/internal/auth"
	"github.com/parleychat/parley/internal/config"
	"github.com/parleychat/parley/internal/database"
	"github.com/parleychat/parley/internal/pubsub"
	"github.com/parleychat/parley/internal/server"
	"github.com/parleychat/parley/internal/websocket"
)

func main() {
	// Structured logging from the start
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Create context for initialization
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Connect to the message/user store
	db, err := database.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("connected to database")

	messageRepo := database.NewMessageRepository(db)
	userRepo := database.NewUserRepository(db)

	// Token service verifies the identity handed to us at connect time
	jwtKey := cfg.JWTSigningKey
	if jwtKey == "" {
		if cfg.IsDevelopment() {
			jwtKey = "dev-signing-key-do-not-use-in-production!!" // 44 chars
			slog.Warn("using default JWT signing key - DO NOT USE IN PRODUCTION")
		} else {
			slog.Error("JWT_SIGNING_KEY is required in production")
			os.Exit(1)
		}
	}

	tokenService, err := auth.NewTokenService(jwtKey)
	if err != nil {
		slog.Error("failed to create token service", "error", err)
		os.Exit(1)
	}

	// Pick the pub/sub backend: memory for a single instance, Redis or
	// NATS when several hub instances share the event stream
	ps, err := newPubSub(cfg)
	if err != nil {
		slog.Error("failed to initialize pubsub", "error", err, "type", cfg.PubSubType)
		os.Exit(1)
	}
	defer ps.Close()
	slog.Info("pubsub initialized", "type", cfg.PubSubType)

	// Broadcaster lets the CRUD service raise events through the hub
	broadcaster := websocket.NewPubSubBroadcaster(ps)

	// Initialize the hub and its handlers
	hub := websocket.NewHub(messageRepo, userRepo, ps, cfg.EventRateLimit, logger)
	go hub.Run(context.Background())
	wsHandler := websocket.NewHandler(hub, tokenService, logger)

	internalHandler := api.NewInternalHandler(broadcaster, hub.Presence(), logger)

	// Create and start server
	deps := &server.Dependencies{
		DB:              db,
		WSHandler:       wsHandler,
		InternalHandler: internalHandler,
		Logger:          logger,
	}

	srv := server.New(cfg, deps)

	// Graceful shutdown setup
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("starting server", "addr", cfg.ServerAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt
	<-shutdownCtx.Done()
	slog.Info("shutting down gracefully...")

	// Give active connections 10 seconds to finish
	timeoutCtx, timeoutCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer timeoutCancel()

	if err := srv.Shutdown(timeoutCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}

	slog.Info("server stopped")
}

func newPubSub(cfg *config.Config) (pubsub.PubSub, error) {
	switch cfg.PubSubType {
	case "redis":
		return pubsub.NewRedisPubSub(cfg.RedisURL)
	case "nats":
		return pubsub.NewNatsPubSub(cfg.NatsURL)
	default:
		return pubsub.NewMemoryPubSub(), nil
	}
}
