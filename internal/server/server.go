package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/parleychat/parley/internal/api"
	"github.com/parleychat/parley/internal/config"
	"github.com/parleychat/parley/internal/database"
	"github.com/parleychat/parley/internal/middleware"
	"github.com/parleychat/parley/internal/websocket"
)

// Dependencies holds all service dependencies for the server
type Dependencies struct {
	DB              *database.DB
	WSHandler       *websocket.Handler
	InternalHandler *api.InternalHandler
	Logger          *slog.Logger
}

// New creates an HTTP server with all routes configured.
func New(cfg *config.Config, deps *Dependencies) *http.Server {
	mux := http.NewServeMux()

	registerRoutes(mux, cfg, deps)

	// Wrap with middleware
	handler := chainMiddleware(mux,
		requestIDMiddleware,
		loggingMiddleware(deps.Logger),
		recoverMiddleware(deps.Logger),
	)

	return &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: handler,
		// No global read/write timeouts: the websocket route holds its
		// connection open for the session lifetime
		IdleTimeout: 60 * time.Second,
	}
}

func registerRoutes(mux *http.ServeMux, cfg *config.Config, deps *Dependencies) {
	// Health check - essential for docker, k8s, load balancers
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Ready check - verifies DB connectivity
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := deps.DB.Health(r.Context()); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"not ready","error":"database unavailable"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	})

	// =========================================================================
	// WebSocket route (browser clients)
	// =========================================================================
	mux.Handle("GET /ws", deps.WSHandler)

	// =========================================================================
	// Internal collaborator routes (called by the CRUD service)
	// =========================================================================
	internalAuth := bearerTokenMiddleware(cfg.InternalAPIToken)
	rateLimiter := middleware.NewRateLimiter(cfg.InternalRateRPM)

	internal := func(h http.HandlerFunc) http.Handler {
		return internalAuth(rateLimiter.Middleware(h))
	}

	mux.Handle("POST /internal/messages/broadcast", internal(deps.InternalHandler.BroadcastMessage))
	mux.Handle("POST /internal/friends/request", internal(deps.InternalHandler.FriendRequest))
	mux.Handle("POST /internal/friends/accepted", internal(deps.InternalHandler.FriendAccepted))
	mux.Handle("GET /internal/presence/{userID}", internal(deps.InternalHandler.GetPresence))
}
