// Package server exposes the settlement core over HTTP and websocket.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/soliseum/arenad/internal/server/handler"
	"github.com/soliseum/arenad/internal/server/middleware"
	"github.com/soliseum/arenad/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled
}

// Handlers aggregates the HTTP handlers the server registers.
type Handlers struct {
	Health   *handler.HealthHandler
	Arenas   *handler.ArenaHandler
	Stakes   *handler.StakeHandler
	Accounts *handler.AccountHandler
}

// Server is the HTTP + websocket API server for the settlement core.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered and middleware
// (logging, CORS, auth) wired.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check.
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Arena lifecycle.
	mux.HandleFunc("GET /api/arenas", handlers.Arenas.ListArenas)
	mux.HandleFunc("POST /api/arenas", handlers.Arenas.OpenArena)
	mux.HandleFunc("GET /api/arenas/{id}", handlers.Arenas.GetArena)
	mux.HandleFunc("POST /api/arenas/{id}/settle", handlers.Arenas.Settle)
	mux.HandleFunc("POST /api/arenas/{id}/reset", handlers.Arenas.Reset)
	mux.HandleFunc("POST /api/arenas/{id}/oracles", handlers.Arenas.RotateOracles)

	// Stakes and claims.
	mux.HandleFunc("GET /api/arenas/{id}/stakes", handlers.Stakes.ListStakes)
	mux.HandleFunc("POST /api/arenas/{id}/stakes", handlers.Stakes.PlaceStake)
	mux.HandleFunc("GET /api/arenas/{id}/stakes/{owner}", handlers.Stakes.GetStake)
	mux.HandleFunc("POST /api/arenas/{id}/claims", handlers.Stakes.Claim)

	// Custody accounts.
	mux.HandleFunc("POST /api/accounts/{owner}/deposit", handlers.Accounts.Deposit)
	mux.HandleFunc("GET /api/accounts/{owner}/balance", handlers.Accounts.Balance)

	// Live settlement event stream.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey)(h)
	h = middleware.Logging(logger)(h)
	h = corsMiddleware(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// within the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}

// corsMiddleware sets CORS headers for the allowed origins, defaulting to
// allowing all origins when none are configured.
func corsMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			if origin != "" {
				allowed := len(allowedOrigins) == 0
				for _, o := range allowedOrigins {
					if strings.EqualFold(o, "*") || strings.EqualFold(o, origin) {
						allowed = true
						break
					}
				}

				if allowed {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
					w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key")
					w.Header().Set("Access-Control-Max-Age", "86400")
				}
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
