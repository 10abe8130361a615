package router

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/medbook-agent/internal/conversation"
	httpmiddleware "github.com/wolfman30/medbook-agent/internal/http/middleware"
	"github.com/wolfman30/medbook-agent/pkg/logging"
)

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	ChatHandler        *conversation.Handler
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string

	// Identity
	JWTSecret string
	Users     httpmiddleware.UserLookup

	// Rate limits (optional)
	RateLimiter *httpmiddleware.RateLimiter
	ChatQuota   *httpmiddleware.ChatQuota

	// Checks run by /health, keyed by dependency name.
	HealthChecks map[string]HealthCheck
	ChatTimeout  time.Duration
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	r.Use(httpmiddleware.RequestLogger(logger))

	r.Get("/health", healthHandler(cfg.HealthChecks, logger))
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	if cfg.ChatHandler != nil {
		r.Group(func(chat chi.Router) {
			if cfg.RateLimiter != nil {
				chat.Use(httpmiddleware.RateLimit(cfg.RateLimiter))
			}
			chat.Use(httpmiddleware.Identity(cfg.JWTSecret, cfg.Users, logger))
			if cfg.ChatQuota != nil {
				chat.Use(cfg.ChatQuota.Middleware)
			}
			if cfg.ChatTimeout > 0 {
				chat.Use(middleware.Timeout(cfg.ChatTimeout))
			}
			chat.Post("/agent/chat", cfg.ChatHandler.Chat)
		})
	}

	return r
}

func healthHandler(checks map[string]HealthCheck, logger *logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		body := map[string]string{"status": "ok"}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				logger.Warn("health check failed", "dependency", name, "error", err)
				body[name] = "unavailable"
				body["status"] = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			body[name] = "ok"
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
}
