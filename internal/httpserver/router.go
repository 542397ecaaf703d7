package httpserver

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/sevans717/aphila-sub004/internal/config"
	"github.com/sevans717/aphila-sub004/internal/ratelimit"
	"github.com/sevans717/aphila-sub004/internal/service"

	_ "github.com/sevans717/aphila-sub004/docs"
)

// Deps are the collaborators the HTTP surface is built from.
type Deps struct {
	Auth     *service.AuthService
	Presence *service.PresenceService
	History  *service.HistoryService
	Gateway  http.Handler

	// LoginLimiter throttles /api/auth/login per client IP; nil disables it.
	LoginLimiter *ratelimit.Buckets
}

// NewRouter constructs the main HTTP router and wires routes and middleware.
func NewRouter(cfg *config.Config, d Deps) http.Handler {
	r := chi.NewRouter()

	// Middlewares
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(hlog.NewHandler(log.Logger))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("http request")
	}))
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Device-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})
	r.Handle("/metrics", promhttp.Handler())

	// Swagger documentation
	r.Get("/docs/*", httpSwagger.Handler(
		httpSwagger.URL("/docs/doc.json"),
	))

	// Request timeouts would cut long-lived websocket connections, so
	// they only apply to the API.
	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))

		r.Group(func(r chi.Router) {
			if d.LoginLimiter != nil {
				r.Use(RateLimit(d.LoginLimiter))
			}
			r.Post("/auth/login", handleLogin(d.Auth))
		})

		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(d.Auth))

			r.Get("/auth/me", handleMe())
			r.Get("/presence/{userID}", handleGetPresence(d.Presence))
			r.Get("/conversations/{conversationID}/messages", handleListMessages(d.History))
			r.Get("/messages/{messageID}", handleGetMessage(d.History))
		})
	})

	// WebSocket endpoint
	r.Handle("/ws", d.Gateway)

	return r
}

// writeJSON is a small helper to send JSON responses.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}
