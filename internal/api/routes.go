package api

import (
	"net/http"
	"time"

	"token-vault/config"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter creates and configures a Chi router with all routes
func NewRouter(h *Handler, cfg *config.Config) http.Handler {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(CORSMiddleware(cfg.HTTP.CORSAllowedOrigins))
	r.Use(MetricsMiddleware)

	// Metrics endpoint for Prometheus
	r.Handle("/metrics", promhttp.Handler())

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Health check
		r.Get("/health", h.HandleHealth)

		// Accounts
		r.Route("/accounts", func(r chi.Router) {
			r.Post("/", h.HandleCreateAccount)
			r.Get("/", h.HandleListAccounts)
			r.Get("/{id}", h.HandleGetAccount)
			r.Put("/{id}", h.HandleUpdateAccount)
			r.Delete("/{id}", h.HandleDeleteAccount)
			r.Get("/{id}/login-url", h.HandleLoginURL)
		})

		// Tokens
		r.Route("/tokens", func(r chi.Router) {
			r.Get("/", h.HandleListTokens)
			r.Get("/stats", h.HandleTokenStats)
			r.Post("/expire-all", h.HandleExpireAll)
			r.Post("/{accountID}/generate", h.HandleGenerateToken)
			r.Get("/{accountID}/status", h.HandleTokenStatus)
			r.Get("/{accountID}/access-token", h.HandleAccessToken)
			r.Post("/{accountID}/invalidate", h.HandleInvalidateToken)
		})

		// Audit trail
		r.Get("/audit/{accountID}", h.HandleGetAuditLogs)
	})

	return r
}

// CORSMiddleware returns CORS middleware with the specified allowed origins
func CORSMiddleware(allowedOrigins string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", allowedOrigins)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
