package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cloo-solutions/counsel/internal/api"
	"github.com/cloo-solutions/counsel/internal/api/handlers"
	"github.com/cloo-solutions/counsel/internal/api/middleware"
	"github.com/cloo-solutions/counsel/internal/logging"
)

type RouterConfig struct {
	AuthValidator       middleware.AuthValidator
	ChatHandler         *handlers.ChatHandler
	ConversationHandler *handlers.ConversationHandler
	ProjectHandler      *handlers.ProjectHandler
	MeHandler           *handlers.MeHandler
	Logger              logging.Logger
	// MetricsHandler defaults to the Prometheus default registry.
	MetricsHandler http.Handler
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Attachments are referenced by id, so chat bodies stay small.
	const maxBodyBytes int64 = 1 * 1024 * 1024

	r.Use(middleware.RequestID)
	r.Use(middleware.Sentry)
	r.Use(middleware.AccessLog(cfg.Logger))
	r.Use(middleware.MaxBodyBytes(maxBodyBytes))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	metrics := cfg.MetricsHandler
	if metrics == nil {
		metrics = promhttp.Handler()
	}
	r.Handle("/metrics", metrics)

	r.Group(func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(cfg.AuthValidator))

		r.Get("/me", cfg.MeHandler.Get)
		r.Post("/chat", cfg.ChatHandler.Chat)

		r.Route("/conversations", func(r chi.Router) {
			r.Get("/", cfg.ConversationHandler.List)
			r.Get("/{id}", cfg.ConversationHandler.Get)
		})

		r.Get("/projects", cfg.ProjectHandler.List)
	})

	return r
}
