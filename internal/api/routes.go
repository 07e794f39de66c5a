package api

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/colin330smith/callbot-ai/internal/observability"
)

type RouterConfig struct {
	Handler       *Handler
	HealthHandler *observability.HealthHandler
	Metrics       *observability.Metrics
	Logger        *slog.Logger
}

func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	if cfg.Logger != nil {
		r.Use(observability.LoggingMiddleware(cfg.Logger))
	}

	if cfg.Metrics != nil {
		r.Use(observability.MetricsMiddleware(cfg.Metrics))
	}

	r.Get("/health", cfg.HealthHandler.Health)
	r.Get("/ready", cfg.HealthHandler.Ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/events", cfg.Handler.TriggerEvent)
	r.Post("/providers/{provider}", cfg.Handler.ProviderWebhook)

	r.Route("/businesses/{businessID}", func(r chi.Router) {
		r.Route("/webhooks", func(r chi.Router) {
			r.Post("/", cfg.Handler.CreateWebhook)
			r.Get("/", cfg.Handler.ListWebhooks)
			r.Delete("/{endpointID}", cfg.Handler.DeleteWebhook)
		})
		r.Route("/rules", func(r chi.Router) {
			r.Post("/", cfg.Handler.CreateRule)
			r.Get("/", cfg.Handler.ListRules)
			r.Delete("/{ruleID}", cfg.Handler.DeleteRule)
		})
	})

	return r
}
