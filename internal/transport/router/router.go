package router

import (
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/trunov/assethub/internal/transport/handler"
)

// NewRouter mounts the webhook, manual ingestion, health and metrics routes.
// ingestPerMinute limits /ingest per client IP, 0 disables the limit.
func NewRouter(h *handler.Handler, ingestPerMinute int) chi.Router {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	r.Get("/webhook", h.WebhookChallenge)
	r.Post("/webhook", h.WebhookNotify)

	r.Group(func(r chi.Router) {
		if ingestPerMinute > 0 {
			r.Use(httprate.LimitByIP(ingestPerMinute, time.Minute))
		}
		r.Post("/ingest", h.Ingest)
	})

	r.Get("/healthz", h.Healthz)
	r.Handle("/metrics", promhttp.Handler())

	return r
}
