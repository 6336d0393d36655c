package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/betenlace/affiliates/internal/metrics"
)

// NewRouter creates the Chi router with all API routes mounted.
func NewRouter(d Deps) http.Handler {
	h := &Handlers{Deps: d}

	r := chi.NewRouter()

	// Middleware.
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)

	r.Get("/healthz", h.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.SetHeader("Content-Type", "application/json"))

		// Job triggers.
		r.Route("/jobs", func(r chi.Router) {
			r.Post("/ingest", h.IngestAll)
			r.Post("/ingest/{title}", h.Ingest)
			r.Post("/settlement", h.Settle)
			r.Post("/fx", h.UpdateFx)
			r.Post("/clicks", h.BackfillClicks)
		})

		// Reads.
		r.Get("/campaigns", h.ListCampaigns)
		r.Get("/links/{id}/daily", h.ListLinkDaily)
		r.Get("/partners/{id}/bills", h.ListPartnerBills)
	})

	return r
}
