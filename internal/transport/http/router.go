// Package httptransport assembles the HTTP surface: shared middleware,
// health and metrics endpoints, and the authenticated feature routes.
package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"zkattend/internal/platform/middleware"
)

// Registrar is implemented by every feature handler.
type Registrar interface {
	Register(r chi.Router)
}

// NewRouter wires middleware and mounts each feature's routes behind
// bearer-token auth. Health and metrics stay outside the auth boundary.
func NewRouter(logger *slog.Logger, validator middleware.JWTValidator, registrars ...Registrar) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Logger(logger))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(gr chi.Router) {
		gr.Use(middleware.RequireAuth(validator, logger))
		for _, registrar := range registrars {
			registrar.Register(gr)
		}
	})

	return r
}
