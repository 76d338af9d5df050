// Package httptransport wires the HTTP surface: public health and metrics
// endpoints, and the authenticated consent and audit APIs.
package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"veritas/internal/platform/middleware"
)

const requestTimeout = 30 * time.Second

// Registrar mounts a handler's routes on a router.
type Registrar interface {
	Register(r chi.Router)
}

// NewRouter assembles the middleware stack and mounts all endpoints.
// Everything under protected requires a valid bearer token.
func NewRouter(logger *slog.Logger, validator middleware.TokenValidator, public []Registrar, protected []Registrar) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Timeout(requestTimeout))
	r.Use(middleware.ContentTypeJSON)
	r.Use(middleware.ClientMetadata)

	r.Handle("/metrics", promhttp.Handler())
	for _, registrar := range public {
		registrar.Register(r)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(validator))
		for _, registrar := range protected {
			registrar.Register(r)
		}
	})

	return r
}
