// Package http assembles the middleware chain and mounts the per-module
// handlers.
package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	electionhandler "comitia/internal/election/handler"
	identityhandler "comitia/internal/identity/handler"
	"comitia/internal/token"
)

// RouterDeps carries everything the router mounts.
type RouterDeps struct {
	Identity  *identityhandler.Handler
	Elections *electionhandler.Handler
	Auth      *AuthHandler

	TokenIssuer *token.Issuer
	Users       UserLoader
	Logger      *slog.Logger
}

// NewRouter builds the chi router: health and metrics unauthenticated,
// everything under /api/v1 behind the acting-role token.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer)
	r.Use(RequestID)
	r.Use(RequestTime)
	r.Use(ClientMetadata)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/token", deps.Auth.IssueToken)

		r.Group(func(r chi.Router) {
			r.Use(Auth(deps.TokenIssuer, deps.Users))
			r.Route("/identity", deps.Identity.Routes)
			r.Route("/elections", deps.Elections.Routes)
		})
	})

	return r
}
