// Package http provides the HTTP bridge through which a local user interface
// answers passphrase prompts.
package http

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/atinyakov/keywarden/internal/middleware"
)

// NewRouter constructs the bridge handler.
//
// Routes:
//
//	GET    /api/passphrase/requests          → promptHandler.List
//	GET    /api/passphrase/requests/{token}  → promptHandler.Get
//	POST   /api/passphrase/requests/{token}  → promptHandler.Submit (rate limited)
//	DELETE /api/passphrase/requests/{token}  → promptHandler.Cancel
//	GET    /api/passphrase/pending           → promptHandler.Pending
//	GET    /metrics                          → metricsHandler
//
// Middleware chain (applied in order):
//  1. LoopbackOnly: rejects non-local clients
//  2. WithRequestLogging(logger): logs incoming requests
//  3. AllowContentType("application/json"): on /api only
func NewRouter(
	promptHandler *PromptHandler,
	metricsHandler http.Handler,
	limiter *middleware.RateLimiter,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.LoopbackOnly)
	r.Use(middleware.WithRequestLogging(logger))

	r.Method(http.MethodGet, "/metrics", metricsHandler)
	r.Get("/api/passphrase/pending", promptHandler.Pending)

	r.Route("/api/passphrase/requests", func(r chi.Router) {
		r.Use(chiMiddleware.AllowContentType("application/json"))

		r.Get("/", promptHandler.List)
		r.Get("/{token}", promptHandler.Get)
		r.Delete("/{token}", promptHandler.Cancel)

		r.Group(func(r chi.Router) {
			r.Use(limiter.Handler)
			r.Post("/{token}", promptHandler.Submit)
		})
	})

	return r
}
