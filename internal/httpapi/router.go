// Package httpapi serves the notes over a local JSON HTTP API, the surface a
// desktop or web shell talks to.
package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dshills/notecontext/internal/service"
)

// Deps holds dependencies for the HTTP router.
type Deps struct {
	Service *service.Service
	Version string
}

// NewRouter creates a new HTTP router with the provided dependencies.
func NewRouter(deps *Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(LoggerMiddleware)
	r.Use(RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(CORS)

	h := &handlers{svc: deps.Service, version: deps.Version}

	r.Get("/healthz", h.health)

	r.Route("/api", func(r chi.Router) {
		r.Get("/search", h.search)
		r.Post("/ask", h.ask)
		r.Get("/stats", h.stats)

		r.Get("/files", h.listFiles)
		r.Post("/files", h.saveFile)

		r.Post("/index", h.index)
		r.Post("/watch", h.watch)
		r.Delete("/watch", h.stopWatch)

		r.Get("/pins", h.listPins)
		r.Post("/pins", h.pin)
		r.Delete("/pins", h.unpin)

		r.Post("/embeddings", h.embed)
		r.Get("/conversations", h.conversations)
	})

	return r
}
