package timesheet

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers entry endpoints on the router. All routes
// require admin authentication. The day summary endpoint lives under
// /staff and is registered by the staff package using Handler.DaySummary.
func RegisterRoutes(r chi.Router, handler *Handler, authMiddleware func(next http.Handler) http.Handler) {
	r.Route("/entries", func(r chi.Router) {
		r.Use(authMiddleware)

		// GET /api/v1/entries - List time entries with filters
		r.Get("/", handler.List)

		// GET /api/v1/entries/{id} - Get a single time entry
		r.Get("/{id}", handler.Get)

		// GET /api/v1/entries/{id}/photo - Presigned photo download URL
		r.Get("/{id}/photo", handler.Photo)
	})
}
