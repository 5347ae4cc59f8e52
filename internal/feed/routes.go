package feed

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers the live feed route with the Chi router.
// Authentication is handled inside the handler because EventSource clients
// can only pass the token as a query parameter.
func RegisterRoutes(r chi.Router, handler *Handler) {
	// GET /api/v1/feed - live punch activity stream (SSE)
	r.Get("/feed", handler.HandleStream)
}
