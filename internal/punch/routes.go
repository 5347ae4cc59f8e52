package punch

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers the punch endpoint with the Chi router.
// The endpoint is unauthenticated: the PIN inside the body is the terminal's
// credential. rateLimiter guards against PIN guessing when non-nil.
func RegisterRoutes(r chi.Router, handler *Handler, rateLimiter func(next http.Handler) http.Handler) {
	// POST /api/v1/punch - Process a punch submission
	if rateLimiter != nil {
		r.With(rateLimiter).Post("/punch", handler.Punch)
		return
	}
	r.Post("/punch", handler.Punch)
}
