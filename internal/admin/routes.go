package admin

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers operator authentication routes with the Chi router.
// Login is the only unauthenticated admin route; rateLimiter guards it against
// password guessing when non-nil.
func RegisterRoutes(r chi.Router, handler *Handler, rateLimiter func(next http.Handler) http.Handler) {
	r.Route("/auth", func(r chi.Router) {
		// POST /api/v1/auth/login - Operator login
		if rateLimiter != nil {
			r.With(rateLimiter).Post("/login", handler.Login)
		} else {
			r.Post("/login", handler.Login)
		}
	})
}
