package staff

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers staff management routes with the Chi router.
// All routes require operator authentication. daySummary is the timesheet
// package's local-day handler; it lives under /staff/{id} so it registers
// here.
func RegisterRoutes(r chi.Router, handler *Handler, daySummary http.HandlerFunc, authMiddleware func(next http.Handler) http.Handler) {
	r.Route("/staff", func(r chi.Router) {
		r.Use(authMiddleware)

		// GET /api/v1/staff - List staff members
		r.Get("/", handler.List)

		// POST /api/v1/staff - Enroll a staff member
		r.Post("/", handler.Create)

		// GET /api/v1/staff/:id - Get a staff member
		r.Get("/{id}", handler.Get)

		// POST /api/v1/staff/:id/pin - Reset a staff member's PIN
		r.Post("/{id}/pin", handler.ResetPin)

		// POST /api/v1/staff/:id/unlock - Clear a lockout
		r.Post("/{id}/unlock", handler.Unlock)

		// POST /api/v1/staff/:id/deactivate - Remove from the punch pool
		r.Post("/{id}/deactivate", handler.Deactivate)

		// POST /api/v1/staff/:id/activate - Return to the punch pool
		r.Post("/{id}/activate", handler.Activate)

		// GET /api/v1/staff/:id/day - Local-day timesheet summary
		if daySummary != nil {
			r.Get("/{id}/day", daySummary)
		}
	})
}
