package punch

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/lengolf/timeclock/backend/internal/repository"
)

// DefaultMaxBodyBytes bounds the punch request body. It leaves room for the
// largest accepted photo after base64 expansion plus the JSON envelope.
const DefaultMaxBodyBytes = 8 << 20

// Terminal-facing messages. Deliberately generic: the invalid-PIN message is
// identical whether the PIN belongs to nobody or to the wrong person.
const (
	msgInvalidRequest = "Invalid request"
	msgInvalidPin     = "Invalid PIN"
	msgLocked         = "Account temporarily locked. Try again later."
	msgInternal       = "Unable to record punch. Please try again."
	msgClockedIn      = "Clocked in"
	msgClockedOut     = "Clocked out"
)

// Handler handles HTTP requests for the punch endpoint
type Handler struct {
	service      *Service
	logger       *slog.Logger
	maxBodyBytes int64
}

// NewHandler creates a new Handler instance
func NewHandler(service *Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		service:      service,
		logger:       logger,
		maxBodyBytes: DefaultMaxBodyBytes,
	}
}

// Punch handles POST /api/v1/punch
func (h *Handler) Punch(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)

	var req PunchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeResponse(w, http.StatusBadRequest, PunchResponse{
			Message: msgInvalidRequest,
		})
		return
	}

	if err := ValidateRequest(&req); err != nil {
		h.writeResponse(w, http.StatusBadRequest, PunchResponse{
			Message: msgInvalidRequest,
		})
		return
	}

	result, err := h.service.Punch(r.Context(), &req)
	if err != nil {
		h.writePunchError(w, err)
		return
	}

	message := msgClockedIn
	if result.Entry.Action == repository.ActionClockOut {
		message = msgClockedOut
	}

	h.writeResponse(w, http.StatusOK, PunchResponse{
		Success:       true,
		StaffName:     result.StaffName,
		Action:        string(result.Entry.Action),
		Timestamp:     result.Entry.Timestamp.In(h.service.Location()).Format(time.RFC3339),
		PhotoAccepted: result.PhotoAccepted,
		Message:       message,
	})
}

// writePunchError maps service errors to terminal responses. Lockouts carry
// the remaining window; everything else collapses into two generic messages
// so responses never reveal which credentials exist.
func (h *Handler) writePunchError(w http.ResponseWriter, err error) {
	var lockedErr *AccountLockedError
	switch {
	case errors.As(err, &lockedErr):
		h.writeResponse(w, http.StatusForbidden, PunchResponse{
			Locked:               true,
			LockRemainingSeconds: lockedErr.RemainingSeconds(),
			Message:              msgLocked,
		})
	case errors.Is(err, ErrInvalidPin), errors.Is(err, ErrPinConflict):
		h.writeResponse(w, http.StatusUnauthorized, PunchResponse{
			Message: msgInvalidPin,
		})
	default:
		h.logger.Error("punch failed", "error", err)
		h.writeResponse(w, http.StatusInternalServerError, PunchResponse{
			Message: msgInternal,
		})
	}
}

// writeResponse writes the flat punch response JSON
func (h *Handler) writeResponse(w http.ResponseWriter, statusCode int, resp PunchResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(resp)
}
