package staff

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/lengolf/timeclock/backend/internal/repository"
)

var validate = validator.New()

// Error codes for API responses
const (
	CodeValidationError = "VALIDATION_ERROR"
	CodeStaffNotFound   = "STAFF_NOT_FOUND"
	CodePinInUse        = "PIN_IN_USE"
)

// APIResponse represents the standard API response format
type APIResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     *APIError   `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// APIError represents the error detail in API response
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Handler handles HTTP requests for staff management endpoints
type Handler struct {
	service *Service
	logger  *slog.Logger
}

// NewHandler creates a new Handler instance
func NewHandler(service *Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// List handles GET /api/v1/staff
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	includeInactive := r.URL.Query().Get("include_inactive") == "true"

	creds, err := h.service.List(r.Context(), includeInactive)
	if err != nil {
		h.logger.Error("failed to list staff", "error", err)
		h.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred")
		return
	}

	now := time.Now()
	views := make([]StaffView, len(creds))
	for i := range creds {
		views[i] = NewStaffView(&creds[i], now)
	}

	h.writeSuccess(w, http.StatusOK, ListStaffResponse{
		Staff: views,
		Total: len(views),
	})
}

// Get handles GET /api/v1/staff/{id}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.staffID(w, r)
	if !ok {
		return
	}

	cred, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err, "failed to get staff member")
		return
	}

	h.writeSuccess(w, http.StatusOK, NewStaffView(cred, time.Now()))
}

// Create handles POST /api/v1/staff
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateStaffRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, CodeValidationError, "Invalid request body")
		return
	}
	if err := validate.Struct(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, CodeValidationError, "name and a 6-digit pin are required")
		return
	}

	cred, err := h.service.Create(r.Context(), req.Name, req.Pin)
	if err != nil {
		h.writeServiceError(w, err, "failed to create staff member")
		return
	}

	h.writeSuccess(w, http.StatusCreated, NewStaffView(cred, time.Now()))
}

// ResetPin handles POST /api/v1/staff/{id}/pin
func (h *Handler) ResetPin(w http.ResponseWriter, r *http.Request) {
	id, ok := h.staffID(w, r)
	if !ok {
		return
	}

	var req ResetPinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, CodeValidationError, "Invalid request body")
		return
	}
	if err := validate.Struct(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, CodeValidationError, "a 6-digit pin is required")
		return
	}

	if err := h.service.ResetPin(r.Context(), id, req.Pin); err != nil {
		h.writeServiceError(w, err, "failed to reset pin")
		return
	}

	h.writeSuccess(w, http.StatusOK, map[string]interface{}{
		"id":      id,
		"message": "PIN updated",
	})
}

// Unlock handles POST /api/v1/staff/{id}/unlock
func (h *Handler) Unlock(w http.ResponseWriter, r *http.Request) {
	id, ok := h.staffID(w, r)
	if !ok {
		return
	}

	cred, err := h.service.Unlock(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err, "failed to unlock staff member")
		return
	}

	h.writeSuccess(w, http.StatusOK, NewStaffView(cred, time.Now()))
}

// Deactivate handles POST /api/v1/staff/{id}/deactivate
func (h *Handler) Deactivate(w http.ResponseWriter, r *http.Request) {
	id, ok := h.staffID(w, r)
	if !ok {
		return
	}

	if err := h.service.Deactivate(r.Context(), id); err != nil {
		h.writeServiceError(w, err, "failed to deactivate staff member")
		return
	}

	h.writeSuccess(w, http.StatusOK, map[string]interface{}{
		"id":     id,
		"active": false,
	})
}

// Activate handles POST /api/v1/staff/{id}/activate
func (h *Handler) Activate(w http.ResponseWriter, r *http.Request) {
	id, ok := h.staffID(w, r)
	if !ok {
		return
	}

	if err := h.service.Activate(r.Context(), id); err != nil {
		h.writeServiceError(w, err, "failed to activate staff member")
		return
	}

	h.writeSuccess(w, http.StatusOK, map[string]interface{}{
		"id":     id,
		"active": true,
	})
}

// staffID parses the {id} route parameter, writing the error response itself
func (h *Handler) staffID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	idStr := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		h.writeError(w, http.StatusBadRequest, CodeValidationError, "Invalid staff id")
		return 0, false
	}
	return id, true
}

// writeServiceError maps service errors to API responses
func (h *Handler) writeServiceError(w http.ResponseWriter, err error, logMsg string) {
	switch {
	case errors.Is(err, repository.ErrStaffNotFound):
		h.writeError(w, http.StatusNotFound, CodeStaffNotFound, "Staff member not found")
	case errors.Is(err, ErrPinInUse):
		h.writeError(w, http.StatusConflict, CodePinInUse, "PIN is already in use by an active staff member")
	case errors.Is(err, ErrInvalidPinFormat):
		h.writeError(w, http.StatusBadRequest, CodeValidationError, "PIN must be exactly 6 digits")
	default:
		h.logger.Error(logMsg, "error", err)
		h.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred")
	}
}

// writeSuccess writes a success JSON response
func (h *Handler) writeSuccess(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	json.NewEncoder(w).Encode(APIResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UTC(),
	})
}

// writeError writes an error JSON response
func (h *Handler) writeError(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	json.NewEncoder(w).Encode(APIResponse{
		Success: false,
		Error: &APIError{
			Code:    code,
			Message: message,
		},
		Timestamp: time.Now().UTC(),
	})
}
