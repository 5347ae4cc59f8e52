package timesheet

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/lengolf/timeclock/backend/internal/repository"
)

// Error codes returned by timesheet endpoints.
const (
	CodeValidationError    = "VALIDATION_ERROR"
	CodeEntryNotFound      = "ENTRY_NOT_FOUND"
	CodeStaffNotFound      = "STAFF_NOT_FOUND"
	CodePhotoNotAvailable  = "PHOTO_NOT_AVAILABLE"
	CodeStorageUnavailable = "STORAGE_UNAVAILABLE"
	CodeInternalError      = "INTERNAL_ERROR"
)

// APIResponse is the standard response envelope for admin endpoints.
type APIResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     *APIError   `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// APIError carries error details in an API response.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Handler exposes time entry endpoints for the admin dashboard.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

// NewHandler creates a timesheet Handler.
func NewHandler(service *Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{service: service, logger: logger}
}

// List handles GET /api/v1/entries with optional filters.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	params := parseListParams(r)

	entries, total, err := h.service.List(r.Context(), params)
	if err != nil {
		h.logger.Error("failed to list time entries", "error", err)
		h.writeError(w, http.StatusInternalServerError, CodeInternalError, "Failed to list entries")
		return
	}

	views := make([]EntryView, 0, len(entries))
	for _, e := range entries {
		views = append(views, NewEntryView(e, h.service.Location()))
	}

	page := params.Page
	if page < 1 {
		page = 1
	}
	limit := params.Limit
	if limit < 1 {
		limit = 20
	}
	h.writeSuccess(w, http.StatusOK, ListEntriesResponse{
		Entries: views,
		Total:   total,
		Page:    page,
		Limit:   limit,
	})
}

// Get handles GET /api/v1/entries/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.entryID(w, r)
	if !ok {
		return
	}

	entry, err := h.service.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrEntryNotFound) {
			h.writeError(w, http.StatusNotFound, CodeEntryNotFound, "Entry not found")
			return
		}
		h.logger.Error("failed to get time entry", "entry_id", id, "error", err)
		h.writeError(w, http.StatusInternalServerError, CodeInternalError, "Failed to get entry")
		return
	}

	h.writeSuccess(w, http.StatusOK, NewEntryView(*entry, h.service.Location()))
}

// Photo handles GET /api/v1/entries/{id}/photo and returns a presigned
// download URL rather than the image bytes.
func (h *Handler) Photo(w http.ResponseWriter, r *http.Request) {
	id, ok := h.entryID(w, r)
	if !ok {
		return
	}

	url, expiry, err := h.service.PhotoURL(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrEntryNotFound):
			h.writeError(w, http.StatusNotFound, CodeEntryNotFound, "Entry not found")
		case errors.Is(err, ErrNoPhoto):
			h.writeError(w, http.StatusNotFound, CodePhotoNotAvailable, "Entry has no photo")
		case errors.Is(err, ErrStorageUnavailable):
			h.writeError(w, http.StatusServiceUnavailable, CodeStorageUnavailable, "Photo storage unavailable")
		default:
			h.logger.Error("failed to presign photo URL", "entry_id", id, "error", err)
			h.writeError(w, http.StatusInternalServerError, CodeInternalError, "Failed to get photo URL")
		}
		return
	}

	h.writeSuccess(w, http.StatusOK, PhotoURLResponse{
		URL:              url,
		ExpiresInSeconds: int64(expiry / time.Second),
	})
}

// DaySummary handles GET /api/v1/staff/{id}/day. The date query parameter
// is YYYY-MM-DD in the business timezone and defaults to today.
func (h *Handler) DaySummary(w http.ResponseWriter, r *http.Request) {
	idStr := chi.URLParam(r, "id")
	staffID, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || staffID <= 0 {
		h.writeError(w, http.StatusBadRequest, CodeValidationError, "Invalid staff ID")
		return
	}

	summary, err := h.service.DaySummary(r.Context(), staffID, r.URL.Query().Get("date"))
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrStaffNotFound):
			h.writeError(w, http.StatusNotFound, CodeStaffNotFound, "Staff member not found")
		case errors.Is(err, ErrInvalidDate):
			h.writeError(w, http.StatusBadRequest, CodeValidationError, "Invalid date, expected YYYY-MM-DD")
		default:
			h.logger.Error("failed to build day summary", "staff_id", staffID, "error", err)
			h.writeError(w, http.StatusInternalServerError, CodeInternalError, "Failed to build day summary")
		}
		return
	}

	h.writeSuccess(w, http.StatusOK, summary)
}

// parseListParams reads entry list filters from the query string.
// Unparseable filters are ignored rather than rejected.
func parseListParams(r *http.Request) repository.ListEntryParams {
	params := repository.ListEntryParams{}

	if pageStr := r.URL.Query().Get("page"); pageStr != "" {
		if page, err := strconv.Atoi(pageStr); err == nil && page > 0 {
			params.Page = page
		}
	}

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil && limit > 0 {
			params.Limit = limit
		}
	}

	if staffIDStr := r.URL.Query().Get("staff_id"); staffIDStr != "" {
		if staffID, err := strconv.ParseInt(staffIDStr, 10, 64); err == nil && staffID > 0 {
			params.StaffID = &staffID
		}
	}

	if actionStr := r.URL.Query().Get("action"); actionStr != "" {
		if action := repository.Action(actionStr); action.Valid() {
			params.Action = &action
		}
	}

	if statusStr := r.URL.Query().Get("photo_status"); statusStr != "" {
		switch status := repository.PhotoStatus(statusStr); status {
		case repository.PhotoStatusNone, repository.PhotoStatusPending,
			repository.PhotoStatusUploaded, repository.PhotoStatusFailed:
			params.PhotoStatus = &status
		}
	}

	if fromStr := r.URL.Query().Get("from"); fromStr != "" {
		if from, err := time.Parse(time.RFC3339, fromStr); err == nil {
			params.FromTime = &from
		}
	}

	if toStr := r.URL.Query().Get("to"); toStr != "" {
		if to, err := time.Parse(time.RFC3339, toStr); err == nil {
			params.ToTime = &to
		}
	}

	if order := r.URL.Query().Get("order"); order == "asc" || order == "desc" {
		params.Order = order
	}

	return params
}

// entryID extracts and validates the entry UUID from the URL.
func (h *Handler) entryID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, CodeValidationError, "Invalid entry ID")
		return uuid.Nil, false
	}
	return id, true
}

// writeSuccess writes a successful API response.
func (h *Handler) writeSuccess(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	response := APIResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

// writeError writes an error API response.
func (h *Handler) writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	response := APIResponse{
		Success: false,
		Error: &APIError{
			Code:    code,
			Message: message,
		},
		Timestamp: time.Now().UTC(),
	}
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}
