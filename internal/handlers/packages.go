package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"shiptrack/internal/storage"
)

// PackagesHandler manages the saved tracking list
type PackagesHandler struct {
	list   storage.TrackingList
	logger *slog.Logger
}

// NewPackagesHandler creates a new packages handler
func NewPackagesHandler(list storage.TrackingList, logger *slog.Logger) *PackagesHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PackagesHandler{list: list, logger: logger}
}

// AddPackageRequest is the body of POST /api/packages
type AddPackageRequest struct {
	TrackingNumber string `json:"tracking_number"`
}

// RemovePackageResponse reports how many entries DELETE dropped
type RemovePackageResponse struct {
	Removed int `json:"removed"`
}

// List handles GET /api/packages
func (h *PackagesHandler) List(w http.ResponseWriter, r *http.Request) {
	numbers, err := h.list.Load(r.Context())
	if err != nil {
		h.logger.Error("Failed to load tracking list", "error", err)
		writeError(w, http.StatusInternalServerError, CodeInternalError, "failed to load tracking list")
		return
	}
	if numbers == nil {
		numbers = []string{}
	}
	writeJSON(w, http.StatusOK, numbers)
}

// Add handles POST /api/packages
func (h *PackagesHandler) Add(w http.ResponseWriter, r *http.Request) {
	var req AddPackageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid JSON")
		return
	}

	number := strings.TrimSpace(req.TrackingNumber)
	if number == "" {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "tracking_number is required")
		return
	}

	if err := storage.AddTrackingNumber(r.Context(), h.list, number); err != nil {
		h.logger.Error("Failed to save tracking number", "tracking_number", number, "error", err)
		writeError(w, http.StatusInternalServerError, CodeInternalError, "failed to save tracking number")
		return
	}

	writeJSON(w, http.StatusCreated, AddPackageRequest{TrackingNumber: number})
}

// Remove handles DELETE /api/packages/{number}
func (h *PackagesHandler) Remove(w http.ResponseWriter, r *http.Request) {
	number := chi.URLParam(r, "number")

	removed, err := storage.RemoveTrackingNumber(r.Context(), h.list, number)
	if err != nil {
		h.logger.Error("Failed to remove tracking number", "tracking_number", number, "error", err)
		writeError(w, http.StatusInternalServerError, CodeInternalError, "failed to remove tracking number")
		return
	}
	if removed == 0 {
		writeError(w, http.StatusNotFound, CodeNotFound, "tracking number is not saved")
		return
	}

	writeJSON(w, http.StatusOK, RemovePackageResponse{Removed: removed})
}
