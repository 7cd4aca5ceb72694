package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"shiptrack/internal/carriers"
)

// PackageTracker runs one tracking query
type PackageTracker interface {
	TrackPackage(ctx context.Context, trackingNumber string) (*carriers.Package, error)
}

// TrackHandler serves live tracking queries
type TrackHandler struct {
	tracker PackageTracker
	logger  *slog.Logger
}

// NewTrackHandler creates a new track handler
func NewTrackHandler(tracker PackageTracker, logger *slog.Logger) *TrackHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &TrackHandler{tracker: tracker, logger: logger}
}

// Track handles GET /api/track/{number}
func (h *TrackHandler) Track(w http.ResponseWriter, r *http.Request) {
	number := chi.URLParam(r, "number")
	if number == "" {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "tracking number is required")
		return
	}

	pkg, err := h.tracker.TrackPackage(r.Context(), number)
	if err != nil {
		writeTrackError(w, h.logger, number, err)
		return
	}

	writeJSON(w, http.StatusOK, pkg)
}
