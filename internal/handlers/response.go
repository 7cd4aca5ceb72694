package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"shiptrack/internal/carriers"
	"shiptrack/internal/extract"
)

// Error codes that are not carrier codes
const (
	CodeBadRequest    = "BAD_REQUEST"
	CodeNotFound      = "NOT_FOUND"
	CodeParseError    = "PARSE_ERROR"
	CodeInternalError = "INTERNAL_ERROR"
	CodeUnhealthy     = "UNHEALTHY"
)

// ErrorResponse is the body of every failed API call
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Carrier string `json:"carrier,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: message, Code: code})
}

// writeTrackError maps a tracking failure to its HTTP status and code
func writeTrackError(w http.ResponseWriter, logger *slog.Logger, trackingNumber string, err error) {
	status, resp := errorResponse(err)
	if status >= http.StatusInternalServerError {
		logger.Error("Tracking failed", "tracking_number", trackingNumber, "code", resp.Code, "error", err)
	} else {
		logger.Info("Tracking failed", "tracking_number", trackingNumber, "code", resp.Code, "error", err)
	}
	writeJSON(w, status, resp)
}

func errorResponse(err error) (int, ErrorResponse) {
	resp := ErrorResponse{Error: err.Error(), Code: CodeInternalError}

	var carrierErr *carriers.CarrierError
	if errors.As(err, &carrierErr) {
		resp.Code = carrierErr.Code
		resp.Carrier = carrierErr.Carrier
		resp.Error = carrierErr.Message
		if carrierErr.Err != nil {
			resp.Error += ": " + carrierErr.Err.Error()
		}
	}

	switch {
	case errors.Is(err, carriers.ErrStatusNotAvailable):
		return http.StatusNotFound, resp
	case errors.Is(err, carriers.ErrSessionAcquisitionFailed):
		return http.StatusServiceUnavailable, resp
	case errors.Is(err, extract.ErrMissingElement),
		errors.Is(err, extract.ErrInvalidElementType),
		errors.Is(err, extract.ErrNoTextInElement):
		resp.Code = CodeParseError
		return http.StatusBadGateway, resp
	default:
		return http.StatusInternalServerError, resp
	}
}
