package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/kiranshivaraju/sketchforge/internal/api/response"
	"github.com/kiranshivaraju/sketchforge/internal/queue"
	"github.com/kiranshivaraju/sketchforge/internal/status"
)

// writeError maps domain errors onto the error envelope. Unrecognised errors
// are logged and reported as 500 without leaking their text.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, status.ErrNotFound):
		response.Error(w, http.StatusNotFound, "RESOURCE_NOT_FOUND", err.Error(), nil)
	case errors.Is(err, queue.ErrUnknownJobType):
		response.Error(w, http.StatusBadRequest, "UNKNOWN_JOB_TYPE", err.Error(), nil)
	case errors.Is(err, status.ErrQuotaExceeded):
		response.Error(w, http.StatusTooManyRequests, "QUOTA_EXCEEDED", err.Error(), nil)
	case errors.Is(err, status.ErrInvalidArgument),
		errors.Is(err, status.ErrInvalidTimeframe),
		errors.Is(err, queue.ErrInvalidOptions):
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
	default:
		logger.Error("request failed", "error", err)
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", nil)
	}
}

func badRequest(w http.ResponseWriter, message string, details any) {
	response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", message, details)
}
