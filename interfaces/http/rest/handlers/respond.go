package handlers

import (
	"encoding/json"
	"net/http"

	pkgerrors "mindscape/pkg/errors"

	"go.uber.org/zap"
)

// respondJSON writes a JSON response with the given status
func respondJSON(w http.ResponseWriter, logger *zap.Logger, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("Failed to encode response", zap.Error(err))
	}
}

// respondError writes a JSON error with an explicit status
func respondError(w http.ResponseWriter, logger *zap.Logger, status int, message string) {
	respondJSON(w, logger, status, map[string]any{
		"error":   true,
		"message": message,
		"code":    status,
	})
}

// respondAppError maps a service error onto the HTTP status from the error
// taxonomy. Internal errors are logged with detail but reported generically.
func respondAppError(w http.ResponseWriter, logger *zap.Logger, err error) {
	status := pkgerrors.HTTPStatus(err)
	message := err.Error()
	if status >= http.StatusInternalServerError {
		logger.Error("Request failed", zap.Error(err))
		message = "internal server error"
	}
	respondError(w, logger, status, message)
}
