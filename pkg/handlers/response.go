// Package handlers contains the HTTP layer for portal-engine.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/mentora-hq/portal-engine/pkg/apperrors"
)

// TenantMiddleware scopes a request's database access; see pkg/database.
type TenantMiddleware func(http.HandlerFunc) http.HandlerFunc

// ApiResponse is the standard success envelope.
type ApiResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// ErrorResponse writes a JSON error response and returns any encoding error.
func ErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(map[string]string{
		"error":   errorCode,
		"message": message,
	})
}

// WriteJSON writes a JSON response and returns any encoding error.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	return json.NewEncoder(w).Encode(data)
}

// ServiceError maps a service-layer error onto an HTTP response using the
// sentinel taxonomy in pkg/apperrors.
func ServiceError(w http.ResponseWriter, logger *zap.Logger, errorCode string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, apperrors.ErrConflict), errors.Is(err, apperrors.ErrLastAdmin):
		status = http.StatusConflict
	case errors.Is(err, apperrors.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, apperrors.ErrInvalidRole),
		errors.Is(err, apperrors.ErrImportInvalid),
		errors.Is(err, apperrors.ErrUnsupportedFile):
		status = http.StatusBadRequest
	case errors.Is(err, apperrors.ErrFileTooLarge):
		status = http.StatusRequestEntityTooLarge
	case errors.Is(err, apperrors.ErrProviderUnavailable):
		status = http.StatusBadGateway
	}

	if err := ErrorResponse(w, status, errorCode, err.Error()); err != nil {
		logger.Error("Failed to write error response", zap.Error(err))
	}
}
