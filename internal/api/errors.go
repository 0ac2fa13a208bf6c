package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/ernie/portal-repository/internal/domain"
	"github.com/ernie/portal-repository/internal/tags"
)

// Error codes returned in the body alongside the status
const (
	CodeInvalidRequest = "INVALID_REQUEST"
	CodeNotFound       = "NOT_FOUND"
	CodeConflict       = "CONFLICT"
	CodeRunInProgress  = "RUN_IN_PROGRESS"
	CodeConfiguration  = "CONFIGURATION_ERROR"
	CodeInternalError  = "INTERNAL_ERROR"
)

// APIError is the JSON error body
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"error"`
}

// writeError writes a JSON error response
func writeError(w http.ResponseWriter, logger *slog.Logger, status int, code, message string) {
	writeJSON(w, logger, status, APIError{Code: code, Message: message})
}

// writeDomainError maps a repository error to a status code. Unexpected
// errors are logged and hidden from the client.
func writeDomainError(w http.ResponseWriter, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, logger, http.StatusNotFound, CodeNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict):
		writeError(w, logger, http.StatusConflict, CodeConflict, err.Error())
	case errors.Is(err, domain.ErrInvalidInput):
		writeError(w, logger, http.StatusBadRequest, CodeInvalidRequest, err.Error())
	case errors.Is(err, tags.ErrRunInProgress):
		writeError(w, logger, http.StatusConflict, CodeRunInProgress, err.Error())
	case errors.Is(err, domain.ErrConfigurationFatal):
		logger.Error("configuration error", "error", err)
		writeError(w, logger, http.StatusInternalServerError, CodeConfiguration, err.Error())
	default:
		logger.Error("request failed", "error", err)
		writeError(w, logger, http.StatusInternalServerError, CodeInternalError, "internal server error")
	}
}
