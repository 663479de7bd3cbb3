package handler

// RESPONSE HELPERS:
// These functions standardise how we send JSON responses and errors.
//
// CONSISTENT ERROR FORMAT:
// Every error response from the API has the same shape:
//   {"error": "not_found", "message": "snippet not found with id abc123"}
//
// The remote client decodes exactly this shape back into typed errors.

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sakif/sipp/internal/apperror"
	"github.com/sakif/sipp/internal/logger"
)

// ErrorResponse is the standard error format returned by all API endpoints.
type ErrorResponse struct {
	Error   string `json:"error"`           // Machine-readable error type (e.g., "not_found")
	Message string `json:"message"`         // Human-readable description
	Field   string `json:"field,omitempty"` // Offending input field for validation errors
}

// Error type strings used in ErrorResponse.Error.
const (
	ErrTypeValidation   = "validation_error"
	ErrTypeNotFound     = "not_found"
	ErrTypeUnauthorized = "unauthorized"
	ErrTypeConflict     = "conflict"
	ErrTypeExhausted    = "storage_exhausted"
	ErrTypeInternal     = "internal_error"
)

// writeJSON sends a JSON response with the given status code.
//
// HEADER ORDER MATTERS:
// Headers and status go out on the first Write, so both are set before
// encoding the body.
func writeJSON(w http.ResponseWriter, log logger.Logger, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already sent; all we can do is log.
			log.Error("failed to encode JSON response", logger.Error(err))
		}
	}
}

// classify maps a domain error to an HTTP status and error type. Anything
// that is not an *apperror.AppError is internal.
func classify(err error) (int, string, *apperror.AppError) {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		return http.StatusInternalServerError, ErrTypeInternal, nil
	}

	switch {
	case errors.Is(err, apperror.ErrValidation):
		return http.StatusBadRequest, ErrTypeValidation, appErr
	case errors.Is(err, apperror.ErrUnauthorized):
		return http.StatusUnauthorized, ErrTypeUnauthorized, appErr
	case errors.Is(err, apperror.ErrNotFound):
		return http.StatusNotFound, ErrTypeNotFound, appErr
	case errors.Is(err, apperror.ErrConflict):
		return http.StatusConflict, ErrTypeConflict, appErr
	case errors.Is(err, apperror.ErrStorageExhausted):
		return http.StatusServiceUnavailable, ErrTypeExhausted, appErr
	default:
		return http.StatusInternalServerError, ErrTypeInternal, nil
	}
}

// writeError maps a domain error to the appropriate HTTP status code and
// sends it.
//
// ERROR MAPPING:
//
//	ErrValidation       → 400
//	ErrUnauthorized     → 401
//	ErrNotFound         → 404
//	ErrConflict         → 409
//	ErrStorageExhausted → 503
//	anything else       → 500, generic message
//
// Internal errors are logged here with the real cause and answered with a
// generic message: the raw error may contain SQL or file paths.
func writeError(w http.ResponseWriter, log logger.Logger, err error) {
	status, errType, appErr := classify(err)

	if appErr == nil {
		log.Error("internal error", logger.Error(err))
		writeJSON(w, log, status, ErrorResponse{
			Error:   ErrTypeInternal,
			Message: "An internal error occurred",
		})
		return
	}

	if status == http.StatusServiceUnavailable {
		log.Error("snippet store exhausted", logger.Error(err))
	}
	writeJSON(w, log, status, ErrorResponse{
		Error:   errType,
		Message: appErr.Message,
		Field:   appErr.Field,
	})
}
