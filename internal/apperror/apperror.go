// Package apperror defines the application's error taxonomy.
//
// Every layer returns *AppError values that unwrap to one of the sentinel
// errors below, so callers classify failures with errors.Is and never by
// matching message strings. Anything that is not an *AppError is an
// internal failure (disk I/O, driver errors) and is treated as such.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrValidation        = errors.New("validation error")
	ErrConflict          = errors.New("conflict")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrStorageExhausted  = errors.New("storage exhausted")
	ErrRemoteUnavailable = errors.New("remote unavailable")
	ErrRemoteRejected    = errors.New("remote rejected")
)

type AppError struct {
	Err     error  // sentinel, one of the Err* values above
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
	Status  int    // Optional: HTTP status observed from a remote server
	Cause   error  // Optional: underlying error (network failure, decode error)
}

func (e *AppError) Error() string {
	return e.Message
}

// Unwrap exposes both the sentinel and the underlying cause, so
// errors.Is(err, ErrRemoteUnavailable) and errors.Is(err, context.Canceled)
// both hold for a cancelled remote call.
func (e *AppError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

func Conflict(resource, id string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s conflict with id %s", resource, id),
	}
}

// Unauthorized returns an AppError for a missing or invalid credential.
// HTTP handlers map this to 401. It deliberately carries no hint about
// whether the addressed snippet exists.
func Unauthorized(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthorized,
		Message: message,
	}
}

// StorageExhausted reports that no unused short identifier could be
// found within the allowed number of attempts.
func StorageExhausted(attempts int) *AppError {
	return &AppError{
		Err:     ErrStorageExhausted,
		Message: fmt.Sprintf("could not allocate a unique short id after %d attempts", attempts),
	}
}

// RemoteUnavailable wraps a transport failure talking to a remote server:
// connection refused, DNS failure, timeout, or cancellation.
func RemoteUnavailable(cause error) *AppError {
	return &AppError{
		Err:     ErrRemoteUnavailable,
		Message: fmt.Sprintf("remote unavailable: %v", cause),
		Cause:   cause,
	}
}

// RemoteRejected reports a non-2xx answer (or an unreadable body) from a
// remote server that does not map onto a more specific error.
func RemoteRejected(status int, message string) *AppError {
	return &AppError{
		Err:     ErrRemoteRejected,
		Message: fmt.Sprintf("remote rejected request (HTTP %d): %s", status, message),
		Status:  status,
	}
}
