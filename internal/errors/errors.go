// Package errors defines the wire-level API errors used throughout CacheGate.
//
// The cache protocol's error surface is deliberately small: a handful of
// fixed text/plain bodies, one per status. Backend failure detail never
// reaches the client; it is logged server-side only.
package errors

import (
	"fmt"
	"net/http"
)

// APIError represents a cache API error with a machine-readable code,
// the exact wire body, and the HTTP status code to return.
type APIError struct {
	// Code is a short identifier for the error condition (e.g., "Conflict").
	Code string
	// Message is the exact response body sent to the client.
	Message string
	// HTTPStatus is the HTTP status code to return.
	HTTPStatus int
}

// Error implements the error interface for APIError.
func (e *APIError) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Code, e.HTTPStatus, e.Message)
}

// Pre-defined API errors. The message strings are part of the wire contract
// and must not change.
var (
	// ErrBadRequest is returned when the hash fails validation.
	ErrBadRequest = &APIError{
		Code:       "BadRequest",
		Message:    "Bad request",
		HTTPStatus: http.StatusBadRequest,
	}

	// ErrUnauthorized is returned when the bearer token is missing or unknown.
	ErrUnauthorized = &APIError{
		Code:       "Unauthorized",
		Message:    "Unauthorized",
		HTTPStatus: http.StatusUnauthorized,
	}

	// ErrNotFound is returned when the requested artifact is not stored.
	ErrNotFound = &APIError{
		Code:       "NotFound",
		Message:    "The record was not found",
		HTTPStatus: http.StatusNotFound,
	}

	// ErrConflict is returned when a write targets an occupied key.
	ErrConflict = &APIError{
		Code:       "Conflict",
		Message:    "Cannot override an existing record",
		HTTPStatus: http.StatusConflict,
	}

	// ErrInternal is returned for any backend or unexpected failure.
	ErrInternal = &APIError{
		Code:       "Internal",
		Message:    "Internal server error",
		HTTPStatus: http.StatusInternalServerError,
	}
)

// Write sends the error to the client as a text/plain response.
func Write(w http.ResponseWriter, e *APIError) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(e.HTTPStatus)
	_, _ = w.Write([]byte(e.Message))
}
