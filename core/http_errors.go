package core

import "net/http"

// HTTPError represents an HTTP error with a status code and a stable key
// that clients can branch on.
type HTTPError struct {
	Code int    // HTTP status code
	Key  string // stable error key (e.g. "invalid_plan")
}

// Error implements the error interface.
func (e HTTPError) Error() string {
	return e.Key
}

// WithKey returns a copy of the error with a more specific key.
func (e HTTPError) WithKey(key string) HTTPError {
	e.Key = key
	return e
}

var (
	ErrBadRequest          = HTTPError{Code: http.StatusBadRequest, Key: "bad_request"}
	ErrNotFound            = HTTPError{Code: http.StatusNotFound, Key: "not_found"}
	ErrConflict            = HTTPError{Code: http.StatusConflict, Key: "conflict"}
	ErrUnprocessableEntity = HTTPError{Code: http.StatusUnprocessableEntity, Key: "unprocessable_entity"}
	ErrInternalServerError = HTTPError{Code: http.StatusInternalServerError, Key: "internal_server_error"}
	ErrServiceUnavailable  = HTTPError{Code: http.StatusServiceUnavailable, Key: "service_unavailable"}
)
