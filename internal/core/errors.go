package core

import "errors"

// Error codes for domain errors.
const (
	ErrCodeInvalidIdentity = "invalid_identity"
	ErrCodeAuthRequired    = "auth_required"
	ErrCodeUnauthorized    = "unauthorized"
	ErrCodeMessageError    = "message_error"
	ErrCodeBadRequest      = "bad_request"
)

// ErrNotBound is returned when an operation requires a bound connection.
var ErrNotBound = errors.New("connection not bound")

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
}

func (e *CoreError) Error() string {
	return e.Message
}

func coreError(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg}
}
