package shared

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrConfigurationMissing = fmt.Errorf("configuration missing")
	ErrInvalidConfig        = fmt.Errorf("invalid configuration")

	// Authentication errors
	ErrAuthorizationFailed = fmt.Errorf("authorization failed")
	ErrVerifierNotFound    = fmt.Errorf("%w: code verifier not found", ErrAuthorizationFailed)
	ErrNotAuthenticated    = fmt.Errorf("not authenticated")
	ErrSessionExpired      = fmt.Errorf("session expired")
	ErrNoRefreshToken      = fmt.Errorf("no refresh token available")

	// API and store errors
	ErrAPIRequest     = fmt.Errorf("API request failed")
	ErrStoreOperation = fmt.Errorf("store operation failed")
	ErrNotFound       = fmt.Errorf("not found")

	// Input validation errors
	ErrMissingArgument   = fmt.Errorf("missing required argument")
	ErrInvalidArgument   = fmt.Errorf("invalid argument")
	ErrInvalidTransition = fmt.Errorf("invalid status transition")
)

// APIError is a non-success response from the streaming API.
type APIError struct {
	StatusCode int
	Message    string
}

// NewAPIError builds an APIError, falling back to the HTTP status text when the
// provider did not send a readable message.
func NewAPIError(status int, message string) *APIError {
	if message == "" {
		message = http.StatusText(status)
	}
	return &APIError{StatusCode: status, Message: message}
}

func (e *APIError) Error() string {
	return fmt.Sprintf("Spotify API Error: %s", e.Message)
}

func (e *APIError) Unwrap() error { return ErrAPIRequest }

// StoreError is a failure reported by a backing store.
type StoreError struct {
	Op      string
	Code    string
	Message string
	Hint    string
}

func (e *StoreError) Error() string {
	msg := e.Message
	if e.Code != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Code)
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, msg)
	}
	return msg
}

func (e *StoreError) Unwrap() error { return ErrStoreOperation }

// IsSessionError reports whether err requires the user to log in again.
func IsSessionError(err error) bool {
	return errors.Is(err, ErrSessionExpired) || errors.Is(err, ErrNotAuthenticated)
}
