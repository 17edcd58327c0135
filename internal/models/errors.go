package models

import (
	"errors"
	"fmt"
)

// Sentinel errors
var (
	ErrDuplicateName     = errors.New("category name already exists")
	ErrNotFound          = errors.New("category not found")
	ErrProtectedDefault  = errors.New("default category is protected")
	ErrInUse             = errors.New("category is referenced by files")
	ErrRemoteUnavailable = errors.New("remote store unavailable")
	ErrSyncExhausted     = errors.New("sync retries exhausted")
	ErrSnapshotVersion   = errors.New("unsupported snapshot version")
	ErrNotInitialized    = errors.New("manager not initialized")
)

// ValidationError reports a malformed field on input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsValidation reports whether err is a validation failure.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// APIError represents an error returned by the remote service.
type APIError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"status_code"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d (%s): %s", e.StatusCode, e.Code, e.Message)
}

// ConflictError reports a name collision with an existing category.
type ConflictError struct {
	Name       string
	ExistingID string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("category name %q conflicts with %s", e.Name, e.ExistingID)
}

func (e *ConflictError) Unwrap() error {
	return ErrDuplicateName
}
