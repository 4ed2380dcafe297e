package registry

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by Registry operations. Handlers in pkg/api map
// these to HTTP status codes; nothing downstream should inspect error
// strings.
var (
	// ErrNotFound is returned when a meeting or user does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned by create_request when the (owner, platform,
	// native_id) uniqueness invariant would be violated.
	ErrConflict = errors.New("active meeting already exists")

	// ErrConcurrencyLimit is returned by create_request when the owner is
	// already at their max_concurrent_bots ceiling.
	ErrConcurrencyLimit = errors.New("concurrency limit reached")

	// ErrInvalidTransition is returned by transition when the meeting's
	// current status is not in the caller's from_set.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// ValidationError wraps a field-specific request validation failure.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field %q: %s", e.Field, e.Message)
}

// NewValidationError constructs a ValidationError.
func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// IsValidationError reports whether err is (or wraps) a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
