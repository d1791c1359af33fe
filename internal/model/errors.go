package model

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by the core services. Handlers map them to HTTP status
// codes; callers may retry only Conflict and Transient.
var (
	ErrValidation        = errors.New("validation error")
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrAlreadyDecided    = errors.New("already decided")
	ErrConflict          = errors.New("conflict")
	ErrTransient         = errors.New("transient error")
	ErrInternal          = errors.New("internal invariant violation")
)

// ValidationError wraps ErrValidation with a field-level message
func ValidationError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// NotFoundError wraps ErrNotFound naming the missing entity
func NotFoundError(entity string, id uint) error {
	return fmt.Errorf("%w: %s %d", ErrNotFound, entity, id)
}

// TransientError wraps a storage failure that is safe to retry
func TransientError(err error) error {
	return fmt.Errorf("%w: %v", ErrTransient, err)
}

// InternalError wraps an invariant violation. Never retried; indicates a bug.
func InternalError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInternal, fmt.Sprintf(format, args...))
}
