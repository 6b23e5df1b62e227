package task

import (
	"errors"
	"fmt"
)

// Sentinel errors for board operations. Callers classify with errors.Is;
// wrapped messages carry the detail shown to clients.
var (
	// ErrValidation is returned when an intent is missing a required field
	// or carries a value outside the allowed set.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound is returned when no task matches the identifier.
	ErrNotFound = errors.New("task not found")

	// ErrStore is returned when the persistence layer is unavailable or
	// rejects a write.
	ErrStore = errors.New("store failure")

	// ErrTransport is returned when the connection drops mid-intent.
	ErrTransport = errors.New("transport failure")
)

// ValidationError describes a rejected intent. It matches ErrValidation
// under errors.Is and carries the reason shown to the client.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + e.Reason
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func invalidf(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}
