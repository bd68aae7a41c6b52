package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for common error conditions
var (
	// ErrNotFound indicates that a requested resource was not found
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates that input validation failed
	ErrInvalidInput = errors.New("invalid input")

	// ErrVersionConflict indicates an optimistic-lock mismatch on write
	ErrVersionConflict = errors.New("version conflict")

	// ErrInternal indicates an internal error
	ErrInternal = errors.New("internal error")

	// ErrMisconfigured is the sentinel behind every ConfigurationError
	ErrMisconfigured = errors.New("misconfigured")
)

// ValidationError rejects a malformed inbound turn. It never reaches the
// dialogue state machine.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

// NewValidationError builds a ValidationError.
func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// TransientDependencyError marks a classifier, retriever or generator call
// that failed or timed out. Callers recover from it locally.
type TransientDependencyError struct {
	Dependency string
	Err        error
}

func (e *TransientDependencyError) Error() string {
	return fmt.Sprintf("%s unavailable: %v", e.Dependency, e.Err)
}

func (e *TransientDependencyError) Unwrap() error { return e.Err }

// Transient wraps err as a TransientDependencyError for dependency.
func Transient(dependency string, err error) error {
	if err == nil {
		return nil
	}
	var td *TransientDependencyError
	if errors.As(err, &td) {
		return err
	}
	return &TransientDependencyError{Dependency: dependency, Err: err}
}

// ConfigurationError reports a missing or invalid option at startup.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return "configuration: " + e.Reason
	}
	return fmt.Sprintf("configuration %s: %s", e.Field, e.Reason)
}

func (e *ConfigurationError) Unwrap() error { return ErrMisconfigured }

// NewConfigurationError builds a ConfigurationError.
func NewConfigurationError(field, reason string) error {
	return &ConfigurationError{Field: field, Reason: reason}
}

// IsTransient reports whether err carries a TransientDependencyError.
func IsTransient(err error) bool {
	var td *TransientDependencyError
	return errors.As(err, &td)
}

// IsValidation reports whether err carries a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
