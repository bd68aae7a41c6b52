package config

import (
	"fmt"
	"strings"

	errorskg "github.com/sweetpotato0/crashguide/errors"
)

// ValidationError represents a single configuration validation failure
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation failed for field %q: %s", e.Field, e.Message)
}

// Validator provides configuration validation utilities
type Validator struct {
	errors []ValidationError
}

// NewValidator creates a new configuration validator
func NewValidator() *Validator {
	return &Validator{
		errors: []ValidationError{},
	}
}

func (v *Validator) add(field, format string, args ...any) *Validator {
	v.errors = append(v.errors, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	return v
}

// RequireNonEmpty validates that a string field is not empty
func (v *Validator) RequireNonEmpty(field, value string) *Validator {
	if strings.TrimSpace(value) == "" {
		v.add(field, "value cannot be empty")
	}
	return v
}

// RequirePositive validates that an integer field is greater than 0
func (v *Validator) RequirePositive(field string, value int) *Validator {
	if value <= 0 {
		v.add(field, "value must be positive, got %d", value)
	}
	return v
}

// RequireNonEmptyList validates that a list field has at least one element
func (v *Validator) RequireNonEmptyList(field string, n int) *Validator {
	if n == 0 {
		v.add(field, "at least one entry is required")
	}
	return v
}

// ValidateRange validates that an integer field is within a range [min, max]
func (v *Validator) ValidateRange(field string, value, min, max int) *Validator {
	if value < min || value > max {
		v.add(field, "value must be between %d and %d, got %d", min, max, value)
	}
	return v
}

// ValidateFloatRange validates that a float field is within a range [min, max]
func (v *Validator) ValidateFloatRange(field string, value, min, max float64) *Validator {
	if value < min || value > max {
		v.add(field, "value must be between %.2f and %.2f, got %.2f", min, max, value)
	}
	return v
}

// ValidateOneOf validates that a string value is one of the allowed options
func (v *Validator) ValidateOneOf(field string, value string, allowed ...string) *Validator {
	for _, a := range allowed {
		if a == value {
			return v
		}
	}
	return v.add(field, "value must be one of %v, got %q", allowed, value)
}

// Check records a failure for field when ok is false.
func (v *Validator) Check(ok bool, field, message string) *Validator {
	if !ok {
		v.add(field, "%s", message)
	}
	return v
}

// HasErrors returns true if there are any validation errors
func (v *Validator) HasErrors() bool {
	return len(v.errors) > 0
}

// Errors returns all validation errors
func (v *Validator) Errors() []ValidationError {
	return v.errors
}

// Error folds every failure into a single ConfigurationError, or nil.
func (v *Validator) Error() error {
	if !v.HasErrors() {
		return nil
	}
	fields := make([]string, 0, len(v.errors))
	var msg strings.Builder
	msg.WriteString("validation failed:")
	for _, e := range v.errors {
		fields = append(fields, e.Field)
		fmt.Fprintf(&msg, "\n  - %s: %s", e.Field, e.Message)
	}
	return &errorskg.ConfigurationError{
		Field:  strings.Join(fields, ","),
		Reason: msg.String(),
	}
}
