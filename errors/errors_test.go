package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestValidationErrorUnwrapsToInvalidInput(t *testing.T) {
	err := fmt.Errorf("inbound: %w", NewValidationError("text", "must not be empty"))
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput in chain, got %v", err)
	}
	if !IsValidation(err) {
		t.Fatalf("IsValidation() = false")
	}
	var ve *ValidationError
	if !errors.As(err, &ve) || ve.Field != "text" {
		t.Fatalf("expected field text, got %#v", ve)
	}
}

func TestTransientKeepsCause(t *testing.T) {
	err := Transient("classifier", context.DeadlineExceeded)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline in chain")
	}
	if !IsTransient(err) {
		t.Fatalf("IsTransient() = false")
	}

	again := Transient("generator", err)
	var td *TransientDependencyError
	if !errors.As(again, &td) || td.Dependency != "classifier" {
		t.Fatalf("expected the original dependency to survive rewrapping, got %v", again)
	}

	if Transient("x", nil) != nil {
		t.Fatalf("nil error should stay nil")
	}
}

func TestConfigurationError(t *testing.T) {
	err := NewConfigurationError("life_threatening", "required")
	if !errors.Is(err, ErrMisconfigured) {
		t.Fatalf("expected ErrMisconfigured in chain")
	}
	if got := err.Error(); got != "configuration life_threatening: required" {
		t.Fatalf("unexpected message %q", got)
	}
}
