package config

import (
	"errors"
	"strings"
	"testing"

	errorskg "github.com/sweetpotato0/crashguide/errors"
)

func TestValidatorRequireNonEmpty(t *testing.T) {
	tests := []struct {
		name      string
		value     string
		wantError bool
	}{
		{name: "non-empty value", value: "valid", wantError: false},
		{name: "empty value", value: "", wantError: true},
		{name: "whitespace only", value: "  \t", wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewValidator()
			v.RequireNonEmpty("test_field", tt.value)
			if got := v.HasErrors(); got != tt.wantError {
				t.Errorf("HasErrors() = %v, want %v", got, tt.wantError)
			}
		})
	}
}

func TestValidatorRequirePositive(t *testing.T) {
	tests := []struct {
		name      string
		value     int
		wantError bool
	}{
		{name: "positive value", value: 10, wantError: false},
		{name: "zero value", value: 0, wantError: true},
		{name: "negative value", value: -5, wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewValidator()
			v.RequirePositive("test_field", tt.value)
			if got := v.HasErrors(); got != tt.wantError {
				t.Errorf("HasErrors() = %v, want %v", got, tt.wantError)
			}
		})
	}
}

func TestValidatorRanges(t *testing.T) {
	tests := []struct {
		name      string
		run       func(v *Validator)
		wantError bool
	}{
		{name: "int inside", run: func(v *Validator) { v.ValidateRange("n", 5, 1, 10) }},
		{name: "int at bound", run: func(v *Validator) { v.ValidateRange("n", 10, 1, 10) }},
		{name: "int below", run: func(v *Validator) { v.ValidateRange("n", 0, 1, 10) }, wantError: true},
		{name: "float inside", run: func(v *Validator) { v.ValidateFloatRange("f", 0.5, 0, 1) }},
		{name: "float above", run: func(v *Validator) { v.ValidateFloatRange("f", 1.01, 0, 1) }, wantError: true},
		{name: "one of", run: func(v *Validator) { v.ValidateOneOf("s", "redis", "memory", "redis") }},
		{name: "not one of", run: func(v *Validator) { v.ValidateOneOf("s", "etcd", "memory", "redis") }, wantError: true},
		{name: "empty list", run: func(v *Validator) { v.RequireNonEmptyList("l", 0) }, wantError: true},
		{name: "check false", run: func(v *Validator) { v.Check(false, "c", "nope") }, wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewValidator()
			tt.run(v)
			if got := v.HasErrors(); got != tt.wantError {
				t.Errorf("HasErrors() = %v, want %v (%v)", got, tt.wantError, v.Errors())
			}
		})
	}
}

func TestValidatorErrorIsConfigurationError(t *testing.T) {
	v := NewValidator()
	if err := v.Error(); err != nil {
		t.Fatalf("expected nil error for clean validator, got %v", err)
	}

	v.RequireNonEmpty("api_key", "").RequirePositive("top_k", 0)
	err := v.Error()
	if err == nil {
		t.Fatal("expected error")
	}
	var cfgErr *errorskg.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError, got %T", err)
	}
	if cfgErr.Field != "api_key,top_k" {
		t.Errorf("unexpected field list %q", cfgErr.Field)
	}
	if !strings.Contains(err.Error(), "api_key") || !strings.Contains(err.Error(), "top_k") {
		t.Errorf("error message should mention every field: %v", err)
	}
	if !errors.Is(err, errorskg.ErrMisconfigured) {
		t.Error("expected ErrMisconfigured in chain")
	}
}
