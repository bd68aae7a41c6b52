package validator

import (
	"context"
	"errors"
	"testing"
	"time"

	errorskg "github.com/sweetpotato0/crashguide/errors"
	"github.com/sweetpotato0/crashguide/middleware"
)

func TestInputValidator(t *testing.T) {
	tests := []struct {
		name      string
		id        string
		input     string
		wantField string
	}{
		{name: "valid", id: "c1", input: "my arm hurts"},
		{name: "empty text", id: "c1", input: "", wantField: "text"},
		{name: "blank text", id: "c1", input: " \n\t", wantField: "text"},
		{name: "empty conversation", id: "  ", input: "hello", wantField: "conversation_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewInputValidator(nil)
			called := false
			ctx := middleware.NewContext(context.Background(), tt.id, tt.input, time.Time{})
			err := v.Execute(ctx, func(*middleware.Context) error {
				called = true
				return nil
			})

			if tt.wantField == "" {
				if err != nil || !called {
					t.Fatalf("err=%v called=%v", err, called)
				}
				if ctx.Timestamp.IsZero() {
					t.Error("zero timestamp should be stamped")
				}
				return
			}
			var ve *errorskg.ValidationError
			if !errors.As(err, &ve) || ve.Field != tt.wantField {
				t.Fatalf("expected ValidationError on %s, got %v", tt.wantField, err)
			}
			if called {
				t.Error("next must not run for an invalid turn")
			}
		})
	}
}

func TestResponseFilter(t *testing.T) {
	f := NewResponseFilter(NonEmptyResponse)

	err := f.Execute(&middleware.Context{}, func(c *middleware.Context) error {
		c.Result = &middleware.Result{Text: "  "}
		return nil
	})
	if !errors.Is(err, errorskg.ErrInternal) {
		t.Errorf("empty response should fail, got %v", err)
	}

	err = f.Execute(&middleware.Context{}, func(c *middleware.Context) error {
		c.Result = &middleware.Result{Text: "Call emergency services now."}
		return nil
	})
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
