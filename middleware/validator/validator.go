// Package validator rejects malformed inbound turns before they reach the
// dialogue core.
package validator

import (
	"strings"
	"time"

	errorskg "github.com/sweetpotato0/crashguide/errors"
	"github.com/sweetpotato0/crashguide/middleware"
)

// ValidatorFunc validates an inbound turn.
type ValidatorFunc func(*middleware.Context) error

// FilterFunc checks the handled turn before it is returned.
type FilterFunc func(*middleware.Result) error

// Inbound requires a conversation id and non-blank text and stamps a zero
// timestamp with the current time.
func Inbound(ctx *middleware.Context) error {
	if strings.TrimSpace(ctx.ConversationID) == "" {
		return errorskg.NewValidationError("conversation_id", "must not be empty")
	}
	if strings.TrimSpace(ctx.Input) == "" {
		return errorskg.NewValidationError("text", "must not be empty")
	}
	if ctx.Timestamp.IsZero() {
		ctx.Timestamp = time.Now().UTC()
	}
	return nil
}

// InputValidator validates the inbound turn.
type InputValidator struct {
	validator ValidatorFunc
}

// NewInputValidator creates an input validation middleware. A nil
// validator uses Inbound.
func NewInputValidator(validator ValidatorFunc) *InputValidator {
	if validator == nil {
		validator = Inbound
	}
	return &InputValidator{validator: validator}
}

// Name returns the middleware name
func (m *InputValidator) Name() string {
	return "InputValidator"
}

// Execute validates the input
func (m *InputValidator) Execute(ctx *middleware.Context, next middleware.Handler) error {
	if err := m.validator(ctx); err != nil {
		return err
	}
	return next(ctx)
}

// NonEmptyResponse fails a turn that produced no text.
func NonEmptyResponse(r *middleware.Result) error {
	if strings.TrimSpace(r.Text) == "" {
		return errorskg.ErrInternal
	}
	return nil
}

// ResponseFilter checks the handled turn.
type ResponseFilter struct {
	filter FilterFunc
}

// NewResponseFilter creates a response filtering middleware
func NewResponseFilter(filter FilterFunc) *ResponseFilter {
	return &ResponseFilter{filter: filter}
}

// Name returns the middleware name
func (m *ResponseFilter) Name() string {
	return "ResponseFilter"
}

// Execute filters the response
func (m *ResponseFilter) Execute(ctx *middleware.Context, next middleware.Handler) error {
	err := next(ctx)
	if err != nil {
		return err
	}
	if ctx.Result != nil && m.filter != nil {
		return m.filter(ctx.Result)
	}
	return nil
}
