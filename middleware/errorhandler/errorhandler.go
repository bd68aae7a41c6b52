// Package errorhandler recovers panics and maps errors leaving the chain.
package errorhandler

import (
	"fmt"

	errorskg "github.com/sweetpotato0/crashguide/errors"
	"github.com/sweetpotato0/crashguide/middleware"
)

// ErrorHandlerFunc maps an error leaving the chain.
type ErrorHandlerFunc func(error) error

// ErrorHandler turns a panic downstream into an ErrInternal error and passes
// every error through handler.
type ErrorHandler struct {
	handler ErrorHandlerFunc
}

// NewErrorHandler creates an error handling middleware
func NewErrorHandler(handler ErrorHandlerFunc) *ErrorHandler {
	return &ErrorHandler{handler: handler}
}

// Name returns the middleware name
func (m *ErrorHandler) Name() string {
	return "ErrorHandler"
}

// Execute handles errors from downstream middlewares
func (m *ErrorHandler) Execute(ctx *middleware.Context, next middleware.Handler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic handling turn: %v: %w", r, errorskg.ErrInternal)
		}
		if err != nil && m.handler != nil {
			err = m.handler(err)
		}
	}()
	return next(ctx)
}
