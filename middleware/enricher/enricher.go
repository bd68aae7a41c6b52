// Package enricher attaches request-scoped values before a turn runs.
package enricher

import (
	"context"

	"github.com/sweetpotato0/crashguide/middleware"
)

// EnricherFunc enriches the context
type EnricherFunc func(*middleware.Context) error

// ContextEnricher adds additional data to the middleware context
type ContextEnricher struct {
	enricher EnricherFunc
}

// NewContextEnricher creates a context enriching middleware
func NewContextEnricher(enricher EnricherFunc) *ContextEnricher {
	return &ContextEnricher{enricher: enricher}
}

// WithValue returns an enricher that derives the turn's context.Context
// with attach, given the conversation id.
func WithValue(attach func(context.Context, string) context.Context) *ContextEnricher {
	return NewContextEnricher(func(c *middleware.Context) error {
		c.SetContext(attach(c.Context(), c.ConversationID))
		return nil
	})
}

// Name returns the middleware name
func (m *ContextEnricher) Name() string {
	return "ContextEnricher"
}

// Execute enriches the context
func (m *ContextEnricher) Execute(ctx *middleware.Context, next middleware.Handler) error {
	if m.enricher != nil {
		if err := m.enricher(ctx); err != nil {
			return err
		}
	}
	return next(ctx)
}
