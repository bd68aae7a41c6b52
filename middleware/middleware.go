// Package middleware wraps turn handling with cross-cutting concerns.
package middleware

import (
	"context"
	"time"
)

// Result summarizes a handled turn for middlewares that run after it.
type Result struct {
	Text          string
	DialogueState string
	Citations     int
	Degraded      bool
}

// Context carries one inbound turn through the chain.
type Context struct {
	ConversationID string
	Input          string
	Timestamp      time.Time

	// Result is set by the final handler.
	Result *Result

	// Metadata for passing data between middlewares
	Metadata map[string]any

	context context.Context
}

// NewContext creates a middleware context for an inbound turn.
func NewContext(ctx context.Context, conversationID, input string, ts time.Time) *Context {
	return &Context{
		ConversationID: conversationID,
		Input:          input,
		Timestamp:      ts,
		Metadata:       make(map[string]any),
		context:        ctx,
	}
}

// Context returns the underlying context.Context.
func (c *Context) Context() context.Context {
	if c.context == nil {
		return context.Background()
	}
	return c.context
}

// SetContext replaces the underlying context.Context, for middlewares that
// attach request-scoped values.
func (c *Context) SetContext(ctx context.Context) {
	c.context = ctx
}

// Middleware intercepts a turn before and after the final handler.
type Middleware interface {
	// Name returns the name of the middleware for logging and debugging
	Name() string
	// Execute runs the middleware logic. Returning an error stops the chain.
	Execute(ctx *Context, next Handler) error
}

// Handler is the function called to pass control to the next middleware.
type Handler func(*Context) error

// MiddlewareChain represents a sequence of middleware to be executed.
type MiddlewareChain struct {
	middlewares []Middleware
}

// NewChain creates a new middleware chain.
func NewChain(middlewares ...Middleware) *MiddlewareChain {
	return &MiddlewareChain{
		middlewares: middlewares,
	}
}

// Add appends a middleware to the chain.
func (c *MiddlewareChain) Add(m Middleware) *MiddlewareChain {
	c.middlewares = append(c.middlewares, m)
	return c
}

// Names lists the middlewares in execution order.
func (c *MiddlewareChain) Names() []string {
	out := make([]string, len(c.middlewares))
	for i, m := range c.middlewares {
		out[i] = m.Name()
	}
	return out
}

// Execute runs all middlewares in the chain, then finalHandler.
func (c *MiddlewareChain) Execute(ctx *Context, finalHandler Handler) error {
	return c.executeMiddleware(ctx, 0, finalHandler)
}

func (c *MiddlewareChain) executeMiddleware(ctx *Context, index int, finalHandler Handler) error {
	if index >= len(c.middlewares) {
		return finalHandler(ctx)
	}

	nextHandler := func(ctx *Context) error {
		return c.executeMiddleware(ctx, index+1, finalHandler)
	}

	return c.middlewares[index].Execute(ctx, nextHandler)
}
