// Package llm defines the chat-model contract used by the classifier and the
// generator. Concrete clients live under contrib/provider.
package llm

import (
	"context"
	"strings"

	"github.com/sweetpotato0/crashguide/message"
)

// GenerateRequest bundles inputs for a single model invocation.
type GenerateRequest struct {
	Messages []*message.Message
	// Temperature overrides the provider default when non-nil.
	Temperature *float64
	// MaxTokens overrides the provider default when positive.
	MaxTokens int64
}

// GenerateResponse captures the model reply.
type GenerateResponse struct {
	Message *message.Message
}

// Text returns the reply content, or "" for a nil response.
func (r *GenerateResponse) Text() string {
	if r == nil || r.Message == nil {
		return ""
	}
	return strings.TrimSpace(r.Message.Content)
}

// Client is implemented by every chat model provider.
type Client interface {
	Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error)
}

// Float returns a pointer to v, for GenerateRequest.Temperature.
func Float(v float64) *float64 { return &v }

// SplitSystem separates system messages from the dialogue. Providers whose
// API takes the system prompt out of band use it.
func SplitSystem(msgs []*message.Message) (system string, rest []*message.Message) {
	var parts []string
	for _, msg := range msgs {
		if msg == nil {
			continue
		}
		if msg.Role == message.RoleSystem {
			parts = append(parts, msg.Content)
			continue
		}
		rest = append(rest, msg)
	}
	return strings.Join(parts, "\n"), rest
}
