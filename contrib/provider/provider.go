// Package provider builds the configured llm.Client.
package provider

import (
	"context"
	"fmt"

	"github.com/sweetpotato0/crashguide/config"
	"github.com/sweetpotato0/crashguide/contrib/provider/claude"
	"github.com/sweetpotato0/crashguide/contrib/provider/gemini"
	"github.com/sweetpotato0/crashguide/contrib/provider/openai"
	errorskg "github.com/sweetpotato0/crashguide/errors"
	"github.com/sweetpotato0/crashguide/llm"
)

// New returns a client for cfg.Provider and a close function that releases
// any connection it holds.
func New(ctx context.Context, cfg config.LLMConfig) (llm.Client, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Provider {
	case "", "openai":
		c := openai.DefaultConfig().WithAPIKey(cfg.APIKey).WithBaseURL(cfg.BaseURL)
		if cfg.Model != "" {
			c.WithModel(cfg.Model)
		}
		return openai.New(c), noop, nil
	case "claude":
		c := claude.DefaultConfig(cfg.APIKey, cfg.BaseURL)
		if cfg.Model != "" {
			c.Model = cfg.Model
		}
		return claude.New(c), noop, nil
	case "gemini":
		c := gemini.DefaultConfig(cfg.APIKey)
		if cfg.Model != "" {
			c.Model = cfg.Model
		}
		p, err := gemini.New(ctx, c)
		if err != nil {
			return nil, nil, fmt.Errorf("gemini provider: %w", err)
		}
		return p, p.Close, nil
	default:
		return nil, nil, errorskg.NewConfigurationError("CRASHGUIDE_LLM_PROVIDER", fmt.Sprintf("unknown provider %q", cfg.Provider))
	}
}
