// Package docstore opens the document store selected by configuration.
package docstore

import (
	"context"
	"fmt"

	openaisdk "github.com/openai/openai-go/v3"
	"github.com/sweetpotato0/crashguide/config"
	"github.com/sweetpotato0/crashguide/contrib/docstore/inmemory"
	"github.com/sweetpotato0/crashguide/contrib/docstore/pg"
	"github.com/sweetpotato0/crashguide/contrib/docstore/qdrant"
	"github.com/sweetpotato0/crashguide/contrib/docstore/supabase"
	"github.com/sweetpotato0/crashguide/contrib/embedder/openai"
	errorskg "github.com/sweetpotato0/crashguide/errors"
	ragstore "github.com/sweetpotato0/crashguide/rag/docstore"
	"github.com/sweetpotato0/crashguide/vector"
)

// New returns the store named by cfg.DocStore and a function that releases
// it. The memory store is seeded from cfg.SeedCorpus when set.
func New(ctx context.Context, cfg *config.Config) (ragstore.Store, func() error, error) {
	noop := func() error { return nil }
	switch cfg.DocStore {
	case "", "memory":
		s := inmemory.New()
		if cfg.SeedCorpus != "" {
			if err := s.LoadFile(ctx, cfg.SeedCorpus); err != nil {
				return nil, nil, err
			}
		}
		return s, noop, nil
	case "pg":
		s, err := pg.New(ctx, pg.ConfigFromEnv(), Embedder(cfg.Embedder))
		if err != nil {
			return nil, nil, fmt.Errorf("pgvector docstore: %w", err)
		}
		return s, s.Close, nil
	case "qdrant":
		s, err := qdrant.New(qdrant.ConfigFromEnv(), Embedder(cfg.Embedder))
		if err != nil {
			return nil, nil, fmt.Errorf("qdrant docstore: %w", err)
		}
		return s, s.Close, nil
	case "supabase":
		s, err := supabase.New(supabase.ConfigFromEnv(), Embedder(cfg.Embedder))
		if err != nil {
			return nil, nil, fmt.Errorf("supabase docstore: %w", err)
		}
		return s, noop, nil
	}
	return nil, nil, errorskg.NewConfigurationError("CRASHGUIDE_DOCSTORE", fmt.Sprintf("unsupported docstore %q", cfg.DocStore))
}

// Embedder builds the query embedder used by the vector stores.
func Embedder(cfg config.EmbedderConfig) vector.Embedder {
	return openai.New(cfg.APIKey, cfg.BaseURL, openaisdk.EmbeddingModel(cfg.Model), cfg.Dimension)
}
