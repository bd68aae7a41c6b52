// Package supabase searches passages through a Postgres function exposed by
// Supabase, by default match_passages(query_embedding, match_count).
package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/supabase-community/supabase-go"
	"github.com/sweetpotato0/crashguide/config"
	errorskg "github.com/sweetpotato0/crashguide/errors"
	"github.com/sweetpotato0/crashguide/rag/docstore"
	"github.com/sweetpotato0/crashguide/rag/document"
	"github.com/sweetpotato0/crashguide/vector"
)

// Config holds Supabase connection configuration
type Config struct {
	URL      string
	APIKey   string
	Function string // default match_passages
}

// ConfigFromEnv reads SUPABASE_URL, SUPABASE_KEY and SUPABASE_MATCH_FUNCTION.
func ConfigFromEnv() Config {
	return Config{
		URL:      config.GetEnv("SUPABASE_URL", ""),
		APIKey:   config.GetEnv("SUPABASE_KEY", ""),
		Function: config.GetEnv("SUPABASE_MATCH_FUNCTION", "match_passages"),
	}
}

// rpcCaller is the subset of the supabase client used here.
type rpcCaller interface {
	Rpc(name, count string, rpcBody interface{}) string
}

type matchRow struct {
	SourceID   string  `json:"source_id"`
	Locator    string  `json:"locator"`
	Text       string  `json:"text"`
	Similarity float64 `json:"similarity"`
}

type rpcError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Store implements docstore.Store over a Supabase RPC.
type Store struct {
	rpc      rpcCaller
	function string
	embedder vector.Embedder
}

var _ docstore.Store = (*Store)(nil)

// New creates a Supabase-backed store.
func New(cfg Config, embedder vector.Embedder) (*Store, error) {
	if cfg.Function == "" {
		cfg.Function = "match_passages"
	}
	v := config.NewValidator()
	v.RequireNonEmpty("SUPABASE_URL", cfg.URL)
	v.RequireNonEmpty("SUPABASE_KEY", cfg.APIKey)
	v.Check(embedder != nil, "embedder", "supabase search needs a query embedder")
	if err := v.Error(); err != nil {
		return nil, err
	}

	client, err := supabase.NewClient(cfg.URL, cfg.APIKey, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create supabase client: %w", err)
	}
	return &Store{rpc: client, function: cfg.Function, embedder: embedder}, nil
}

// Search implements docstore.Store. The RPC call does not take a context,
// so it runs in a goroutine and the caller stops waiting when ctx ends.
func (s *Store) Search(ctx context.Context, query string, k int) ([]document.Ref, error) {
	if strings.TrimSpace(query) == "" {
		return nil, errorskg.NewValidationError("query", "cannot be empty")
	}
	if k <= 0 {
		k = 10
	}
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	body := map[string]any{
		"query_embedding": vec,
		"match_count":     k,
	}
	done := make(chan string, 1)
	go func() { done <- s.rpc.Rpc(s.function, "", body) }()

	var raw string
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case raw = <-done:
	}
	return decodeMatches(raw, k)
}

func decodeMatches(raw string, k int) ([]document.Ref, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("supabase rpc returned no body")
	}
	var rows []matchRow
	if err := json.Unmarshal([]byte(raw), &rows); err != nil {
		var rerr rpcError
		if json.Unmarshal([]byte(raw), &rerr) == nil && rerr.Message != "" {
			return nil, fmt.Errorf("supabase rpc error %s: %s", rerr.Code, rerr.Message)
		}
		return nil, fmt.Errorf("decode supabase rpc result: %w", err)
	}

	refs := make([]document.Ref, 0, len(rows))
	for _, row := range rows {
		if row.Text == "" {
			continue
		}
		refs = append(refs, document.Ref{
			SourceID: row.SourceID,
			Locator:  row.Locator,
			Text:     row.Text,
			Score:    vector.Clamp01(row.Similarity),
		})
	}
	return docstore.Rank(refs, k), nil
}
