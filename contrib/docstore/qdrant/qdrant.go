// Package qdrant searches a Qdrant collection of pre-embedded passages.
package qdrant

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/qdrant/go-client/qdrant"
	"github.com/sweetpotato0/crashguide/config"
	errorskg "github.com/sweetpotato0/crashguide/errors"
	"github.com/sweetpotato0/crashguide/rag/docstore"
	"github.com/sweetpotato0/crashguide/rag/document"
	"github.com/sweetpotato0/crashguide/vector"
)

// Payload keys written by the ingestion job.
const (
	PayloadText     = "text"
	PayloadSourceID = "source_id"
	PayloadLocator  = "locator"
)

// Config holds Qdrant connection configuration.
type Config struct {
	// URL is the server address, e.g. https://example.qdrant.io:6334.
	URL            string
	CollectionName string
	APIKey         string
}

// ConfigFromEnv reads QDRANT_URL, QDRANT_COLLECTION and QDRANT_API_KEY.
func ConfigFromEnv() Config {
	return Config{
		URL:            config.GetEnv("QDRANT_URL", ""),
		CollectionName: config.GetEnv("QDRANT_COLLECTION", "passages"),
		APIKey:         config.GetEnv("QDRANT_API_KEY", ""),
	}
}

// Store implements docstore.Store for Qdrant.
type Store struct {
	client     *qdrant.Client
	collection string
	embedder   vector.Embedder
}

var _ docstore.Store = (*Store)(nil)

// New creates a Qdrant-backed store.
func New(cfg Config, embedder vector.Embedder) (*Store, error) {
	v := config.NewValidator()
	v.RequireNonEmpty("QDRANT_URL", cfg.URL)
	v.RequireNonEmpty("QDRANT_COLLECTION", cfg.CollectionName)
	v.Check(embedder != nil, "embedder", "qdrant search needs a query embedder")
	if err := v.Error(); err != nil {
		return nil, err
	}

	host, port, useTLS, err := parseEndpoint(cfg.URL)
	if err != nil {
		return nil, errorskg.NewConfigurationError("QDRANT_URL", err.Error())
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: cfg.APIKey,
		UseTLS: useTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	return &Store{client: client, collection: cfg.CollectionName, embedder: embedder}, nil
}

// parseEndpoint splits a URL into the gRPC host and port. A missing
// scheme means https and a missing port means 6334.
func parseEndpoint(raw string) (string, int, bool, error) {
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", 0, false, fmt.Errorf("failed to parse qdrant url: %w", err)
	}
	if u.Hostname() == "" {
		return "", 0, false, fmt.Errorf("qdrant url has no host")
	}
	port := 6334
	if u.Port() != "" {
		p, err := strconv.Atoi(u.Port())
		if err != nil {
			return "", 0, false, fmt.Errorf("invalid port: %w", err)
		}
		port = p
	}
	return u.Hostname(), port, u.Scheme == "https", nil
}

// Search implements docstore.Store. Cosine scores are clamped to [0,1].
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

	limit := uint64(k)
	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(vec...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant search failed: %w", err)
	}

	refs := make([]document.Ref, 0, len(points))
	for _, point := range points {
		ref := document.Ref{Score: vector.Clamp01(float64(point.Score))}
		for key, val := range point.Payload {
			switch key {
			case PayloadText:
				ref.Text = val.GetStringValue()
			case PayloadSourceID:
				ref.SourceID = val.GetStringValue()
			case PayloadLocator:
				ref.Locator = val.GetStringValue()
			}
		}
		if ref.Text == "" {
			continue
		}
		if ref.SourceID == "" && point.Id != nil {
			if uuid := point.Id.GetUuid(); uuid != "" {
				ref.SourceID = uuid
			} else {
				ref.SourceID = strconv.FormatUint(point.Id.GetNum(), 10)
			}
		}
		refs = append(refs, ref)
	}
	return docstore.Rank(refs, k), nil
}

// Close releases the gRPC connection.
func (s *Store) Close() error {
	return s.client.Close()
}
