package qdrant

import (
	"context"
	"errors"
	"testing"

	"github.com/sweetpotato0/crashguide/config"
	errorskg "github.com/sweetpotato0/crashguide/errors"
)

type constEmbedder struct{ vec []float32 }

func (c constEmbedder) Embed(context.Context, string) ([]float32, error) { return c.vec, nil }
func (c constEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = c.vec
	}
	return out, nil
}
func (c constEmbedder) Dimension() int { return len(c.vec) }

func TestParseEndpoint(t *testing.T) {
	tests := []struct {
		raw     string
		host    string
		port    int
		tls     bool
		wantErr bool
	}{
		{raw: "https://example.qdrant.io:6334", host: "example.qdrant.io", port: 6334, tls: true},
		{raw: "http://localhost:7000", host: "localhost", port: 7000},
		{raw: "qdrant.internal", host: "qdrant.internal", port: 6334, tls: true},
		{raw: "http://localhost:abc", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			host, port, tls, err := parseEndpoint(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("parseEndpoint: %v", err)
			}
			if host != tt.host || port != tt.port || tls != tt.tls {
				t.Errorf("got (%s, %d, %v), want (%s, %d, %v)", host, port, tls, tt.host, tt.port, tt.tls)
			}
		})
	}
}

func TestNewRequiresURL(t *testing.T) {
	_, err := New(Config{CollectionName: "passages"}, constEmbedder{vec: []float32{1}})
	if !errors.Is(err, errorskg.ErrMisconfigured) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestQdrantSearch(t *testing.T) {
	cfg := ConfigFromEnv()
	if cfg.URL == "" {
		t.Skip("QDRANT_URL not set, skipping qdrant test")
	}
	dim := config.GetEnvInt("QDRANT_DIMENSION", 4)
	store, err := New(cfg, constEmbedder{vec: make([]float32, dim)})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer store.Close()

	refs, err := store.Search(context.Background(), "bleeding", 3)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	for _, r := range refs {
		if r.Score < 0 || r.Score > 1 {
			t.Errorf("score out of range: %v", r.Score)
		}
	}
}
