package pg

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"

	errorskg "github.com/sweetpotato0/crashguide/errors"
	"github.com/sweetpotato0/crashguide/vector"
)

type axisEmbedder struct{}

func (axisEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if text == "cpr" {
		return []float32{1, 0, 0}, nil
	}
	return []float32{0, 1, 0}, nil
}

func (e axisEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i], _ = e.Embed(ctx, t)
	}
	return out, nil
}

func (axisEmbedder) Dimension() int { return 3 }

func TestNewValidatesConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  *Config
		emb  vector.Embedder
	}{
		{name: "missing dsn", cfg: &Config{TableName: "passages"}, emb: axisEmbedder{}},
		{name: "bad table", cfg: &Config{DSN: "postgres://x", TableName: "passages;drop"}, emb: axisEmbedder{}},
		{name: "no embedder", cfg: &Config{DSN: "postgres://x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(context.Background(), tt.cfg, tt.emb)
			if !errors.Is(err, errorskg.ErrMisconfigured) {
				t.Fatalf("expected configuration error, got %v", err)
			}
		})
	}
}

func TestPGVectorSearch(t *testing.T) {
	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_DSN not set, skipping pgvector test")
	}
	ctx := context.Background()
	table := "crashguide_passages_test"

	store, err := New(ctx, &Config{DSN: dsn, TableName: table, Dimension: 3}, axisEmbedder{})
	if err != nil {
		// The table is created below; New only pings.
		t.Fatalf("New: %v", err)
	}
	defer store.Close()

	setup := []string{
		"CREATE EXTENSION IF NOT EXISTS vector",
		fmt.Sprintf("DROP TABLE IF EXISTS %s", table),
		fmt.Sprintf("CREATE TABLE %s (source_id TEXT, locator TEXT, text TEXT, embedding vector(3))", table),
		fmt.Sprintf("INSERT INTO %s VALUES ('manual','cpr','Start CPR.','[1,0,0]'), ('manual','warm','Keep warm.','[0,0,1]')", table),
	}
	for _, stmt := range setup {
		if _, err := store.db.ExecContext(ctx, stmt); err != nil {
			t.Fatalf("setup %q: %v", stmt, err)
		}
	}
	defer store.db.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", table))

	refs, err := store.Search(ctx, "cpr", 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(refs) != 2 || refs[0].Locator != "cpr" {
		t.Fatalf("unexpected refs %+v", refs)
	}
	if refs[0].Score != 1 || refs[1].Score != 0.5 {
		t.Errorf("scores = %v, %v; want 1, 0.5", refs[0].Score, refs[1].Score)
	}
}
