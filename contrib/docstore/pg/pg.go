// Package pg searches a pgvector table of pre-embedded passages.
package pg

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	_ "github.com/lib/pq"
	"github.com/sweetpotato0/crashguide/config"
	errorskg "github.com/sweetpotato0/crashguide/errors"
	"github.com/sweetpotato0/crashguide/rag/docstore"
	"github.com/sweetpotato0/crashguide/rag/document"
	"github.com/sweetpotato0/crashguide/vector"
)

var identRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Config holds pgvector connection settings.
type Config struct {
	DSN       string
	TableName string // default passages
	Dimension int    // default 1536
}

// ConfigFromEnv reads PGVECTOR_DSN, PGVECTOR_TABLE and PGVECTOR_DIMENSION.
func ConfigFromEnv() *Config {
	return &Config{
		DSN:       config.GetEnv("PGVECTOR_DSN", config.GetEnv("POSTGRES_DSN", "")),
		TableName: config.GetEnv("PGVECTOR_TABLE", "passages"),
		Dimension: config.GetEnvInt("PGVECTOR_DIMENSION", 1536),
	}
}

// Store implements docstore.Store over a table with columns
// (source_id, locator, text, embedding vector(n)).
type Store struct {
	db        *sql.DB
	table     string
	dimension int
	embedder  vector.Embedder
}

var _ docstore.Store = (*Store)(nil)

// New opens and pings the database. The table is expected to exist; the
// ingestion job owns its schema.
func New(ctx context.Context, cfg *Config, embedder vector.Embedder) (*Store, error) {
	if cfg == nil {
		cfg = ConfigFromEnv()
	}
	if cfg.TableName == "" {
		cfg.TableName = "passages"
	}
	if cfg.Dimension <= 0 {
		cfg.Dimension = 1536
	}
	v := config.NewValidator()
	v.RequireNonEmpty("PGVECTOR_DSN", cfg.DSN)
	v.Check(identRegex.MatchString(cfg.TableName), "PGVECTOR_TABLE", "must be a plain SQL identifier")
	v.Check(embedder != nil, "embedder", "pgvector search needs a query embedder")
	if err := v.Error(); err != nil {
		return nil, err
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	return &Store{db: db, table: cfg.TableName, dimension: cfg.Dimension, embedder: embedder}, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Search embeds query and orders by cosine distance. The distance d in
// [0,2] maps to the score 1 - d/2.
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
	if len(vec) != s.dimension {
		return nil, fmt.Errorf("query vector dimension mismatch: expected %d, got %d", s.dimension, len(vec))
	}

	q := fmt.Sprintf(`
	SELECT source_id, locator, text, 1 - (embedding <=> $1::vector) / 2 AS score
	FROM %s
	ORDER BY embedding <=> $1::vector
	LIMIT $2
	`, s.table)

	rows, err := s.db.QueryContext(ctx, q, vector.PGLiteral(vec), k)
	if err != nil {
		return nil, fmt.Errorf("failed to search passages: %w", err)
	}
	defer rows.Close()

	refs := make([]document.Ref, 0, k)
	for rows.Next() {
		var ref document.Ref
		if err := rows.Scan(&ref.SourceID, &ref.Locator, &ref.Text, &ref.Score); err != nil {
			return nil, fmt.Errorf("failed to scan passage: %w", err)
		}
		ref.Score = vector.Clamp01(ref.Score)
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate passages: %w", err)
	}
	return docstore.Rank(refs, k), nil
}
