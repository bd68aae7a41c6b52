package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	_ "github.com/lib/pq"
	"github.com/sweetpotato0/crashguide/config"
	"github.com/sweetpotato0/crashguide/conversation"
	errorskg "github.com/sweetpotato0/crashguide/errors"
)

var identRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// PostgresConfig holds PostgreSQL connection configuration.
type PostgresConfig struct {
	DSN       string
	TableName string
}

// PostgresStore keeps each conversation as a JSONB document next to its
// version column.
type PostgresStore struct {
	db    *sql.DB
	table string
}

var _ conversation.Store = (*PostgresStore)(nil)

// NewPostgresStore connects and creates the table if needed.
func NewPostgresStore(ctx context.Context, cfg *PostgresConfig) (*PostgresStore, error) {
	if cfg == nil {
		cfg = PostgresConfigFromEnv()
	}
	if cfg.TableName == "" {
		cfg.TableName = "conversations"
	}
	v := config.NewValidator()
	v.RequireNonEmpty("POSTGRES_DSN", cfg.DSN)
	v.Check(identRegex.MatchString(cfg.TableName), "POSTGRES_CONVERSATION_TABLE", "must be a plain SQL identifier")
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

	s := &PostgresStore{db: db, table: cfg.TableName}
	if err := s.createTable(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) createTable(ctx context.Context) error {
	query := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %[1]s (
		id TEXT PRIMARY KEY,
		version BIGINT NOT NULL,
		state JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_%[1]s_updated_at ON %[1]s(updated_at);
	`, s.table)
	_, err := s.db.ExecContext(ctx, query)
	return err
}

// Get implements conversation.Store.
func (s *PostgresStore) Get(ctx context.Context, id string) (*conversation.State, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT state FROM %s WHERE id = $1`, s.table), id).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound(id)
		}
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}
	var st conversation.State
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("failed to decode conversation: %w", err)
	}
	if st.Slots == nil {
		st.Slots = conversation.Slots{}
	}
	return &st, nil
}

// AppendTurn implements conversation.Store.
func (s *PostgresStore) AppendTurn(ctx context.Context, id string, t conversation.Turn) (*conversation.State, error) {
	return conversation.Append(ctx, s, id, t)
}

// Save implements conversation.Store.
func (s *PostgresStore) Save(ctx context.Context, st *conversation.State) error {
	if st == nil || st.ID == "" {
		return errorskg.NewValidationError("conversation_id", "must not be empty")
	}
	next := st.Clone()
	next.Version = st.Version + 1
	next.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("failed to marshal conversation: %w", err)
	}

	var res sql.Result
	if st.Version == 0 {
		res, err = s.db.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (id, version, state, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING`, s.table),
			next.ID, next.Version, string(data), next.CreatedAt, next.UpdatedAt)
	} else {
		res, err = s.db.ExecContext(ctx, fmt.Sprintf(`
		UPDATE %s SET version = $2, state = $3, updated_at = $4
		WHERE id = $1 AND version = $5`, s.table),
			next.ID, next.Version, string(data), next.UpdatedAt, st.Version)
	}
	if err != nil {
		return fmt.Errorf("failed to save conversation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to save conversation: %w", err)
	}
	if n == 0 {
		return conflict(st.ID, st.Version)
	}
	st.Version = next.Version
	st.UpdatedAt = next.UpdatedAt
	return nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
