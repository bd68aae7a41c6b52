package store

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/sweetpotato0/crashguide/conversation"
	"github.com/sweetpotato0/crashguide/conversation/conversationtest"
	errorskg "github.com/sweetpotato0/crashguide/errors"
)

func TestNewMemory(t *testing.T) {
	s, closeFn, err := New(context.Background(), &Config{Type: "memory"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer closeFn()
	if _, ok := s.(*conversation.MemoryStore); !ok {
		t.Fatalf("expected memory store, got %T", s)
	}
}

func TestNewUnknownType(t *testing.T) {
	_, _, err := New(context.Background(), &Config{Type: "etcd"})
	var cfgErr *errorskg.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
}

func TestPostgresConfigValidation(t *testing.T) {
	_, err := NewPostgresStore(context.Background(), &PostgresConfig{DSN: "postgres://x", TableName: "bad;drop"})
	if !errors.Is(err, errorskg.ErrMisconfigured) {
		t.Fatalf("expected misconfiguration, got %v", err)
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("REDIS_PREFIX", "test:")
	t.Setenv("MONGODB_DB", "crashguide_test")
	cfg := ConfigFromEnv("redis")
	if cfg.Type != "redis" || cfg.Redis.Prefix != "test:" || cfg.Mongo.Database != "crashguide_test" {
		t.Errorf("unexpected config: %+v", cfg)
	}
	if cfg.Postgres.TableName != "conversations" {
		t.Errorf("table default = %q", cfg.Postgres.TableName)
	}
}

func TestRedisKeysDoNotCollide(t *testing.T) {
	s := &RedisStore{prefix: "crashguide:"}
	for _, id := range []string{"set", "index", "conv:", ""} {
		if s.key(id) == s.indexKey() {
			t.Errorf("conversation %q shares the index key %q", id, s.indexKey())
		}
	}
}

// The tests below require running servers and are skipped otherwise.

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set, skipping Redis store tests")
	}
	cfg := RedisConfigFromEnv()
	cfg.Prefix = "crashguide_test:conversation:"
	s, err := NewRedisStore(context.Background(), cfg)
	if err != nil {
		t.Skipf("Failed to connect to Redis: %v", err)
	}
	defer s.Close()
	conversationtest.Run(t, s, "redis-")
}

func TestMongoStore(t *testing.T) {
	if os.Getenv("MONGODB_URI") == "" {
		t.Skip("MONGODB_URI not set, skipping MongoDB store tests")
	}
	cfg := MongoConfigFromEnv()
	cfg.Database = "crashguide_test"
	s, err := NewMongoStore(context.Background(), cfg)
	if err != nil {
		t.Skipf("Failed to connect to MongoDB: %v", err)
	}
	defer s.Close(context.Background())
	conversationtest.Run(t, s, "mongo-")
}

func TestPostgresStore(t *testing.T) {
	if os.Getenv("POSTGRES_DSN") == "" {
		t.Skip("POSTGRES_DSN not set, skipping PostgreSQL store tests")
	}
	cfg := PostgresConfigFromEnv()
	cfg.TableName = "conversations_test"
	s, err := NewPostgresStore(context.Background(), cfg)
	if err != nil {
		t.Skipf("Failed to connect to PostgreSQL: %v", err)
	}
	defer s.Close()
	conversationtest.Run(t, s, "pg-")
}
