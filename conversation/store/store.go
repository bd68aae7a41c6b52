// Package store provides the persistent conversation.Store backends.
package store

import (
	"context"
	"fmt"

	"github.com/sweetpotato0/crashguide/conversation"
	errorskg "github.com/sweetpotato0/crashguide/errors"
)

// New opens the backend named by cfg.Type. The returned close function
// releases its connections.
func New(ctx context.Context, cfg *Config) (conversation.Store, func() error, error) {
	if cfg == nil {
		cfg = &Config{Type: "memory"}
	}
	noop := func() error { return nil }

	switch cfg.Type {
	case "", "memory":
		return conversation.NewMemoryStore(), noop, nil
	case "redis":
		s, err := NewRedisStore(ctx, cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case "mongo":
		s, err := NewMongoStore(ctx, cfg.Mongo)
		if err != nil {
			return nil, nil, err
		}
		return s, func() error { return s.Close(context.Background()) }, nil
	case "postgres":
		s, err := NewPostgresStore(ctx, cfg.Postgres)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		return nil, nil, errorskg.NewConfigurationError("CRASHGUIDE_STORE", fmt.Sprintf("unknown store type %q", cfg.Type))
	}
}

func conflict(id string, version int64) error {
	return fmt.Errorf("conversation %s at version %d: %w", id, version, errorskg.ErrVersionConflict)
}

func notFound(id string) error {
	return fmt.Errorf("conversation %s: %w", id, errorskg.ErrNotFound)
}
