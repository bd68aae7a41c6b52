package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sweetpotato0/crashguide/conversation"
	errorskg "github.com/sweetpotato0/crashguide/errors"
)

// RedisConfig holds Redis configuration for conversations.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration // refreshed on every read and write, 0 disables expiry
}

// RedisStore keeps each conversation as one JSON value and updates it with
// WATCH/MULTI.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

var _ conversation.Store = (*RedisStore)(nil)

// NewRedisStore connects and pings Redis.
func NewRedisStore(ctx context.Context, cfg *RedisConfig) (*RedisStore, error) {
	if cfg == nil {
		cfg = RedisConfigFromEnv()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}
	return &RedisStore{client: client, prefix: cfg.Prefix, ttl: cfg.TTL}, nil
}

// Get implements conversation.Store.
func (s *RedisStore) Get(ctx context.Context, id string) (*conversation.State, error) {
	key := s.key(id)
	var raw []byte
	var err error
	if s.ttl > 0 {
		raw, err = s.client.GetEx(ctx, key, s.ttl).Bytes()
	} else {
		raw, err = s.client.Get(ctx, key).Bytes()
	}
	if err != nil {
		if errors.Is(err, redis.Nil) {
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
func (s *RedisStore) AppendTurn(ctx context.Context, id string, t conversation.Turn) (*conversation.State, error) {
	return conversation.Append(ctx, s, id, t)
}

// Save implements conversation.Store.
func (s *RedisStore) Save(ctx context.Context, st *conversation.State) error {
	if st == nil || st.ID == "" {
		return errorskg.NewValidationError("conversation_id", "must not be empty")
	}
	key := s.key(st.ID)
	next := st.Clone()
	next.Version = st.Version + 1
	next.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("failed to marshal conversation: %w", err)
	}

	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		var stored int64
		raw, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			var head struct {
				Version int64 `json:"version"`
			}
			if err := json.Unmarshal(raw, &head); err != nil {
				return fmt.Errorf("failed to decode conversation: %w", err)
			}
			stored = head.Version
		}
		if stored != st.Version {
			return conflict(st.ID, stored)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, s.ttl)
			pipe.SAdd(ctx, s.indexKey(), st.ID)
			return nil
		})
		return err
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		return conflict(st.ID, st.Version)
	}
	if err != nil {
		return err
	}
	st.Version = next.Version
	st.UpdatedAt = next.UpdatedAt
	return nil
}

// IDs returns every conversation id in the index.
func (s *RedisStore) IDs(ctx context.Context) ([]string, error) {
	ids, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	return ids, nil
}

// Close closes the underlying Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Conversation keys and the index key live in separate namespaces so no
// conversation ID can collide with the index.
func (s *RedisStore) key(id string) string {
	return s.prefix + "conv:" + id
}

func (s *RedisStore) indexKey() string {
	return s.prefix + "index"
}
