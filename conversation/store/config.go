package store

import (
	"time"

	"github.com/sweetpotato0/crashguide/config"
)

// Config selects and configures a conversation store backend.
type Config struct {
	Type     string // memory, redis, mongo or postgres
	Redis    *RedisConfig
	Mongo    *MongoConfig
	Postgres *PostgresConfig
}

// ConfigFromEnv builds the config for backend typ from environment variables.
func ConfigFromEnv(typ string) *Config {
	return &Config{
		Type:     typ,
		Redis:    RedisConfigFromEnv(),
		Mongo:    MongoConfigFromEnv(),
		Postgres: PostgresConfigFromEnv(),
	}
}

// RedisConfigFromEnv loads Redis configuration from environment variables.
func RedisConfigFromEnv() *RedisConfig {
	return &RedisConfig{
		Addr:     config.GetEnv("REDIS_ADDR", "localhost:6379"),
		Password: config.GetEnv("REDIS_PASSWORD", ""),
		DB:       config.GetEnvInt("REDIS_DB", 0),
		Prefix:   config.GetEnv("REDIS_PREFIX", "crashguide:conversation:"),
		TTL:      config.GetEnvDuration("REDIS_TTL", 7*24*time.Hour),
	}
}

// MongoConfigFromEnv loads MongoDB configuration from environment variables.
func MongoConfigFromEnv() *MongoConfig {
	return &MongoConfig{
		URI:        config.GetEnv("MONGODB_URI", "mongodb://localhost:27017"),
		Database:   config.GetEnv("MONGODB_DB", "crashguide"),
		Collection: config.GetEnv("MONGODB_COLLECTION", "conversations"),
	}
}

// PostgresConfigFromEnv loads PostgreSQL configuration from environment variables.
func PostgresConfigFromEnv() *PostgresConfig {
	return &PostgresConfig{
		DSN:       config.GetEnv("POSTGRES_DSN", ""),
		TableName: config.GetEnv("POSTGRES_CONVERSATION_TABLE", "conversations"),
	}
}
