package config

import (
	"os"
	"strings"
)

// LLMConfig selects the chat model used by the LLM classifier and the generator.
type LLMConfig struct {
	Provider string // openai, claude or gemini
	APIKey   string
	Model    string
	BaseURL  string
}

// EmbedderConfig configures query embeddings for vector docstores.
type EmbedderConfig struct {
	APIKey    string
	Model     string
	BaseURL   string
	Dimension int
}

// Config is the process configuration assembled from the environment.
// Backend specific settings (DSNs, addresses) are read by the backend
// packages themselves.
type Config struct {
	PolicyPath string
	PolicyGlob string

	Classifier string // lexicon or llm
	LLM        LLMConfig
	Embedder   EmbedderConfig

	DocStore   string // memory, pg, qdrant or supabase
	SeedCorpus string // JSON passages loaded into the memory docstore
	Store      string // memory, redis, mongo or postgres

	RateLimit float64 // turns per second per conversation, 0 disables
	RateBurst int

	TelemetryDisable bool
	Environment      string
}

// Option mutates a Config after it has been read from the environment.
type Option func(*Config)

// WithPolicyPath overrides CRASHGUIDE_POLICY.
func WithPolicyPath(path string) Option {
	return func(c *Config) { c.PolicyPath = path }
}

// WithClassifier overrides CRASHGUIDE_CLASSIFIER.
func WithClassifier(name string) Option {
	return func(c *Config) { c.Classifier = name }
}

// WithDocStore overrides CRASHGUIDE_DOCSTORE.
func WithDocStore(name string) Option {
	return func(c *Config) { c.DocStore = name }
}

// WithStore overrides CRASHGUIDE_STORE.
func WithStore(name string) Option {
	return func(c *Config) { c.Store = name }
}

// FromEnv reads the process configuration and validates it.
func FromEnv(opts ...Option) (*Config, error) {
	provider := strings.ToLower(GetEnv("CRASHGUIDE_LLM_PROVIDER", "openai"))
	cfg := &Config{
		PolicyPath: GetEnv("CRASHGUIDE_POLICY", ""),
		PolicyGlob: GetEnv("CRASHGUIDE_POLICY_GLOB", ""),
		Classifier: strings.ToLower(GetEnv("CRASHGUIDE_CLASSIFIER", "lexicon")),
		LLM: LLMConfig{
			Provider: provider,
			APIKey:   providerKey(provider),
			Model:    GetEnv("CRASHGUIDE_LLM_MODEL", ""),
			BaseURL:  GetEnv("CRASHGUIDE_LLM_BASE_URL", ""),
		},
		Embedder: EmbedderConfig{
			APIKey:    GetEnv("OPENAI_API_KEY", ""),
			Model:     GetEnv("CRASHGUIDE_EMBEDDING_MODEL", "text-embedding-3-small"),
			BaseURL:   GetEnv("OPENAI_BASE_URL", ""),
			Dimension: GetEnvInt("CRASHGUIDE_EMBEDDING_DIMENSION", 1536),
		},
		SeedCorpus:       GetEnv("CRASHGUIDE_SEED_CORPUS", ""),
		DocStore:         strings.ToLower(GetEnv("CRASHGUIDE_DOCSTORE", "memory")),
		Store:            strings.ToLower(GetEnv("CRASHGUIDE_STORE", "memory")),
		RateLimit:        GetEnvFloat("CRASHGUIDE_RATE_LIMIT", 1),
		RateBurst:        GetEnvInt("CRASHGUIDE_RATE_BURST", 3),
		TelemetryDisable: GetEnvBool("CRASHGUIDE_TELEMETRY_DISABLE", false),
		Environment:      GetEnv("CRASHGUIDE_ENV", "development"),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func providerKey(provider string) string {
	switch provider {
	case "claude":
		return GetEnv("ANTHROPIC_API_KEY", "")
	case "gemini":
		return GetEnv("GEMINI_API_KEY", os.Getenv("GOOGLE_API_KEY"))
	default:
		return GetEnv("OPENAI_API_KEY", "")
	}
}

// Validate checks option values and cross-field requirements.
func (c *Config) Validate() error {
	v := NewValidator()
	v.Check(c.PolicyPath != "" || c.PolicyGlob != "", "CRASHGUIDE_POLICY", "a policy file or glob is required")
	v.ValidateOneOf("CRASHGUIDE_CLASSIFIER", c.Classifier, "lexicon", "llm")
	v.ValidateOneOf("CRASHGUIDE_LLM_PROVIDER", c.LLM.Provider, "openai", "claude", "gemini")
	v.RequireNonEmpty("llm api key", c.LLM.APIKey)
	v.ValidateOneOf("CRASHGUIDE_DOCSTORE", c.DocStore, "memory", "pg", "qdrant", "supabase")
	v.ValidateOneOf("CRASHGUIDE_STORE", c.Store, "memory", "redis", "mongo", "postgres")
	v.Check(c.Embedder.Dimension > 0, "CRASHGUIDE_EMBEDDING_DIMENSION", "value must be positive")
	v.Check(c.RateLimit >= 0, "CRASHGUIDE_RATE_LIMIT", "value must not be negative")
	if c.RateLimit > 0 {
		v.RequirePositive("CRASHGUIDE_RATE_BURST", c.RateBurst)
	}
	if c.DocStore == "pg" || c.DocStore == "qdrant" || c.DocStore == "supabase" {
		v.RequireNonEmpty("OPENAI_API_KEY", c.Embedder.APIKey)
	}
	return v.Error()
}

// LoadPolicy loads the policy named by PolicyGlob, or PolicyPath when no
// glob is set.
func (c *Config) LoadPolicy() (*Policy, error) {
	if c.PolicyGlob != "" {
		return LoadPolicyGlob(c.PolicyGlob)
	}
	return LoadPolicy(c.PolicyPath)
}
