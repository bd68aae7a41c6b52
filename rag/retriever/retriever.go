// Package retriever turns a classified utterance into a short, deduplicated
// list of grounded passages.
package retriever

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sweetpotato0/crashguide/config"
	errorskg "github.com/sweetpotato0/crashguide/errors"
	"github.com/sweetpotato0/crashguide/pkg/logging"
	"github.com/sweetpotato0/crashguide/pkg/telemetry"
	"github.com/sweetpotato0/crashguide/rag/docstore"
	"github.com/sweetpotato0/crashguide/rag/document"
	"github.com/sweetpotato0/crashguide/rag/preprocess"
	"go.opentelemetry.io/otel/attribute"
)

// Request describes one retrieval.
type Request struct {
	// Query is the raw user utterance.
	Query string
	// Category selects which slots expand the query.
	Category string
	// Slots holds the known slot values by name.
	Slots map[string]string
	// K caps the result; non-positive means the policy top_k.
	K int
}

// Config controls retrieval behaviour.
type Config struct {
	RetryDelay time.Duration
	Logger     *slog.Logger
}

// Option customizes retriever config.
type Option func(*Config)

// WithRetryDelay sets the pause before the single re-attempt.
func WithRetryDelay(d time.Duration) Option {
	return func(cfg *Config) {
		if d >= 0 {
			cfg.RetryDelay = d
		}
	}
}

// WithLogger overrides the component logger.
func WithLogger(l *slog.Logger) Option {
	return func(cfg *Config) {
		if l != nil {
			cfg.Logger = l
		}
	}
}

// Retriever expands the query, searches the store and filters the result.
type Retriever struct {
	store  docstore.Store
	policy *config.Policy
	cfg    Config
}

// New creates a retriever.
func New(store docstore.Store, policy *config.Policy, opts ...Option) *Retriever {
	cfg := Config{
		RetryDelay: 100 * time.Millisecond,
		Logger:     logging.WithComponent("retriever"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return &Retriever{store: store, policy: policy, cfg: cfg}
}

// ExpandQuery appends the known values of the category's expansion slots,
// in canonical slot order, to the utterance. Values already present in the
// utterance are not repeated.
func (r *Retriever) ExpandQuery(req Request) string {
	query := strings.TrimSpace(req.Query)
	cat, ok := r.policy.Category(req.Category)
	if !ok {
		return query
	}
	lower := strings.ToLower(query)
	parts := []string{query}
	for _, rule := range cat.Slots {
		if !rule.Expand {
			continue
		}
		value, ok := req.Slots[rule.Name]
		if !ok || value == "" {
			continue
		}
		term := strings.ReplaceAll(value, "_", " ")
		if strings.Contains(lower, strings.ToLower(term)) {
			continue
		}
		parts = append(parts, term)
		lower += " " + strings.ToLower(term)
	}
	return strings.Join(parts, " ")
}

// Retrieve returns at most K passages scoring at or above the relevance
// floor, one per source section. An empty result is not an error. A store
// that fails twice yields a TransientDependencyError.
func (r *Retriever) Retrieve(ctx context.Context, req Request) (refs []document.Ref, err error) {
	k := req.K
	if k <= 0 {
		k = r.policy.TopK
	}
	query := r.ExpandQuery(req)

	ctx, span := telemetry.Start(ctx, "crashguide.retrieve",
		attribute.String("category", req.Category),
		attribute.Int("k", k),
	)
	defer func() {
		span.SetAttributes(attribute.Int("results", len(refs)))
		telemetry.End(span, err)
	}()

	if query == "" {
		return nil, errorskg.NewValidationError("query", "cannot be empty")
	}

	candidates, err := r.search(ctx, query, k*r.policy.CandidateMultiplier)
	if err != nil {
		r.cfg.Logger.Warn("document store unavailable", "query", query, "error", err)
		return nil, errorskg.Transient("document_store", err)
	}

	refs = r.filter(candidates, k)
	r.cfg.Logger.Debug("retrieval complete",
		"query", query,
		"candidates", len(candidates),
		"results", len(refs),
	)
	return refs, nil
}

// search calls the store with one bounded re-attempt. Validation errors and
// a cancelled parent context are not retried.
func (r *Retriever) search(ctx context.Context, query string, n int) ([]document.Ref, error) {
	attempt := 0
	op := func() ([]document.Ref, error) {
		attempt++
		callCtx, cancel := context.WithTimeout(ctx, r.policy.CallTimeout)
		defer cancel()

		refs, err := r.store.Search(callCtx, query, n)
		if err == nil {
			return refs, nil
		}
		if ctx.Err() != nil {
			return nil, backoff.Permanent(ctx.Err())
		}
		if errorskg.IsValidation(err) {
			return nil, backoff.Permanent(err)
		}
		r.cfg.Logger.Debug("document store attempt failed", "attempt", attempt, "error", err)
		return nil, err
	}

	refs, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewConstantBackOff(r.cfg.RetryDelay)),
		backoff.WithMaxTries(2),
	)
	if err != nil {
		return nil, fmt.Errorf("search after %d attempt(s): %w", attempt, err)
	}
	return refs, nil
}

// filter normalizes text, dedupes by section and by content, applies the
// relevance floor and ranks.
func (r *Retriever) filter(candidates []document.Ref, k int) []document.Ref {
	bySection := make(map[string]document.Ref, len(candidates))
	for _, ref := range candidates {
		ref.Text = preprocess.Passage(ref.Text)
		if ref.Text == "" {
			continue
		}
		if prev, ok := bySection[ref.Key()]; !ok || better(ref, prev) {
			bySection[ref.Key()] = ref
		}
	}

	byContent := make(map[string]document.Ref, len(bySection))
	for _, ref := range bySection {
		fp := ref.Fingerprint()
		if prev, ok := byContent[fp]; !ok || better(ref, prev) {
			byContent[fp] = ref
		}
	}

	out := make([]document.Ref, 0, len(byContent))
	for _, ref := range byContent {
		if ref.Score < r.policy.RelevanceFloor {
			continue
		}
		out = append(out, ref)
	}
	return docstore.Rank(out, k)
}

// better orders by score, then by key so the winner is deterministic.
func better(a, b document.Ref) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.Key() < b.Key()
}
