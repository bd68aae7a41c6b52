// Package inmemory is a process-local document store for development runs
// and tests. It scores by cosine similarity when an embedder is configured
// and by query term coverage otherwise.
package inmemory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"

	errorskg "github.com/sweetpotato0/crashguide/errors"
	"github.com/sweetpotato0/crashguide/rag/docstore"
	"github.com/sweetpotato0/crashguide/rag/document"
	"github.com/sweetpotato0/crashguide/vector"
)

var termRegex = regexp.MustCompile(`\p{L}[\p{L}\p{M}]*|\p{N}+`)

var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "at": {}, "be": {}, "do": {}, "for": {},
	"he": {}, "her": {}, "his": {}, "i": {}, "if": {}, "in": {}, "is": {}, "it": {},
	"its": {}, "me": {}, "my": {}, "of": {}, "on": {}, "or": {}, "she": {}, "so": {},
	"the": {}, "they": {}, "this": {}, "to": {}, "was": {}, "what": {}, "with": {},
}

type entry struct {
	ref   document.Ref
	vec   []float32
	terms map[string]struct{}
}

// Store implements docstore.Store in memory.
type Store struct {
	mu       sync.RWMutex
	entries  []entry
	embedder vector.Embedder
}

var _ docstore.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithEmbedder switches scoring to cosine similarity over embeddings.
func WithEmbedder(e vector.Embedder) Option {
	return func(s *Store) { s.embedder = e }
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add indexes passages. Passages with empty text are rejected.
func (s *Store) Add(ctx context.Context, passages ...docstore.Passage) error {
	added := make([]entry, 0, len(passages))
	for _, p := range passages {
		if strings.TrimSpace(p.Text) == "" {
			return fmt.Errorf("passage %s#%s has empty text", p.SourceID, p.Locator)
		}
		e := entry{
			ref:   document.Ref{SourceID: p.SourceID, Locator: p.Locator, Text: p.Text},
			terms: termSet(p.Text),
		}
		if s.embedder != nil {
			vec, err := s.embedder.Embed(ctx, p.Text)
			if err != nil {
				return fmt.Errorf("embed passage %s: %w", e.ref.Key(), err)
			}
			e.vec = vec
		}
		added = append(added, e)
	}

	s.mu.Lock()
	s.entries = append(s.entries, added...)
	s.mu.Unlock()
	return nil
}

// LoadFile reads a JSON array of passages and indexes it.
func (s *Store) LoadFile(ctx context.Context, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read seed corpus: %w", err)
	}
	var passages []docstore.Passage
	if err := json.Unmarshal(raw, &passages); err != nil {
		return fmt.Errorf("decode seed corpus %s: %w", path, err)
	}
	return s.Add(ctx, passages...)
}

// Len returns the number of indexed passages.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Search implements docstore.Store.
func (s *Store) Search(ctx context.Context, query string, k int) ([]document.Ref, error) {
	if strings.TrimSpace(query) == "" {
		return nil, errorskg.NewValidationError("query", "cannot be empty")
	}
	if k <= 0 {
		k = 10
	}

	var qvec []float32
	if s.embedder != nil {
		v, err := s.embedder.Embed(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("embed query: %w", err)
		}
		qvec = v
	}
	qterms := termSet(query)

	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]document.Ref, 0, len(s.entries))
	for _, e := range s.entries {
		var score float64
		if qvec != nil {
			score = vector.Clamp01(vector.CosineSimilarity(qvec, e.vec))
		} else {
			score = coverage(qterms, e.terms)
		}
		if score <= 0 {
			continue
		}
		ref := e.ref
		ref.Score = score
		results = append(results, ref)
	}
	return docstore.Rank(results, k), nil
}

func termSet(text string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, tok := range termRegex.FindAllString(strings.ToLower(text), -1) {
		if _, stop := stopwords[tok]; stop {
			continue
		}
		out[tok] = struct{}{}
	}
	return out
}

// coverage is the fraction of query terms found in the passage.
func coverage(query, passage map[string]struct{}) float64 {
	if len(query) == 0 {
		return 0
	}
	hits := 0
	for term := range query {
		if _, ok := passage[term]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(query))
}
