// Package docstore defines the read-only query contract over the pre-built
// first-aid corpus index.
package docstore

import (
	"context"
	"sort"

	"github.com/sweetpotato0/crashguide/rag/document"
)

// Store searches the corpus. Implementations return at most k refs ordered
// by descending Score, with scores normalized to [0,1]. Stores never mutate
// the corpus on behalf of the dialogue core.
type Store interface {
	Search(ctx context.Context, query string, k int) ([]document.Ref, error)
}

// StoreFunc adapts a function to Store.
type StoreFunc func(ctx context.Context, query string, k int) ([]document.Ref, error)

// Search calls f.
func (f StoreFunc) Search(ctx context.Context, query string, k int) ([]document.Ref, error) {
	return f(ctx, query, k)
}

// Passage is one seed record of the corpus, used by loaders and tests.
type Passage struct {
	SourceID string `json:"source_id"`
	Locator  string `json:"locator"`
	Text     string `json:"text"`
}

// Rank sorts refs by descending score with ties broken by Key, then keeps
// the first k. A non-positive k keeps all.
func Rank(refs []document.Ref, k int) []document.Ref {
	sort.SliceStable(refs, func(i, j int) bool {
		if refs[i].Score != refs[j].Score {
			return refs[i].Score > refs[j].Score
		}
		return refs[i].Key() < refs[j].Key()
	})
	if k > 0 && len(refs) > k {
		refs = refs[:k]
	}
	return refs
}
