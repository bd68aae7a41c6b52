// Package document holds the passage reference returned by document stores.
package document

import (
	"encoding/hex"
	"strings"

	"github.com/zeebo/blake3"
)

// Ref is one retrieved passage with its provenance. Score is normalized to
// [0,1], higher is more relevant. Refs are treated as read-only once a
// store has produced them.
type Ref struct {
	SourceID string  `json:"source_id" bson:"source_id"`
	Text     string  `json:"text" bson:"text"`
	Score    float64 `json:"score" bson:"score"`
	Locator  string  `json:"locator" bson:"locator"`
}

// Key identifies the source section a passage came from.
func (r Ref) Key() string {
	return r.SourceID + "#" + r.Locator
}

// Fingerprint hashes the whitespace- and case-normalized passage text so
// the same passage published under two sources collapses to one.
func (r Ref) Fingerprint() string {
	norm := strings.ToLower(strings.Join(strings.Fields(r.Text), " "))
	sum := blake3.Sum256([]byte(norm))
	return hex.EncodeToString(sum[:])
}

// Citation is the outbound form of a Ref.
type Citation struct {
	SourceID string `json:"source_id"`
	Locator  string `json:"locator"`
}

// Citation drops the passage text and score.
func (r Ref) Citation() Citation {
	return Citation{SourceID: r.SourceID, Locator: r.Locator}
}

// CloneRefs copies a slice of refs.
func CloneRefs(refs []Ref) []Ref {
	if len(refs) == 0 {
		return nil
	}
	out := make([]Ref, len(refs))
	copy(out, refs)
	return out
}
