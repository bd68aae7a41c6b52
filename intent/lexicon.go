package intent

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/sweetpotato0/crashguide/config"
)

// canonicalOrder breaks ties between categories with equal hits.
var canonicalOrder = []Category{Emergency, Procedural, OutOfDomain}

type slotMatcher struct {
	slot       string
	value      string
	confidence float64
	patterns   []*regexp.Regexp
}

// LexiconBackend classifies with keyword phrases and slot regular
// expressions from the policy. It is deterministic and makes no calls.
type LexiconBackend struct {
	phrases map[Category][]*regexp.Regexp
	slots   []slotMatcher
}

var _ Backend = (*LexiconBackend)(nil)

// NewLexiconBackend compiles the policy lexicon.
func NewLexiconBackend(lex config.Lexicon) (*LexiconBackend, error) {
	b := &LexiconBackend{phrases: make(map[Category][]*regexp.Regexp)}
	for name, phrases := range lex.Categories {
		cat := Category(name)
		for _, phrase := range phrases {
			re, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(phrase) + `\b`)
			if err != nil {
				return nil, fmt.Errorf("lexicon phrase %q: %w", phrase, err)
			}
			b.phrases[cat] = append(b.phrases[cat], re)
		}
	}
	for _, rule := range lex.Slots {
		m := slotMatcher{slot: rule.Slot, value: rule.Value, confidence: rule.Confidence}
		for _, pat := range rule.Patterns {
			re, err := regexp.Compile("(?i)" + pat)
			if err != nil {
				return nil, fmt.Errorf("lexicon slot %s pattern %q: %w", rule.Slot, pat, err)
			}
			m.patterns = append(m.patterns, re)
		}
		b.slots = append(b.slots, m)
	}
	return b, nil
}

// Classify implements Backend.
func (b *LexiconBackend) Classify(ctx context.Context, utterance string, history []Turn) (Intent, error) {
	if err := ctx.Err(); err != nil {
		return Intent{}, err
	}

	in := Intent{Slots: b.extractSlots(utterance)}

	hits := make(map[Category]int, len(canonicalOrder))
	total := 0
	for _, cat := range canonicalOrder {
		for _, re := range b.phrases[cat] {
			if re.MatchString(utterance) {
				hits[cat]++
				total++
			}
		}
	}

	if total == 0 {
		if prev, ok := previousUserTurn(history); ok && prev.Category != Clarify && prev.Category.Valid() {
			in.Category = prev.Category
			in.Confidence = prev.Confidence / 2
			return in, nil
		}
		in.Category = Clarify
		return in, nil
	}

	best := canonicalOrder[0]
	for _, cat := range canonicalOrder[1:] {
		if hits[cat] > hits[best] {
			best = cat
		}
	}
	in.Category = best
	in.Confidence = float64(hits[best]) / float64(total)
	return in, nil
}

// extractSlots keeps the first matching rule per slot, in policy order.
func (b *LexiconBackend) extractSlots(utterance string) []SlotCandidate {
	var out []SlotCandidate
	seen := make(map[string]bool)
	for _, m := range b.slots {
		if seen[m.slot] {
			continue
		}
		for _, re := range m.patterns {
			if affirmed(re, utterance) {
				out = append(out, SlotCandidate{Name: m.slot, Value: m.value, Confidence: m.confidence})
				seen[m.slot] = true
				break
			}
		}
	}
	return out
}

// negationWindow is how many words before a match are checked for a
// negation.
const negationWindow = 2

// affirmed reports whether re matches somewhere in s without a negation
// just before the match.
func affirmed(re *regexp.Regexp, s string) bool {
	for _, loc := range re.FindAllStringIndex(s, -1) {
		if !negated(s[:loc[0]]) {
			return true
		}
	}
	return false
}

// negated reports whether the last words of the clause ending at prefix
// contain a negation.
func negated(prefix string) bool {
	if i := strings.LastIndexAny(prefix, ",.;:!?"); i >= 0 {
		prefix = prefix[i+1:]
	}
	words := strings.Fields(strings.ToLower(prefix))
	if len(words) > negationWindow {
		words = words[len(words)-negationWindow:]
	}
	for _, w := range words {
		switch {
		case w == "not", w == "no", w == "never":
			return true
		case strings.HasSuffix(w, "n't"), strings.HasSuffix(w, "n’t"):
			return true
		}
	}
	return false
}

func previousUserTurn(history []Turn) (Turn, bool) {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == "user" {
			return history[i], true
		}
	}
	return Turn{}, false
}
