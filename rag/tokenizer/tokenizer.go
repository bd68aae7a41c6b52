package tokenizer

import (
	"strings"
	"sync"
	"unicode"
)

// Tokenizer counts and slices text in model tokens.
type Tokenizer interface {
	Encode(text string) []int
	CountTokens(text string) int
	DecodeIds(ids []int) string
}

// Truncate returns the longest token prefix of text that fits in budget.
// A non-positive budget leaves text unchanged.
func Truncate(tok Tokenizer, text string, budget int) (string, bool) {
	if tok == nil || budget <= 0 {
		return text, false
	}
	ids := tok.Encode(text)
	if len(ids) <= budget {
		return text, false
	}
	return strings.TrimRightFunc(tok.DecodeIds(ids[:budget]), unicode.IsSpace), true
}

var _ Tokenizer = (*SimpleTokenizer)(nil)

// SimpleTokenizer splits on word boundaries. Each token carries its leading
// whitespace so decoding a prefix reproduces the original text exactly.
// It needs no vocabulary download and serves as the offline fallback.
type SimpleTokenizer struct {
	mu       sync.Mutex
	vocab    map[string]int
	invVocab map[int]string
	nextID   int
}

// NewSimpleTokenizer creates new tokenizer with empty vocab.
func NewSimpleTokenizer() *SimpleTokenizer {
	return &SimpleTokenizer{
		vocab:    make(map[string]int),
		invVocab: make(map[int]string),
		nextID:   1,
	}
}

func (t *SimpleTokenizer) addToken(tok string) int {
	if id, ok := t.vocab[tok]; ok {
		return id
	}
	id := t.nextID
	t.vocab[tok] = id
	t.invVocab[id] = tok
	t.nextID++
	return id
}

// splitTokens: letters and digits form words, Han characters and
// punctuation stand alone.
func splitTokens(s string) []string {
	var toks []string
	var space, word strings.Builder

	flush := func() {
		if word.Len() > 0 {
			toks = append(toks, space.String()+word.String())
			space.Reset()
			word.Reset()
		}
	}

	for _, r := range s {
		switch {
		case unicode.IsSpace(r):
			flush()
			space.WriteRune(r)
		case unicode.Is(unicode.Han, r):
			flush()
			toks = append(toks, space.String()+string(r))
			space.Reset()
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			word.WriteRune(r)
		default:
			flush()
			toks = append(toks, space.String()+string(r))
			space.Reset()
		}
	}
	flush()
	if space.Len() > 0 {
		toks = append(toks, space.String())
	}
	return toks
}

func (t *SimpleTokenizer) Encode(text string) []int {
	toks := splitTokens(text)
	t.mu.Lock()
	defer t.mu.Unlock()
	ids := make([]int, 0, len(toks))
	for _, tok := range toks {
		ids = append(ids, t.addToken(tok))
	}
	return ids
}

func (t *SimpleTokenizer) CountTokens(text string) int {
	return len(splitTokens(text))
}

func (t *SimpleTokenizer) DecodeIds(ids []int) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var sb strings.Builder
	for _, id := range ids {
		sb.WriteString(t.invVocab[id])
	}
	return sb.String()
}
