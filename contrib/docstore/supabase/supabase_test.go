package supabase

import (
	"context"
	"errors"
	"testing"
	"time"

	errorskg "github.com/sweetpotato0/crashguide/errors"
)

type constEmbedder struct{}

func (constEmbedder) Embed(context.Context, string) ([]float32, error) { return []float32{1, 0}, nil }
func (constEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	return make([][]float32, len(texts)), nil
}
func (constEmbedder) Dimension() int { return 2 }

type stubRPC struct {
	body  string
	delay time.Duration
	name  string
	args  any
}

func (s *stubRPC) Rpc(name, count string, body interface{}) string {
	s.name = name
	s.args = body
	time.Sleep(s.delay)
	return s.body
}

func TestSearchDecodesAndClamps(t *testing.T) {
	rpc := &stubRPC{body: `[
		{"source_id":"manual","locator":"p1","text":"Keep warm.","similarity":0.4},
		{"source_id":"manual","locator":"p2","text":"Start CPR.","similarity":1.3},
		{"source_id":"manual","locator":"p3","text":"","similarity":0.9}
	]`}
	store := &Store{rpc: rpc, function: "match_passages", embedder: constEmbedder{}}

	refs, err := store.Search(context.Background(), "cpr", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if rpc.name != "match_passages" {
		t.Errorf("called %q", rpc.name)
	}
	if len(refs) != 2 {
		t.Fatalf("expected 2 refs, got %+v", refs)
	}
	if refs[0].Locator != "p2" || refs[0].Score != 1 {
		t.Errorf("unexpected top ref %+v", refs[0])
	}
}

func TestSearchSurfacesRPCError(t *testing.T) {
	store := &Store{rpc: &stubRPC{body: `{"code":"42883","message":"function does not exist"}`}, function: "f", embedder: constEmbedder{}}
	if _, err := store.Search(context.Background(), "q", 3); err == nil {
		t.Fatal("expected error")
	}
}

func TestSearchHonoursContext(t *testing.T) {
	store := &Store{rpc: &stubRPC{body: `[]`, delay: 200 * time.Millisecond}, function: "f", embedder: constEmbedder{}}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := store.Search(ctx, "q", 3)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestNewRequiresCredentials(t *testing.T) {
	_, err := New(Config{URL: "https://x.supabase.co"}, constEmbedder{})
	if !errors.Is(err, errorskg.ErrMisconfigured) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
