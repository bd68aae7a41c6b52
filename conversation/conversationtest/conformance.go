// Package conversationtest holds behaviour checks shared by every
// conversation.Store backend.
package conversationtest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sweetpotato0/crashguide/conversation"
	errorskg "github.com/sweetpotato0/crashguide/errors"
	"github.com/sweetpotato0/crashguide/intent"
	"github.com/sweetpotato0/crashguide/message"
	"github.com/sweetpotato0/crashguide/rag/document"
	"github.com/sweetpotato0/crashguide/risk"
)

// Run exercises store. Conversation ids are prefixed with prefix so runs
// against shared databases do not collide.
func Run(t *testing.T, store conversation.Store, prefix string) {
	t.Helper()
	ctx := context.Background()
	id := func(name string) string { return prefix + name + "-" + message.NewID() }

	t.Run("get missing", func(t *testing.T) {
		_, err := store.Get(ctx, id("missing"))
		if !errors.Is(err, errorskg.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("append creates and round trips", func(t *testing.T) {
		cid := id("append")
		now := time.Now().UTC().Truncate(time.Millisecond)
		first := conversation.Turn{ID: message.NewID(), Role: conversation.RoleUser, Text: "my arm is broken", Timestamp: now, Category: intent.Emergency, Confidence: 1}
		s, err := store.AppendTurn(ctx, cid, first)
		if err != nil {
			t.Fatalf("AppendTurn: %v", err)
		}
		if s.Version != 1 || len(s.Turns) != 1 {
			t.Fatalf("unexpected state after first append: version=%d turns=%d", s.Version, len(s.Turns))
		}

		reply := conversation.Turn{
			ID: message.NewID(), Role: conversation.RoleAgent, Text: "Apply pressure [1].", Timestamp: now,
			Citations:     []document.Ref{{SourceID: "manual", Locator: "p.3", Text: "Apply pressure.", Score: 0.8}},
			DialogueState: "GROUNDED_ANSWER",
			Risk:          &risk.Assessment{Yellow: []string{"fracture"}, Score: 10, Bucket: risk.Green},
		}
		if _, err := store.AppendTurn(ctx, cid, reply); err != nil {
			t.Fatalf("AppendTurn: %v", err)
		}

		got, err := store.Get(ctx, cid)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.Version != 2 || len(got.Turns) != 2 {
			t.Fatalf("version=%d turns=%d, want 2/2", got.Version, len(got.Turns))
		}
		if got.Turns[0].Category != intent.Emergency || got.Turns[0].Text != first.Text {
			t.Errorf("first turn mismatch: %+v", got.Turns[0])
		}
		if len(got.Turns[1].Citations) != 1 || got.Turns[1].Citations[0].Locator != "p.3" {
			t.Errorf("citations lost: %+v", got.Turns[1].Citations)
		}
		if got.Turns[1].Risk == nil || got.Turns[1].Risk.Score != 10 {
			t.Errorf("risk lost: %+v", got.Turns[1].Risk)
		}
	})

	t.Run("save detects stale version", func(t *testing.T) {
		cid := id("conflict")
		s := conversation.NewState(cid, time.Now().UTC())
		s.Slots.Merge([]intent.SlotCandidate{{Name: "injury_type", Value: "broken_arm", Confidence: 0.8}}, "t1", time.Now().UTC())
		if err := store.Save(ctx, s); err != nil {
			t.Fatalf("Save new: %v", err)
		}

		a, _ := store.Get(ctx, cid)
		b, _ := store.Get(ctx, cid)
		a.DialogueState = "CLARIFYING"
		if err := store.Save(ctx, a); err != nil {
			t.Fatalf("first writer: %v", err)
		}
		b.DialogueState = "ESCALATED"
		if err := store.Save(ctx, b); !errors.Is(err, errorskg.ErrVersionConflict) {
			t.Fatalf("expected ErrVersionConflict, got %v", err)
		}

		got, _ := store.Get(ctx, cid)
		if got.DialogueState != "CLARIFYING" {
			t.Errorf("losing writer overwrote state: %s", got.DialogueState)
		}
		if !got.Slots.Known("injury_type") {
			t.Errorf("slots lost: %+v", got.Slots)
		}
	})

	t.Run("second create conflicts", func(t *testing.T) {
		cid := id("create")
		if err := store.Save(ctx, conversation.NewState(cid, time.Now().UTC())); err != nil {
			t.Fatalf("Save: %v", err)
		}
		if err := store.Save(ctx, conversation.NewState(cid, time.Now().UTC())); !errors.Is(err, errorskg.ErrVersionConflict) {
			t.Fatalf("expected ErrVersionConflict, got %v", err)
		}
	})

	t.Run("concurrent appends are all kept", func(t *testing.T) {
		cid := id("concurrent")
		if _, err := store.AppendTurn(ctx, cid, conversation.Turn{ID: message.NewID(), Role: conversation.RoleUser, Text: "start"}); err != nil {
			t.Fatalf("AppendTurn: %v", err)
		}
		const writers = 2
		var wg sync.WaitGroup
		errs := make(chan error, writers)
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := store.AppendTurn(ctx, cid, conversation.Turn{ID: message.NewID(), Role: conversation.RoleUser, Text: "more"})
				errs <- err
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			if err != nil {
				t.Fatalf("AppendTurn: %v", err)
			}
		}
		got, _ := store.Get(ctx, cid)
		if len(got.Turns) != 1+writers {
			t.Errorf("turns = %d, want %d", len(got.Turns), 1+writers)
		}
	})
}
