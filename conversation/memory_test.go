package conversation_test

import (
	"context"
	"testing"
	"time"

	"github.com/sweetpotato0/crashguide/conversation"
	"github.com/sweetpotato0/crashguide/conversation/conversationtest"
)

func TestMemoryStore(t *testing.T) {
	conversationtest.Run(t, conversation.NewMemoryStore(), "mem-")
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	store := conversation.NewMemoryStore()
	ctx := context.Background()
	if err := store.Save(ctx, conversation.NewState("c1", time.Now())); err != nil {
		t.Fatal(err)
	}
	s, _ := store.Get(ctx, "c1")
	s.DialogueState = "ESCALATED"
	again, _ := store.Get(ctx, "c1")
	if again.DialogueState != conversation.InitialDialogueState {
		t.Fatalf("mutating a returned state changed the store")
	}
	if ids := store.IDs(); len(ids) != 1 || ids[0] != "c1" {
		t.Errorf("IDs() = %v", ids)
	}
}
