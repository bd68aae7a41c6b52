package review

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestRecorderDegraded(t *testing.T) {
	var buf bytes.Buffer
	r := NewRecorder(slog.New(slog.NewJSONHandler(&buf, nil)), 2)
	ctx := WithConversation(context.Background(), "c-42")

	r.Degraded(ctx, StageClassify, errors.New("timeout"))
	r.Degraded(ctx, StageRetrieve, errors.New("store down"))
	r.Degraded(context.Background(), StageGenerate, nil)

	out := buf.String()
	for _, want := range []string{`"review":true`, `"conversation":"c-42"`, `"stage":"classify"`, `"error":"timeout"`} {
		if !strings.Contains(out, want) {
			t.Errorf("log %s missing %s", out, want)
		}
	}

	events := r.Events()
	if len(events) != 2 {
		t.Fatalf("events = %d, want the 2 most recent", len(events))
	}
	if events[0].Stage != StageRetrieve || events[1].Stage != StageGenerate {
		t.Errorf("unexpected events %+v", events)
	}
	if events[1].ConversationID != "" {
		t.Errorf("conversation id should be empty without WithConversation")
	}
}
