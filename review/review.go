// Package review records the degraded paths of the dialogue so they can be
// audited later.
package review

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sweetpotato0/crashguide/pkg/logging"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Stages reported by the dialogue core.
const (
	StageClassify = "classify"
	StageRetrieve = "retrieve"
	StageGenerate = "generate"
)

type conversationKey struct{}

// WithConversation attaches the conversation id reported with every event.
func WithConversation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, conversationKey{}, id)
}

// ConversationID returns the id attached by WithConversation.
func ConversationID(ctx context.Context) string {
	id, _ := ctx.Value(conversationKey{}).(string)
	return id
}

// Event is one recorded degrade.
type Event struct {
	ConversationID string
	Stage          string
	Err            string
	At             time.Time
}

// Recorder writes a warn record with review=true and a span event for each
// degrade, and keeps the most recent events in memory.
type Recorder struct {
	logger *slog.Logger
	keep   int

	mu     sync.Mutex
	events []Event
}

// NewRecorder creates a recorder keeping up to keep events. A nil logger
// uses the process logger.
func NewRecorder(logger *slog.Logger, keep int) *Recorder {
	if logger == nil {
		logger = logging.WithComponent("review")
	}
	if keep <= 0 {
		keep = 256
	}
	return &Recorder{logger: logger, keep: keep}
}

// Degraded records that stage fell back to its degraded response.
func (r *Recorder) Degraded(ctx context.Context, stage string, err error) {
	ev := Event{ConversationID: ConversationID(ctx), Stage: stage, At: time.Now().UTC()}
	if err != nil {
		ev.Err = err.Error()
	}

	r.logger.WarnContext(ctx, "degraded response",
		"review", true,
		"conversation", ev.ConversationID,
		"stage", stage,
		"error", ev.Err,
	)
	trace.SpanFromContext(ctx).AddEvent("crashguide.degraded", trace.WithAttributes(
		attribute.String("stage", stage),
		attribute.String("error", ev.Err),
	))

	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	if len(r.events) > r.keep {
		r.events = append([]Event(nil), r.events[len(r.events)-r.keep:]...)
	}
}

// Events returns a copy of the retained events, oldest first.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}
