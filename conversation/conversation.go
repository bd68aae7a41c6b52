// Package conversation holds the per-conversation dialogue state and the
// store contract used to persist it.
package conversation

import (
	"context"
	"sort"
	"time"

	"github.com/sweetpotato0/crashguide/intent"
	"github.com/sweetpotato0/crashguide/rag/document"
	"github.com/sweetpotato0/crashguide/risk"
)

// Turn roles.
const (
	RoleUser  = "user"
	RoleAgent = "agent"
)

// Urgency is the urgency level derived from the latest turn.
type Urgency string

const (
	UrgencyNone     Urgency = "none"
	UrgencyRoutine  Urgency = "routine"
	UrgencyUrgent   Urgency = "urgent"
	UrgencyCritical Urgency = "critical"
)

// Turn is one message in a conversation. Turns are immutable once appended.
type Turn struct {
	ID            string           `json:"id" bson:"id"`
	Role          string           `json:"role" bson:"role"`
	Text          string           `json:"text" bson:"text"`
	Timestamp     time.Time        `json:"timestamp" bson:"timestamp"`
	Citations     []document.Ref   `json:"citations,omitempty" bson:"citations,omitempty"`
	DialogueState string           `json:"dialogue_state,omitempty" bson:"dialogue_state,omitempty"`
	Question      string           `json:"question,omitempty" bson:"question,omitempty"`
	Risk          *risk.Assessment `json:"risk,omitempty" bson:"risk,omitempty"`

	// Set on user turns only.
	Category   intent.Category `json:"category,omitempty" bson:"category,omitempty"`
	Confidence float64         `json:"confidence,omitempty" bson:"confidence,omitempty"`
}

// Clone returns a deep copy of the turn.
func (t Turn) Clone() Turn {
	out := t
	out.Citations = document.CloneRefs(t.Citations)
	if t.Risk != nil {
		r := *t.Risk
		r.Red = append([]string(nil), t.Risk.Red...)
		r.Yellow = append([]string(nil), t.Risk.Yellow...)
		r.FollowUps = append([]string(nil), t.Risk.FollowUps...)
		out.Risk = &r
	}
	return out
}

// State is the persisted state of one conversation.
type State struct {
	ID            string    `json:"id" bson:"_id"`
	Turns         []Turn    `json:"turns" bson:"turns"`
	DialogueState string    `json:"dialogue_state" bson:"dialogue_state"`
	Slots         Slots     `json:"slots" bson:"slots"`
	LastUrgency   Urgency   `json:"last_urgency" bson:"last_urgency"`
	LastCategory  string    `json:"last_category,omitempty" bson:"last_category,omitempty"`
	Version       int64     `json:"version" bson:"version"`
	CreatedAt     time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" bson:"updated_at"`
}

// InitialDialogueState is the dialogue state of a conversation with no turns.
const InitialDialogueState = "INIT"

// NewState creates an empty conversation.
func NewState(id string, at time.Time) *State {
	return &State{
		ID:            id,
		DialogueState: InitialDialogueState,
		Slots:         Slots{},
		LastUrgency:   UrgencyNone,
		CreatedAt:     at,
		UpdatedAt:     at,
	}
}

// Clone returns a deep copy of the state.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	out := *s
	if s.Turns != nil {
		out.Turns = make([]Turn, len(s.Turns))
		for i, t := range s.Turns {
			out.Turns[i] = t.Clone()
		}
	}
	out.Slots = s.Slots.Clone()
	return &out
}

// Slot is an accumulated slot value.
type Slot struct {
	Value      string    `json:"value" bson:"value"`
	Confidence float64   `json:"confidence" bson:"confidence"`
	TurnID     string    `json:"turn_id" bson:"turn_id"`
	UpdatedAt  time.Time `json:"updated_at" bson:"updated_at"`
}

// Known reports whether the slot holds a resolved value. A slot recorded as
// unknown is present but not known.
func (s Slot) Known() bool {
	return s.Value != "" && s.Value != intent.Unknown
}

// Slots maps slot name to its accumulated value. Entries are never removed.
type Slots map[string]Slot

// Clone copies the map.
func (s Slots) Clone() Slots {
	out := make(Slots, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Known reports whether name holds a resolved value.
func (s Slots) Known(name string) bool {
	v, ok := s[name]
	return ok && v.Known()
}

// KnownCount returns the number of resolved slots.
func (s Slots) KnownCount() int {
	n := 0
	for _, v := range s {
		if v.Known() {
			n++
		}
	}
	return n
}

// KnownValues returns name to value for resolved slots.
func (s Slots) KnownValues() map[string]string {
	out := make(map[string]string, len(s))
	for k, v := range s {
		if v.Known() {
			out[k] = v.Value
		}
	}
	return out
}

// Values returns name to value for every recorded slot, unknown included.
func (s Slots) Values() map[string]string {
	out := make(map[string]string, len(s))
	for k, v := range s {
		out[k] = v.Value
	}
	return out
}

// Names returns the recorded slot names in sorted order.
func (s Slots) Names() []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Merge folds slot candidates into s and returns the names that changed.
// A stored value is replaced when it is unknown and the candidate is known,
// or when the candidate has strictly higher confidence, except that an
// unknown never replaces a known value.
func (s Slots) Merge(candidates []intent.SlotCandidate, turnID string, at time.Time) []string {
	var changed []string
	for _, c := range candidates {
		if c.Name == "" || c.Value == "" {
			continue
		}
		next := Slot{Value: c.Value, Confidence: c.Confidence, TurnID: turnID, UpdatedAt: at}
		cur, ok := s[c.Name]
		switch {
		case !ok:
		case !cur.Known() && next.Known():
		case cur.Known() && !next.Known():
			continue
		case next.Confidence > cur.Confidence:
		default:
			continue
		}
		s[c.Name] = next
		changed = append(changed, c.Name)
	}
	return changed
}

// Store persists conversation state. Implementations must be safe for
// concurrent use; the core never deletes conversations.
type Store interface {
	// Get returns errors.ErrNotFound when the conversation does not exist.
	Get(ctx context.Context, id string) (*State, error)
	// AppendTurn appends t and creates the conversation on its first turn.
	AppendTurn(ctx context.Context, id string, t Turn) (*State, error)
	// Save writes s when s.Version matches the stored version, zero for a
	// new conversation, and increments s.Version. A mismatch wraps
	// errors.ErrVersionConflict.
	Save(ctx context.Context, s *State) error
}
