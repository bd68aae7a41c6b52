// Package planner is the dialogue state machine. Every function is pure:
// the runtime in package agent performs the calls an Action asks for.
package planner

import (
	"github.com/sweetpotato0/crashguide/config"
	"github.com/sweetpotato0/crashguide/conversation"
	"github.com/sweetpotato0/crashguide/intent"
)

// State is a dialogue state.
type State string

const (
	Init           State = conversation.InitialDialogueState
	Classifying    State = "CLASSIFYING"
	Clarifying     State = "CLARIFYING"
	GroundedAnswer State = "GROUNDED_ANSWER"
	Escalated      State = "ESCALATED"
	OutOfScope     State = "OUT_OF_SCOPE"
)

// Action is what the runtime must do next. The concrete types are Ask,
// Redirect, Retrieve, Generate, DirectiveOnly and Fallback.
type Action interface {
	action()
}

// Ask asks exactly one question. An empty Slot asks the generic
// describe-further question.
type Ask struct{ Slot string }

// Redirect answers with the fixed out-of-scope message.
type Redirect struct{}

// Retrieve runs the retriever for the turn.
type Retrieve struct{}

// Generate synthesizes a grounded answer. Directive prefixes the answer
// with the emergency directive.
type Generate struct{ Directive bool }

// DirectiveOnly answers with the emergency directive and nothing else.
type DirectiveOnly struct{}

// Fallback answers with the disclaimer and the top passage verbatim.
// AskFurther appends the describe-further question.
type Fallback struct {
	Directive  bool
	AskFurther bool
}

func (Ask) action()           {}
func (Redirect) action()      {}
func (Retrieve) action()      {}
func (Generate) action()      {}
func (DirectiveOnly) action() {}
func (Fallback) action()      {}

// Decision is the outcome of one planning step.
type Decision struct {
	// State is where the turn ends if Action succeeds.
	State    State
	Action   Action
	Category intent.Category
	// Path records the states visited, starting at the state before the turn.
	Path []State
}

func (d Decision) to(s State, a Action) Decision {
	d.State = s
	d.Action = a
	d.Path = append(append([]State(nil), d.Path...), s)
	return d
}

// Transition decides the next state for a user turn. slots must already
// contain the candidates extracted from this turn. lastCategory is the most
// recent category other than CLARIFY, or "".
func Transition(current State, slots conversation.Slots, in intent.Intent, lastCategory string, policy *config.Policy) Decision {
	if current == "" {
		current = Init
	}
	d := Decision{State: Classifying, Category: in.Category, Path: []State{current, Classifying}}

	switch in.Category {
	case intent.OutOfDomain:
		return d.to(OutOfScope, Redirect{})
	case intent.Emergency:
		if lifeThreatening(slots, policy) {
			return d.to(Escalated, Retrieve{})
		}
	}

	switch in.Category {
	case intent.Clarify:
		slot, _ := MissingSlot(policy, lastCategory, slots)
		return d.to(Clarifying, Ask{Slot: slot})
	case intent.Emergency, intent.Procedural:
		if slot, ok := MissingSlot(policy, string(in.Category), slots); ok {
			return d.to(Clarifying, Ask{Slot: slot})
		}
		return d.to(GroundedAnswer, Retrieve{})
	}
	// An invalid category never leaves the classifier; ask rather than guess.
	return d.to(Clarifying, Ask{})
}

// Settle resolves a Retrieve decision once the number of usable passages is
// known. Other decisions are returned unchanged.
func Settle(d Decision, passages int) Decision {
	if _, ok := d.Action.(Retrieve); !ok {
		return d
	}
	switch d.State {
	case Escalated:
		if passages > 0 {
			d.Action = Generate{Directive: true}
			return d
		}
		d.Action = DirectiveOnly{}
		return d
	default:
		if passages > 0 {
			d.Action = Generate{}
			return d
		}
		return d.to(Clarifying, Ask{})
	}
}

// Degrade replaces a failed Generate with the raw-passage fallback. The
// turn never ends in GROUNDED_ANSWER without a generated answer.
func Degrade(d Decision) Decision {
	g, ok := d.Action.(Generate)
	if !ok {
		return d
	}
	if d.State == Escalated || g.Directive {
		d.Action = Fallback{Directive: true}
		return d
	}
	return d.to(Clarifying, Fallback{AskFurther: true})
}

// MissingSlot returns the required slot of category that is not yet known
// with the lowest priority number. Ties go to the slot listed first.
func MissingSlot(policy *config.Policy, category string, slots conversation.Slots) (string, bool) {
	cat, ok := policy.Category(category)
	if !ok {
		return "", false
	}
	best := -1
	for i, rule := range cat.Slots {
		if !rule.Required || slots.Known(rule.Name) {
			continue
		}
		if best < 0 || rule.Priority < cat.Slots[best].Priority {
			best = i
		}
	}
	if best < 0 {
		return "", false
	}
	return cat.Slots[best].Name, true
}

func lifeThreatening(slots conversation.Slots, policy *config.Policy) bool {
	for name, slot := range slots {
		if slot.Known() && policy.IsLifeThreatening(name, slot.Value) {
			return true
		}
	}
	return false
}

// Urgency derives the urgency level of a turn from its final state and
// category, keeping prev when neither says anything.
func Urgency(state State, category intent.Category, prev conversation.Urgency) conversation.Urgency {
	switch {
	case state == Escalated:
		return conversation.UrgencyCritical
	case category == intent.Emergency:
		return conversation.UrgencyUrgent
	case category == intent.Procedural:
		return conversation.UrgencyRoutine
	}
	if prev == "" {
		return conversation.UrgencyNone
	}
	return prev
}
