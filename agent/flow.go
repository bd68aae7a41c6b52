package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sweetpotato0/crashguide/conversation"
	errorskg "github.com/sweetpotato0/crashguide/errors"
	"github.com/sweetpotato0/crashguide/generator"
	"github.com/sweetpotato0/crashguide/graph"
	"github.com/sweetpotato0/crashguide/intent"
	"github.com/sweetpotato0/crashguide/message"
	"github.com/sweetpotato0/crashguide/planner"
	"github.com/sweetpotato0/crashguide/rag/document"
	"github.com/sweetpotato0/crashguide/rag/retriever"
	"github.com/sweetpotato0/crashguide/review"
	"github.com/sweetpotato0/crashguide/risk"
)

// Flow node names.
const (
	nodeLoad       = "load"
	nodeClassify   = "classify"
	nodeTransition = "transition"
	nodeRoute      = "route"
	nodeRetrieve   = "retrieve"
	nodeSettle     = "settle"
	nodeRouteAfter = "route_answer"
	nodeGenerate   = "generate"
	nodeCompose    = "compose"
	nodeEnd        = "end"
)

// turn is the working state of one user turn. Nothing in it is visible to
// the store until the agent commits state.
type turn struct {
	in       Inbound
	state    *conversation.State
	user     conversation.Turn
	intent   intent.Intent
	decision planner.Decision
	passages []document.Ref
	reply    conversation.Turn
	degraded bool
}

func (a *Agent) buildFlow() (*graph.Graph[*turn], error) {
	b := graph.NewBuilder[*turn]().
		AddNode(nodeLoad, graph.NodeTypeStart, a.load).
		AddNode(nodeClassify, graph.NodeTypeCustom, a.classify).
		AddNode(nodeTransition, graph.NodeTypeCustom, a.transition).
		AddConditionNode(nodeRoute, routeDecision, map[string]string{
			"ask":      nodeCompose,
			"redirect": nodeCompose,
			"retrieve": nodeRetrieve,
		}).
		AddNode(nodeRetrieve, graph.NodeTypeCustom, a.retrieve).
		AddNode(nodeSettle, graph.NodeTypeCustom, a.settle).
		AddConditionNode(nodeRouteAfter, routeAnswer, map[string]string{
			"generate": nodeGenerate,
			"compose":  nodeCompose,
		}).
		AddNode(nodeGenerate, graph.NodeTypeCustom, a.generate).
		AddNode(nodeCompose, graph.NodeTypeCustom, a.compose).
		AddNode(nodeEnd, graph.NodeTypeEnd, nil).
		AddEdge(nodeLoad, nodeClassify).
		AddEdge(nodeClassify, nodeTransition).
		AddEdge(nodeTransition, nodeRoute).
		AddEdge(nodeRetrieve, nodeSettle).
		AddEdge(nodeSettle, nodeRouteAfter).
		AddEdge(nodeGenerate, nodeCompose).
		AddEdge(nodeCompose, nodeEnd).
		SetMaxVisits(1)
	if a.observer != nil {
		b.Observe(a.observer)
	}
	return b.Build()
}

func (a *Agent) load(ctx context.Context, t *turn) (*turn, error) {
	s, err := a.store.Get(ctx, t.in.ConversationID)
	switch {
	case errors.Is(err, errorskg.ErrNotFound):
		s = conversation.NewState(t.in.ConversationID, t.in.Timestamp)
	case err != nil:
		return t, fmt.Errorf("load conversation %s: %w", t.in.ConversationID, err)
	default:
		s = s.Clone()
	}
	t.state = s
	return t, nil
}

func (a *Agent) classify(ctx context.Context, t *turn) (*turn, error) {
	history := make([]intent.Turn, 0, len(t.state.Turns))
	for _, prev := range t.state.Turns {
		history = append(history, intent.Turn{
			Role:       prev.Role,
			Text:       prev.Text,
			Category:   prev.Category,
			Confidence: prev.Confidence,
		})
	}
	t.intent = a.classifier.Classify(ctx, t.in.Text, history)
	if t.intent.Degraded {
		t.degraded = true
	}
	t.user = conversation.Turn{
		ID:         message.NewID(),
		Role:       conversation.RoleUser,
		Text:       t.in.Text,
		Timestamp:  t.in.Timestamp,
		Category:   t.intent.Category,
		Confidence: t.intent.Confidence,
	}
	return t, nil
}

func (a *Agent) transition(ctx context.Context, t *turn) (*turn, error) {
	s := t.state
	if s.Slots == nil {
		s.Slots = conversation.Slots{}
	}
	s.Slots.Merge(t.intent.Slots, t.user.ID, t.in.Timestamp)

	t.decision = planner.Transition(planner.State(s.DialogueState), s.Slots, t.intent, s.LastCategory, a.policy)
	if t.intent.Category != intent.Clarify {
		s.LastCategory = string(t.intent.Category)
	}
	return t, nil
}

func routeDecision(_ context.Context, t *turn) (string, error) {
	switch t.decision.Action.(type) {
	case planner.Ask:
		return "ask", nil
	case planner.Redirect:
		return "redirect", nil
	case planner.Retrieve:
		return "retrieve", nil
	}
	return "", fmt.Errorf("unexpected action %T after transition", t.decision.Action)
}

func (a *Agent) retrieve(ctx context.Context, t *turn) (*turn, error) {
	refs, err := a.retriever.Retrieve(ctx, retriever.Request{
		Query:    t.in.Text,
		Category: string(t.intent.Category),
		Slots:    t.state.Slots.KnownValues(),
	})
	if err != nil {
		if ctx.Err() != nil {
			return t, ctx.Err()
		}
		a.reporter.Degraded(ctx, review.StageRetrieve, err)
		t.degraded = true
		refs = nil
	}
	t.passages = refs
	return t, nil
}

func (a *Agent) settle(_ context.Context, t *turn) (*turn, error) {
	t.decision = planner.Settle(t.decision, len(t.passages))
	return t, nil
}

func routeAnswer(_ context.Context, t *turn) (string, error) {
	if _, ok := t.decision.Action.(planner.Generate); ok {
		return "generate", nil
	}
	return "compose", nil
}

func (a *Agent) generate(ctx context.Context, t *turn) (*turn, error) {
	g := t.decision.Action.(planner.Generate)
	reply, err := a.generator.Generate(ctx, generator.Input{
		State:     t.state,
		Intent:    t.intent,
		Utterance: t.in.Text,
		Passages:  t.passages,
		Directive: g.Directive,
	})
	if err != nil {
		if ctx.Err() != nil {
			return t, ctx.Err()
		}
		a.reporter.Degraded(ctx, review.StageGenerate, err)
		t.degraded = true
		t.decision = planner.Degrade(t.decision)
		return t, nil
	}
	t.reply = reply
	return t, nil
}

// compose builds the reply for actions that need no model call, then
// applies the turn to the working state.
func (a *Agent) compose(_ context.Context, t *turn) (*turn, error) {
	d := t.decision
	switch act := d.Action.(type) {
	case planner.Generate:
		// reply set by generate
	case planner.Fallback:
		t.reply = generator.Fallback(t.passages, act.Directive, a.policy)
	default:
		text, question, ok := planner.Respond(d, a.policy, t.passages)
		if !ok {
			return t, fmt.Errorf("no response for action %T", d.Action)
		}
		t.reply = conversation.Turn{
			ID:        message.NewID(),
			Role:      conversation.RoleAgent,
			Text:      text,
			Citations: planner.Citations(d, t.passages),
			Question:  question,
		}
	}

	t.reply.Role = conversation.RoleAgent
	t.reply.DialogueState = string(d.State)
	if t.reply.Timestamp.IsZero() {
		t.reply.Timestamp = time.Now().UTC()
	}
	if d.Category == intent.Emergency || d.Category == intent.Procedural {
		assessment := risk.Assess(t.state.Slots.Values(), a.policy.Risk)
		t.reply.Risk = &assessment
	}

	s := t.state
	s.Turns = append(s.Turns, t.user, t.reply)
	s.DialogueState = string(d.State)
	s.LastUrgency = planner.Urgency(d.State, d.Category, s.LastUrgency)
	return t, nil
}
