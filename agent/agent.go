// Package agent runs a user turn through classification, planning,
// retrieval and generation, and commits the resulting conversation state.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sweetpotato0/crashguide/config"
	"github.com/sweetpotato0/crashguide/conversation"
	errorskg "github.com/sweetpotato0/crashguide/errors"
	"github.com/sweetpotato0/crashguide/generator"
	"github.com/sweetpotato0/crashguide/graph"
	"github.com/sweetpotato0/crashguide/intent"
	"github.com/sweetpotato0/crashguide/middleware"
	"github.com/sweetpotato0/crashguide/middleware/enricher"
	"github.com/sweetpotato0/crashguide/middleware/errorhandler"
	"github.com/sweetpotato0/crashguide/middleware/limiter"
	mwlogger "github.com/sweetpotato0/crashguide/middleware/logger"
	"github.com/sweetpotato0/crashguide/middleware/validator"
	"github.com/sweetpotato0/crashguide/pkg/logging"
	"github.com/sweetpotato0/crashguide/pkg/telemetry"
	"github.com/sweetpotato0/crashguide/rag/document"
	"github.com/sweetpotato0/crashguide/rag/retriever"
	"github.com/sweetpotato0/crashguide/review"
	"github.com/sweetpotato0/crashguide/risk"
	"github.com/sweetpotato0/crashguide/runner"
	"go.opentelemetry.io/otel/attribute"
)

// Inbound is one user message.
type Inbound struct {
	ConversationID string    `json:"conversation_id"`
	Text           string    `json:"text"`
	Timestamp      time.Time `json:"timestamp"`
}

// Outbound is the agent's reply to one Inbound.
type Outbound struct {
	Role          string              `json:"role"`
	Text          string              `json:"text"`
	Citations     []document.Citation `json:"citations"`
	DialogueState string              `json:"dialogue_state"`
	Question      string              `json:"question,omitempty"`
	Risk          *risk.Assessment    `json:"risk,omitempty"`
}

// Classifier labels an utterance. It never fails.
type Classifier interface {
	Classify(ctx context.Context, utterance string, history []intent.Turn) intent.Intent
}

// Retriever finds grounded passages for a turn.
type Retriever interface {
	Retrieve(ctx context.Context, req retriever.Request) ([]document.Ref, error)
}

// Generator writes a grounded answer from passages.
type Generator interface {
	Generate(ctx context.Context, in generator.Input) (conversation.Turn, error)
}

// Agent handles turns for any number of conversations.
type Agent struct {
	policy     *config.Policy
	store      conversation.Store
	classifier Classifier
	retriever  Retriever
	generator  Generator
	reporter   intent.DegradeReporter
	runner     *runner.Runner
	logger     *slog.Logger
	observer   graph.Observer

	rateLimit   float64
	rateBurst   int
	extra       []middleware.Middleware
	middlewares *middleware.MiddlewareChain
	flow        *graph.Graph[*turn]
}

// Option is a function that configures an Agent
type Option func(*Agent)

// WithStore sets the conversation store. The default is in-memory.
func WithStore(s conversation.Store) Option {
	return func(a *Agent) {
		a.store = s
	}
}

// WithClassifier sets the intent classifier.
func WithClassifier(c Classifier) Option {
	return func(a *Agent) {
		a.classifier = c
	}
}

// WithRetriever sets the passage retriever.
func WithRetriever(r Retriever) Option {
	return func(a *Agent) {
		a.retriever = r
	}
}

// WithGenerator sets the answer generator.
func WithGenerator(g Generator) Option {
	return func(a *Agent) {
		a.generator = g
	}
}

// WithReporter sets where degraded retrieval and generation are reported.
func WithReporter(r intent.DegradeReporter) Option {
	return func(a *Agent) {
		a.reporter = r
	}
}

// WithRunner sets the per-conversation serializer.
func WithRunner(r *runner.Runner) Option {
	return func(a *Agent) {
		a.runner = r
	}
}

// WithRateLimit limits turns per conversation. A zero rate disables it.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(a *Agent) {
		a.rateLimit = perSecond
		a.rateBurst = burst
	}
}

// WithMiddleware adds a middleware inside the built-in chain.
func WithMiddleware(m middleware.Middleware) Option {
	return func(a *Agent) {
		a.extra = append(a.extra, m)
	}
}

// WithMiddlewares adds multiple middlewares
func WithMiddlewares(middlewares ...middleware.Middleware) Option {
	return func(a *Agent) {
		a.extra = append(a.extra, middlewares...)
	}
}

// WithLogger overrides the agent logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Agent) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithObserver is told the name of every flow node a turn enters.
func WithObserver(o graph.Observer) Option {
	return func(a *Agent) {
		a.observer = o
	}
}

// New creates an agent. Classifier, retriever and generator are required.
func New(policy *config.Policy, opts ...Option) (*Agent, error) {
	if policy == nil {
		return nil, errorskg.NewConfigurationError("policy", "is required")
	}
	a := &Agent{
		policy: policy,
		logger: logging.WithComponent("agent"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}

	v := config.NewValidator()
	v.Check(a.classifier != nil, "classifier", "is required")
	v.Check(a.retriever != nil, "retriever", "is required")
	v.Check(a.generator != nil, "generator", "is required")
	v.Check(a.rateLimit >= 0, "rate_limit", "value must not be negative")
	if err := v.Error(); err != nil {
		return nil, err
	}

	if a.store == nil {
		a.store = conversation.NewMemoryStore()
	}
	if a.reporter == nil {
		a.reporter = review.NewRecorder(a.logger, 0)
	}
	if a.runner == nil {
		a.runner = runner.New(policy.MaxConcurrency)
	}
	a.middlewares = a.chain()

	flow, err := a.buildFlow()
	if err != nil {
		return nil, fmt.Errorf("build turn flow: %w", err)
	}
	a.flow = flow
	return a, nil
}

// chain recovers and logs outermost, validates before rate limiting, and
// checks the response innermost.
func (a *Agent) chain() *middleware.MiddlewareChain {
	c := middleware.NewChain(
		errorhandler.NewErrorHandler(nil),
		mwlogger.NewTurnLogger(a.logger),
		validator.NewInputValidator(nil),
	)
	if a.rateLimit > 0 {
		c.Add(limiter.NewRateLimiter(a.rateLimit, a.rateBurst))
	}
	c.Add(enricher.WithValue(review.WithConversation))
	for _, m := range a.extra {
		c.Add(m)
	}
	return c.Add(validator.NewResponseFilter(validator.NonEmptyResponse))
}

// Middlewares lists the chain in execution order.
func (a *Agent) Middlewares() []string {
	return a.middlewares.Names()
}

// Store returns the conversation store.
func (a *Agent) Store() conversation.Store {
	return a.store
}

// HandleTurn processes one inbound message. Turns of the same conversation
// run one at a time; the conversation state is written only when the turn
// completes.
func (a *Agent) HandleTurn(ctx context.Context, in Inbound) (Outbound, error) {
	var out Outbound
	mctx := middleware.NewContext(ctx, in.ConversationID, in.Text, in.Timestamp)
	err := a.middlewares.Execute(mctx, func(c *middleware.Context) error {
		in := Inbound{
			ConversationID: strings.TrimSpace(c.ConversationID),
			Text:           c.Input,
			Timestamp:      c.Timestamp,
		}
		return a.runner.Do(c.Context(), in.ConversationID, func(ctx context.Context) error {
			t, err := a.handle(ctx, in)
			if err != nil {
				return err
			}
			out = outbound(t.reply)
			c.Result = &middleware.Result{
				Text:          out.Text,
				DialogueState: out.DialogueState,
				Citations:     len(out.Citations),
				Degraded:      t.degraded,
			}
			return nil
		})
	})
	if err != nil {
		return Outbound{}, err
	}
	return out, nil
}

// handle runs the flow and commits. A conflicting commit re-runs the turn
// on the fresh state once.
func (a *Agent) handle(ctx context.Context, in Inbound) (t *turn, err error) {
	ctx, span := telemetry.Start(ctx, "crashguide.turn", attribute.String("conversation", in.ConversationID))
	defer func() {
		if t != nil {
			span.SetAttributes(
				attribute.String("dialogue_state", t.reply.DialogueState),
				attribute.Bool("degraded", t.degraded),
			)
		}
		telemetry.End(span, err)
	}()

	for attempt := 0; ; attempt++ {
		t, err = a.flow.Execute(ctx, &turn{in: in})
		if err != nil {
			return nil, err
		}
		if err = ctx.Err(); err != nil {
			a.logger.Info("turn abandoned before commit", "conversation", in.ConversationID, "error", err)
			return nil, err
		}
		err = a.commit(ctx, t.state)
		if err == nil {
			return t, nil
		}
		if attempt > 0 || !errors.Is(err, errorskg.ErrVersionConflict) {
			return nil, err
		}
		a.logger.Warn("conversation changed during turn, re-running", "conversation", in.ConversationID)
	}
}

func (a *Agent) commit(ctx context.Context, s *conversation.State) (err error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.policy.CallTimeout)
	defer cancel()
	ctx, span := telemetry.Start(ctx, "crashguide.commit",
		attribute.Int64("version", s.Version),
		attribute.Int("turns", len(s.Turns)),
	)
	defer func() { telemetry.End(span, err) }()

	if err := a.store.Save(ctx, s); err != nil {
		return fmt.Errorf("commit conversation %s: %w", s.ID, err)
	}
	return nil
}

func outbound(reply conversation.Turn) Outbound {
	citations := make([]document.Citation, 0, len(reply.Citations))
	for _, ref := range reply.Citations {
		citations = append(citations, ref.Citation())
	}
	return Outbound{
		Role:          conversation.RoleAgent,
		Text:          reply.Text,
		Citations:     citations,
		DialogueState: reply.DialogueState,
		Question:      reply.Question,
		Risk:          reply.Risk,
	}
}
