// Package generator writes the grounded answer for a turn from the
// retrieved passages.
package generator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sweetpotato0/crashguide/config"
	"github.com/sweetpotato0/crashguide/conversation"
	errorskg "github.com/sweetpotato0/crashguide/errors"
	"github.com/sweetpotato0/crashguide/intent"
	"github.com/sweetpotato0/crashguide/llm"
	"github.com/sweetpotato0/crashguide/message"
	"github.com/sweetpotato0/crashguide/pkg/logging"
	"github.com/sweetpotato0/crashguide/pkg/telemetry"
	"github.com/sweetpotato0/crashguide/planner"
	"github.com/sweetpotato0/crashguide/prompt"
	"github.com/sweetpotato0/crashguide/rag/document"
	"github.com/sweetpotato0/crashguide/rag/tokenizer"
	"go.opentelemetry.io/otel/attribute"
)

// ErrEmptyAnswer is returned when the model replies with no text.
var ErrEmptyAnswer = errors.New("model returned an empty answer")

// Input is everything the answer prompt is built from.
type Input struct {
	State     *conversation.State
	Intent    intent.Intent
	Utterance string
	Passages  []document.Ref
	// Directive prefixes the answer with the emergency directive.
	Directive bool
}

type slotLine struct {
	Name  string
	Value string
}

// Config controls generation.
type Config struct {
	Tokenizer   tokenizer.Tokenizer
	RetryDelay  time.Duration
	Temperature float64
	MaxTokens   int64
	Logger      *slog.Logger
}

// Option customizes generator config.
type Option func(*Config)

// WithTokenizer sets the tokenizer used to budget passages.
func WithTokenizer(t tokenizer.Tokenizer) Option {
	return func(cfg *Config) {
		if t != nil {
			cfg.Tokenizer = t
		}
	}
}

// WithRetryDelay sets the pause before the single re-attempt.
func WithRetryDelay(d time.Duration) Option {
	return func(cfg *Config) {
		if d >= 0 {
			cfg.RetryDelay = d
		}
	}
}

// WithLogger overrides the component logger.
func WithLogger(l *slog.Logger) Option {
	return func(cfg *Config) {
		if l != nil {
			cfg.Logger = l
		}
	}
}

// Generator renders the answer prompt and calls the model.
type Generator struct {
	client  llm.Client
	prompts *prompt.Manager
	policy  *config.Policy
	cfg     Config
}

// New creates a generator.
func New(client llm.Client, prompts *prompt.Manager, policy *config.Policy, opts ...Option) *Generator {
	cfg := Config{
		Tokenizer:   tokenizer.NewSimpleTokenizer(),
		RetryDelay:  200 * time.Millisecond,
		Temperature: 0.2,
		MaxTokens:   600,
		Logger:      logging.WithComponent("generator"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return &Generator{client: client, prompts: prompts, policy: policy, cfg: cfg}
}

// Generate returns an agent turn whose citations are exactly in.Passages.
// Failures are TransientDependencyErrors; the caller falls back to Fallback.
func (g *Generator) Generate(ctx context.Context, in Input) (turn conversation.Turn, err error) {
	ctx, span := telemetry.Start(ctx, "crashguide.generate",
		attribute.Int("passages", len(in.Passages)),
		attribute.Bool("directive", in.Directive),
	)
	defer func() { telemetry.End(span, err) }()

	if len(in.Passages) == 0 {
		return conversation.Turn{}, errorskg.NewValidationError("passages", "a grounded answer needs at least one passage")
	}

	msgs, err := g.buildMessages(in)
	if err != nil {
		return conversation.Turn{}, err
	}

	answer, err := g.call(ctx, msgs)
	if err != nil {
		g.cfg.Logger.Warn("generation failed", "error", err)
		return conversation.Turn{}, errorskg.Transient("generator", err)
	}

	text := answer
	if in.Directive {
		text = g.policy.Messages.EmergencyDirective + "\n\n" + answer
	}
	return conversation.Turn{
		ID:        message.NewID(),
		Role:      conversation.RoleAgent,
		Text:      text,
		Timestamp: time.Now().UTC(),
		Citations: document.CloneRefs(in.Passages),
	}, nil
}

func (g *Generator) buildMessages(in Input) ([]*message.Message, error) {
	passages := make([]document.Ref, len(in.Passages))
	for i, p := range in.Passages {
		p.Text, _ = tokenizer.Truncate(g.cfg.Tokenizer, p.Text, g.policy.PassageTokenBudget)
		passages[i] = p
	}

	var known map[string]string
	if in.State != nil {
		known = in.State.Slots.KnownValues()
	}
	names := make([]string, 0, len(known))
	for name := range known {
		names = append(names, name)
	}
	sort.Strings(names)
	lines := make([]slotLine, 0, len(names))
	for _, name := range names {
		lines = append(lines, slotLine{Name: name, Value: known[name]})
	}

	system, err := g.prompts.Render(prompt.AnswerSystem, nil)
	if err != nil {
		return nil, err
	}
	user, err := g.prompts.Render(prompt.Answer, map[string]any{
		"Question": in.Utterance,
		"Slots":    lines,
		"Passages": passages,
	})
	if err != nil {
		return nil, err
	}
	return []*message.Message{
		message.NewMessage(message.RoleSystem, system),
		message.NewMessage(message.RoleUser, user),
	}, nil
}

// call invokes the model with one bounded re-attempt. An empty reply counts
// as a failed attempt.
func (g *Generator) call(ctx context.Context, msgs []*message.Message) (string, error) {
	op := func() (string, error) {
		callCtx, cancel := context.WithTimeout(ctx, g.policy.CallTimeout)
		defer cancel()

		resp, err := g.client.Generate(callCtx, &llm.GenerateRequest{
			Messages:    msgs,
			Temperature: llm.Float(g.cfg.Temperature),
			MaxTokens:   g.cfg.MaxTokens,
		})
		if err == nil && resp.Text() == "" {
			err = ErrEmptyAnswer
		}
		if err != nil {
			if ctx.Err() != nil {
				return "", backoff.Permanent(ctx.Err())
			}
			return "", err
		}
		return resp.Text(), nil
	}
	answer, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewConstantBackOff(g.cfg.RetryDelay)),
		backoff.WithMaxTries(2),
	)
	if err != nil {
		return "", fmt.Errorf("generate answer: %w", err)
	}
	return answer, nil
}

// Fallback builds the raw-passage turn used when generation failed: the
// disclaimer and the top passage verbatim, preceded by the emergency
// directive when directive is set and otherwise followed by the
// describe-further question.
func Fallback(passages []document.Ref, directive bool, policy *config.Policy) conversation.Turn {
	d := planner.Decision{Action: planner.Fallback{Directive: directive, AskFurther: !directive}}
	text, question, _ := planner.Respond(d, policy, passages)
	return conversation.Turn{
		ID:        message.NewID(),
		Role:      conversation.RoleAgent,
		Text:      text,
		Timestamp: time.Now().UTC(),
		Citations: planner.Citations(d, passages),
		Question:  question,
	}
}
