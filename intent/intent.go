// Package intent maps a user utterance plus history to a situation category
// and slot candidates.
package intent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sweetpotato0/crashguide/config"
	errorskg "github.com/sweetpotato0/crashguide/errors"
	"github.com/sweetpotato0/crashguide/pkg/logging"
	"github.com/sweetpotato0/crashguide/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// Category is the situation class of a user turn.
type Category string

const (
	Emergency   Category = config.CategoryEmergency
	Procedural  Category = config.CategoryProcedural
	Clarify     Category = "CLARIFY"
	OutOfDomain Category = config.CategoryOutOfScope
)

// Valid reports whether c is one of the four categories.
func (c Category) Valid() bool {
	switch c {
	case Emergency, Procedural, Clarify, OutOfDomain:
		return true
	}
	return false
}

// Unknown is the slot value recorded when the user says they do not know.
const Unknown = "unknown"

// SlotCandidate is a slot value extracted from one utterance.
type SlotCandidate struct {
	Name       string  `json:"name"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
}

// Intent is the per-turn classification result. It is never persisted.
type Intent struct {
	Category   Category        `json:"category"`
	Confidence float64         `json:"confidence"`
	Slots      []SlotCandidate `json:"slots,omitempty"`
	// Degraded is set when the backend failed and CLARIFY was substituted.
	Degraded bool `json:"-"`
}

// Turn is the view of a prior conversation turn the classifier reads.
type Turn struct {
	Role       string
	Text       string
	Category   Category
	Confidence float64
}

// Backend performs the raw classification.
type Backend interface {
	Classify(ctx context.Context, utterance string, history []Turn) (Intent, error)
}

// DegradeReporter is told when classification fell back to CLARIFY.
type DegradeReporter interface {
	Degraded(ctx context.Context, stage string, err error)
}

// Option customizes a Classifier.
type Option func(*Classifier)

// WithReporter sets the degrade reporter.
func WithReporter(r DegradeReporter) Option {
	return func(c *Classifier) { c.reporter = r }
}

// WithLogger overrides the component logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Classifier) {
		if l != nil {
			c.logger = l
		}
	}
}

// Classifier applies the confidence threshold, the per-call timeout and the
// degrade-to-clarify policy around a Backend.
type Classifier struct {
	backend   Backend
	threshold float64
	timeout   time.Duration
	reporter  DegradeReporter
	logger    *slog.Logger
}

// New creates a classifier.
func New(backend Backend, policy *config.Policy, opts ...Option) *Classifier {
	c := &Classifier{
		backend:   backend,
		threshold: policy.ClassificationThreshold,
		timeout:   policy.CallTimeout,
		logger:    logging.WithComponent("classifier"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Classify never fails. A backend error or timeout yields CLARIFY with
// confidence 0; low confidence forces CLARIFY but keeps slot candidates.
func (c *Classifier) Classify(ctx context.Context, utterance string, history []Turn) Intent {
	ctx, span := telemetry.Start(ctx, "crashguide.classify")

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	in, err := c.backend.Classify(callCtx, utterance, history)
	cancel()
	if err == nil && !in.Category.Valid() {
		err = fmt.Errorf("backend returned unknown category %q", in.Category)
	}
	if err != nil {
		err = errorskg.Transient("classifier", err)
		c.logger.Warn("classification degraded to clarify", "error", err)
		if c.reporter != nil {
			c.reporter.Degraded(ctx, "classify", err)
		}
		span.SetAttributes(attribute.Bool("degraded", true))
		telemetry.End(span, err)
		return Intent{Category: Clarify, Confidence: 0, Degraded: true}
	}

	in.Confidence = clamp(in.Confidence)
	for i := range in.Slots {
		in.Slots[i].Confidence = clamp(in.Slots[i].Confidence)
	}
	raw := in.Category
	if in.Confidence < c.threshold {
		in.Category = Clarify
	}

	span.SetAttributes(
		attribute.String("category.raw", string(raw)),
		attribute.String("category", string(in.Category)),
		attribute.Float64("confidence", in.Confidence),
		attribute.Int("slots", len(in.Slots)),
	)
	telemetry.End(span, nil)
	return in
}

func clamp(v float64) float64 {
	switch {
	case v != v || v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
