package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/sweetpotato0/crashguide/config"
	"github.com/sweetpotato0/crashguide/llm"
	"github.com/sweetpotato0/crashguide/message"
	"github.com/sweetpotato0/crashguide/prompt"
)

// maxHistoryTurns bounds the history rendered into the classify prompt.
const maxHistoryTurns = 6

type slotHint struct {
	Name   string
	Values []string
}

// LLMBackend classifies with a chat model. The reply must be JSON that
// satisfies a schema derived from the policy.
type LLMBackend struct {
	client  llm.Client
	prompts *prompt.Manager
	schema  *jsonschema.Schema
	hints   []slotHint
}

var _ Backend = (*LLMBackend)(nil)

// NewLLMBackend compiles the output schema for policy.
func NewLLMBackend(client llm.Client, prompts *prompt.Manager, policy *config.Policy) (*LLMBackend, error) {
	if client == nil {
		return nil, fmt.Errorf("llm client is required")
	}
	hints := slotHints(policy)
	names := make([]string, 0, len(hints))
	for _, h := range hints {
		names = append(names, h.Name)
	}
	schema, err := compileSchema(names)
	if err != nil {
		return nil, fmt.Errorf("compile classification schema: %w", err)
	}
	return &LLMBackend{client: client, prompts: prompts, schema: schema, hints: hints}, nil
}

func compileSchema(slotNames []string) (*jsonschema.Schema, error) {
	confidence := map[string]any{"type": "number", "minimum": 0, "maximum": 1}
	slotName := map[string]any{"type": "string"}
	if len(slotNames) > 0 {
		slotName["enum"] = slotNames
	}
	doc := map[string]any{
		"type":     "object",
		"required": []string{"category", "confidence"},
		"properties": map[string]any{
			"category":   map[string]any{"enum": []string{string(Emergency), string(Procedural), string(Clarify), string(OutOfDomain)}},
			"confidence": confidence,
			"slots": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type":     "object",
					"required": []string{"name", "value"},
					"properties": map[string]any{
						"name":       slotName,
						"value":      map[string]any{"type": "string", "minLength": 1},
						"confidence": confidence,
					},
				},
			},
		},
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("classification.json", strings.NewReader(string(b))); err != nil {
		return nil, err
	}
	return c.Compile("classification.json")
}

// slotHints lists every slot with the values the policy knows for it.
func slotHints(policy *config.Policy) []slotHint {
	values := make(map[string]map[string]struct{})
	add := func(slot, value string) {
		if values[slot] == nil {
			values[slot] = make(map[string]struct{})
		}
		if value != "" {
			values[slot][value] = struct{}{}
		}
	}
	for _, name := range policy.SlotNames() {
		add(name, "")
	}
	for slot, vs := range policy.LifeThreatening {
		for _, v := range vs {
			add(slot, v)
		}
	}
	for _, rule := range policy.Lexicon.Slots {
		add(rule.Slot, rule.Value)
	}

	hints := make([]slotHint, 0, len(values))
	for name, set := range values {
		h := slotHint{Name: name}
		for v := range set {
			h.Values = append(h.Values, v)
		}
		sort.Strings(h.Values)
		if len(h.Values) == 0 {
			h.Values = []string{"free text"}
		}
		hints = append(hints, h)
	}
	sort.Slice(hints, func(i, j int) bool { return hints[i].Name < hints[j].Name })
	return hints
}

// Classify implements Backend. The model is called once at temperature 0.
func (b *LLMBackend) Classify(ctx context.Context, utterance string, history []Turn) (Intent, error) {
	if len(history) > maxHistoryTurns {
		history = history[len(history)-maxHistoryTurns:]
	}
	system, err := b.prompts.Render(prompt.ClassifySystem, map[string]any{"Slots": b.hints})
	if err != nil {
		return Intent{}, err
	}
	user, err := b.prompts.Render(prompt.Classify, map[string]any{
		"History":   history,
		"Utterance": utterance,
	})
	if err != nil {
		return Intent{}, err
	}

	resp, err := b.client.Generate(ctx, &llm.GenerateRequest{
		Messages: []*message.Message{
			message.NewMessage(message.RoleSystem, system),
			message.NewMessage(message.RoleUser, user),
		},
		Temperature: llm.Float(0),
		MaxTokens:   300,
	})
	if err != nil {
		return Intent{}, fmt.Errorf("classification call: %w", err)
	}
	return b.parse(resp.Text())
}

func (b *LLMBackend) parse(raw string) (Intent, error) {
	doc, err := decodeJSON[map[string]any](raw)
	if err != nil {
		return Intent{}, err
	}
	if err := b.schema.Validate(*doc); err != nil {
		return Intent{}, fmt.Errorf("classification output rejected: %w", err)
	}
	out, err := decodeJSON[Intent](raw)
	if err != nil {
		return Intent{}, err
	}
	for i := range out.Slots {
		out.Slots[i].Value = strings.ToLower(strings.ReplaceAll(strings.TrimSpace(out.Slots[i].Value), " ", "_"))
		if out.Slots[i].Confidence == 0 {
			out.Slots[i].Confidence = out.Confidence
		}
	}
	return *out, nil
}
