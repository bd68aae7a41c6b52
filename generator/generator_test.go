package generator

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/sweetpotato0/crashguide/config"
	"github.com/sweetpotato0/crashguide/conversation"
	errorskg "github.com/sweetpotato0/crashguide/errors"
	"github.com/sweetpotato0/crashguide/llm"
	"github.com/sweetpotato0/crashguide/message"
	"github.com/sweetpotato0/crashguide/prompt"
	"github.com/sweetpotato0/crashguide/rag/document"
)

type stubLLM struct {
	responses []string
	errs      []error
	calls     int
	last      *llm.GenerateRequest
}

func (s *stubLLM) Generate(ctx context.Context, req *llm.GenerateRequest) (*llm.GenerateResponse, error) {
	i := s.calls
	s.calls++
	s.last = req
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	var text string
	if i < len(s.responses) {
		text = s.responses[i]
	}
	return &llm.GenerateResponse{Message: message.NewMessage(message.RoleAssistant, text)}, nil
}

func testPolicy() *config.Policy {
	p := config.DefaultPolicy()
	p.PassageTokenBudget = 5
	p.CallTimeout = time.Second
	p.Messages = config.Messages{
		Redirect:           "I can only help with traffic accidents.",
		EmergencyDirective: "Call emergency services now.",
		DescribeFurther:    "Can you describe the situation further?",
		Disclaimer:         "I could not write a full answer. This is the most relevant passage I found:",
	}
	return p
}

var passages = []document.Ref{
	{SourceID: "first-aid", Locator: "ch2", Text: "Support the injured arm in the position found and do not try to straighten it.", Score: 0.91},
	{SourceID: "first-aid", Locator: "ch3", Text: "Keep the person warm.", Score: 0.55},
}

func newGenerator(t *testing.T, client llm.Client) *Generator {
	t.Helper()
	prompts, err := prompt.NewDefaultManager()
	if err != nil {
		t.Fatal(err)
	}
	return New(client, prompts, testPolicy(), WithRetryDelay(0))
}

func input(directive bool) Input {
	st := conversation.NewState("c1", time.Now())
	st.Slots["injury_type"] = conversation.Slot{Value: "broken_arm", Confidence: 0.8}
	st.Slots["consciousness_status"] = conversation.Slot{Value: "unknown", Confidence: 0.6}
	return Input{State: st, Utterance: "his arm is broken, what do I do", Passages: passages, Directive: directive}
}

func TestGenerateCitesEveryPassage(t *testing.T) {
	client := &stubLLM{responses: []string{"1. Support the arm [1].\n2. Keep him warm [2]."}}
	g := newGenerator(t, client)

	turn, err := g.Generate(context.Background(), input(false))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if turn.Role != conversation.RoleAgent || turn.ID == "" {
		t.Errorf("unexpected turn header %+v", turn)
	}
	if len(turn.Citations) != len(passages) {
		t.Fatalf("citations = %d, want %d", len(turn.Citations), len(passages))
	}
	for i := range passages {
		if turn.Citations[i] != passages[i] {
			t.Errorf("citation %d = %+v, want the supplied passage", i, turn.Citations[i])
		}
	}

	prompt := client.last.Messages[1].Content
	if !strings.Contains(prompt, "[1] (first-aid, ch2, score 0.91)") {
		t.Errorf("numbered passage header missing:\n%s", prompt)
	}
	if !strings.Contains(prompt, "injury type: broken arm") {
		t.Errorf("known slot missing:\n%s", prompt)
	}
	if strings.Contains(prompt, "consciousness") {
		t.Errorf("unknown slots must not be presented as facts:\n%s", prompt)
	}
	if strings.Contains(prompt, "do not try to straighten it") {
		t.Errorf("passage should be truncated to the token budget:\n%s", prompt)
	}
	if !strings.Contains(prompt, "Keep the person warm.") {
		t.Errorf("short passage must be kept whole:\n%s", prompt)
	}
}

func TestGeneratePrefixesDirective(t *testing.T) {
	g := newGenerator(t, &stubLLM{responses: []string{"Stay with him [1]."}})
	turn, err := g.Generate(context.Background(), input(true))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !strings.HasPrefix(turn.Text, "Call emergency services now.") {
		t.Errorf("directive must come first: %q", turn.Text)
	}
}

func TestGenerateRetriesOnce(t *testing.T) {
	tests := []struct {
		name      string
		client    *stubLLM
		wantErr   bool
		wantCalls int
	}{
		{
			name:      "error then success",
			client:    &stubLLM{errs: []error{errors.New("502")}, responses: []string{"", "Support the arm [1]."}},
			wantCalls: 2,
		},
		{
			name:      "empty then success",
			client:    &stubLLM{responses: []string{"   ", "Support the arm [1]."}},
			wantCalls: 2,
		},
		{
			name:      "two failures",
			client:    &stubLLM{errs: []error{errors.New("502"), errors.New("502")}},
			wantErr:   true,
			wantCalls: 2,
		},
		{
			name:      "two empty answers",
			client:    &stubLLM{},
			wantErr:   true,
			wantCalls: 2,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newGenerator(t, tt.client)
			_, err := g.Generate(context.Background(), input(false))
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !errorskg.IsTransient(err) {
				t.Errorf("expected TransientDependencyError, got %v", err)
			}
			if tt.client.calls != tt.wantCalls {
				t.Errorf("calls = %d, want %d", tt.client.calls, tt.wantCalls)
			}
		})
	}
}

func TestGenerateRequiresPassages(t *testing.T) {
	client := &stubLLM{responses: []string{"x"}}
	g := newGenerator(t, client)
	in := input(false)
	in.Passages = nil
	if _, err := g.Generate(context.Background(), in); !errorskg.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if client.calls != 0 {
		t.Error("model must not be called without passages")
	}
}

func TestFallback(t *testing.T) {
	p := testPolicy()

	turn := Fallback(passages, false, p)
	if !strings.Contains(turn.Text, passages[0].Text) || !strings.HasPrefix(turn.Text, p.Messages.Disclaimer) {
		t.Errorf("fallback text %q", turn.Text)
	}
	if turn.Question != p.Messages.DescribeFurther {
		t.Errorf("question = %q", turn.Question)
	}
	if len(turn.Citations) != 1 || turn.Citations[0] != passages[0] {
		t.Errorf("citations = %+v", turn.Citations)
	}

	escalated := Fallback(passages, true, p)
	if !strings.HasPrefix(escalated.Text, p.Messages.EmergencyDirective) || escalated.Question != "" {
		t.Errorf("escalated fallback %q", escalated.Text)
	}
}
