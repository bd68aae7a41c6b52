package intent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/sweetpotato0/crashguide/llm"
	"github.com/sweetpotato0/crashguide/message"
	"github.com/sweetpotato0/crashguide/prompt"
)

type stubLLM struct {
	response string
	err      error
	calls    int
	last     *llm.GenerateRequest
}

func (s *stubLLM) Generate(_ context.Context, req *llm.GenerateRequest) (*llm.GenerateResponse, error) {
	s.calls++
	s.last = req
	if s.err != nil {
		return nil, s.err
	}
	return &llm.GenerateResponse{Message: message.NewMessage(message.RoleAssistant, s.response)}, nil
}

func newLLMBackend(t *testing.T, client llm.Client) *LLMBackend {
	t.Helper()
	prompts, err := prompt.NewDefaultManager()
	if err != nil {
		t.Fatal(err)
	}
	b, err := NewLLMBackend(client, prompts, testPolicy())
	if err != nil {
		t.Fatalf("NewLLMBackend: %v", err)
	}
	return b
}

func TestLLMBackendParsesValidOutput(t *testing.T) {
	client := &stubLLM{response: "```json\n{\"category\":\"EMERGENCY\",\"confidence\":0.82,\"slots\":[{\"name\":\"injury_type\",\"value\":\"Broken Arm\"}]}\n```"}
	b := newLLMBackend(t, client)

	history := []Turn{{Role: "user", Text: "we crashed"}, {Role: "agent", Text: "Is anyone hurt?"}}
	in, err := b.Classify(context.Background(), "his arm is broken", history)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if in.Category != Emergency || in.Confidence != 0.82 {
		t.Errorf("got %s/%v", in.Category, in.Confidence)
	}
	if len(in.Slots) != 1 || in.Slots[0].Value != "broken_arm" || in.Slots[0].Confidence != 0.82 {
		t.Errorf("unexpected slots %+v", in.Slots)
	}

	if client.last.Temperature == nil || *client.last.Temperature != 0 {
		t.Error("classification must run at temperature 0")
	}
	userPrompt := client.last.Messages[1].Content
	if !strings.Contains(userPrompt, "agent: Is anyone hurt?") || !strings.Contains(userPrompt, "his arm is broken") {
		t.Errorf("history or utterance missing from prompt:\n%s", userPrompt)
	}
	if !strings.Contains(client.last.Messages[0].Content, "consciousness_status: unknown, unresponsive") {
		t.Errorf("slot hints missing from system prompt:\n%s", client.last.Messages[0].Content)
	}
}

func TestLLMBackendRejectsInvalidOutput(t *testing.T) {
	tests := []struct {
		name     string
		response string
	}{
		{name: "not json", response: "I think this is an emergency"},
		{name: "unknown category", response: `{"category":"URGENT","confidence":0.9}`},
		{name: "confidence out of range", response: `{"category":"EMERGENCY","confidence":3}`},
		{name: "unknown slot", response: `{"category":"EMERGENCY","confidence":0.9,"slots":[{"name":"shoe_size","value":"9"}]}`},
		{name: "missing confidence", response: `{"category":"EMERGENCY"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newLLMBackend(t, &stubLLM{response: tt.response})
			if _, err := b.Classify(context.Background(), "help", nil); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestLLMBackendThroughClassifierDegrades(t *testing.T) {
	b := newLLMBackend(t, &stubLLM{err: errors.New("rate limited")})
	c := New(b, testPolicy())
	in := c.Classify(context.Background(), "help", nil)
	if in.Category != Clarify || in.Confidence != 0 {
		t.Fatalf("got %+v", in)
	}
}
