package llm

import (
	"testing"

	"github.com/sweetpotato0/crashguide/message"
)

func TestSplitSystem(t *testing.T) {
	msgs := []*message.Message{
		message.NewMessage(message.RoleSystem, "a"),
		message.NewMessage(message.RoleUser, "q"),
		nil,
		message.NewMessage(message.RoleSystem, "b"),
		message.NewMessage(message.RoleAssistant, "r"),
	}
	system, rest := SplitSystem(msgs)
	if system != "a\nb" {
		t.Errorf("system = %q", system)
	}
	if len(rest) != 2 || rest[0].Content != "q" || rest[1].Content != "r" {
		t.Errorf("unexpected dialogue: %+v", rest)
	}
}

func TestResponseText(t *testing.T) {
	var nilResp *GenerateResponse
	if nilResp.Text() != "" {
		t.Error("nil response should have empty text")
	}
	resp := &GenerateResponse{Message: message.NewMessage(message.RoleAssistant, "  hi \n")}
	if resp.Text() != "hi" {
		t.Errorf("Text() = %q", resp.Text())
	}
}
