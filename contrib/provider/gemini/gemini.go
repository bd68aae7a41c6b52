package gemini

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/sweetpotato0/crashguide/llm"
	"github.com/sweetpotato0/crashguide/message"
	"google.golang.org/api/option"
)

// Config holds Gemini provider configuration
type Config struct {
	APIKey      string
	Model       string
	MaxTokens   int32
	Temperature float32
}

// DefaultConfig returns default Gemini configuration
func DefaultConfig(apiKey string) *Config {
	return &Config{
		APIKey:      apiKey,
		Model:       "gemini-1.5-flash",
		MaxTokens:   1024,
		Temperature: 0.2,
	}
}

// Provider implements llm.Client for Google Gemini. The underlying client
// holds a gRPC connection; call Close on shutdown.
type Provider struct {
	config *Config
	client *genai.Client
}

// New creates a Gemini provider and dials the API.
func New(ctx context.Context, config *Config) (*Provider, error) {
	if config == nil {
		config = DefaultConfig("")
	}
	if config.APIKey == "" {
		return nil, fmt.Errorf("Gemini API key not configured")
	}
	if config.Model == "" {
		config.Model = "gemini-1.5-flash"
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(config.APIKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Provider{config: config, client: client}, nil
}

// Close releases the client connection.
func (p *Provider) Close() error {
	return p.client.Close()
}

// Generate implements llm.Client. Earlier dialogue messages become chat
// history and the final user message is sent.
func (p *Provider) Generate(ctx context.Context, req *llm.GenerateRequest) (*llm.GenerateResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("generate request cannot be nil")
	}
	system, dialogue := llm.SplitSystem(req.Messages)
	if len(dialogue) == 0 {
		return nil, fmt.Errorf("gemini: request has no user message")
	}

	model := p.client.GenerativeModel(p.config.Model)
	temperature := p.config.Temperature
	if req.Temperature != nil {
		temperature = float32(*req.Temperature)
	}
	model.SetTemperature(temperature)
	maxTokens := p.config.MaxTokens
	if req.MaxTokens > 0 {
		maxTokens = int32(req.MaxTokens)
	}
	if maxTokens > 0 {
		model.SetMaxOutputTokens(maxTokens)
	}
	if system != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}

	chat := model.StartChat()
	for _, msg := range dialogue[:len(dialogue)-1] {
		role := "user"
		if msg.Role == message.RoleAssistant {
			role = "model"
		}
		chat.History = append(chat.History, &genai.Content{Role: role, Parts: []genai.Part{genai.Text(msg.Content)}})
	}

	resp, err := chat.SendMessage(ctx, genai.Text(dialogue[len(dialogue)-1].Content))
	if err != nil {
		return nil, fmt.Errorf("Gemini API error: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("no candidates returned from Gemini")
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}
	reply := message.NewMessage(message.RoleAssistant, text.String())
	return &llm.GenerateResponse{Message: reply}, nil
}
