// Package gemini adapts Google's generative AI SDK to llm.Client.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/sweetpotato0/adaptive-rag/llm"
	"github.com/sweetpotato0/adaptive-rag/message"
	"github.com/sweetpotato0/adaptive-rag/pkg/retry"
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
		APIKey:    apiKey,
		Model:     "gemini-2.0-flash",
		MaxTokens: 1024,
	}
}

// Provider implements llm.Client for Google Gemini
type Provider struct {
	config *Config
	client *genai.Client
}

var _ llm.Client = (*Provider)(nil)

// New creates a new Gemini provider. Close releases the underlying client.
func New(ctx context.Context, config *Config) (*Provider, error) {
	if config == nil {
		config = DefaultConfig("")
	}
	if config.APIKey == "" {
		return nil, fmt.Errorf("gemini: API key not configured")
	}
	if config.Model == "" {
		config.Model = "gemini-2.0-flash"
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(config.APIKey))
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return &Provider{config: config, client: client}, nil
}

// Close releases the client connection.
func (p *Provider) Close() error {
	return p.client.Close()
}

// Generate implements llm.Client. Earlier turns become chat history and the
// final human message is sent.
func (p *Provider) Generate(ctx context.Context, messages []*message.Message) (*message.Message, error) {
	model := p.client.GenerativeModel(p.config.Model)
	model.SetTemperature(p.config.Temperature)
	if p.config.MaxTokens > 0 {
		model.SetMaxOutputTokens(p.config.MaxTokens)
	}

	system, history, last := toContents(messages)
	if system != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}
	if last == "" {
		return nil, fmt.Errorf("gemini: no prompt to send")
	}

	session := model.StartChat()
	session.History = history
	resp, err := session.SendMessage(ctx, genai.Text(last))
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) {
			return nil, fmt.Errorf("gemini: %w", retry.WithStatus(apiErr.Code, err))
		}
		return nil, fmt.Errorf("gemini: %w", err)
	}

	return message.NewMessage(message.RoleAssistant, responseText(resp)), nil
}

func toContents(messages []*message.Message) (string, []*genai.Content, string) {
	var (
		systemPrompts []string
		turns         []*genai.Content
	)
	for _, msg := range messages {
		switch msg.Role {
		case message.RoleSystem:
			systemPrompts = append(systemPrompts, msg.Content)
		case message.RoleAssistant:
			turns = append(turns, &genai.Content{Role: "model", Parts: []genai.Part{genai.Text(msg.Content)}})
		default:
			turns = append(turns, &genai.Content{Role: "user", Parts: []genai.Part{genai.Text(msg.Content)}})
		}
	}

	var last string
	if n := len(turns); n > 0 && turns[n-1].Role == "user" {
		last = string(turns[n-1].Parts[0].(genai.Text))
		turns = turns[:n-1]
	}
	return strings.Join(systemPrompts, "\n"), turns, last
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	return b.String()
}
