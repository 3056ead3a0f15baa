// Package langchain adapts any langchaingo llms.Model to llm.Client. New
// wires an OpenAI-compatible endpoint, which covers local runtimes such as
// Ollama or LM Studio.
package langchain

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/sweetpotato0/adaptive-rag/llm"
	"github.com/sweetpotato0/adaptive-rag/message"
)

// Config describes an OpenAI-compatible local endpoint.
type Config struct {
	BaseURL     string
	Token       string
	Model       string
	Temperature float64
}

// Provider implements llm.Client on top of llms.Model.
type Provider struct {
	model       llms.Model
	temperature float64
}

var _ llm.Client = (*Provider)(nil)

// New connects to an OpenAI-compatible endpoint through langchaingo.
func New(cfg Config) (*Provider, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("langchain: model is required")
	}
	token := cfg.Token
	if token == "" {
		// local services usually accept any token
		token = "none"
	}
	opts := []openai.Option{openai.WithToken(token), openai.WithModel(cfg.Model)}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("langchain: create client: %w", err)
	}
	return FromModel(client, cfg.Temperature), nil
}

// FromModel wraps an existing langchaingo model sampling at temperature.
func FromModel(model llms.Model, temperature float64) *Provider {
	return &Provider{model: model, temperature: temperature}
}

// Generate implements llm.Client.
func (p *Provider) Generate(ctx context.Context, messages []*message.Message) (*message.Message, error) {
	resp, err := p.model.GenerateContent(ctx, toContent(messages), llms.WithTemperature(p.temperature))
	if err != nil {
		return nil, fmt.Errorf("langchain: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("langchain: %w", llm.ErrEmptyResponse)
	}
	return message.NewMessage(message.RoleAssistant, resp.Choices[0].Content), nil
}

func toContent(messages []*message.Message) []llms.MessageContent {
	out := make([]llms.MessageContent, 0, len(messages))
	for _, msg := range messages {
		role := llms.ChatMessageTypeHuman
		switch msg.Role {
		case message.RoleSystem:
			role = llms.ChatMessageTypeSystem
		case message.RoleAssistant:
			role = llms.ChatMessageTypeAI
		}
		out = append(out, llms.TextParts(role, msg.Content))
	}
	return out
}
