package openai

import (
	"context"
	"errors"
	"fmt"

	openaisdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/param"

	"github.com/sweetpotato0/adaptive-rag/llm"
	"github.com/sweetpotato0/adaptive-rag/message"
	"github.com/sweetpotato0/adaptive-rag/pkg/retry"
)

// Config holds OpenAI provider configuration
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int64
	Temperature float64
}

// WithBaseURL set BaseURL.
func (cfg *Config) WithBaseURL(url string) *Config {
	cfg.BaseURL = url
	return cfg
}

// WithAPIKey set api key.
func (cfg *Config) WithAPIKey(apiKey string) *Config {
	cfg.APIKey = apiKey
	return cfg
}

// WithModel set model.
func (cfg *Config) WithModel(model string) *Config {
	cfg.Model = model
	return cfg
}

// DefaultConfig returns default OpenAI configuration. Temperature is zero
// so graders and the generator stay deterministic.
func DefaultConfig() *Config {
	return &Config{
		Model:     "gpt-4o-mini",
		MaxTokens: 1024,
	}
}

// Provider implements llm.Client for OpenAI chat completions.
type Provider struct {
	config *Config
	client openaisdk.Client
}

var _ llm.Client = (*Provider)(nil)

// New creates a new OpenAI provider using official SDK
func New(config *Config) *Provider {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Model == "" {
		config.Model = "gpt-4o-mini"
	}

	options := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
		// retries are owned by llm.WithRetry
		option.WithMaxRetries(0),
	}
	if config.BaseURL != "" {
		options = append(options, option.WithBaseURL(config.BaseURL))
	}

	return &Provider{
		config: config,
		client: openaisdk.NewClient(options...),
	}
}

// Generate implements llm.Client.
func (p *Provider) Generate(ctx context.Context, messages []*message.Message) (*message.Message, error) {
	params := openaisdk.ChatCompletionNewParams{
		Messages:    toParams(messages),
		Model:       openaisdk.ChatModel(p.config.Model),
		Temperature: param.NewOpt(p.config.Temperature),
	}
	if p.config.MaxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(p.config.MaxTokens)
	}

	completion, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *openaisdk.Error
		if errors.As(err, &apiErr) {
			return nil, fmt.Errorf("openai: %w", retry.WithStatus(apiErr.StatusCode, err))
		}
		return nil, fmt.Errorf("openai: %w", err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("openai: %w", llm.ErrEmptyResponse)
	}

	return message.NewMessage(message.RoleAssistant, completion.Choices[0].Message.Content), nil
}

func toParams(messages []*message.Message) []openaisdk.ChatCompletionMessageParamUnion {
	out := make([]openaisdk.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case message.RoleSystem:
			out = append(out, openaisdk.SystemMessage(msg.Content))
		case message.RoleAssistant:
			out = append(out, openaisdk.AssistantMessage(msg.Content))
		default:
			out = append(out, openaisdk.UserMessage(msg.Content))
		}
	}
	return out
}
