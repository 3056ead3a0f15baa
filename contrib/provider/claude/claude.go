package claude

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/param"

	"github.com/sweetpotato0/adaptive-rag/llm"
	"github.com/sweetpotato0/adaptive-rag/message"
	"github.com/sweetpotato0/adaptive-rag/pkg/retry"
)

// Config holds Claude provider configuration
type Config struct {
	APIKey      string
	Model       string
	BaseURL     string
	MaxTokens   int64
	Temperature float64
}

// DefaultConfig returns default Claude configuration
func DefaultConfig(apiKey, baseURL string) *Config {
	return &Config{
		APIKey:    apiKey,
		BaseURL:   baseURL,
		Model:     "claude-sonnet-4-5-20250929",
		MaxTokens: 1024,
	}
}

// Provider implements llm.Client for the Anthropic messages API.
type Provider struct {
	config *Config
	client anthropic.Client
}

var _ llm.Client = (*Provider)(nil)

// New creates a new Claude provider using official SDK
func New(config *Config) *Provider {
	if config == nil {
		config = DefaultConfig("", "")
	}
	if config.Model == "" {
		config.Model = "claude-sonnet-4-5-20250929"
	}
	if config.MaxTokens <= 0 {
		config.MaxTokens = 1024
	}

	options := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
		option.WithMaxRetries(0),
	}
	if config.BaseURL != "" {
		options = append(options, option.WithBaseURL(config.BaseURL))
	}

	return &Provider{
		config: config,
		client: anthropic.NewClient(options...),
	}
}

// Generate implements llm.Client.
func (p *Provider) Generate(ctx context.Context, messages []*message.Message) (*message.Message, error) {
	system, conversation := split(messages)

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(p.config.Model),
		Messages:    conversation,
		MaxTokens:   p.config.MaxTokens,
		Temperature: param.NewOpt(p.config.Temperature),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	apiMessage, err := p.client.Messages.New(ctx, params)
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return nil, fmt.Errorf("claude: %w", retry.WithStatus(apiErr.StatusCode, err))
		}
		return nil, fmt.Errorf("claude: %w", err)
	}

	var text strings.Builder
	for _, block := range apiMessage.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return message.NewMessage(message.RoleAssistant, text.String()), nil
}

// split separates system prompts from the conversation turns.
func split(messages []*message.Message) (string, []anthropic.MessageParam) {
	var systemPrompts []string
	conversation := make([]anthropic.MessageParam, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case message.RoleSystem:
			systemPrompts = append(systemPrompts, msg.Content)
		case message.RoleAssistant:
			conversation = append(conversation, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		default:
			conversation = append(conversation, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}
	return strings.Join(systemPrompts, "\n"), conversation
}
