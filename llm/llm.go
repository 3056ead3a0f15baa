// Package llm defines the text-completion capability consumed by the
// adaptive workflow. Concrete vendors live under contrib/provider.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sweetpotato0/adaptive-rag/message"
	"github.com/sweetpotato0/adaptive-rag/pkg/retry"
)

// ErrEmptyResponse is returned when a provider answers without any text.
var ErrEmptyResponse = errors.New("llm: empty response")

// Client generates one assistant message from an ordered conversation.
type Client interface {
	Generate(ctx context.Context, messages []*message.Message) (*message.Message, error)
}

// ClientFunc adapts a plain function to Client.
type ClientFunc func(ctx context.Context, messages []*message.Message) (*message.Message, error)

// Generate calls f.
func (f ClientFunc) Generate(ctx context.Context, messages []*message.Message) (*message.Message, error) {
	return f(ctx, messages)
}

// Complete sends an optional system instruction plus a single human prompt
// and returns the trimmed reply text.
func Complete(ctx context.Context, client Client, system, prompt string) (string, error) {
	if client == nil {
		return "", fmt.Errorf("llm: client is nil")
	}
	msgs := make([]*message.Message, 0, 2)
	if strings.TrimSpace(system) != "" {
		msgs = append(msgs, message.NewMessage(message.RoleSystem, system))
	}
	msgs = append(msgs, message.NewMessage(message.RoleHuman, prompt))

	reply, err := client.Generate(ctx, msgs)
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(reply.Text())
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

type retryingClient struct {
	next   Client
	policy retry.Policy
}

// WithRetry wraps client so every call follows policy.
func WithRetry(client Client, policy retry.Policy) Client {
	return &retryingClient{next: client, policy: policy}
}

func (c *retryingClient) Generate(ctx context.Context, messages []*message.Message) (*message.Message, error) {
	var reply *message.Message
	err := retry.Do(ctx, c.policy, func(ctx context.Context) error {
		var err error
		reply, err = c.next.Generate(ctx, messages)
		return err
	})
	if err != nil {
		return nil, err
	}
	return reply, nil
}
