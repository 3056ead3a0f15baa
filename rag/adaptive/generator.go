package adaptive

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sweetpotato0/adaptive-rag/llm"
	"github.com/sweetpotato0/adaptive-rag/message"
	"github.com/sweetpotato0/adaptive-rag/pkg/logging"
	"github.com/sweetpotato0/adaptive-rag/prompt"
	"github.com/sweetpotato0/adaptive-rag/rag/document"
)

const contextSeparator = "\n\n"

// Generator writes an answer from the question, the bounded conversation
// window and the retained evidence. Errors are fatal for the turn.
type Generator interface {
	Generate(ctx context.Context, question string, history []*message.Message, docs []document.Document) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, question string, history []*message.Message, docs []document.Document) (string, error)

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context, question string, history []*message.Message, docs []document.Document) (string, error) {
	return f(ctx, question, history, docs)
}

// ModelGenerator renders the generate template and asks the model for an answer.
type ModelGenerator struct {
	llm     llm.Client
	prompts *prompt.Manager
	logger  *slog.Logger
}

var _ Generator = (*ModelGenerator)(nil)

// GeneratorOption customises a ModelGenerator.
type GeneratorOption func(*ModelGenerator)

// WithGeneratorLogger overrides the generator logger.
func WithGeneratorLogger(logger *slog.Logger) GeneratorOption {
	return func(g *ModelGenerator) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// NewModelGenerator creates a generator. The client should be configured
// with temperature 0.
func NewModelGenerator(client llm.Client, prompts *prompt.Manager, opts ...GeneratorOption) (*ModelGenerator, error) {
	if client == nil {
		return nil, fmt.Errorf("generator client is required")
	}
	if prompts == nil {
		prompts = prompt.Defaults()
	}
	if _, err := prompts.Get(prompt.Generate); err != nil {
		return nil, err
	}
	g := &ModelGenerator{
		llm:     client,
		prompts: prompts,
		logger:  logging.WithComponent("adaptive_generator"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Generate implements Generator.
func (g *ModelGenerator) Generate(ctx context.Context, question string, history []*message.Message, docs []document.Document) (string, error) {
	g.logger.Debug("generating answer", "documents", len(docs), "history", len(history))
	system, err := g.prompts.Render(prompt.Generate, map[string]any{
		"history":  RenderHistory(history),
		"question": question,
		"context":  document.JoinContents(docs, contextSeparator),
	})
	if err != nil {
		return "", err
	}
	return llm.Complete(ctx, g.llm, system, question)
}

// RenderHistory formats messages as "role: content" lines.
func RenderHistory(history []*message.Message) string {
	lines := make([]string, 0, len(history))
	for _, msg := range history {
		if msg == nil {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s: %s", msg.Role, msg.Content))
	}
	return strings.Join(lines, "\n")
}
