package adaptive

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sweetpotato0/adaptive-rag/llm"
	"github.com/sweetpotato0/adaptive-rag/pkg/logging"
	"github.com/sweetpotato0/adaptive-rag/prompt"
)

// Rewriter reformulates a question for another retrieval round. It never
// fails: on error the input is returned unchanged.
type Rewriter interface {
	Rewrite(ctx context.Context, question string) string
}

// RewriterFunc adapts a function to Rewriter.
type RewriterFunc func(ctx context.Context, question string) string

// Rewrite calls f.
func (f RewriterFunc) Rewrite(ctx context.Context, question string) string { return f(ctx, question) }

// ModelRewriter asks the model for a retrieval-friendly question.
type ModelRewriter struct {
	llm    llm.Client
	system string
	logger *slog.Logger
}

var _ Rewriter = (*ModelRewriter)(nil)

// NewModelRewriter builds a rewriter from the rewrite template of prompts.
func NewModelRewriter(client llm.Client, prompts *prompt.Manager) (*ModelRewriter, error) {
	system, err := renderSystem(prompts, prompt.Rewrite)
	if err != nil {
		return nil, err
	}
	return &ModelRewriter{
		llm:    client,
		system: system,
		logger: logging.WithComponent("adaptive_rewriter"),
	}, nil
}

// Rewrite implements Rewriter.
func (r *ModelRewriter) Rewrite(ctx context.Context, question string) string {
	user := fmt.Sprintf("Here is the initial question:\n\n%s\n\nFormulate an improved question.", question)
	raw, err := llm.Complete(ctx, r.llm, r.system, user)
	if err != nil {
		r.logger.Warn("query rewrite failed, keeping question", "error", err)
		return question
	}
	rewritten := strings.Trim(strings.TrimSpace(raw), "\"'")
	if rewritten == "" {
		return question
	}
	return rewritten
}
