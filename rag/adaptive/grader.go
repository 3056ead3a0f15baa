package adaptive

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sweetpotato0/adaptive-rag/llm"
	"github.com/sweetpotato0/adaptive-rag/pkg/logging"
	"github.com/sweetpotato0/adaptive-rag/prompt"
	"github.com/sweetpotato0/adaptive-rag/rag/document"
)

// RelevanceGrader decides whether one document helps answer the question.
type RelevanceGrader interface {
	Grade(ctx context.Context, question string, doc document.Document) bool
}

// GroundednessGrader decides whether an answer is supported by its evidence.
type GroundednessGrader interface {
	Check(ctx context.Context, answer string, docs []document.Document) bool
}

// RelevanceFunc adapts a function to RelevanceGrader.
type RelevanceFunc func(ctx context.Context, question string, doc document.Document) bool

// Grade calls f.
func (f RelevanceFunc) Grade(ctx context.Context, question string, doc document.Document) bool {
	return f(ctx, question, doc)
}

// GroundednessFunc adapts a function to GroundednessGrader.
type GroundednessFunc func(ctx context.Context, answer string, docs []document.Document) bool

// Check calls f.
func (f GroundednessFunc) Check(ctx context.Context, answer string, docs []document.Document) bool {
	return f(ctx, answer, docs)
}

// ModelRelevanceGrader uses the model as a binary classifier. Errors and
// unparseable replies grade the document irrelevant.
type ModelRelevanceGrader struct {
	llm    llm.Client
	system string
	logger *slog.Logger
}

var _ RelevanceGrader = (*ModelRelevanceGrader)(nil)

// NewModelRelevanceGrader builds a grader from the relevance template of prompts.
func NewModelRelevanceGrader(client llm.Client, prompts *prompt.Manager) (*ModelRelevanceGrader, error) {
	system, err := renderSystem(prompts, prompt.Relevance)
	if err != nil {
		return nil, err
	}
	return &ModelRelevanceGrader{
		llm:    client,
		system: system,
		logger: logging.WithComponent("adaptive_relevance"),
	}, nil
}

// Grade implements RelevanceGrader.
func (g *ModelRelevanceGrader) Grade(ctx context.Context, question string, doc document.Document) bool {
	user := fmt.Sprintf("Retrieved document:\n\n%s\n\nUser question: %s", doc.Content, question)
	raw, err := llm.Complete(ctx, g.llm, g.system, user)
	if err != nil {
		g.logger.Warn("relevance grading failed, treating as irrelevant", "source", doc.Source, "error", err)
		return false
	}
	relevant, err := parseYesNo(raw)
	if err != nil {
		g.logger.Warn("relevance grade unparseable, treating as irrelevant", "source", doc.Source, "error", err)
		return false
	}
	return relevant
}

// ModelGroundednessGrader asks the model whether the answer is supported.
// Errors and unparseable replies count as ungrounded.
type ModelGroundednessGrader struct {
	llm    llm.Client
	system string
	logger *slog.Logger
}

var _ GroundednessGrader = (*ModelGroundednessGrader)(nil)

// NewModelGroundednessGrader builds a grader from the groundedness template of prompts.
func NewModelGroundednessGrader(client llm.Client, prompts *prompt.Manager) (*ModelGroundednessGrader, error) {
	system, err := renderSystem(prompts, prompt.Groundedness)
	if err != nil {
		return nil, err
	}
	return &ModelGroundednessGrader{
		llm:    client,
		system: system,
		logger: logging.WithComponent("adaptive_groundedness"),
	}, nil
}

// Check implements GroundednessGrader.
func (g *ModelGroundednessGrader) Check(ctx context.Context, answer string, docs []document.Document) bool {
	user := fmt.Sprintf("Set of facts:\n\n%s\n\nLLM generation: %s", document.JoinContents(docs, contextSeparator), strings.TrimSpace(answer))
	raw, err := llm.Complete(ctx, g.llm, g.system, user)
	if err != nil {
		g.logger.Warn("groundedness check failed, treating as ungrounded", "error", err)
		return false
	}
	grounded, err := parseYesNo(raw)
	if err != nil {
		g.logger.Warn("groundedness grade unparseable, treating as ungrounded", "error", err)
		return false
	}
	return grounded
}
