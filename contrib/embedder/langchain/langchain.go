// Package langchain implements vector.Embedder over langchaingo embedders,
// typically pointed at a local OpenAI-compatible embedding endpoint.
package langchain

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/sweetpotato0/adaptive-rag/pkg/logging"
	"github.com/sweetpotato0/adaptive-rag/vector"
)

// Embedder implements vector.Embedder.
type Embedder struct {
	embedder  embeddings.Embedder
	dimension int
	logger    *slog.Logger
}

var _ vector.Embedder = (*Embedder)(nil)

// New connects to baseURL serving model.
func New(baseURL, token, model string, dimension int) (*Embedder, error) {
	if token == "" {
		token = "none"
	}
	opts := []openai.Option{openai.WithToken(token), openai.WithEmbeddingModel(model)}
	if baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}
	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("langchain embedder: %w", err)
	}
	inner, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, fmt.Errorf("langchain embedder: %w", err)
	}
	return FromEmbedder(inner, dimension), nil
}

// FromEmbedder wraps an existing langchaingo embedder.
func FromEmbedder(inner embeddings.Embedder, dimension int) *Embedder {
	return &Embedder{
		embedder:  inner,
		dimension: dimension,
		logger:    logging.WithComponent("langchain-embedder"),
	}
}

// Dimension return number of embedding dimensions
func (e *Embedder) Dimension() int {
	return e.dimension
}

// Embed converts text to a vector embedding
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return e.embedder.EmbedQuery(ctx, text)
}

// EmbedBatch converts multiple texts to embeddings
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.logger.Debug("generating embeddings", "count", len(texts))
	out, err := e.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		e.logger.Error("failed to generate embeddings", "count", len(texts), "err", err)
		return nil, err
	}
	return out, nil
}
