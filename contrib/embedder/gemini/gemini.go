// Package gemini implements vector.Embedder with Google's embedding models.
package gemini

import (
	"context"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/sweetpotato0/adaptive-rag/vector"
)

// DefaultModel matches the embedding model used for indexing.
const DefaultModel = "text-embedding-004"

// Embedder implements vector.Embedder.
type Embedder struct {
	client    *genai.Client
	model     *genai.EmbeddingModel
	dimension int
}

var _ vector.Embedder = (*Embedder)(nil)

// New creates an embedder. A zero dimension defaults to 768.
func New(ctx context.Context, apiKey, model string, dimension int) (*Embedder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini embedder: API key not configured")
	}
	if model == "" {
		model = DefaultModel
	}
	if dimension <= 0 {
		dimension = 768
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("gemini embedder: create client: %w", err)
	}
	return &Embedder{
		client:    client,
		model:     client.EmbeddingModel(model),
		dimension: dimension,
	}, nil
}

// Close releases the client.
func (e *Embedder) Close() error {
	return e.client.Close()
}

// Dimension return number of embedding dimensions
func (e *Embedder) Dimension() int {
	return e.dimension
}

// Embed converts text to a vector embedding
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	res, err := e.model.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, fmt.Errorf("embed content: %w", err)
	}
	if res.Embedding == nil {
		return nil, fmt.Errorf("embed content: empty embedding")
	}
	return res.Embedding.Values, nil
}

// EmbedBatch converts multiple texts in one request
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	batch := e.model.NewBatch()
	for _, text := range texts {
		batch.AddContent(genai.Text(text))
	}
	res, err := e.model.BatchEmbedContents(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("batch embed contents: %w", err)
	}
	if len(res.Embeddings) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(res.Embeddings))
	}
	out := make([][]float32, len(res.Embeddings))
	for i, emb := range res.Embeddings {
		out[i] = emb.Values
	}
	return out, nil
}
