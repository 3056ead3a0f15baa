package vector

import (
	"context"

	"github.com/sweetpotato0/adaptive-rag/pkg/retry"
)

type retryingEmbedder struct {
	next   Embedder
	policy retry.Policy
}

// WithRetry wraps emb so every embedding call follows policy.
func WithRetry(emb Embedder, policy retry.Policy) Embedder {
	return &retryingEmbedder{next: emb, policy: policy}
}

func (e *retryingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	var vec []float32
	err := retry.Do(ctx, e.policy, func(ctx context.Context) error {
		var err error
		vec, err = e.next.Embed(ctx, text)
		return err
	})
	if err != nil {
		return nil, err
	}
	return vec, nil
}

func (e *retryingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var vecs [][]float32
	err := retry.Do(ctx, e.policy, func(ctx context.Context) error {
		var err error
		vecs, err = e.next.EmbedBatch(ctx, texts)
		return err
	})
	if err != nil {
		return nil, err
	}
	return vecs, nil
}

func (e *retryingEmbedder) Dimension() int {
	return e.next.Dimension()
}
