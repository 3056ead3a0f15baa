package vector

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweetpotato0/adaptive-rag/pkg/retry"
)

type flakyEmbedder struct {
	calls   int
	failFor int
	err     error
}

func (f *flakyEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	if f.calls <= f.failFor {
		return nil, f.err
	}
	return []float32{1, 0}, nil
}

func (f *flakyEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.calls <= f.failFor {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func (f *flakyEmbedder) Dimension() int { return 2 }

func TestWithRetryRetriesTransientEmbedFailure(t *testing.T) {
	inner := &flakyEmbedder{failFor: 1, err: &retry.StatusError{Code: 503}}
	emb := WithRetry(inner, retry.Policy{Attempts: 2, Timeout: time.Second, Backoff: time.Millisecond})

	vec, err := emb.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0}, vec)
	assert.Equal(t, 2, inner.calls)
	assert.Equal(t, 2, emb.Dimension())
}

func TestWithRetryRetriesTransientBatchFailure(t *testing.T) {
	inner := &flakyEmbedder{failFor: 1, err: &retry.StatusError{Code: 429}}
	emb := WithRetry(inner, retry.Policy{Attempts: 3, Timeout: time.Second, Backoff: time.Millisecond})

	vecs, err := emb.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Len(t, vecs, 2)
	assert.Equal(t, 2, inner.calls)
}

func TestWithRetryReturnsPermanentEmbedFailure(t *testing.T) {
	boom := errors.New("invalid api key")
	inner := &flakyEmbedder{failFor: 5, err: boom}

	_, err := WithRetry(inner, retry.Default()).Embed(context.Background(), "hello")
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, inner.calls)
}
