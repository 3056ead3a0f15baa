package retriever

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweetpotato0/adaptive-rag/contrib/vector/inmemory"
	"github.com/sweetpotato0/adaptive-rag/rag/chunking"
	"github.com/sweetpotato0/adaptive-rag/rag/document"
)

var vocab = []string{"paris", "france", "capital", "golang", "channels"}

// keywordEmbedder counts vocabulary hits; enough to make cosine meaningful.
type keywordEmbedder struct {
	batches atomic.Int32
	fail    bool
}

func (k *keywordEmbedder) embed(text string) []float32 {
	vec := make([]float32, len(vocab))
	lower := strings.ToLower(text)
	for i, w := range vocab {
		vec[i] = float32(strings.Count(lower, w))
	}
	return vec
}

func (k *keywordEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	return k.embed(text), nil
}

func (k *keywordEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	k.batches.Add(1)
	if k.fail {
		return nil, errors.New("quota exceeded")
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = k.embed(t)
	}
	return out, nil
}

func (k *keywordEmbedder) Dimension() int { return len(vocab) }

func newTestRetriever(t *testing.T, emb *keywordEmbedder, opts ...Option) *Retriever {
	t.Helper()
	r, err := New(inmemory.NewInMemoryVectorStore(), emb, chunking.NewSimpleChunker(), nil, opts...)
	require.NoError(t, err)
	t.Cleanup(r.Close)
	return r
}

func corpus() []document.Document {
	return []document.Document{
		{Source: "geo.md", Title: "geo", Content: "Paris is the capital of France.\n\nFrance borders Spain."},
		{Source: "go.md", Title: "go", Content: "Golang channels coordinate goroutines."},
	}
}

func TestIndexAndRetrieve(t *testing.T) {
	emb := &keywordEmbedder{}
	r := newTestRetriever(t, emb, WithTopK(2), WithBatchSize(1))

	n, err := r.IndexDocuments(context.Background(), corpus()...)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, int32(3), emb.batches.Load())

	count, err := r.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	docs, err := r.Retrieve(context.Background(), "capital of France")
	require.NoError(t, err)
	require.NotEmpty(t, docs)
	assert.LessOrEqual(t, len(docs), 2)
	assert.Equal(t, "geo.md", docs[0].Source)
	assert.Equal(t, document.OriginLocal, docs[0].Origin)
	assert.Contains(t, docs[0].Content, "Paris")
	assert.Equal(t, "geo", docs[0].Title)
}

func TestRetrieveAppliesScoreFloor(t *testing.T) {
	r := newTestRetriever(t, &keywordEmbedder{}, WithMinScore(0.5))
	_, err := r.IndexDocuments(context.Background(), corpus()...)
	require.NoError(t, err)

	docs, err := r.Retrieve(context.Background(), "golang channels")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "go.md", docs[0].Source)

	none, err := r.Retrieve(context.Background(), "unrelated words only")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestIndexReportsEmbeddingFailure(t *testing.T) {
	r := newTestRetriever(t, &keywordEmbedder{fail: true})
	_, err := r.IndexDocuments(context.Background(), corpus()...)
	assert.ErrorContains(t, err, "quota exceeded")
}

func TestReindexOverwritesChunks(t *testing.T) {
	r := newTestRetriever(t, &keywordEmbedder{})
	ctx := context.Background()
	_, err := r.IndexDocuments(ctx, corpus()...)
	require.NoError(t, err)
	_, err = r.IndexDocuments(ctx, corpus()...)
	require.NoError(t, err)

	count, err := r.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestNewRequiresStoreAndEmbedder(t *testing.T) {
	_, err := New(nil, &keywordEmbedder{}, nil, nil)
	assert.Error(t, err)
}
