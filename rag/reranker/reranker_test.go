package reranker

import (
	"context"
	"testing"

	"github.com/sweetpotato0/adaptive-rag/rag/document"
)

func TestCosineRerankerOrdersBySimilarity(t *testing.T) {
	candidates := []Candidate{
		{Chunk: document.Chunk{ID: "far"}, Vector: []float32{0, 1}, Score: 0.9},
		{Chunk: document.Chunk{ID: "near"}, Vector: []float32{1, 0}, Score: 0.1},
		{Chunk: document.Chunk{ID: "novec"}, Score: 0.5},
	}

	results, err := NewCosineReranker().Rank(context.Background(), []float32{1, 0}, candidates)
	if err != nil {
		t.Fatalf("Rank error: %v", err)
	}
	got := []string{results[0].Chunk.ID, results[1].Chunk.ID, results[2].Chunk.ID}
	want := []string{"near", "novec", "far"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

func TestQueryContextRoundTrip(t *testing.T) {
	ctx := ContextWithQuery(context.Background(), "capital of france")
	q, ok := QueryFromContext(ctx)
	if !ok || q != "capital of france" {
		t.Errorf("QueryFromContext = %q, %v", q, ok)
	}
	if _, ok := QueryFromContext(context.Background()); ok {
		t.Errorf("expected no query in empty context")
	}
	if _, ok := QueryFromContext(ContextWithQuery(context.Background(), "   ")); ok {
		t.Errorf("blank query should not be stored")
	}
}
