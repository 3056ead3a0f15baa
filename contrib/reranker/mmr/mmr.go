// Package mmr reranks retrieval candidates with maximal marginal relevance,
// trading query similarity against redundancy with already chosen chunks.
package mmr

import (
	"context"
	"math"

	"github.com/sweetpotato0/adaptive-rag/rag/reranker"
	"github.com/sweetpotato0/adaptive-rag/vector"
)

// Reranker implements reranker.Reranker with MMR selection.
type Reranker struct {
	lambda float32
	limit  int
}

var _ reranker.Reranker = (*Reranker)(nil)

// Option customises the reranker.
type Option func(*Reranker)

// WithLambda weights relevance against diversity; 1 ignores diversity.
func WithLambda(lambda float32) Option {
	return func(r *Reranker) {
		if lambda >= 0 && lambda <= 1 {
			r.lambda = lambda
		}
	}
}

// WithLimit stops after n selections. Zero ranks every candidate.
func WithLimit(n int) Option {
	return func(r *Reranker) {
		if n >= 0 {
			r.limit = n
		}
	}
}

// New returns an MMR reranker with lambda 0.7 and no limit.
func New(opts ...Option) *Reranker {
	r := &Reranker{lambda: 0.7}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Rank implements reranker.Reranker. Result scores stay the query
// similarity so downstream score floors keep their meaning.
func (r *Reranker) Rank(ctx context.Context, queryVec []float32, candidates []reranker.Candidate) ([]reranker.Result, error) {
	if len(candidates) == 0 {
		return nil, nil
	}
	type item struct {
		cand      reranker.Candidate
		relevance float32
	}
	remaining := make([]item, len(candidates))
	for i, cand := range candidates {
		score := cand.Score
		if len(queryVec) > 0 && len(cand.Vector) == len(queryVec) {
			score = vector.CosineSimilarity(queryVec, cand.Vector)
		}
		remaining[i] = item{cand: cand, relevance: score}
	}

	var picked []reranker.Candidate
	results := make([]reranker.Result, 0, len(candidates))
	for len(remaining) > 0 && (r.limit == 0 || len(results) < r.limit) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		bestIdx := -1
		bestScore := float32(math.Inf(-1))
		for idx, it := range remaining {
			var redundancy float32
			for _, p := range picked {
				if len(it.cand.Vector) == 0 || len(p.Vector) != len(it.cand.Vector) {
					continue
				}
				redundancy = max(redundancy, vector.CosineSimilarity(it.cand.Vector, p.Vector))
			}
			score := r.lambda*it.relevance - (1-r.lambda)*redundancy
			if score > bestScore {
				bestScore = score
				bestIdx = idx
			}
		}
		best := remaining[bestIdx]
		results = append(results, reranker.Result{Chunk: best.cand.Chunk, Score: best.relevance})
		picked = append(picked, best.cand)
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}
	return results, nil
}
