package inmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/sweetpotato0/adaptive-rag/errors"
	"github.com/sweetpotato0/adaptive-rag/vector"
)

// InMemoryVectorStore implements vector.VectorStore with a brute-force cosine scan.
type InMemoryVectorStore struct {
	embeddings map[string]*vector.Embedding
	mu         sync.RWMutex
}

var _ vector.VectorStore = (*InMemoryVectorStore)(nil)

// NewInMemoryVectorStore creates a new in-memory vector store
func NewInMemoryVectorStore() *InMemoryVectorStore {
	return &InMemoryVectorStore{
		embeddings: make(map[string]*vector.Embedding),
	}
}

// AddEmbedding stores a copy of embedding, replacing any earlier one with the same ID.
func (s *InMemoryVectorStore) AddEmbedding(ctx context.Context, embedding *vector.Embedding) error {
	if embedding == nil {
		return fmt.Errorf("%w: embedding cannot be nil", errors.ErrInvalidInput)
	}
	if embedding.ID == "" {
		return fmt.Errorf("%w: embedding ID cannot be empty", errors.ErrInvalidInput)
	}
	if len(embedding.Vector) == 0 {
		return fmt.Errorf("%w: embedding vector cannot be empty", errors.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.embeddings[embedding.ID] = vector.Clone(embedding)
	return nil
}

// Search finds embeddings similar to the query vector
func (s *InMemoryVectorStore) Search(ctx context.Context, queryVector []float32, topK int) ([]*vector.Embedding, error) {
	if len(queryVector) == 0 {
		return nil, fmt.Errorf("%w: query vector cannot be empty", errors.ErrInvalidInput)
	}
	if topK <= 0 {
		topK = 10
	}

	s.mu.RLock()
	results := make([]*vector.Embedding, 0, len(s.embeddings))
	for _, emb := range s.embeddings {
		if len(emb.Vector) != len(queryVector) {
			continue
		}
		hit := vector.Clone(emb)
		hit.Score = vector.CosineSimilarity(queryVector, emb.Vector)
		results = append(results, hit)
	}
	s.mu.RUnlock()

	// ties break on ID so repeated searches return the same order
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score == results[j].Score {
			return results[i].ID < results[j].ID
		}
		return results[i].Score > results[j].Score
	})

	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// DeleteEmbedding removes an embedding by ID
func (s *InMemoryVectorStore) DeleteEmbedding(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.embeddings[id]; !exists {
		return fmt.Errorf("embedding %s: %w", id, errors.ErrNotFound)
	}
	delete(s.embeddings, id)
	return nil
}

// GetEmbedding retrieves a specific embedding by ID
func (s *InMemoryVectorStore) GetEmbedding(ctx context.Context, id string) (*vector.Embedding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	emb, exists := s.embeddings[id]
	if !exists {
		return nil, fmt.Errorf("embedding %s: %w", id, errors.ErrNotFound)
	}
	return vector.Clone(emb), nil
}

// Clear removes all embeddings
func (s *InMemoryVectorStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.embeddings = make(map[string]*vector.Embedding)
	return nil
}

// Count returns the number of embeddings
func (s *InMemoryVectorStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.embeddings), nil
}
