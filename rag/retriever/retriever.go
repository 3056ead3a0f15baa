// Package retriever is the evidence store: it indexes local documents into
// a vector store and answers similarity queries with scored documents.
package retriever

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/sweetpotato0/adaptive-rag/pkg/logging"
	"github.com/sweetpotato0/adaptive-rag/rag/chunking"
	"github.com/sweetpotato0/adaptive-rag/rag/document"
	"github.com/sweetpotato0/adaptive-rag/rag/reranker"
	"github.com/sweetpotato0/adaptive-rag/vector"
)

// Config controls retrieval behaviour.
type Config struct {
	// SearchTopK is how many neighbours are fetched before reranking.
	SearchTopK int
	// TopK is how many documents Retrieve returns.
	TopK int
	// MinScore drops hits whose store similarity is below it.
	MinScore float32
	// BatchSize is the number of chunks embedded per request.
	BatchSize int
	// Workers bounds concurrent embedding requests during indexing.
	Workers int
	Logger  *slog.Logger
}

// Option customizes retriever config.
type Option func(*Config)

// WithSearchTopK sets the number of neighbors fetched from the vector store.
func WithSearchTopK(k int) Option {
	return func(cfg *Config) {
		if k > 0 {
			cfg.SearchTopK = k
		}
	}
}

// WithTopK sets how many documents survive reranking.
func WithTopK(k int) Option {
	return func(cfg *Config) {
		if k > 0 {
			cfg.TopK = k
		}
	}
}

// WithMinScore sets the similarity floor.
func WithMinScore(score float32) Option {
	return func(cfg *Config) {
		cfg.MinScore = score
	}
}

// WithBatchSize sets the number of chunks per embedding request.
func WithBatchSize(n int) Option {
	return func(cfg *Config) {
		if n > 0 {
			cfg.BatchSize = n
		}
	}
}

// WithWorkers sets the embedding worker pool size.
func WithWorkers(n int) Option {
	return func(cfg *Config) {
		if n > 0 {
			cfg.Workers = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *Config) {
		if logger != nil {
			cfg.Logger = logger
		}
	}
}

// Retriever coordinates chunking, embedding, similarity search, and reranking.
// Chunk provenance travels in embedding metadata, so a persistent vector
// store can be searched by a process that never indexed it.
type Retriever struct {
	store    vector.VectorStore
	embedder vector.Embedder
	chunker  chunking.Chunker
	reranker reranker.Reranker
	cfg      Config
	pool     *ants.Pool
	logger   *slog.Logger
}

// New creates a retriever. rer may be nil to keep store order. Call Close
// to release the embedding workers.
func New(store vector.VectorStore, emb vector.Embedder, chunker chunking.Chunker, rer reranker.Reranker, opts ...Option) (*Retriever, error) {
	if store == nil || emb == nil {
		return nil, fmt.Errorf("retriever: vector store and embedder are required")
	}
	if chunker == nil {
		chunker = chunking.NewSimpleChunker()
	}
	cfg := Config{
		SearchTopK: 8,
		TopK:       4,
		BatchSize:  16,
		Workers:    4,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.SearchTopK < cfg.TopK {
		cfg.SearchTopK = cfg.TopK
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.WithComponent("retriever")
	}

	pool, err := ants.NewPool(cfg.Workers)
	if err != nil {
		return nil, fmt.Errorf("retriever: create worker pool: %w", err)
	}

	return &Retriever{
		store:    store,
		embedder: emb,
		chunker:  chunker,
		reranker: rer,
		cfg:      cfg,
		pool:     pool,
		logger:   logger,
	}, nil
}

// Close releases the worker pool.
func (r *Retriever) Close() {
	r.pool.Release()
}

// IndexDocuments ingests documents -> chunks -> embeddings -> vector store.
// It returns the number of chunks stored.
func (r *Retriever) IndexDocuments(ctx context.Context, docs ...document.Document) (int, error) {
	var chunks []document.Chunk
	for _, doc := range docs {
		document.EnsureDocumentID(&doc)
		parts, err := r.chunker.Chunk(ctx, doc)
		if err != nil {
			return 0, fmt.Errorf("chunk document %s: %w", doc.ID, err)
		}
		chunks = append(chunks, parts...)
	}
	if len(chunks) == 0 {
		return 0, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
		stored   int
	)
	fail := func(err error) {
		mu.Lock()
		defer mu.Unlock()
		if firstErr == nil {
			firstErr = err
			cancel()
		}
	}

	for start := 0; start < len(chunks); start += r.cfg.BatchSize {
		end := min(start+r.cfg.BatchSize, len(chunks))
		batch := chunks[start:end]

		wg.Add(1)
		err := r.pool.Submit(func() {
			defer wg.Done()
			n, err := r.indexBatch(ctx, batch)
			if err != nil {
				fail(err)
				return
			}
			mu.Lock()
			stored += n
			mu.Unlock()
		})
		if err != nil {
			wg.Done()
			fail(fmt.Errorf("submit embedding batch: %w", err))
			break
		}
	}
	wg.Wait()

	if firstErr != nil {
		return stored, firstErr
	}
	r.logger.Info("indexed documents", "documents", len(docs), "chunks", stored)
	return stored, nil
}

func (r *Retriever) indexBatch(ctx context.Context, batch []document.Chunk) (int, error) {
	texts := make([]string, len(batch))
	for i, chunk := range batch {
		texts[i] = chunk.Content
	}
	vectors, err := r.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embed chunks: %w", err)
	}
	if len(vectors) != len(batch) {
		return 0, fmt.Errorf("embed chunks: expected %d vectors, got %d", len(batch), len(vectors))
	}

	for i, chunk := range batch {
		emb := &vector.Embedding{
			ID:       chunk.ID,
			Vector:   vectors[i],
			Text:     chunk.Content,
			Metadata: chunkMetadata(chunk),
		}
		if err := r.store.AddEmbedding(ctx, emb); err != nil {
			return i, fmt.Errorf("store chunk %s: %w", chunk.ID, err)
		}
	}
	return len(batch), nil
}

// Search executes semantic search, applies the similarity floor and reranks.
func (r *Retriever) Search(ctx context.Context, query string) ([]reranker.Result, error) {
	queryVec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	hits, err := r.store.Search(ctx, queryVec, r.cfg.SearchTopK)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	candidates := make([]reranker.Candidate, 0, len(hits))
	for _, hit := range hits {
		if hit.Score < r.cfg.MinScore {
			continue
		}
		candidates = append(candidates, reranker.Candidate{
			Chunk:  chunkFromEmbedding(hit),
			Vector: hit.Vector,
			Score:  hit.Score,
		})
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	var results []reranker.Result
	if r.reranker == nil {
		results = make([]reranker.Result, 0, len(candidates))
		for _, cand := range candidates {
			results = append(results, reranker.Result{Chunk: cand.Chunk, Score: cand.Score})
		}
	} else {
		results, err = r.reranker.Rank(reranker.ContextWithQuery(ctx, query), queryVec, candidates)
		if err != nil {
			return nil, fmt.Errorf("rerank: %w", err)
		}
	}

	if len(results) > r.cfg.TopK {
		results = results[:r.cfg.TopK]
	}
	return results, nil
}

// Retrieve returns at most TopK local documents for query, best first. An
// empty result is not an error.
func (r *Retriever) Retrieve(ctx context.Context, query string) ([]document.Document, error) {
	results, err := r.Search(ctx, query)
	if err != nil {
		return nil, err
	}
	docs := make([]document.Document, 0, len(results))
	for _, res := range results {
		docs = append(docs, document.Document{
			ID:       res.Chunk.ID,
			Title:    res.Chunk.Title,
			Content:  res.Chunk.Content,
			Source:   res.Chunk.Source,
			Origin:   document.OriginLocal,
			Score:    res.Score,
			Metadata: res.Chunk.Metadata,
		})
	}
	return docs, nil
}

// Clear drops all indexed state.
func (r *Retriever) Clear(ctx context.Context) error {
	return r.store.Clear(ctx)
}

// Count returns number of chunks indexed.
func (r *Retriever) Count(ctx context.Context) (int, error) {
	return r.store.Count(ctx)
}

func chunkMetadata(chunk document.Chunk) map[string]string {
	meta := map[string]string{
		document.MetaSource:     chunk.Source,
		document.MetaDocumentID: chunk.DocumentID,
		document.MetaOrdinal:    strconv.Itoa(chunk.Ordinal),
	}
	if chunk.Title != "" {
		meta[document.MetaTitle] = chunk.Title
	}
	for k, v := range chunk.Metadata {
		if _, reserved := meta[k]; reserved {
			continue
		}
		if s, ok := v.(string); ok {
			meta[k] = s
		}
	}
	return meta
}

func chunkFromEmbedding(emb *vector.Embedding) document.Chunk {
	chunk := document.Chunk{
		ID:      emb.ID,
		Content: emb.Text,
	}
	extra := make(map[string]any)
	for k, v := range emb.Metadata {
		switch k {
		case document.MetaSource:
			chunk.Source = v
		case document.MetaDocumentID:
			chunk.DocumentID = v
		case document.MetaTitle:
			chunk.Title = v
		case document.MetaOrdinal:
			chunk.Ordinal, _ = strconv.Atoi(strings.TrimSpace(v))
		default:
			extra[k] = v
		}
	}
	if len(extra) > 0 {
		chunk.Metadata = extra
	}
	return chunk
}
