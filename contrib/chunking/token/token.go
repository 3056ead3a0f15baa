// Package token windows documents by model token count, so chunks stay under
// the embedding model's input limit.
package token

import (
	"context"
	"strings"

	"github.com/sweetpotato0/adaptive-rag/rag/chunking"
	"github.com/sweetpotato0/adaptive-rag/rag/document"
	"github.com/sweetpotato0/adaptive-rag/rag/tokenizer"
)

// Chunker groups whitespace-separated words into windows of at most
// maxTokens tokens, repeating roughly overlapTokens between windows.
type Chunker struct {
	tok           tokenizer.Tokenizer
	maxTokens     int
	overlapTokens int
}

var _ chunking.Chunker = (*Chunker)(nil)

// Option customises the token chunker.
type Option func(*Chunker)

// WithMaxTokens sets the maximum tokens per chunk (default 256).
func WithMaxTokens(tokens int) Option {
	return func(c *Chunker) {
		if tokens > 0 {
			c.maxTokens = tokens
		}
	}
}

// WithOverlapTokens sets how many tokens consecutive chunks share (default 32).
func WithOverlapTokens(tokens int) Option {
	return func(c *Chunker) {
		if tokens >= 0 {
			c.overlapTokens = tokens
		}
	}
}

// New creates a token chunker. A nil tokenizer falls back to the simple one.
func New(tok tokenizer.Tokenizer, opts ...Option) *Chunker {
	if tok == nil {
		tok = tokenizer.NewSimpleTokenizer()
	}
	ch := &Chunker{
		tok:           tok,
		maxTokens:     256,
		overlapTokens: 32,
	}
	for _, opt := range opts {
		opt(ch)
	}
	if ch.overlapTokens >= ch.maxTokens {
		ch.overlapTokens = ch.maxTokens / 4
	}
	return ch
}

// Chunk implements chunking.Chunker. A single word longer than the budget
// becomes its own chunk.
func (c *Chunker) Chunk(ctx context.Context, doc document.Document) ([]document.Chunk, error) {
	document.EnsureDocumentID(&doc)

	words := strings.Fields(doc.Content)
	if len(words) == 0 {
		return nil, nil
	}
	counts := make([]int, len(words))
	for i, w := range words {
		counts[i] = max(1, c.tok.CountTokens(w))
	}

	var chunks []document.Chunk
	start := 0
	for start < len(words) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end, used := start, 0
		for end < len(words) && (end == start || used+counts[end] <= c.maxTokens) {
			used += counts[end]
			end++
		}
		chunks = append(chunks, c.newChunk(doc, len(chunks), strings.Join(words[start:end], " ")))
		if end == len(words) {
			break
		}

		next, shared := end, 0
		for next > start+1 && shared+counts[next-1] <= c.overlapTokens {
			next--
			shared += counts[next]
		}
		start = next
	}
	return chunks, nil
}

func (c *Chunker) newChunk(doc document.Document, ordinal int, content string) document.Chunk {
	chunk := document.Chunk{
		ID:         document.ChunkID(doc.ID, ordinal),
		DocumentID: doc.ID,
		Source:     doc.Source,
		Title:      doc.Title,
		Content:    content,
		Ordinal:    ordinal,
	}
	if doc.Metadata != nil {
		chunk.Metadata = make(map[string]any, len(doc.Metadata))
		for k, v := range doc.Metadata {
			chunk.Metadata[k] = v
		}
	}
	return chunk
}
