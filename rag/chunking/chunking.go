package chunking

import (
	"context"
	"strings"

	"github.com/sweetpotato0/adaptive-rag/rag/document"
)

// Chunker splits documents into chunks that can be embedded and indexed.
type Chunker interface {
	Chunk(ctx context.Context, doc document.Document) ([]document.Chunk, error)
}

type Options struct {
	ChunkSize   int
	Overlap     int
	Separator   string
	IncludeMeta bool
}

// SimpleChunker splits documents by separator and windows long segments by rune count.
type SimpleChunker struct {
	size    int
	overlap int
	sep     string
	addMeta bool
}

var _ Chunker = (*SimpleChunker)(nil)

// Option customizes the simple chunker.
type Option func(*Options)

// WithChunkSize overrides the default chunk size (characters).
func WithChunkSize(size int) Option {
	return func(o *Options) {
		if size > 0 {
			o.ChunkSize = size
		}
	}
}

// WithOverlap configures overlap (characters) between consecutive chunks.
func WithOverlap(overlap int) Option {
	return func(o *Options) {
		if overlap >= 0 {
			o.Overlap = overlap
		}
	}
}

// WithSeparator sets the logical separator used before windowing.
func WithSeparator(sep string) Option {
	return func(o *Options) {
		if sep != "" {
			o.Separator = sep
		}
	}
}

// WithMetadataCopy toggles whether document metadata should be copied to chunks.
func WithMetadataCopy(enabled bool) Option {
	return func(o *Options) {
		o.IncludeMeta = enabled
	}
}

// NewSimpleChunker constructs a chunker; overlap is clamped below the chunk size.
func NewSimpleChunker(opts ...Option) *SimpleChunker {
	cfg := &Options{
		ChunkSize:   1000,
		Overlap:     200,
		Separator:   "\n\n",
		IncludeMeta: true,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.Overlap >= cfg.ChunkSize {
		cfg.Overlap = cfg.ChunkSize / 4
	}
	return &SimpleChunker{
		size:    cfg.ChunkSize,
		overlap: cfg.Overlap,
		sep:     cfg.Separator,
		addMeta: cfg.IncludeMeta,
	}
}

// Chunk splits the document into bounded pieces. Blank documents yield no chunks.
func (c *SimpleChunker) Chunk(ctx context.Context, doc document.Document) ([]document.Chunk, error) {
	document.EnsureDocumentID(&doc)

	var chunks []document.Chunk
	for _, part := range strings.Split(doc.Content, c.sep) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if strings.TrimSpace(part) == "" {
			continue
		}
		runes := []rune(part)
		for len(runes) > c.size {
			chunks = append(chunks, c.newChunk(doc, len(chunks), string(runes[:c.size])))
			runes = runes[c.size-c.overlap:]
		}
		chunks = append(chunks, c.newChunk(doc, len(chunks), string(runes)))
	}
	return chunks, nil
}

func (c *SimpleChunker) newChunk(doc document.Document, ordinal int, content string) document.Chunk {
	chunk := document.Chunk{
		ID:         document.ChunkID(doc.ID, ordinal),
		DocumentID: doc.ID,
		Source:     doc.Source,
		Title:      doc.Title,
		Content:    strings.TrimSpace(content),
		Ordinal:    ordinal,
	}
	if c.addMeta && doc.Metadata != nil {
		chunk.Metadata = make(map[string]any, len(doc.Metadata))
		for k, v := range doc.Metadata {
			chunk.Metadata[k] = v
		}
	}
	return chunk
}
