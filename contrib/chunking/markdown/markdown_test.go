package markdown

import (
	"context"
	"strings"
	"testing"

	"github.com/sweetpotato0/adaptive-rag/rag/document"
)

const guide = `Intro paragraph about the product.

# Installation

Run the installer and follow the prompts.

## Requirements

A recent operating system and 2GB of memory.

# Usage

Start the service with the serve command.
`

func TestChunkSplitsByHeadings(t *testing.T) {
	ch := New(WithMaxHeadingLevel(2), WithMaxCharacters(200), WithMinCharacters(0))
	doc := document.Document{ID: "guide", Source: "docs/guide.md", Content: guide}

	chunks, err := ch.Chunk(context.Background(), doc)
	if err != nil {
		t.Fatalf("chunk error: %v", err)
	}
	if len(chunks) != 4 {
		t.Fatalf("expected 4 chunks (intro + 3 sections), got %d", len(chunks))
	}
	if chunks[1].Metadata[MetaSectionTitle] != "Installation" {
		t.Fatalf("expected Installation section, got %v", chunks[1].Metadata[MetaSectionTitle])
	}
	if !strings.HasPrefix(chunks[1].Content, "# Installation") {
		t.Fatalf("section should keep its heading line, got %q", chunks[1].Content)
	}
	if chunks[2].Metadata[MetaSectionLevel] != 2 {
		t.Fatalf("expected level 2 for Requirements, got %v", chunks[2].Metadata[MetaSectionLevel])
	}
	for i, c := range chunks {
		if c.Source != "docs/guide.md" || c.DocumentID != "guide" || c.Ordinal != i {
			t.Fatalf("chunk %d lost provenance: %+v", i, c)
		}
	}
}

func TestChunkIgnoresDeepHeadings(t *testing.T) {
	ch := New(WithMaxHeadingLevel(1), WithMinCharacters(0))
	chunks, err := ch.Chunk(context.Background(), document.Document{ID: "g", Content: guide})
	if err != nil {
		t.Fatalf("chunk error: %v", err)
	}
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks with level-1 splitting, got %d", len(chunks))
	}
	if !strings.Contains(chunks[1].Content, "## Requirements") {
		t.Fatalf("level 2 heading should stay inside its parent section")
	}
}

func TestChunkMergesShortSections(t *testing.T) {
	ch := New(WithMinCharacters(120))
	chunks, err := ch.Chunk(context.Background(), document.Document{ID: "g", Content: guide})
	if err != nil {
		t.Fatalf("chunk error: %v", err)
	}
	if len(chunks) >= 4 {
		t.Fatalf("expected short sections to merge, got %d chunks", len(chunks))
	}
}

func TestChunkFallsBackWithoutHeadings(t *testing.T) {
	ch := New(WithMaxCharacters(50), WithMinCharacters(0))
	doc := document.Document{ID: "plain", Content: strings.Repeat("plain text without any heading. ", 6)}
	chunks, err := ch.Chunk(context.Background(), doc)
	if err != nil {
		t.Fatalf("chunk error: %v", err)
	}
	if len(chunks) < 2 {
		t.Fatalf("expected fallback windows, got %d", len(chunks))
	}
	if _, ok := chunks[0].Metadata[MetaSectionTitle]; ok {
		t.Fatalf("fallback chunks should not carry section metadata")
	}
}

func TestChunkBlankDocument(t *testing.T) {
	chunks, err := New().Chunk(context.Background(), document.Document{ID: "blank", Content: "  \n"})
	if err != nil {
		t.Fatalf("chunk error: %v", err)
	}
	if len(chunks) != 0 {
		t.Fatalf("expected no chunks, got %d", len(chunks))
	}
}
