// Package document defines the evidence records that flow through retrieval,
// grading and generation.
package document

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// Origin tells where a piece of evidence came from.
type Origin string

const (
	OriginLocal Origin = "LOCAL_INDEX"
	OriginWeb   Origin = "WEB"
)

// Metadata keys written to indexed chunks.
const (
	MetaSource     = "source"
	MetaDocumentID = "document_id"
	MetaTitle      = "title"
	MetaOrdinal    = "ordinal"
)

// Document is an evidence unit. Retrieved documents are treated as values:
// the workflow filters and appends them but never edits one in place.
type Document struct {
	ID       string         `json:"id"`
	Title    string         `json:"title,omitempty"`
	Content  string         `json:"content"`
	Source   string         `json:"source"`
	Origin   Origin         `json:"origin"`
	Score    float32        `json:"score,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Chunk represents a slice of a document that is indexed into a vector store.
type Chunk struct {
	ID         string         `json:"id"`
	DocumentID string         `json:"document_id"`
	Source     string         `json:"source"`
	Title      string         `json:"title,omitempty"`
	Content    string         `json:"content"`
	Ordinal    int            `json:"ordinal"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// EnsureDocumentID assigns an ID when missing. Documents with a source get
// an ID derived from it, so re-ingesting a file overwrites its chunks.
func EnsureDocumentID(doc *Document) {
	if doc == nil || doc.ID != "" {
		return
	}
	if doc.Source != "" {
		doc.ID = uuid.NewSHA1(uuid.NameSpaceURL, []byte(doc.Source)).String()
		return
	}
	doc.ID = uuid.NewString()
}

// ChunkID returns the identifier of the ordinal-th chunk of a document.
func ChunkID(docID string, ordinal int) string {
	return fmt.Sprintf("%s_chunk_%d", docID, ordinal)
}

// Clone returns a deep copy of the document.
func (d Document) Clone() Document {
	out := d
	if d.Metadata != nil {
		out.Metadata = make(map[string]any, len(d.Metadata))
		for k, v := range d.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

// Clone returns a deep copy of the chunk.
func (c Chunk) Clone() Chunk {
	out := c
	if c.Metadata != nil {
		out.Metadata = make(map[string]any, len(c.Metadata))
		for k, v := range c.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

// CloneAll copies a document slice.
func CloneAll(docs []Document) []Document {
	if len(docs) == 0 {
		return nil
	}
	out := make([]Document, len(docs))
	for i, d := range docs {
		out[i] = d.Clone()
	}
	return out
}

// Dedupe drops later documents that repeat an earlier (source, content) pair.
// Order is preserved.
func Dedupe(docs []Document) []Document {
	type key struct{ source, content string }
	seen := make(map[key]struct{}, len(docs))
	out := make([]Document, 0, len(docs))
	for _, d := range docs {
		k := key{d.Source, strings.TrimSpace(d.Content)}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, d)
	}
	return out
}

// Sources returns the distinct non-empty sources in sorted order.
func Sources(docs []Document) []string {
	seen := make(map[string]struct{}, len(docs))
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		if d.Source == "" {
			continue
		}
		if _, ok := seen[d.Source]; ok {
			continue
		}
		seen[d.Source] = struct{}{}
		out = append(out, d.Source)
	}
	sort.Strings(out)
	return out
}

// JoinContents concatenates document contents in order with sep.
func JoinContents(docs []Document, sep string) string {
	parts := make([]string, 0, len(docs))
	for _, d := range docs {
		parts = append(parts, d.Content)
	}
	return strings.Join(parts, sep)
}

// CountOrigin counts documents with the given origin.
func CountOrigin(docs []Document, origin Origin) int {
	n := 0
	for _, d := range docs {
		if d.Origin == origin {
			n++
		}
	}
	return n
}
