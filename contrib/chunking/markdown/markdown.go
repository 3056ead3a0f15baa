// Package markdown chunks markdown evidence along its heading structure.
package markdown

import (
	"context"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/sweetpotato0/adaptive-rag/rag/chunking"
	"github.com/sweetpotato0/adaptive-rag/rag/document"
)

// Metadata keys added to each section chunk.
const (
	MetaSectionTitle = "section_title"
	MetaSectionLevel = "section_level"
)

// Chunker emits one chunk per heading section, handing oversized sections
// to a fallback chunker.
type Chunker struct {
	maxHeadingLevel int
	maxCharacters   int
	minCharacters   int
	fallback        chunking.Chunker
	parser          goldmark.Markdown
}

var _ chunking.Chunker = (*Chunker)(nil)

// Option customises the markdown chunker.
type Option func(*Chunker)

// WithMaxHeadingLevel caps which heading level starts a new section (default 3).
func WithMaxHeadingLevel(level int) Option {
	return func(c *Chunker) {
		if level > 0 {
			c.maxHeadingLevel = level
		}
	}
}

// WithMaxCharacters sets the section size above which the fallback splits it.
func WithMaxCharacters(chars int) Option {
	return func(c *Chunker) {
		if chars > 0 {
			c.maxCharacters = chars
		}
	}
}

// WithMinCharacters merges a short section into the one after it.
func WithMinCharacters(chars int) Option {
	return func(c *Chunker) {
		if chars >= 0 {
			c.minCharacters = chars
		}
	}
}

// WithFallbackChunker replaces the chunker used for oversized sections and
// for documents without headings.
func WithFallbackChunker(ch chunking.Chunker) Option {
	return func(c *Chunker) {
		if ch != nil {
			c.fallback = ch
		}
	}
}

// New creates a markdown chunker.
func New(opts ...Option) *Chunker {
	ch := &Chunker{
		maxHeadingLevel: 3,
		maxCharacters:   1200,
		minCharacters:   200,
		parser:          goldmark.New(),
	}
	for _, opt := range opts {
		opt(ch)
	}
	if ch.fallback == nil {
		ch.fallback = chunking.NewSimpleChunker(
			chunking.WithChunkSize(ch.maxCharacters),
			chunking.WithOverlap(ch.maxCharacters/8),
		)
	}
	return ch
}

type section struct {
	body  string
	level int
	title string
}

// Chunk implements chunking.Chunker.
func (c *Chunker) Chunk(ctx context.Context, doc document.Document) ([]document.Chunk, error) {
	document.EnsureDocumentID(&doc)

	sections := c.sections(doc.Content)
	if len(sections) == 0 {
		return nil, nil
	}
	if len(sections) == 1 && sections[0].title == "" {
		return c.fallback.Chunk(ctx, doc)
	}

	var chunks []document.Chunk
	for _, sec := range sections {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if len(sec.body) <= c.maxCharacters {
			chunks = append(chunks, c.newChunk(doc, sec, len(chunks), sec.body))
			continue
		}
		part := doc
		part.Content = sec.body
		splits, err := c.fallback.Chunk(ctx, part)
		if err != nil {
			return nil, err
		}
		for _, split := range splits {
			chunks = append(chunks, c.newChunk(doc, sec, len(chunks), split.Content))
		}
	}
	return chunks, nil
}

func (c *Chunker) newChunk(doc document.Document, sec section, ordinal int, content string) document.Chunk {
	meta := make(map[string]any, len(doc.Metadata)+2)
	for k, v := range doc.Metadata {
		meta[k] = v
	}
	title := doc.Title
	if sec.title != "" {
		meta[MetaSectionTitle] = sec.title
		meta[MetaSectionLevel] = sec.level
		if title == "" {
			title = sec.title
		}
	}
	return document.Chunk{
		ID:         document.ChunkID(doc.ID, ordinal),
		DocumentID: doc.ID,
		Source:     doc.Source,
		Title:      title,
		Content:    strings.TrimSpace(content),
		Ordinal:    ordinal,
		Metadata:   meta,
	}
}

// sections walks the goldmark AST for headings and slices the source between them.
func (c *Chunker) sections(content string) []section {
	source := []byte(content)
	root := c.parser.Parser().Parse(text.NewReader(source))

	type heading struct {
		start int
		level int
		title string
	}
	var headings []heading
	_ = ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		h, ok := n.(*ast.Heading)
		if !ok || h.Level > c.maxHeadingLevel {
			return ast.WalkContinue, nil
		}
		lines := h.Lines()
		if lines == nil || lines.Len() == 0 {
			return ast.WalkContinue, nil
		}
		// Lines start after the "#" marker; back up to the line start.
		start := lines.At(0).Start
		for start > 0 && source[start-1] != '\n' {
			start--
		}
		headings = append(headings, heading{
			start: start,
			level: h.Level,
			title: strings.TrimSpace(string(h.Text(source))),
		})
		return ast.WalkSkipChildren, nil
	})

	if len(headings) == 0 {
		if body := strings.TrimSpace(content); body != "" {
			return []section{{body: body}}
		}
		return nil
	}

	var out []section
	if intro := strings.TrimSpace(string(source[:headings[0].start])); intro != "" {
		out = append(out, section{body: intro})
	}
	for i, h := range headings {
		end := len(source)
		if i+1 < len(headings) {
			end = headings[i+1].start
		}
		if body := strings.TrimSpace(string(source[h.start:end])); body != "" {
			out = append(out, section{body: body, level: h.level, title: h.title})
		}
	}
	return c.mergeShort(out)
}

func (c *Chunker) mergeShort(sections []section) []section {
	if c.minCharacters <= 0 || len(sections) < 2 {
		return sections
	}
	merged := make([]section, 0, len(sections))
	var pending *section
	for i := range sections {
		cur := sections[i]
		if pending != nil {
			title, level := pending.title, pending.level
			if title == "" {
				title, level = cur.title, cur.level
			}
			cur = section{body: pending.body + "\n\n" + cur.body, level: level, title: title}
			pending = nil
		}
		if len(cur.body) < c.minCharacters && i < len(sections)-1 {
			pending = &cur
			continue
		}
		merged = append(merged, cur)
	}
	return merged
}
