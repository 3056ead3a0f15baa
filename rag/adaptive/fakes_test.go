package adaptive

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sweetpotato0/adaptive-rag/message"
	"github.com/sweetpotato0/adaptive-rag/rag/document"
	"github.com/sweetpotato0/adaptive-rag/session"
)

type fakeStore struct {
	mu      sync.Mutex
	docs    []document.Document
	err     error
	queries []string
}

func (s *fakeStore) Retrieve(ctx context.Context, query string) ([]document.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, query)
	if s.err != nil {
		return nil, s.err
	}
	return document.CloneAll(s.docs), nil
}

func (s *fakeStore) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queries)
}

type fakeWeb struct {
	mu      sync.Mutex
	docs    []document.Document
	err     error
	queries []string
}

func (w *fakeWeb) Search(ctx context.Context, query string) ([]document.Document, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.queries = append(w.queries, query)
	if w.err != nil {
		return nil, w.err
	}
	return document.CloneAll(w.docs), nil
}

func (w *fakeWeb) calls() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.queries)
}

type fakeGenerator struct {
	mu        sync.Mutex
	answers   []string
	err       error
	calls     int
	histories [][]*message.Message
	contexts  [][]document.Document
}

func (g *fakeGenerator) Generate(ctx context.Context, question string, history []*message.Message, docs []document.Document) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	g.histories = append(g.histories, history)
	g.contexts = append(g.contexts, docs)
	if g.err != nil {
		return "", g.err
	}
	if len(g.answers) == 0 {
		return "I don't know.", nil
	}
	idx := g.calls - 1
	if idx >= len(g.answers) {
		idx = len(g.answers) - 1
	}
	return g.answers[idx], nil
}

type fakeGroundedness struct {
	mu       sync.Mutex
	verdicts []bool
	calls    int
	docs     [][]document.Document
}

func (f *fakeGroundedness) Check(ctx context.Context, answer string, docs []document.Document) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.docs = append(f.docs, docs)
	if len(f.verdicts) == 0 {
		return true
	}
	idx := f.calls - 1
	if idx >= len(f.verdicts) {
		idx = len(f.verdicts) - 1
	}
	return f.verdicts[idx]
}

var (
	alwaysRelevant   = RelevanceFunc(func(context.Context, string, document.Document) bool { return true })
	alwaysIrrelevant = RelevanceFunc(func(context.Context, string, document.Document) bool { return false })
	onlyWebRelevant  = RelevanceFunc(func(_ context.Context, _ string, doc document.Document) bool {
		return doc.Origin == document.OriginWeb
	})
)

func localDoc(source, content string) document.Document {
	return document.Document{ID: source, Source: source, Content: content, Origin: document.OriginLocal}
}

func webDoc(url, content string) document.Document {
	return document.Document{ID: url, Source: url, Content: content, Origin: document.OriginWeb}
}

var errProvider = errors.New("provider unavailable")

func newTestEngine(t *testing.T, deps Dependencies, opts ...Option) *Engine {
	t.Helper()
	if deps.Sessions == nil {
		deps.Sessions = session.NewRegistry(nil)
	}
	engine, err := NewEngine(deps, opts...)
	require.NoError(t, err)
	return engine
}
