package mcpserver

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweetpotato0/adaptive-rag/feedback"
	"github.com/sweetpotato0/adaptive-rag/rag/adaptive"
	"github.com/sweetpotato0/adaptive-rag/rag/document"
	"github.com/sweetpotato0/adaptive-rag/session"
)

type fakeRunner struct {
	res *adaptive.TurnResult
	err error
}

func (f *fakeRunner) RunTurn(_ context.Context, req adaptive.TurnRequest) (*adaptive.TurnResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := *f.res
	out.Question = req.Question
	if req.ThreadID != "" {
		out.ThreadID = req.ThreadID
	}
	return &out, nil
}

type discardSink struct{}

func (discardSink) Write(context.Context, feedback.Entry) error { return nil }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func connect(t *testing.T, s *Server) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()
	clientT, serverT := mcp.NewInMemoryTransports()

	ss, err := s.MCP().Connect(ctx, serverT, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ss.Close() })

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "0.0.1"}, nil)
	cs, err := client.Connect(ctx, clientT, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cs.Close() })
	return cs
}

func callText(t *testing.T, cs *mcp.ClientSession, name string, args map[string]any) (string, bool) {
	t.Helper()
	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err)
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok, "expected text content, got %T", res.Content[0])
	return text.Text, res.IsError
}

func newServer(runner TurnRunner, withFeedback bool) (*Server, *session.Registry) {
	reg := session.NewRegistry(nil, session.WithLogger(quietLogger()))
	var fb FeedbackLogger
	if withFeedback {
		fb = feedback.NewRecorder(discardSink{}, feedback.WithLogger(quietLogger()))
	}
	return New("adaptive-rag-test", "0.0.1", runner, reg, fb, WithLogger(quietLogger())), reg
}

func TestListTools(t *testing.T) {
	s, _ := newServer(&fakeRunner{}, true)
	cs := connect(t, s)

	res, err := cs.ListTools(context.Background(), nil)
	require.NoError(t, err)
	var names []string
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{"ask", "history", "reset_session", "feedback"}, names)
}

func TestFeedbackToolOmittedWithoutRecorder(t *testing.T) {
	s, _ := newServer(&fakeRunner{}, false)
	cs := connect(t, s)

	res, err := cs.ListTools(context.Background(), nil)
	require.NoError(t, err)
	for _, tool := range res.Tools {
		assert.NotEqual(t, "feedback", tool.Name)
	}
}

func TestAskTool(t *testing.T) {
	runner := &fakeRunner{res: &adaptive.TurnResult{
		ThreadID: "user_session_x",
		Answer:   "Paris.",
		Documents: []document.Document{
			{Content: "c", Source: "geo.md"},
		},
	}}
	s, _ := newServer(runner, false)
	cs := connect(t, s)

	text, isErr := callText(t, cs, "ask", map[string]any{"question": "capital of France?"})
	assert.False(t, isErr)
	assert.True(t, strings.HasPrefix(text, "Paris."))
	assert.Contains(t, text, "- geo.md")
	assert.Contains(t, text, "thread_id: user_session_x")
}

func TestAskToolReportsDescribedError(t *testing.T) {
	s, _ := newServer(&fakeRunner{err: fmt.Errorf("%w: 4 steps", adaptive.ErrRecursionLimit)}, false)
	cs := connect(t, s)

	text, isErr := callText(t, cs, "ask", map[string]any{"question": "q"})
	assert.True(t, isErr)
	assert.Contains(t, text, "more retrieval steps")
}

func TestHistoryAndReset(t *testing.T) {
	s, reg := newServer(&fakeRunner{}, false)
	cs := connect(t, s)
	ctx := context.Background()

	text, _ := callText(t, cs, "history", map[string]any{"thread_id": "user_session_h"})
	assert.Equal(t, "No questions asked yet.", text)

	require.NoError(t, reg.AppendTurn(ctx, "user_session_h", "q1", "a1"))
	text, isErr := callText(t, cs, "history", map[string]any{"thread_id": "user_session_h"})
	assert.False(t, isErr)
	assert.Contains(t, text, "Q: q1")
	assert.Contains(t, text, "A: a1")

	text, isErr = callText(t, cs, "reset_session", map[string]any{"thread_id": "user_session_h"})
	assert.False(t, isErr)
	assert.True(t, strings.HasPrefix(text, session.ThreadPrefix))
	assert.NotEqual(t, "user_session_h", text)

	msgs, err := reg.Memory(ctx, "user_session_h")
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestFeedbackTool(t *testing.T) {
	s, _ := newServer(&fakeRunner{}, true)
	cs := connect(t, s)

	text, isErr := callText(t, cs, "feedback", map[string]any{"question": "q", "answer": "a", "rating": "negative"})
	assert.False(t, isErr)
	assert.Equal(t, "Feedback logged successfully: negative", text)

	text, isErr = callText(t, cs, "feedback", map[string]any{"question": "q", "answer": "a", "rating": "great"})
	assert.True(t, isErr)
	assert.True(t, strings.HasPrefix(text, "Failed to log feedback:"))
}
