// Package mcpserver exposes the adaptive workflow as MCP tools.
package mcpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/sweetpotato0/adaptive-rag/pkg/logging"
	"github.com/sweetpotato0/adaptive-rag/rag/adaptive"
	"github.com/sweetpotato0/adaptive-rag/session"
)

// TurnRunner runs one question through the workflow.
type TurnRunner interface {
	RunTurn(ctx context.Context, req adaptive.TurnRequest) (*adaptive.TurnResult, error)
}

// SessionManager resets and lists conversation threads.
type SessionManager interface {
	Reset(ctx context.Context, threadID string) (string, error)
	History(ctx context.Context, threadID string) ([]session.Exchange, error)
}

// FeedbackLogger turns a rating into a status line.
type FeedbackLogger interface {
	Log(ctx context.Context, question, answer, rating string) string
}

// Server wraps an mcp.Server with the workflow tools registered.
type Server struct {
	srv      *mcp.Server
	engine   TurnRunner
	sessions SessionManager
	feedback FeedbackLogger
	logger   *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithLogger overrides the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New registers ask, history and reset_session, plus feedback when fb is set.
func New(name, version string, engine TurnRunner, sessions SessionManager, fb FeedbackLogger, opts ...Option) *Server {
	s := &Server{engine: engine, sessions: sessions, feedback: fb}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logging.WithComponent("mcpserver")
	}
	if name == "" {
		name = "adaptive-rag"
	}
	s.srv = mcp.NewServer(&mcp.Implementation{
		Name:    name,
		Version: version,
		Title:   "Adaptive RAG assistant",
	}, nil)

	s.addAskTool()
	s.addHistoryTool()
	s.addResetTool()
	if s.feedback != nil {
		s.addFeedbackTool()
	}
	return s
}

// MCP returns the underlying server.
func (s *Server) MCP() *mcp.Server {
	return s.srv
}

// RunStdio serves over stdin/stdout until ctx ends or the client disconnects.
func (s *Server) RunStdio(ctx context.Context) error {
	s.logger.Info("mcp server running on stdio")
	return s.srv.Run(ctx, &mcp.StdioTransport{})
}

// Handler serves the streamable HTTP transport.
func (s *Server) Handler() http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return s.srv }, nil)
}

func textResult(text string, isError bool) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
		IsError: isError,
	}
}

func (s *Server) addAskTool() {
	type args struct {
		Question string `json:"question" jsonschema:"The question to answer"`
		ThreadID string `json:"thread_id,omitempty" jsonschema:"Conversation thread id; omit to start a new thread"`
	}

	mcp.AddTool(s.srv, &mcp.Tool{
		Name:        "ask",
		Description: "Answer a question from the local knowledge base, falling back to web search",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, a args) (*mcp.CallToolResult, any, error) {
		res, err := s.engine.RunTurn(ctx, adaptive.TurnRequest{Question: a.Question, ThreadID: a.ThreadID})
		if err != nil {
			s.logger.Warn("ask failed", "thread_id", a.ThreadID, "error", err)
			return textResult(adaptive.Describe(err), true), nil, nil
		}
		return textResult(formatAnswer(res), false), nil, nil
	})
}

func (s *Server) addHistoryTool() {
	type args struct {
		ThreadID string `json:"thread_id" jsonschema:"Conversation thread id"`
	}

	mcp.AddTool(s.srv, &mcp.Tool{
		Name:        "history",
		Description: "List the question and answer pairs of a conversation thread",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, a args) (*mcp.CallToolResult, any, error) {
		history, err := s.sessions.History(ctx, a.ThreadID)
		if err != nil {
			return textResult(fmt.Sprintf("Failed to load history: %v", err), true), nil, nil
		}
		if len(history) == 0 {
			return textResult("No questions asked yet.", false), nil, nil
		}
		var b strings.Builder
		for i, ex := range history {
			fmt.Fprintf(&b, "%d. Q: %s\n   A: %s\n", i+1, ex.Question, ex.Answer)
		}
		return textResult(strings.TrimRight(b.String(), "\n"), false), nil, nil
	})
}

func (s *Server) addResetTool() {
	type args struct {
		ThreadID string `json:"thread_id" jsonschema:"Conversation thread id to clear"`
	}

	mcp.AddTool(s.srv, &mcp.Tool{
		Name:        "reset_session",
		Description: "Clear a conversation thread and return a fresh thread id",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, a args) (*mcp.CallToolResult, any, error) {
		next, err := s.sessions.Reset(ctx, a.ThreadID)
		if err != nil {
			return textResult(fmt.Sprintf("Failed to reset session: %v", err), true), nil, nil
		}
		return textResult(next, false), nil, nil
	})
}

func (s *Server) addFeedbackTool() {
	type args struct {
		Question string `json:"question" jsonschema:"The question that was asked"`
		Answer   string `json:"answer" jsonschema:"The answer being rated"`
		Rating   string `json:"rating" jsonschema:"positive or negative"`
	}

	mcp.AddTool(s.srv, &mcp.Tool{
		Name:        "feedback",
		Description: "Record a positive or negative rating for an answer",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, a args) (*mcp.CallToolResult, any, error) {
		status := s.feedback.Log(ctx, a.Question, a.Answer, a.Rating)
		return textResult(status, strings.HasPrefix(status, "Failed")), nil, nil
	})
}

func formatAnswer(res *adaptive.TurnResult) string {
	var b strings.Builder
	b.WriteString(res.Answer)
	if sources := res.Sources(); len(sources) > 0 {
		b.WriteString("\n\nSources:\n")
		for _, src := range sources {
			fmt.Fprintf(&b, "- %s\n", src)
		}
	}
	fmt.Fprintf(&b, "\nthread_id: %s", res.ThreadID)
	return strings.TrimRight(b.String(), "\n")
}
