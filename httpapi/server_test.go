package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweetpotato0/adaptive-rag/feedback"
	"github.com/sweetpotato0/adaptive-rag/rag/adaptive"
	"github.com/sweetpotato0/adaptive-rag/rag/document"
	"github.com/sweetpotato0/adaptive-rag/session"
)

type fakeRunner struct {
	mu   sync.Mutex
	reqs []adaptive.TurnRequest
	res  *adaptive.TurnResult
	err  error
}

func (f *fakeRunner) RunTurn(_ context.Context, req adaptive.TurnRequest) (*adaptive.TurnResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return nil, f.err
	}
	return f.res, nil
}

type memorySink struct {
	entries []feedback.Entry
	err     error
}

func (m *memorySink) Write(_ context.Context, entry feedback.Entry) error {
	if m.err != nil {
		return m.err
	}
	m.entries = append(m.entries, entry)
	return nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T, runner *fakeRunner, sink feedback.Sink) (*Server, *session.Registry) {
	t.Helper()
	reg := session.NewRegistry(nil, session.WithLogger(quietLogger()))
	var rec FeedbackRecorder
	if sink != nil {
		rec = feedback.NewRecorder(sink, feedback.WithLogger(quietLogger()))
	}
	return New(runner, reg, rec, WithLogger(quietLogger())), reg
}

func doJSON(t *testing.T, s *Server, method, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := s.App().Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp, out
}

func sampleResult() *adaptive.TurnResult {
	return &adaptive.TurnResult{
		ThreadID: "user_session_1",
		Question: "what is adaptive rag?",
		Answer:   "It routes and grades evidence.",
		Documents: []document.Document{
			{Content: "b", Source: "b.md", Origin: document.OriginLocal},
			{Content: "a", Source: "a.md", Origin: document.OriginLocal},
			{Content: "a2", Source: "a.md", Origin: document.OriginLocal},
		},
		Grounded: true,
		Verdict:  adaptive.VerdictGrounded,
		Route:    adaptive.RouteLocal,
	}
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t, &fakeRunner{}, nil)
	resp, body := doJSON(t, s, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}

func TestCreateTurn(t *testing.T) {
	runner := &fakeRunner{res: sampleResult()}
	s, _ := newTestServer(t, runner, nil)

	resp, body := doJSON(t, s, http.MethodPost, "/v1/turns", map[string]any{
		"question":        "what is adaptive rag?",
		"thread_id":       "user_session_1",
		"recursion_limit": 7,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "It routes and grades evidence.", body["answer"])
	assert.Equal(t, "grounded", body["verdict"])
	assert.Equal(t, "LOCAL_INDEX", body["route"])
	assert.Equal(t, []any{"a.md", "b.md"}, body["sources"])
	assert.Len(t, body["documents"], 3)

	require.Len(t, runner.reqs, 1)
	assert.Equal(t, 7, runner.reqs[0].RecursionLimit)
	assert.Equal(t, "user_session_1", runner.reqs[0].ThreadID)
}

func TestCreateTurnErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		text   string
	}{
		{"empty question", adaptive.ErrEmptyQuestion, http.StatusBadRequest, "Please enter a valid question."},
		{"recursion limit", fmt.Errorf("%w: 3 steps", adaptive.ErrRecursionLimit), http.StatusUnprocessableEntity, "more retrieval steps"},
		{"generation", fmt.Errorf("%w: boom", adaptive.ErrGeneration), http.StatusBadGateway, "Processing error"},
		{"timeout", context.DeadlineExceeded, http.StatusGatewayTimeout, "timed out"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestServer(t, &fakeRunner{err: tt.err}, nil)
			resp, body := doJSON(t, s, http.MethodPost, "/v1/turns", map[string]any{"question": "q", "thread_id": "t"})
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Contains(t, body["error"], tt.text)
			assert.Equal(t, "t", body["thread_id"])
		})
	}
}

func TestCreateTurnRejectsBadBody(t *testing.T) {
	s, _ := newTestServer(t, &fakeRunner{}, nil)
	req := httptest.NewRequest(http.MethodPost, "/v1/turns", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.App().Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSessionLifecycle(t *testing.T) {
	s, reg := newTestServer(t, &fakeRunner{}, nil)

	resp, body := doJSON(t, s, http.MethodPost, "/v1/sessions", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	thread, _ := body["thread_id"].(string)
	require.True(t, strings.HasPrefix(thread, session.ThreadPrefix))

	require.NoError(t, reg.AppendTurn(context.Background(), thread, "hi", "hello"))

	resp, body = doJSON(t, s, http.MethodGet, "/v1/sessions/"+thread+"/messages", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["messages"], 2)

	resp, body = doJSON(t, s, http.MethodGet, "/v1/sessions/"+thread+"/history", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["history"], 1)

	resp, body = doJSON(t, s, http.MethodDelete, "/v1/sessions/"+thread, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	next, _ := body["thread_id"].(string)
	assert.NotEqual(t, thread, next)

	msgs, err := reg.Memory(context.Background(), thread)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestFeedback(t *testing.T) {
	sink := &memorySink{}
	s, _ := newTestServer(t, &fakeRunner{}, sink)

	resp, body := doJSON(t, s, http.MethodPost, "/v1/feedback", feedbackRequest{Question: "q", Answer: "a", Rating: "positive"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "Feedback logged successfully: positive", body["status"])
	require.Len(t, sink.entries, 1)

	resp, body = doJSON(t, s, http.MethodPost, "/v1/feedback", feedbackRequest{Question: "q", Answer: "a", Rating: "meh"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body["error"], "Failed to log feedback")

	resp, _ = doJSON(t, s, http.MethodPost, "/v1/feedback", feedbackRequest{Question: "", Answer: "a", Rating: "negative"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestFeedbackSinkFailure(t *testing.T) {
	s, _ := newTestServer(t, &fakeRunner{}, &memorySink{err: fmt.Errorf("disk full")})
	resp, body := doJSON(t, s, http.MethodPost, "/v1/feedback", feedbackRequest{Question: "q", Answer: "a", Rating: "negative"})
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Contains(t, body["error"], "disk full")
}

func TestFeedbackNotConfigured(t *testing.T) {
	s, _ := newTestServer(t, &fakeRunner{}, nil)
	resp, _ := doJSON(t, s, http.MethodPost, "/v1/feedback", feedbackRequest{Question: "q", Answer: "a", Rating: "positive"})
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
