package adaptive

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweetpotato0/adaptive-rag/llm"
	"github.com/sweetpotato0/adaptive-rag/message"
	"github.com/sweetpotato0/adaptive-rag/prompt"
	"github.com/sweetpotato0/adaptive-rag/rag/document"
)

type stubLLM struct {
	reply string
	err   error
	calls int32
	last  []*message.Message
}

func (s *stubLLM) Generate(ctx context.Context, msgs []*message.Message) (*message.Message, error) {
	atomic.AddInt32(&s.calls, 1)
	s.last = msgs
	if s.err != nil {
		return nil, s.err
	}
	return message.NewMessage(message.RoleAssistant, s.reply), nil
}

var _ llm.Client = (*stubLLM)(nil)

func TestParseRoute(t *testing.T) {
	cases := map[string]Route{
		`{"datasource":"web_search"}`:                       RouteWeb,
		"```json\n{\"datasource\": \"vectorstore\"}\n```": RouteLocal,
		`Sure! {"datasource":"web_search"}`:                 RouteWeb,
		"web_search":                                        RouteWeb,
		"I am not sure":                                     RouteLocal,
		"":                                                  RouteLocal,
	}
	for raw, want := range cases {
		assert.Equal(t, want, parseRoute(raw), raw)
	}
}

func TestModelRouterFailsTowardLocalIndex(t *testing.T) {
	router, err := NewModelRouter(&stubLLM{err: errProvider}, nil)
	require.NoError(t, err)
	assert.Equal(t, RouteLocal, router.Route(context.Background(), "latest news?"))

	router, err = NewModelRouter(&stubLLM{reply: "maybe"}, nil)
	require.NoError(t, err)
	assert.Equal(t, RouteLocal, router.Route(context.Background(), "latest news?"))
}

func TestModelRouterIsDeterministicAndCached(t *testing.T) {
	client := &stubLLM{reply: `{"datasource":"web_search"}`}
	router, err := NewModelRouter(client, prompt.Defaults(), WithRouteCache(time.Minute))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		assert.Equal(t, RouteWeb, router.Route(context.Background(), "  Who won yesterday?  "))
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&client.calls))
	require.Len(t, client.last, 2)
	assert.Equal(t, message.RoleSystem, client.last[0].Role)
	assert.Equal(t, "Who won yesterday?", client.last[1].Content)
}

func TestParseYesNo(t *testing.T) {
	for raw, want := range map[string]bool{
		`{"binary_score":"yes"}`:                    true,
		`{"binary_score": "No"}`:                    false,
		"```json\n{\"binary_score\":\"yes\"}\n```": true,
		"yes.":                                      true,
		"no":                                        false,
	} {
		got, err := parseYesNo(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}
	_, err := parseYesNo("it depends")
	assert.Error(t, err)
}

func TestModelRelevanceGraderDefaultsToIrrelevant(t *testing.T) {
	doc := localDoc("a.md", "Go is a programming language.")

	grader, err := NewModelRelevanceGrader(&stubLLM{reply: `{"binary_score":"yes"}`}, nil)
	require.NoError(t, err)
	assert.True(t, grader.Grade(context.Background(), "What is Go?", doc))

	grader, err = NewModelRelevanceGrader(&stubLLM{reply: "perhaps"}, nil)
	require.NoError(t, err)
	assert.False(t, grader.Grade(context.Background(), "What is Go?", doc))

	grader, err = NewModelRelevanceGrader(&stubLLM{err: errProvider}, nil)
	require.NoError(t, err)
	assert.False(t, grader.Grade(context.Background(), "What is Go?", doc))
}

func TestModelGroundednessGraderDefaultsToUngrounded(t *testing.T) {
	docs := []document.Document{localDoc("a.md", "Paris is in France.")}

	client := &stubLLM{reply: `{"binary_score":"yes"}`}
	grader, err := NewModelGroundednessGrader(client, nil)
	require.NoError(t, err)
	assert.True(t, grader.Check(context.Background(), "Paris is in France.", docs))
	assert.Contains(t, client.last[1].Content, "Paris is in France.")

	grader, err = NewModelGroundednessGrader(&stubLLM{reply: "{}"}, nil)
	require.NoError(t, err)
	assert.False(t, grader.Check(context.Background(), "x", docs))

	grader, err = NewModelGroundednessGrader(&stubLLM{err: errProvider}, nil)
	require.NoError(t, err)
	assert.False(t, grader.Check(context.Background(), "x", docs))
}

func TestModelGeneratorRendersHistoryAndContext(t *testing.T) {
	client := &stubLLM{reply: "  Paris.  "}
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	gen, err := NewModelGenerator(client, nil, WithGeneratorLogger(logger))
	require.NoError(t, err)

	history := []*message.Message{
		message.NewMessage(message.RoleHuman, "hello"),
		message.NewMessage(message.RoleAssistant, "hi there"),
	}
	docs := []document.Document{
		localDoc("a.md", "first chunk"),
		webDoc("https://b.example", "second chunk"),
	}
	answer, err := gen.Generate(context.Background(), "Capital of France?", history, docs)
	require.NoError(t, err)
	assert.Equal(t, "Paris.", answer)

	require.Len(t, client.last, 2)
	system := client.last[0].Content
	assert.Contains(t, system, "human: hello\nassistant: hi there")
	assert.Contains(t, system, "first chunk\n\nsecond chunk")
	assert.Contains(t, system, "Question: Capital of France?")
	assert.Equal(t, "Capital of France?", client.last[1].Content)
	assert.Contains(t, logs.String(), "documents=2")
}

func TestModelGeneratorPropagatesProviderErrors(t *testing.T) {
	gen, err := NewModelGenerator(&stubLLM{err: errProvider}, nil)
	require.NoError(t, err)
	_, err = gen.Generate(context.Background(), "q", nil, nil)
	assert.ErrorIs(t, err, errProvider)

	gen, err = NewModelGenerator(&stubLLM{reply: "   "}, nil)
	require.NoError(t, err)
	_, err = gen.Generate(context.Background(), "q", nil, nil)
	assert.ErrorIs(t, err, llm.ErrEmptyResponse)

	_, err = NewModelGenerator(nil, nil)
	assert.Error(t, err)
}

func TestModelRewriter(t *testing.T) {
	rw, err := NewModelRewriter(&stubLLM{reply: `"What is the refund window for orders?"`}, nil)
	require.NoError(t, err)
	assert.Equal(t, "What is the refund window for orders?", rw.Rewrite(context.Background(), "refund?"))

	rw, err = NewModelRewriter(&stubLLM{err: errProvider}, nil)
	require.NoError(t, err)
	assert.Equal(t, "refund?", rw.Rewrite(context.Background(), "refund?"))
}

func TestRetryControllerTransitions(t *testing.T) {
	ctl := RetryController{MaxRetries: 2, MinRelevant: 1}
	cases := []struct {
		name string
		obs  Observation
		want Decision
	}{
		{"sufficient", Observation{Relevant: 1}, DecisionGenerate},
		{"sufficient at bound", Observation{Relevant: 3, RetryCount: 2, WebSearchTried: true}, DecisionGenerate},
		{"web first", Observation{WebAvailable: true, RewriteAvailable: true}, DecisionWebSearch},
		{"best effort after web", Observation{RetryCount: 1, WebSearchTried: true, WebAvailable: true, RewriteAvailable: true}, DecisionBestEffort},
		{"best effort after web route", Observation{WebSearchTried: true, WebAvailable: true, WebRouted: true, RewriteAvailable: true}, DecisionBestEffort},
		{"rewrite without web", Observation{RewriteAvailable: true}, DecisionRewrite},
		{"bound reached", Observation{RetryCount: 2, WebAvailable: true, RewriteAvailable: true}, DecisionBestEffort},
		{"nothing left", Observation{RetryCount: 1, WebSearchTried: true, WebAvailable: true}, DecisionBestEffort},
		{"no retry paths", Observation{}, DecisionBestEffort},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ctl.Decide(tc.obs))
		})
	}

	optIn := RetryController{MaxRetries: 2, MinRelevant: 1, RewriteAfterWeb: true}
	assert.Equal(t, DecisionRewrite, optIn.Decide(Observation{RetryCount: 1, WebSearchTried: true, WebAvailable: true, RewriteAvailable: true}))
	assert.Equal(t, DecisionBestEffort, optIn.Decide(Observation{WebSearchTried: true, WebAvailable: true, WebRouted: true, RewriteAvailable: true}))
	assert.Equal(t, DecisionBestEffort, optIn.Decide(Observation{RetryCount: 2, WebSearchTried: true, WebAvailable: true, RewriteAvailable: true}))

	strict := RetryController{MaxRetries: 2, MinRelevant: 2}
	assert.Equal(t, DecisionWebSearch, strict.Decide(Observation{Relevant: 1, WebAvailable: true}))
}

func TestRenderHistory(t *testing.T) {
	out := RenderHistory([]*message.Message{
		message.NewMessage(message.RoleHuman, "a"),
		nil,
		message.NewMessage(message.RoleAssistant, "b"),
	})
	assert.Equal(t, "human: a\nassistant: b", out)
	assert.Equal(t, "", RenderHistory(nil))
}

func TestTrimForLog(t *testing.T) {
	assert.Equal(t, "abc", trimForLog(" abc ", 10))
	assert.True(t, strings.HasSuffix(trimForLog("abcdefghij", 3), "..."))
}

func TestWorstCaseSteps(t *testing.T) {
	assert.Equal(t, 20, WorstCaseSteps(2, 1))
	assert.Equal(t, 9, WorstCaseSteps(0, 0))
	assert.Equal(t, 52, WorstCaseSteps(10, 1))
	assert.Equal(t, WorstCaseSteps(0, 0), WorstCaseSteps(-1, -3))
}
