// Package adaptive implements the adaptive retrieval workflow: route a
// question to the local index or the web, grade the evidence, retry with web
// results or a rewritten query when too little survives, generate an answer
// and verify it against the evidence.
package adaptive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/sweetpotato0/adaptive-rag/graph"
	"github.com/sweetpotato0/adaptive-rag/message"
	"github.com/sweetpotato0/adaptive-rag/pkg/logging"
	"github.com/sweetpotato0/adaptive-rag/pkg/telemetry"
	"github.com/sweetpotato0/adaptive-rag/rag/document"
	"github.com/sweetpotato0/adaptive-rag/session"
	"github.com/sweetpotato0/adaptive-rag/websearch"
)

// Graph node names.
const (
	nodeStart     = "start"
	nodeRoute     = "route"
	nodeRetrieve  = "retrieve"
	nodeGrade     = "grade"
	nodeDecide    = "decide"
	nodeWebSearch = "web_search"
	nodeRewrite   = "rewrite"
	nodeGenerate  = "generate"
	nodeVerify    = "verify"
	nodeReview    = "review"
	nodeEnd       = "end"
)

const (
	reviewRegenerate = "regenerate"
	reviewDone       = "done"
)

// EvidenceStore returns the top local documents for a query.
type EvidenceStore interface {
	Retrieve(ctx context.Context, query string) ([]document.Document, error)
}

// Sessions is the conversation memory collaborator.
type Sessions interface {
	Acquire(ctx context.Context, threadID string) (func(), error)
	Memory(ctx context.Context, threadID string) ([]*message.Message, error)
	AppendTurn(ctx context.Context, threadID, question, answer string) error
}

// Dependencies groups the collaborators of the engine. Store, Relevance and
// Generator are required. A nil Router always picks the local index, a nil
// Web disables web search, a nil Groundedness skips verification, a nil
// Rewriter disables rewriting and nil Sessions keeps memory in process.
type Dependencies struct {
	Store        EvidenceStore
	Web          websearch.Provider
	Router       Router
	Relevance    RelevanceGrader
	Generator    Generator
	Groundedness GroundednessGrader
	Rewriter     Rewriter
	Sessions     Sessions
}

// TurnRequest is one invocation of the workflow.
type TurnRequest struct {
	Question string `json:"question"`
	ThreadID string `json:"thread_id"`
	// RecursionLimit bounds the graph nodes entered. Zero uses the configured default.
	RecursionLimit int `json:"recursion_limit,omitempty"`
}

// TurnResult is what survives a turn.
type TurnResult struct {
	ThreadID           string              `json:"thread_id"`
	Question           string              `json:"question"`
	RewrittenQuestion  string              `json:"rewritten_question,omitempty"`
	Answer             string              `json:"answer"`
	Documents          []document.Document `json:"documents"`
	Grounded           bool                `json:"grounded"`
	Verdict            Verdict             `json:"verdict"`
	Route              Route               `json:"route"`
	RetryCount         int                 `json:"retry_count"`
	WebSearchTriggered bool                `json:"web_search_triggered"`
	Generations        int                 `json:"generations"`
	Steps              int                 `json:"steps"`
}

// Sources returns the unique sorted sources of the evidence used.
func (r *TurnResult) Sources() []string {
	if r == nil {
		return nil
	}
	return document.Sources(r.Documents)
}

// Engine runs turns. It is safe for concurrent use; turns on the same thread
// id are serialized through Sessions.
type Engine struct {
	cfg     *Config
	deps    Dependencies
	web     websearch.Provider
	control RetryController
	graph   *graph.Graph
	tracer  trace.Tracer
	logger  *slog.Logger
}

// NewEngine validates deps and builds the workflow graph.
func NewEngine(deps Dependencies, opts ...Option) (*Engine, error) {
	cfg := applyOptions(opts)
	if deps.Store == nil {
		return nil, fmt.Errorf("evidence store is required")
	}
	if deps.Relevance == nil {
		return nil, fmt.Errorf("relevance grader is required")
	}
	if deps.Generator == nil {
		return nil, fmt.Errorf("generator is required")
	}
	if deps.Sessions == nil {
		deps.Sessions = session.NewRegistry(nil)
	}
	if floor := cfg.MaxRetries + cfg.MaxRegenerations + 2; cfg.GraphMaxVisits < floor {
		cfg.GraphMaxVisits = floor
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.WithComponent("adaptive_engine")
	}
	e := &Engine{
		cfg:     cfg,
		deps:    deps,
		control: RetryController{MaxRetries: cfg.MaxRetries, MinRelevant: cfg.MinRelevant, RewriteAfterWeb: cfg.RewriteAfterWeb},
		tracer:  telemetry.Tracer("github.com/sweetpotato0/adaptive-rag/rag/adaptive"),
		logger:  logger.With("engine", cfg.Name),
	}
	if deps.Web != nil {
		e.web = websearch.BestEffort(deps.Web, e.logger)
	}

	g, err := graph.NewBuilder().
		AddNode(nodeStart, graph.NodeTypeStart, e.node(nodeStart, e.start)).
		AddNode(nodeRoute, graph.NodeTypeCustom, e.node(nodeRoute, e.route)).
		AddNode(nodeRetrieve, graph.NodeTypeCustom, e.node(nodeRetrieve, e.retrieve)).
		AddNode(nodeGrade, graph.NodeTypeCustom, e.node(nodeGrade, e.grade)).
		AddConditionNode(nodeDecide, e.decide, map[string]string{
			string(DecisionGenerate):   nodeGenerate,
			string(DecisionBestEffort): nodeGenerate,
			string(DecisionWebSearch):  nodeWebSearch,
			string(DecisionRewrite):    nodeRewrite,
		}).
		AddNode(nodeWebSearch, graph.NodeTypeCustom, e.node(nodeWebSearch, e.webSearch)).
		AddNode(nodeRewrite, graph.NodeTypeCustom, e.node(nodeRewrite, e.rewrite)).
		AddNode(nodeGenerate, graph.NodeTypeCustom, e.node(nodeGenerate, e.generate)).
		AddNode(nodeVerify, graph.NodeTypeCustom, e.node(nodeVerify, e.verify)).
		AddConditionNode(nodeReview, e.review, map[string]string{
			reviewRegenerate: nodeGenerate,
			reviewDone:       nodeEnd,
		}).
		AddNode(nodeEnd, graph.NodeTypeEnd, e.node(nodeEnd, e.start)).
		AddEdge(nodeStart, nodeRoute).
		AddEdge(nodeRoute, nodeRetrieve).
		AddEdge(nodeRetrieve, nodeGrade).
		AddEdge(nodeGrade, nodeDecide).
		AddEdge(nodeWebSearch, nodeGrade).
		AddEdge(nodeRewrite, nodeRetrieve).
		AddEdge(nodeGenerate, nodeVerify).
		AddEdge(nodeVerify, nodeReview).
		SetStart(nodeStart).
		SetEnd(nodeEnd).
		SetMaxVisits(cfg.GraphMaxVisits).
		Build()
	if err != nil {
		return nil, fmt.Errorf("build workflow graph: %w", err)
	}
	e.graph = g

	e.logger.Info("adaptive engine initialised",
		"max_retries", cfg.MaxRetries,
		"max_regenerations", cfg.MaxRegenerations,
		"min_relevant", cfg.MinRelevant,
		"web_search", e.web != nil,
		"rewrite", cfg.QueryRewrite && deps.Rewriter != nil,
		"verify", deps.Groundedness != nil,
	)
	return e, nil
}

// RunTurn answers one question on a thread. Memory is appended only after
// the workflow completes, so a failed or cancelled turn leaves it unchanged.
// An empty ThreadID starts a new thread, reported in the result.
func (e *Engine) RunTurn(ctx context.Context, req TurnRequest) (res *TurnResult, err error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}
	thread := strings.TrimSpace(req.ThreadID)
	if thread == "" {
		thread = session.NewThreadID()
	}
	limit := req.RecursionLimit
	if limit <= 0 {
		limit = e.cfg.RecursionLimit
	}

	ctx, span := e.tracer.Start(ctx, "adaptive.turn", trace.WithAttributes(
		attribute.String("thread_id", thread),
		attribute.Int("recursion_limit", limit),
	))
	defer func() { telemetry.End(span, err) }()

	release, err := e.deps.Sessions.Acquire(ctx, thread)
	if err != nil {
		return nil, fmt.Errorf("acquire session %s: %w", thread, err)
	}
	defer release()

	history, err := e.deps.Sessions.Memory(ctx, thread)
	if err != nil {
		return nil, err
	}

	st := &TurnState{
		ThreadID: thread,
		Question: question,
		History:  message.Window(history, e.cfg.HistoryWindow),
	}
	logger := e.logger.With("thread_id", thread)
	logger.Info("turn started", "question", trimForLog(question, 120), "history", len(st.History))

	steps := 0
	_, err = e.graph.Execute(ctx, graph.State{turnStateKey: st},
		graph.WithStepLimit(limit),
		graph.WithStepObserver(func(ctx context.Context, step int, node string) {
			steps = step
			logger.Debug("transition", "step", step, "node", node, "retry_count", st.RetryCount)
		}),
	)
	if err != nil {
		if errors.Is(err, graph.ErrStepLimit) || errors.Is(err, graph.ErrMaxVisits) {
			err = fmt.Errorf("%w: %w", ErrRecursionLimit, err)
		}
		logger.Error("turn failed", "error", err, "steps", steps, "retry_count", st.RetryCount)
		return nil, err
	}

	if appendErr := e.deps.Sessions.AppendTurn(ctx, thread, question, st.Generation); appendErr != nil {
		logger.Error("conversation memory not updated", "error", appendErr)
	}

	res = &TurnResult{
		ThreadID:           thread,
		Question:           question,
		RewrittenQuestion:  st.RewrittenQuestion,
		Answer:             st.Generation,
		Documents:          document.CloneAll(st.Context),
		Grounded:           st.Grounded == VerdictGrounded,
		Verdict:            st.Grounded,
		Route:              st.Route,
		RetryCount:         st.RetryCount,
		WebSearchTriggered: st.WebSearchTriggered,
		Generations:        st.Generations,
		Steps:              steps,
	}
	span.SetAttributes(
		attribute.String("route", string(res.Route)),
		attribute.Int("retry_count", res.RetryCount),
		attribute.Bool("web_search", res.WebSearchTriggered),
		attribute.String("grounded", res.Verdict.String()),
	)
	logger.Info("turn completed",
		"route", res.Route,
		"retry_count", res.RetryCount,
		"web_search", res.WebSearchTriggered,
		"grounded", res.Verdict.String(),
		"documents", len(res.Documents),
		"generations", res.Generations,
		"steps", steps,
	)
	return res, nil
}

// node wraps a stage with a span and the stage-boundary state check.
func (e *Engine) node(name string, fn func(context.Context, *TurnState) error) graph.NodeFunc {
	return func(ctx context.Context, state graph.State) (graph.State, error) {
		st, err := getState(state)
		if err != nil {
			return state, err
		}
		ctx, span := e.tracer.Start(ctx, "adaptive."+name)
		err = fn(ctx, st)
		if err == nil {
			err = st.check(e.cfg)
		}
		span.SetAttributes(
			attribute.Int("retry_count", st.RetryCount),
			attribute.Int("documents", len(st.Documents)),
		)
		telemetry.End(span, err)
		return state, err
	}
}

func (e *Engine) start(ctx context.Context, st *TurnState) error {
	return nil
}

func (e *Engine) route(ctx context.Context, st *TurnState) error {
	st.Route = RouteLocal
	if e.deps.Router != nil {
		st.Route = e.deps.Router.Route(ctx, st.Question)
	}
	if st.Route == RouteWeb && e.web == nil {
		e.logger.Debug("web route without provider, using local index")
		st.Route = RouteLocal
	}
	if st.Route != RouteWeb {
		st.Route = RouteLocal
	}
	e.logger.Debug("question routed", "route", st.Route)
	return nil
}

func (e *Engine) retrieve(ctx context.Context, st *TurnState) error {
	query := st.Query()
	if st.Route == RouteWeb {
		st.WebSearchTriggered = true
		st.Pending = e.searchWeb(ctx, query)
		return ctx.Err()
	}
	docs, err := e.deps.Store.Retrieve(ctx, query)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		e.logger.Warn("local retrieval failed, continuing without local evidence", "error", err)
		docs = nil
	}
	st.Pending = docs
	e.logger.Debug("local retrieval completed", "query", trimForLog(query, 80), "hits", len(docs))
	return nil
}

func (e *Engine) searchWeb(ctx context.Context, query string) []document.Document {
	docs, _ := e.web.Search(ctx, query)
	e.logger.Debug("web search completed", "query", trimForLog(query, 80), "hits", len(docs))
	return docs
}

func (e *Engine) grade(ctx context.Context, st *TurnState) error {
	kept := 0
	for _, doc := range st.Pending {
		if err := ctx.Err(); err != nil {
			return err
		}
		if e.deps.Relevance.Grade(ctx, st.Question, doc) {
			st.Documents = append(st.Documents, doc)
			kept++
		}
	}
	st.Documents = document.Dedupe(st.Documents)
	e.logger.Debug("documents graded", "candidates", len(st.Pending), "relevant", kept, "retained", len(st.Documents))
	st.Pending = nil
	return nil
}

func (e *Engine) decide(ctx context.Context, state graph.State) (string, error) {
	st, err := getState(state)
	if err != nil {
		return "", err
	}
	st.Decision = e.control.Decide(Observation{
		Relevant:         len(st.Documents),
		RetryCount:       st.RetryCount,
		WebSearchTried:   st.WebSearchTriggered,
		WebAvailable:     e.web != nil,
		WebRouted:        st.Route == RouteWeb,
		RewriteAvailable: e.cfg.QueryRewrite && e.deps.Rewriter != nil,
	})
	if st.Decision == DecisionBestEffort {
		e.logger.Info("proceeding with best-effort evidence", "retained", len(st.Documents), "retry_count", st.RetryCount)
	}
	return string(st.Decision), nil
}

func (e *Engine) webSearch(ctx context.Context, st *TurnState) error {
	st.RetryCount++
	st.WebSearchTriggered = true
	st.Pending = e.searchWeb(ctx, st.Query())
	return ctx.Err()
}

func (e *Engine) rewrite(ctx context.Context, st *TurnState) error {
	st.RetryCount++
	before := st.Query()
	st.RewrittenQuestion = e.deps.Rewriter.Rewrite(ctx, before)
	e.logger.Debug("question rewritten", "from", trimForLog(before, 80), "to", trimForLog(st.RewrittenQuestion, 80))
	return ctx.Err()
}

func (e *Engine) generate(ctx context.Context, st *TurnState) error {
	st.Context = e.fitContext(st.Documents)
	answer, err := e.deps.Generator.Generate(ctx, st.Question, st.History, st.Context)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %w", ErrGeneration, err)
	}
	st.Generation = answer
	st.Generations++
	st.Grounded = VerdictUnknown
	return nil
}

// fitContext keeps the leading documents whose combined token count stays
// within the configured budget.
func (e *Engine) fitContext(docs []document.Document) []document.Document {
	if e.cfg.Tokenizer == nil || e.cfg.ContextTokens <= 0 {
		return docs
	}
	used := 0
	for i, doc := range docs {
		used += e.cfg.Tokenizer.CountTokens(doc.Content)
		if used > e.cfg.ContextTokens {
			e.logger.Debug("context budget reached", "kept", i, "dropped", len(docs)-i, "max_tokens", e.cfg.ContextTokens)
			return docs[:i]
		}
	}
	return docs
}

func (e *Engine) verify(ctx context.Context, st *TurnState) error {
	if e.deps.Groundedness == nil || len(st.Context) == 0 {
		st.Grounded = VerdictUnknown
		return nil
	}
	if e.deps.Groundedness.Check(ctx, st.Generation, st.Context) {
		st.Grounded = VerdictGrounded
	} else {
		st.Grounded = VerdictUngrounded
	}
	return ctx.Err()
}

func (e *Engine) review(ctx context.Context, state graph.State) (string, error) {
	st, err := getState(state)
	if err != nil {
		return "", err
	}
	if st.Grounded == VerdictUngrounded {
		if st.Generations <= e.cfg.MaxRegenerations {
			e.logger.Info("answer not grounded, regenerating", "generation", st.Generations)
			return reviewRegenerate, nil
		}
		e.logger.Warn("answer not grounded, returning unverified", "generations", st.Generations)
	}
	return reviewDone, nil
}
