package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	openaisdk "github.com/openai/openai-go/v3"

	"github.com/sweetpotato0/adaptive-rag/config"
	"github.com/sweetpotato0/adaptive-rag/contrib/chunking/markdown"
	"github.com/sweetpotato0/adaptive-rag/contrib/chunking/token"
	geminiembedder "github.com/sweetpotato0/adaptive-rag/contrib/embedder/gemini"
	langchainembedder "github.com/sweetpotato0/adaptive-rag/contrib/embedder/langchain"
	openaiembedder "github.com/sweetpotato0/adaptive-rag/contrib/embedder/openai"
	"github.com/sweetpotato0/adaptive-rag/contrib/provider/claude"
	"github.com/sweetpotato0/adaptive-rag/contrib/provider/gemini"
	"github.com/sweetpotato0/adaptive-rag/contrib/provider/langchain"
	"github.com/sweetpotato0/adaptive-rag/contrib/provider/openai"
	"github.com/sweetpotato0/adaptive-rag/contrib/reranker/cohere"
	"github.com/sweetpotato0/adaptive-rag/contrib/reranker/mmr"
	"github.com/sweetpotato0/adaptive-rag/contrib/tokenizer/tiktoken"
	"github.com/sweetpotato0/adaptive-rag/contrib/vector/inmemory"
	"github.com/sweetpotato0/adaptive-rag/contrib/vector/pg"
	"github.com/sweetpotato0/adaptive-rag/contrib/websearch/duckduckgo"
	"github.com/sweetpotato0/adaptive-rag/contrib/websearch/tavily"
	"github.com/sweetpotato0/adaptive-rag/feedback"
	feedbackbadger "github.com/sweetpotato0/adaptive-rag/feedback/badger"
	feedbackfile "github.com/sweetpotato0/adaptive-rag/feedback/file"
	"github.com/sweetpotato0/adaptive-rag/llm"
	"github.com/sweetpotato0/adaptive-rag/pkg/logging"
	"github.com/sweetpotato0/adaptive-rag/pkg/retry"
	"github.com/sweetpotato0/adaptive-rag/prompt"
	"github.com/sweetpotato0/adaptive-rag/rag/adaptive"
	"github.com/sweetpotato0/adaptive-rag/rag/chunking"
	"github.com/sweetpotato0/adaptive-rag/rag/preprocess"
	"github.com/sweetpotato0/adaptive-rag/rag/reranker"
	"github.com/sweetpotato0/adaptive-rag/rag/retriever"
	"github.com/sweetpotato0/adaptive-rag/rag/tokenizer"
	"github.com/sweetpotato0/adaptive-rag/session"
	sessionstore "github.com/sweetpotato0/adaptive-rag/session/store"
	"github.com/sweetpotato0/adaptive-rag/vector"
	"github.com/sweetpotato0/adaptive-rag/websearch"
)

// app holds every wired collaborator of one process.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	engine    *adaptive.Engine
	sessions  *session.Registry
	feedback  *feedback.Recorder
	retriever *retriever.Retriever

	closers []func() error
}

func (a *app) onClose(fn func() error) {
	a.closers = append(a.closers, fn)
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}

func buildApp(ctx context.Context, cfg *config.Config) (a *app, err error) {
	a = &app{cfg: cfg, logger: logging.WithComponent("cli")}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	client, err := a.buildLLM(ctx)
	if err != nil {
		return nil, fmt.Errorf("llm: %w", err)
	}
	client = llm.WithRetry(client, retry.Default())

	if a.retriever, err = a.buildRetriever(ctx); err != nil {
		return nil, fmt.Errorf("evidence store: %w", err)
	}

	store, err := a.buildSessionStore(ctx)
	if err != nil {
		return nil, fmt.Errorf("session store: %w", err)
	}
	a.sessions = session.NewRegistry(store, session.WithWindow(cfg.Workflow.HistoryWindow))

	sink, err := a.buildFeedbackSink()
	if err != nil {
		return nil, fmt.Errorf("feedback: %w", err)
	}
	a.feedback = feedback.NewRecorder(sink)

	deps, err := a.buildComponents(client)
	if err != nil {
		return nil, err
	}
	deps.Store = a.retriever
	deps.Sessions = a.sessions
	if deps.Web, err = a.buildWebSearch(); err != nil {
		return nil, fmt.Errorf("web search: %w", err)
	}

	opts := []adaptive.Option{
		adaptive.WithMaxRetries(cfg.Workflow.MaxRetries),
		adaptive.WithMaxRegenerations(cfg.Workflow.MaxRegenerations),
		adaptive.WithMinRelevant(cfg.Workflow.MinRelevant),
		adaptive.WithHistoryWindow(cfg.Workflow.HistoryWindow),
		adaptive.WithRecursionLimit(cfg.Workflow.RecursionLimit),
		adaptive.WithQueryRewrite(cfg.Workflow.QueryRewrite),
		adaptive.WithRewriteAfterWeb(cfg.Workflow.RewriteAfterWeb),
	}
	if budget := cfg.Workflow.ContextTokens; budget > 0 {
		opts = append(opts, adaptive.WithContextBudget(a.tokenizer(), budget))
	}
	a.engine, err = adaptive.NewEngine(deps, opts...)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (a *app) buildLLM(ctx context.Context) (llm.Client, error) {
	c := a.cfg.LLM
	switch c.Provider {
	case "openai":
		oc := openai.DefaultConfig().WithAPIKey(a.cfg.Keys.OpenAI).WithModel(c.Model)
		if c.BaseURL != "" {
			oc = oc.WithBaseURL(c.BaseURL)
		}
		oc.Temperature = c.Temperature
		return openai.New(oc), nil
	case "claude":
		cc := claude.DefaultConfig(a.cfg.Keys.Anthropic, c.BaseURL)
		cc.Model = c.Model
		cc.Temperature = c.Temperature
		return claude.New(cc), nil
	case "gemini":
		gc := gemini.DefaultConfig(a.cfg.Keys.Google)
		gc.Model = c.Model
		gc.Temperature = float32(c.Temperature)
		p, err := gemini.New(ctx, gc)
		if err != nil {
			return nil, err
		}
		a.onClose(p.Close)
		return p, nil
	case "langchain":
		return langchain.New(langchain.Config{
			BaseURL:     c.BaseURL,
			Token:       a.cfg.Keys.OpenAI,
			Model:       c.Model,
			Temperature: c.Temperature,
		})
	}
	return nil, fmt.Errorf("unknown provider %q", c.Provider)
}

func (a *app) buildEmbedder(ctx context.Context) (vector.Embedder, error) {
	c := a.cfg.Embedder
	switch c.Provider {
	case "openai":
		return openaiembedder.New(a.cfg.Keys.OpenAI, c.BaseURL, openaisdk.EmbeddingModel(c.Model), c.Dimension), nil
	case "gemini":
		e, err := geminiembedder.New(ctx, a.cfg.Keys.Google, c.Model, c.Dimension)
		if err != nil {
			return nil, err
		}
		a.onClose(e.Close)
		return e, nil
	case "langchain":
		return langchainembedder.New(c.BaseURL, a.cfg.Keys.OpenAI, c.Model, c.Dimension)
	}
	return nil, fmt.Errorf("unknown embedder %q", c.Provider)
}

func (a *app) buildRetriever(ctx context.Context) (*retriever.Retriever, error) {
	emb, err := a.buildEmbedder(ctx)
	if err != nil {
		return nil, err
	}
	emb = vector.WithRetry(emb, retry.Default())

	var store vector.VectorStore
	switch a.cfg.Vector.Backend {
	case "postgres":
		pc := pg.DefaultPGVectorConfig()
		p := a.cfg.Vector.Postgres
		pc.Host, pc.Port, pc.User, pc.Password = p.Host, p.Port, p.User, p.Password
		pc.DBName, pc.SSLMode, pc.TableName = p.DBName, p.SSLMode, p.Table
		pc.Dimension = a.cfg.Embedder.Dimension
		s, err := pg.NewPGVectorStore(ctx, pc)
		if err != nil {
			return nil, err
		}
		a.onClose(s.Close)
		store = s
	default:
		store = inmemory.NewInMemoryVectorStore()
	}

	r := a.cfg.Retrieval
	rer, err := a.buildReranker()
	if err != nil {
		return nil, err
	}
	ret, err := retriever.New(store, emb, a.buildChunker(), rer,
		retriever.WithTopK(r.TopK),
		retriever.WithMinScore(float32(r.MinScore)),
	)
	if err != nil {
		return nil, err
	}
	a.onClose(func() error {
		ret.Close()
		return nil
	})
	return ret, nil
}

func (a *app) buildChunker() chunking.Chunker {
	r := a.cfg.Retrieval
	simple := chunking.NewSimpleChunker(chunking.WithChunkSize(r.ChunkSize), chunking.WithOverlap(r.ChunkOverlap))
	switch r.Chunker {
	case "markdown":
		return markdown.New(markdown.WithMaxCharacters(r.ChunkSize), markdown.WithFallbackChunker(simple))
	case "token":
		return token.New(a.tokenizer(), token.WithMaxTokens(r.ChunkSize/4), token.WithOverlapTokens(r.ChunkOverlap/4))
	}
	return simple
}

func (a *app) buildReranker() (reranker.Reranker, error) {
	switch a.cfg.Retrieval.Reranker {
	case "mmr":
		return mmr.New(), nil
	case "cohere":
		return cohere.New(a.cfg.Keys.Cohere, cohere.WithFallback(reranker.NewCosineReranker())), nil
	}
	return reranker.NewCosineReranker(), nil
}

// tokenizer prefers the model's BPE encoding and falls back to word counting.
func (a *app) tokenizer() tokenizer.Tokenizer {
	tok, err := tiktoken.NewTiktokenTokenizer(a.cfg.LLM.Model)
	if err != nil {
		tok, err = tiktoken.NewTiktokenTokenizer("cl100k_base")
	}
	if err != nil {
		a.logger.Warn("tiktoken unavailable, using simple tokenizer", "error", err)
		return tokenizer.NewSimpleTokenizer()
	}
	return tok
}

func (a *app) buildWebSearch() (websearch.Provider, error) {
	w := a.cfg.WebSearch
	httpClient := &http.Client{Timeout: w.Timeout}
	var p websearch.Provider
	switch w.Provider {
	case "none":
		return nil, nil
	case "tavily":
		t, err := tavily.New(a.cfg.Keys.Tavily, tavily.WithMaxResults(w.MaxResults), tavily.WithHTTPClient(httpClient))
		if err != nil {
			return nil, err
		}
		p = t
	default:
		p = duckduckgo.New(duckduckgo.WithMaxResults(w.MaxResults), duckduckgo.WithHTTPClient(httpClient))
	}
	policy := retry.Default()
	policy.Timeout = w.Timeout
	p = websearch.WithRetry(p, policy)
	if w.CacheTTL > 0 {
		p = websearch.NewCached(p, w.CacheTTL)
	}
	return p, nil
}

func (a *app) buildSessionStore(ctx context.Context) (session.Store, error) {
	s := a.cfg.Session
	switch s.Backend {
	case "redis":
		rc := sessionstore.DefaultRedisConfig()
		rc.Addr, rc.Password, rc.DB, rc.Prefix, rc.TTL = s.Redis.Addr, s.Redis.Password, s.Redis.DB, s.Redis.Prefix, s.Redis.TTL
		store := sessionstore.NewRedisStore(rc)
		a.onClose(store.Close)
		if err := store.Ping(ctx); err != nil {
			return nil, err
		}
		return store, nil
	case "mongo":
		mc := sessionstore.DefaultMongoConfig()
		mc.URI, mc.Database, mc.Collection = s.Mongo.URI, s.Mongo.Database, s.Mongo.Collection
		store, err := sessionstore.NewMongoStore(ctx, mc)
		if err != nil {
			return nil, err
		}
		a.onClose(func() error { return store.Close(context.Background()) })
		return store, nil
	}
	return session.NewMemoryStore(), nil
}

func (a *app) buildFeedbackSink() (feedback.Sink, error) {
	f := a.cfg.Feedback
	switch f.Backend {
	case "badger":
		store, err := feedbackbadger.Open(f.Path, false)
		if err != nil {
			return nil, err
		}
		a.onClose(store.Close)
		return store, nil
	}
	if dir := filepath.Dir(f.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	sink := feedbackfile.New(feedbackfile.Config{Path: f.Path})
	a.onClose(sink.Close)
	return sink, nil
}

func (a *app) buildComponents(client llm.Client) (adaptive.Dependencies, error) {
	prompts := prompt.Defaults()
	var (
		deps adaptive.Dependencies
		err  error
	)

	var routerOpts []adaptive.RouterOption
	if ttl := a.cfg.Workflow.RouteCacheTTL; ttl > 0 {
		routerOpts = append(routerOpts, adaptive.WithRouteCache(ttl))
	}
	if deps.Router, err = adaptive.NewModelRouter(client, prompts, routerOpts...); err != nil {
		return deps, err
	}
	if deps.Relevance, err = adaptive.NewModelRelevanceGrader(client, prompts); err != nil {
		return deps, err
	}
	if deps.Groundedness, err = adaptive.NewModelGroundednessGrader(client, prompts); err != nil {
		return deps, err
	}
	if deps.Rewriter, err = adaptive.NewModelRewriter(client, prompts); err != nil {
		return deps, err
	}

	if deps.Generator, err = adaptive.NewModelGenerator(client, prompts); err != nil {
		return deps, err
	}
	return deps, nil
}

// ingest loads files or directories into the evidence store.
func (a *app) ingest(ctx context.Context, paths []string) (int, error) {
	if len(paths) == 0 {
		return 0, nil
	}
	docs, err := preprocess.LoadPaths(paths)
	if err != nil {
		return 0, err
	}
	n, err := a.retriever.IndexDocuments(ctx, docs...)
	if err != nil {
		return n, err
	}
	a.logger.Info("documents indexed", "documents", len(docs), "chunks", n)
	return n, nil
}
