package adaptive

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/sweetpotato0/adaptive-rag/llm"
	"github.com/sweetpotato0/adaptive-rag/pkg/logging"
	"github.com/sweetpotato0/adaptive-rag/prompt"
)

// Route names the first evidence source of a turn.
type Route string

const (
	RouteLocal Route = "LOCAL_INDEX"
	RouteWeb   Route = "WEB_SEARCH"
)

// Router picks the primary source for a question. Implementations must
// return exactly one of the two routes.
type Router interface {
	Route(ctx context.Context, question string) Route
}

// RouterFunc adapts a function to Router.
type RouterFunc func(ctx context.Context, question string) Route

// Route calls f.
func (f RouterFunc) Route(ctx context.Context, question string) Route { return f(ctx, question) }

// ModelRouter classifies questions with the language model. Any failure or
// unexpected label routes to the local index.
type ModelRouter struct {
	llm    llm.Client
	system string
	memo   *cache.Cache
	logger *slog.Logger
}

var _ Router = (*ModelRouter)(nil)

// RouterOption customises a ModelRouter.
type RouterOption func(*ModelRouter)

// WithRouteCache memoises decisions per question for ttl.
func WithRouteCache(ttl time.Duration) RouterOption {
	return func(r *ModelRouter) {
		if ttl > 0 {
			r.memo = cache.New(ttl, 2*ttl)
		}
	}
}

// WithRouterLogger overrides the router logger.
func WithRouterLogger(logger *slog.Logger) RouterOption {
	return func(r *ModelRouter) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewModelRouter builds a router from the route template of prompts.
func NewModelRouter(client llm.Client, prompts *prompt.Manager, opts ...RouterOption) (*ModelRouter, error) {
	system, err := renderSystem(prompts, prompt.Route)
	if err != nil {
		return nil, err
	}
	r := &ModelRouter{llm: client, system: system}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = logging.WithComponent("adaptive_router")
	}
	return r, nil
}

type routeDecision struct {
	Datasource string `json:"datasource"`
}

// Route implements Router.
func (r *ModelRouter) Route(ctx context.Context, question string) Route {
	key := strings.TrimSpace(question)
	if r.memo != nil {
		if hit, ok := r.memo.Get(key); ok {
			return hit.(Route)
		}
	}

	raw, err := llm.Complete(ctx, r.llm, r.system, key)
	if err != nil {
		r.logger.Warn("routing failed, using local index", "error", err)
		return RouteLocal
	}
	route := parseRoute(raw)
	if r.memo != nil {
		r.memo.Set(key, route, cache.DefaultExpiration)
	}
	return route
}

func parseRoute(raw string) Route {
	label := ""
	if out, err := decodeJSON[routeDecision](raw); err == nil {
		label = out.Datasource
	} else {
		label = strings.Trim(sanitizeJSON(raw), " \t\n.\"'")
	}
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "web_search", "websearch", "web":
		return RouteWeb
	default:
		return RouteLocal
	}
}

func renderSystem(prompts *prompt.Manager, name string) (string, error) {
	if prompts == nil {
		prompts = prompt.Defaults()
	}
	return prompts.Render(name, nil)
}
