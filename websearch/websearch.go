// Package websearch defines the web search capability and the decorators
// that make it safe to call from the workflow: retry on transient transport
// failures, a TTL cache, and best-effort error absorption.
package websearch

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/sweetpotato0/adaptive-rag/pkg/logging"
	"github.com/sweetpotato0/adaptive-rag/pkg/retry"
	"github.com/sweetpotato0/adaptive-rag/rag/document"
)

// Provider returns a small ordered list of web snippets for query. Every
// document carries OriginWeb and its URL as Source.
type Provider interface {
	Search(ctx context.Context, query string) ([]document.Document, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, query string) ([]document.Document, error)

// Search calls f.
func (f ProviderFunc) Search(ctx context.Context, query string) ([]document.Document, error) {
	return f(ctx, query)
}

// NewResult builds a web evidence document.
func NewResult(title, url, snippet string) document.Document {
	content := strings.TrimSpace(snippet)
	if title = strings.TrimSpace(title); title != "" && content != "" {
		content = title + "\n" + content
	} else if content == "" {
		content = title
	}
	return document.Document{
		ID:      url,
		Title:   title,
		Content: content,
		Source:  url,
		Origin:  document.OriginWeb,
	}
}

type bestEffort struct {
	next   Provider
	logger *slog.Logger
}

// BestEffort converts every provider error into an empty result. A nil
// provider yields a provider that always returns nothing.
func BestEffort(p Provider, logger *slog.Logger) Provider {
	if logger == nil {
		logger = logging.WithComponent("websearch")
	}
	return &bestEffort{next: p, logger: logger}
}

func (b *bestEffort) Search(ctx context.Context, query string) ([]document.Document, error) {
	if b.next == nil {
		return nil, nil
	}
	docs, err := b.next.Search(ctx, query)
	if err != nil {
		b.logger.Warn("web search failed, continuing without web evidence", "error", err)
		return nil, nil
	}
	return docs, nil
}

type retrying struct {
	next   Provider
	policy retry.Policy
}

// WithRetry applies policy to every search call.
func WithRetry(p Provider, policy retry.Policy) Provider {
	return &retrying{next: p, policy: policy}
}

func (r *retrying) Search(ctx context.Context, query string) ([]document.Document, error) {
	var docs []document.Document
	err := retry.Do(ctx, r.policy, func(ctx context.Context) error {
		var err error
		docs, err = r.next.Search(ctx, query)
		return err
	})
	return docs, err
}

// Cached memoises successful searches by normalised query.
type Cached struct {
	next  Provider
	cache *cache.Cache
}

// NewCached wraps p with a TTL cache. Errors are never cached.
func NewCached(p Provider, ttl time.Duration) *Cached {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Cached{next: p, cache: cache.New(ttl, 2*ttl)}
}

// Search implements Provider.
func (c *Cached) Search(ctx context.Context, query string) ([]document.Document, error) {
	key := Normalize(query)
	if hit, ok := c.cache.Get(key); ok {
		return document.CloneAll(hit.([]document.Document)), nil
	}
	docs, err := c.next.Search(ctx, query)
	if err != nil {
		return nil, err
	}
	c.cache.Set(key, document.CloneAll(docs), cache.DefaultExpiration)
	return docs, nil
}

// Normalize lowercases and collapses whitespace in a query.
func Normalize(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}
