package reranker

import (
	"context"
	"strings"
)

type queryKey struct{}

// ContextWithQuery attaches the retrieval query text for rerankers that
// score on text, such as the Cohere API. Blank queries are not stored.
func ContextWithQuery(ctx context.Context, query string) context.Context {
	query = strings.TrimSpace(query)
	if query == "" {
		return ctx
	}
	return context.WithValue(ctx, queryKey{}, query)
}

// QueryFromContext returns the query stored by ContextWithQuery.
func QueryFromContext(ctx context.Context) (string, bool) {
	query, ok := ctx.Value(queryKey{}).(string)
	return query, ok && query != ""
}
