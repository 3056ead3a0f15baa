package websearch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweetpotato0/adaptive-rag/pkg/retry"
	"github.com/sweetpotato0/adaptive-rag/rag/document"
)

type countingProvider struct {
	calls int
	errs  []error
	docs  []document.Document
}

func (c *countingProvider) Search(_ context.Context, _ string) ([]document.Document, error) {
	c.calls++
	if len(c.errs) > 0 {
		err := c.errs[0]
		c.errs = c.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return c.docs, nil
}

func sample() []document.Document {
	return []document.Document{NewResult("France", "https://en.wikipedia.org/wiki/France", "Paris is the capital.")}
}

func TestNewResult(t *testing.T) {
	doc := NewResult(" Title ", "https://example.com", " body ")
	assert.Equal(t, document.OriginWeb, doc.Origin)
	assert.Equal(t, "https://example.com", doc.Source)
	assert.Equal(t, "Title\nbody", doc.Content)

	assert.Equal(t, "only title", NewResult("only title", "u", "").Content)
}

func TestBestEffortSwallowsErrors(t *testing.T) {
	inner := &countingProvider{errs: []error{errors.New("dns failure")}}
	docs, err := BestEffort(inner, nil).Search(context.Background(), "q")
	require.NoError(t, err)
	assert.Empty(t, docs)

	docs, err = BestEffort(nil, nil).Search(context.Background(), "q")
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestWithRetryRetriesTransient(t *testing.T) {
	inner := &countingProvider{errs: []error{&retry.StatusError{Code: 502}}, docs: sample()}
	p := WithRetry(inner, retry.Policy{Attempts: 2, Timeout: time.Second, Backoff: time.Millisecond})

	docs, err := p.Search(context.Background(), "q")
	require.NoError(t, err)
	assert.Len(t, docs, 1)
	assert.Equal(t, 2, inner.calls)
}

func TestCachedReusesResults(t *testing.T) {
	inner := &countingProvider{docs: sample()}
	c := NewCached(inner, time.Minute)

	_, err := c.Search(context.Background(), "Capital of  France")
	require.NoError(t, err)
	docs, err := c.Search(context.Background(), "capital of france")
	require.NoError(t, err)

	assert.Len(t, docs, 1)
	assert.Equal(t, 1, inner.calls)
}

func TestCachedDoesNotCacheErrors(t *testing.T) {
	inner := &countingProvider{errs: []error{errors.New("boom")}, docs: sample()}
	c := NewCached(inner, time.Minute)

	_, err := c.Search(context.Background(), "q")
	require.Error(t, err)
	docs, err := c.Search(context.Background(), "q")
	require.NoError(t, err)
	assert.Len(t, docs, 1)
	assert.Equal(t, 2, inner.calls)
}
