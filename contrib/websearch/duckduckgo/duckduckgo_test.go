package duckduckgo

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweetpotato0/adaptive-rag/pkg/retry"
	"github.com/sweetpotato0/adaptive-rag/rag/document"
)

const resultsPage = `<html><body>
<div class="result result--ad"><a class="result__a" href="https://ads.example.com">Ad</a></div>
<div class="result">
  <a class="result__a" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fen.wikipedia.org%2Fwiki%2FParis&amp;rut=abc">Paris - Wikipedia</a>
  <a class="result__snippet">Paris is the capital and largest city of France.</a>
</div>
<div class="result">
  <a class="result__a" href="https://www.britannica.com/place/Paris">Paris | Britannica</a>
  <div class="result__snippet">Capital of France.</div>
</div>
<div class="result">
  <a class="result__a" href="https://example.org/third">Third</a>
</div>
</body></html>`

func TestSearchParsesResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "capital of france", r.Form.Get("q"))
		_, _ = w.Write([]byte(resultsPage))
	}))
	defer srv.Close()

	client := New(WithEndpoint(srv.URL), WithMaxResults(2))
	docs, err := client.Search(context.Background(), "capital of france")
	require.NoError(t, err)
	require.Len(t, docs, 2)

	assert.Equal(t, "https://en.wikipedia.org/wiki/Paris", docs[0].Source)
	assert.Equal(t, document.OriginWeb, docs[0].Origin)
	assert.Contains(t, docs[0].Content, "largest city of France")
	assert.Equal(t, "https://www.britannica.com/place/Paris", docs[1].Source)
}

func TestSearchReportsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := New(WithEndpoint(srv.URL)).Search(context.Background(), "q")
	var status *retry.StatusError
	require.True(t, errors.As(err, &status))
	assert.Equal(t, http.StatusServiceUnavailable, status.Code)
	assert.True(t, retry.IsTransient(err))
}

func TestUnwrapRedirect(t *testing.T) {
	assert.Equal(t, "https://go.dev/", unwrapRedirect("https://duckduckgo.com/l/?uddg=https%3A%2F%2Fgo.dev%2F"))
	assert.Equal(t, "", unwrapRedirect("https://duckduckgo.com/y.js?ad=1"))
	assert.Equal(t, "", unwrapRedirect("javascript:void(0)"))
	assert.Equal(t, "https://go.dev/doc", unwrapRedirect("https://go.dev/doc"))
}
