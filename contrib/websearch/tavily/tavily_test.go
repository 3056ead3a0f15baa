package tavily

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweetpotato0/adaptive-rag/pkg/retry"
	"github.com/sweetpotato0/adaptive-rag/rag/document"
)

func TestSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tvly-key", r.Header.Get("Authorization"))
		var req searchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "latest go release", req.Query)
		assert.Equal(t, 2, req.MaxResults)
		_, _ = w.Write([]byte(`{"results":[
			{"title":"Go 1.25","url":"https://go.dev/doc/go1.25","content":"Release notes.","score":0.9},
			{"title":"no url","url":"","content":"skip"},
			{"title":"Blog","url":"https://go.dev/blog","content":"News.","score":0.5}
		]}`))
	}))
	defer srv.Close()

	client, err := New("tvly-key", WithEndpoint(srv.URL), WithMaxResults(2))
	require.NoError(t, err)

	docs, err := client.Search(context.Background(), "latest go release")
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "https://go.dev/doc/go1.25", docs[0].Source)
	assert.Equal(t, document.OriginWeb, docs[0].Origin)
	assert.Equal(t, float32(0.9), docs[0].Score)
	assert.Equal(t, "https://go.dev/blog", docs[1].Source)
}

func TestSearchRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client, err := New("k", WithEndpoint(srv.URL))
	require.NoError(t, err)
	_, err = client.Search(context.Background(), "q")
	assert.True(t, retry.IsTransient(err))
}

func TestNewRequiresKey(t *testing.T) {
	_, err := New("")
	assert.Error(t, err)
}
