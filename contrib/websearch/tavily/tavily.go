// Package tavily calls the Tavily search API.
package tavily

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sweetpotato0/adaptive-rag/pkg/retry"
	"github.com/sweetpotato0/adaptive-rag/rag/document"
	"github.com/sweetpotato0/adaptive-rag/websearch"
)

const defaultEndpoint = "https://api.tavily.com/search"

// Client implements websearch.Provider.
type Client struct {
	apiKey     string
	endpoint   string
	maxResults int
	depth      string
	httpClient *http.Client
}

var _ websearch.Provider = (*Client)(nil)

// Option customises the client.
type Option func(*Client)

// WithEndpoint overrides the API endpoint.
func WithEndpoint(endpoint string) Option {
	return func(c *Client) {
		if endpoint != "" {
			c.endpoint = endpoint
		}
	}
}

// WithMaxResults caps the number of returned snippets.
func WithMaxResults(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxResults = n
		}
	}
}

// WithSearchDepth selects "basic" or "advanced".
func WithSearchDepth(depth string) Option {
	return func(c *Client) {
		if depth != "" {
			c.depth = depth
		}
	}
}

// WithHTTPClient swaps the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// New creates a Tavily client.
func New(apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("tavily: API key not configured")
	}
	c := &Client{
		apiKey:     apiKey,
		endpoint:   defaultEndpoint,
		maxResults: 3,
		depth:      "basic",
		httpClient: &http.Client{Timeout: 20 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type searchRequest struct {
	Query       string `json:"query"`
	MaxResults  int    `json:"max_results"`
	SearchDepth string `json:"search_depth"`
}

type searchResponse struct {
	Results []struct {
		Title   string  `json:"title"`
		URL     string  `json:"url"`
		Content string  `json:"content"`
		Score   float32 `json:"score"`
	} `json:"results"`
}

// Search implements websearch.Provider.
func (c *Client) Search(ctx context.Context, query string) ([]document.Document, error) {
	body, err := json.Marshal(searchRequest{Query: query, MaxResults: c.maxResults, SearchDepth: c.depth})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tavily: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("tavily: %w", &retry.StatusError{Code: resp.StatusCode, Body: string(msg)})
	}

	var sr searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("tavily: decode response: %w", err)
	}

	docs := make([]document.Document, 0, len(sr.Results))
	for _, r := range sr.Results {
		if r.URL == "" {
			continue
		}
		doc := websearch.NewResult(r.Title, r.URL, r.Content)
		doc.Score = r.Score
		docs = append(docs, doc)
		if len(docs) == c.maxResults {
			break
		}
	}
	return docs, nil
}
