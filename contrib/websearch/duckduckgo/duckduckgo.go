// Package duckduckgo scrapes the DuckDuckGo HTML endpoint. It needs no API key.
package duckduckgo

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/sweetpotato0/adaptive-rag/pkg/retry"
	"github.com/sweetpotato0/adaptive-rag/rag/document"
	"github.com/sweetpotato0/adaptive-rag/websearch"
)

const defaultEndpoint = "https://html.duckduckgo.com/html/"

// Client implements websearch.Provider.
type Client struct {
	endpoint   string
	maxResults int
	httpClient *http.Client
	userAgent  string
}

var _ websearch.Provider = (*Client)(nil)

// Option customises the client.
type Option func(*Client)

// WithEndpoint overrides the search endpoint.
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

// WithHTTPClient swaps the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// New creates a DuckDuckGo client returning 3 results by default.
func New(opts ...Option) *Client {
	c := &Client{
		endpoint:   defaultEndpoint,
		maxResults: 3,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		userAgent:  "Mozilla/5.0 (compatible; adaptive-rag/1.0)",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Search implements websearch.Provider.
func (c *Client) Search(ctx context.Context, query string) ([]document.Document, error) {
	form := url.Values{"q": {query}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("duckduckgo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("duckduckgo: %w", &retry.StatusError{Code: resp.StatusCode, Body: string(body)})
	}
	return parseResults(resp.Body, c.maxResults)
}

func parseResults(r io.Reader, limit int) ([]document.Document, error) {
	page, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("duckduckgo: parse results: %w", err)
	}

	var docs []document.Document
	page.Find(".result").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if s.HasClass("result--ad") {
			return true
		}
		link := s.Find("a.result__a").First()
		href, ok := link.Attr("href")
		if !ok {
			return true
		}
		target := unwrapRedirect(href)
		if target == "" {
			return true
		}
		snippet := strings.TrimSpace(s.Find(".result__snippet").First().Text())
		docs = append(docs, websearch.NewResult(strings.TrimSpace(link.Text()), target, snippet))
		return len(docs) < limit
	})
	return docs, nil
}

// unwrapRedirect resolves DuckDuckGo's /l/?uddg= redirect links to the target URL.
func unwrapRedirect(href string) string {
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	parsed, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if strings.Contains(parsed.Host, "duckduckgo.com") {
		if target := strings.TrimSpace(parsed.Query().Get("uddg")); target != "" {
			return target
		}
		return ""
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return ""
	}
	return parsed.String()
}
