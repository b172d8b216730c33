package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	WebSearchName     = "web_search"
	defaultTavilyURL  = "https://api.tavily.com"
	defaultMaxResults = 5
)

// WebSearchClient queries the Tavily search API.
type WebSearchClient struct {
	baseURL    string
	apiKey     string
	maxResults int
	client     *http.Client
}

// NewWebSearchClient creates a client. An empty baseURL uses the public API.
func NewWebSearchClient(baseURL, apiKey string, timeout time.Duration) *WebSearchClient {
	if baseURL == "" {
		baseURL = defaultTavilyURL
	}
	return &WebSearchClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		maxResults: defaultMaxResults,
		client:     newHTTPClient(timeout),
	}
}

// SearchHit is one web search result.
type SearchHit struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
}

// Search runs a query.
func (c *WebSearchClient) Search(ctx context.Context, query string) ([]SearchHit, error) {
	body, err := json.Marshal(map[string]any{
		"api_key":     c.apiKey,
		"query":       query,
		"max_results": c.maxResults,
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequest(http.MethodPost, c.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	var out struct {
		Results []SearchHit `json:"results"`
	}
	if err := httpJSON(ctx, c.client, req, &out); err != nil {
		return nil, err
	}
	return out.Results, nil
}

// Tool exposes the client as the web search tool.
func (c *WebSearchClient) Tool() Tool {
	return Tool{
		Name:        WebSearchName,
		Description: "Searches the web for product attributes missing from the databases (ingredients, package size, nutrition, flavor, juice content). Input is a targeted search query.",
		Parameters:  stringParams("query", "Search query, e.g. product name + UPC + attribute"),
		Invoke: func(ctx context.Context, args map[string]any) Result {
			if c.apiKey == "" {
				return Text("Error: web search API key is not configured. Set TAVILY_API_KEY to use this service.")
			}
			query := stringArg(args, "query", "q", "__arg1")
			if query == "" {
				return Text("Error: query is required")
			}
			hits, err := c.Search(ctx, query)
			if err != nil {
				return Text("Error searching the web for %q: %v", query, err)
			}
			if len(hits) == 0 {
				return Text("No web results for: %s", query)
			}
			var b strings.Builder
			fmt.Fprintf(&b, "Web results for: %s\n", query)
			for i, h := range hits {
				fmt.Fprintf(&b, "\n%d. %s\n   %s\n   %s\n", i+1, h.Title, h.URL, h.Content)
			}
			return Result{Text: b.String()}
		},
	}
}
