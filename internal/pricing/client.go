package pricing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

// SearchResult is one hit returned by the provider's search endpoint.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// SearchClient is the capability interface over the external pricing
// search provider. A deterministic stub substitutes for it in tests.
type SearchClient interface {
	Search(ctx context.Context, query string) ([]SearchResult, error)
	Crawl(ctx context.Context, url string) (string, error)
	CompanyResearch(ctx context.Context, name string) (map[string]any, error)
}

// HTTPClient talks to the provider's HTTP API.
type HTTPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPClient creates a client for the provider at baseURL.
func NewHTTPClient(baseURL, apiKey string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

// Search runs a web search and returns up to numResults hits.
func (c *HTTPClient) Search(ctx context.Context, query string) ([]SearchResult, error) {
	var out struct {
		Results []SearchResult `json:"results"`
	}
	err := c.post(ctx, "/search", map[string]any{
		"query":       query,
		"num_results": 5,
	}, &out)
	if err != nil {
		return nil, err
	}
	return out.Results, nil
}

// Crawl fetches and extracts the text content of a page.
func (c *HTTPClient) Crawl(ctx context.Context, url string) (string, error) {
	var out struct {
		Text string `json:"text"`
	}
	err := c.post(ctx, "/crawl", map[string]any{"url": url}, &out)
	if err != nil {
		return "", err
	}
	return out.Text, nil
}

// CompanyResearch returns the provider's structured research record for
// a company name.
func (c *HTTPClient) CompanyResearch(ctx context.Context, name string) (map[string]any, error) {
	out := map[string]any{}
	if err := c.post(ctx, "/research", map[string]any{"name": name}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTPClient) post(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshalling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("provider %s (%s): %w", path, classifyError(err), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		limited, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("provider %s returned status %d: %s", path, resp.StatusCode, limited)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding provider response: %w", err)
	}
	return nil
}

// classifyError categorizes an upstream HTTP client error.
func classifyError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	var netErr *net.OpError
	if errors.As(err, &netErr) {
		if netErr.Op == "dial" {
			return "connection_refused"
		}
		return "network"
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return "dns"
	}
	return "other"
}
