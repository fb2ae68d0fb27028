package pricing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/fleetcost/rightsize/internal/trace"
)

// Tool names recorded in the run trace for provider calls.
const (
	ToolSearchPricing = "search_vm_pricing"
	ToolCrawlPricing  = "crawl_pricing_page"
)

// ErrBudgetExhausted is returned internally when a run has spent its
// provider call budget.
var ErrBudgetExhausted = errors.New("provider call budget exhausted")

// Quote is one priced downsizing candidate for a VM.
type Quote struct {
	SKU        string    `json:"sku"`
	MonthlyUSD float64   `json:"monthly_usd"`
	Source     string    `json:"source"`
	ResolvedAt time.Time `json:"resolved_at"`
}

// CallBudget caps the number of provider calls a single run may issue.
// It is safe for concurrent use. A nil budget means unlimited.
type CallBudget struct {
	remaining int64
}

// NewCallBudget creates a budget of n calls. n <= 0 means unlimited.
func NewCallBudget(n int) *CallBudget {
	if n <= 0 {
		return nil
	}
	return &CallBudget{remaining: int64(n)}
}

// Take consumes one call from the budget. Returns false when spent.
func (b *CallBudget) Take() bool {
	if b == nil {
		return true
	}
	return atomic.AddInt64(&b.remaining, -1) >= 0
}

// MetricsRecorder is an optional interface for recording resolver metrics.
type MetricsRecorder interface {
	IncProviderCall(tool, outcome string)
	ObserveProviderDuration(tool string, seconds float64)
	AddQuotesParsed(n int)
}

// Resolver turns a VM's current SKU into priced smaller candidates by
// querying the external search provider. It degrades rather than
// fails: exhausted retries, unparsable text, and a spent call budget
// all yield an empty (or partial) quote list, never an error. Every
// provider call is appended to the run trace.
type Resolver struct {
	client     SearchClient
	region     string
	maxRetries int
	backoff    time.Duration
	crawlTop   bool
	metrics    MetricsRecorder
}

// NewResolver creates a Resolver. maxRetries is the number of retries
// after the first attempt.
func NewResolver(client SearchClient, region string, maxRetries int, backoff time.Duration, crawlTop bool) *Resolver {
	return &Resolver{
		client:     client,
		region:     region,
		maxRetries: maxRetries,
		backoff:    backoff,
		crawlTop:   crawlTop,
	}
}

// SetMetrics sets the optional metrics recorder.
func (r *Resolver) SetMetrics(m MetricsRecorder) {
	r.metrics = m
}

// Resolve finds monthly prices for the candidate SKUs smaller than
// currentSKU. Quotes are returned in candidate order; candidates with
// no parsable price are simply absent.
func (r *Resolver) Resolve(ctx context.Context, tr *trace.Trace, currentSKU string, candidates []string, budget *CallBudget) []Quote {
	if len(candidates) == 0 {
		return nil
	}

	query := fmt.Sprintf("Azure VM %s smaller sizes monthly pricing USD pay-as-you-go %s", currentSKU, r.region)
	results, err := r.search(ctx, tr, currentSKU, query, budget)
	if err != nil {
		if !errors.Is(err, ErrBudgetExhausted) {
			slog.Warn("pricing search failed after retries", "sku", currentSKU, "error", err)
		}
		return nil
	}

	resolvedAt := time.Now().UTC()
	prices := make(map[string]Quote)

	for _, res := range results {
		found := extractPrices(res.Title+" "+res.Snippet, candidates)
		for sku, monthly := range found {
			if _, ok := prices[sku]; !ok {
				prices[sku] = Quote{SKU: sku, MonthlyUSD: monthly, Source: res.URL, ResolvedAt: resolvedAt}
			}
		}
	}

	if r.crawlTop && len(prices) < len(candidates) && len(results) > 0 {
		if text, url, ok := r.crawl(ctx, tr, results[0].URL, budget); ok {
			for sku, monthly := range extractPrices(text, candidates) {
				if _, done := prices[sku]; !done {
					prices[sku] = Quote{SKU: sku, MonthlyUSD: monthly, Source: url, ResolvedAt: resolvedAt}
				}
			}
		}
	}

	quotes := make([]Quote, 0, len(prices))
	for _, sku := range candidates {
		if q, ok := prices[sku]; ok {
			quotes = append(quotes, q)
		}
	}
	if r.metrics != nil {
		r.metrics.AddQuotesParsed(len(quotes))
	}
	return quotes
}

// search issues the provider search with bounded retries. Every
// attempt, including failed ones, is recorded in the trace.
func (r *Resolver) search(ctx context.Context, tr *trace.Trace, sku, query string, budget *CallBudget) ([]SearchResult, error) {
	args := map[string]any{"query": query, "sku": sku}

	var results []SearchResult
	err := retry.Do(
		func() error {
			if !budget.Take() {
				return retry.Unrecoverable(ErrBudgetExhausted)
			}

			start := time.Now()
			res, err := r.client.Search(ctx, query)
			if r.metrics != nil {
				r.metrics.ObserveProviderDuration(ToolSearchPricing, time.Since(start).Seconds())
			}

			if err != nil {
				tr.Record(ToolSearchPricing, args, err.Error(), true)
				if r.metrics != nil {
					r.metrics.IncProviderCall(ToolSearchPricing, "error")
				}
				return err
			}

			tr.Record(ToolSearchPricing, args, fmt.Sprintf("%d results", len(res)), false)
			if r.metrics != nil {
				r.metrics.IncProviderCall(ToolSearchPricing, "ok")
			}
			results = res
			return nil
		},
		retry.Attempts(uint(r.maxRetries)+1),
		retry.Delay(r.backoff),
		retry.DelayType(retry.BackOffDelay),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, err
	}
	return results, nil
}

// crawl fetches the top search hit. A single attempt; failure is
// recorded and tolerated.
func (r *Resolver) crawl(ctx context.Context, tr *trace.Trace, url string, budget *CallBudget) (string, string, bool) {
	if !budget.Take() {
		return "", "", false
	}

	args := map[string]any{"url": url}
	start := time.Now()
	text, err := r.client.Crawl(ctx, url)
	if r.metrics != nil {
		r.metrics.ObserveProviderDuration(ToolCrawlPricing, time.Since(start).Seconds())
	}
	if err != nil {
		tr.Record(ToolCrawlPricing, args, err.Error(), true)
		if r.metrics != nil {
			r.metrics.IncProviderCall(ToolCrawlPricing, "error")
		}
		return "", "", false
	}

	tr.Record(ToolCrawlPricing, args, fmt.Sprintf("%d chars", len(text)), false)
	if r.metrics != nil {
		r.metrics.IncProviderCall(ToolCrawlPricing, "ok")
	}
	return text, url, true
}
