package pricing

import (
	"context"
	"fmt"
	"time"

	"github.com/fleetcost/rightsize/internal/trace"
)

// ToolLookupListPrice is the trace tool name for offline price lookups.
const ToolLookupListPrice = "lookup_list_price"

// ListResolver prices candidates from a static table of monthly list
// prices instead of the live provider. The one-shot CLI uses it when no
// provider is configured, and tests use it for determinism.
type ListResolver struct {
	prices map[string]float64
}

// NewListResolver creates a resolver over the given SKU -> monthly USD
// table.
func NewListResolver(prices map[string]float64) *ListResolver {
	return &ListResolver{prices: prices}
}

// Resolve returns a quote for every candidate present in the table, in
// candidate order. One trace entry is recorded per lookup batch.
func (r *ListResolver) Resolve(ctx context.Context, tr *trace.Trace, currentSKU string, candidates []string, budget *CallBudget) []Quote {
	if len(candidates) == 0 {
		return nil
	}
	if !budget.Take() {
		return nil
	}

	resolvedAt := time.Now().UTC()
	quotes := make([]Quote, 0, len(candidates))
	for _, sku := range candidates {
		monthly, ok := r.prices[sku]
		if !ok || monthly <= 0 {
			continue
		}
		quotes = append(quotes, Quote{
			SKU:        sku,
			MonthlyUSD: monthly,
			Source:     "catalog",
			ResolvedAt: resolvedAt,
		})
	}

	tr.Record(ToolLookupListPrice, map[string]any{
		"sku":        currentSKU,
		"candidates": len(candidates),
	}, fmt.Sprintf("%d list prices found", len(quotes)), false)

	return quotes
}
