package pricing

import (
	"regexp"
	"strconv"
	"strings"
)

// priceWindow is how far past a SKU name we look for a dollar amount.
const priceWindow = 160

// hoursPerMonth converts hourly prices to monthly (365 * 24 / 12).
const hoursPerMonth = 730

var pricePattern = regexp.MustCompile(`\$\s?([0-9][0-9,]*(?:\.[0-9]+)?)`)

var hourlyPattern = regexp.MustCompile(`(?i)(?:/\s?(?:hr|hour)|per\s+hour|hourly)`)

// extractPrices scans free text (search snippets or crawled page
// content) for occurrences of candidate SKU names followed closely by a
// dollar amount. Hourly prices are converted to monthly. Candidates
// whose price cannot be parsed are skipped.
func extractPrices(text string, candidates []string) map[string]float64 {
	prices := make(map[string]float64)
	lower := strings.ToLower(text)

	for _, sku := range candidates {
		if _, done := prices[sku]; done {
			continue
		}
		idx := strings.Index(lower, strings.ToLower(sku))
		if idx < 0 {
			continue
		}

		end := idx + len(sku) + priceWindow
		if end > len(text) {
			end = len(text)
		}
		window := text[idx:end]

		m := pricePattern.FindStringSubmatch(window)
		if m == nil {
			continue
		}
		value, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
		if err != nil || value <= 0 {
			continue
		}

		if hourlyPattern.MatchString(window) {
			value *= hoursPerMonth
		}
		prices[sku] = value
	}

	return prices
}
