package pipeline

// Aggregate reduces per-VM recommendations into a portfolio summary.
// Only viable recommendations count toward the totals; order does not
// matter and empty input yields a zero summary.
func Aggregate(recs []Recommendation) SavingsSummary {
	var summary SavingsSummary
	for _, r := range recs {
		if !r.Viable() {
			continue
		}
		summary.VMCount++
		summary.TotalCurrentCost += r.CurrentCost
		summary.TotalRecommendedCost += *r.RecommendedCost
		summary.TotalSavings += *r.Savings
	}
	if summary.TotalCurrentCost > 0 {
		summary.AverageSavingsPercent = summary.TotalSavings / summary.TotalCurrentCost * 100
	}
	return summary
}
