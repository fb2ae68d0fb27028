package pipeline

// State names the stage a pipeline run is in. A run moves strictly
// forward; Failed is terminal and reachable from any non-terminal
// state.
type State string

const (
	StateIdle         State = "idle"
	StateFiltering    State = "filtering"
	StateResolving    State = "resolving"
	StateSynthesizing State = "synthesizing"
	StateAggregating  State = "aggregating"
	StateDone         State = "done"
	StateFailed       State = "failed"
)

// Tool names recorded in the run trace for pipeline stages.
const (
	ToolFilterUnderutilized = "filter_underutilized_vms"
	ToolCalculateSavings    = "calculate_total_savings"
)

// Recommendation is the per-VM outcome of a run. A VM with no viable
// cheaper size carries nil recommendation fields and a note; it is
// excluded from aggregation.
type Recommendation struct {
	VMID            string   `json:"vm_id"`
	CurrentSKU      string   `json:"current_sku"`
	CurrentCost     float64  `json:"current_cost_usd"`
	RecommendedSKU  *string  `json:"recommended_sku"`
	RecommendedCost *float64 `json:"recommended_cost_usd"`
	Savings         *float64 `json:"savings_usd"`
	Note            string   `json:"note,omitempty"`
}

// Viable reports whether the recommendation carries a positive saving.
func (r Recommendation) Viable() bool {
	return r.Savings != nil
}

// SavingsSummary aggregates the viable recommendations of one run.
// Totals cover only VMs with a non-nil saving.
type SavingsSummary struct {
	VMCount               int     `json:"vm_count"`
	TotalCurrentCost      float64 `json:"total_current_cost_usd"`
	TotalRecommendedCost  float64 `json:"total_recommended_cost_usd"`
	TotalSavings          float64 `json:"total_savings_usd"`
	AverageSavingsPercent float64 `json:"average_savings_percent"`
}
