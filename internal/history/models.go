package history

import "time"

// RunRecord is the archived form of one pipeline run.
type RunRecord struct {
	ID                    string    `json:"id"`
	Query                 string    `json:"query"`
	State                 string    `json:"state"`
	Response              string    `json:"response"`
	VMCount               int       `json:"vm_count"`
	TotalCurrentCost      float64   `json:"total_current_cost_usd"`
	TotalRecommendedCost  float64   `json:"total_recommended_cost_usd"`
	TotalSavings          float64   `json:"total_savings_usd"`
	AverageSavingsPercent float64   `json:"average_savings_percent"`
	StartedAt             time.Time `json:"started_at"`
	FinishedAt            time.Time `json:"finished_at"`
}

// RecommendationRecord is one archived per-VM recommendation.
type RecommendationRecord struct {
	RunID           string   `json:"run_id"`
	VMID            string   `json:"vm_id"`
	CurrentSKU      string   `json:"current_sku"`
	CurrentCost     float64  `json:"current_cost_usd"`
	RecommendedSKU  *string  `json:"recommended_sku"`
	RecommendedCost *float64 `json:"recommended_cost_usd"`
	Savings         *float64 `json:"savings_usd"`
	Note            string   `json:"note,omitempty"`
}

// ToolCallRecord is one archived trace entry.
type ToolCallRecord struct {
	RunID     string    `json:"run_id"`
	Seq       int       `json:"seq"`
	Tool      string    `json:"tool"`
	Args      []byte    `json:"args"`
	Output    string    `json:"output"`
	Failed    bool      `json:"failed"`
	Timestamp time.Time `json:"timestamp"`
}

// EvaluationRecord is one archived metric result for a run.
type EvaluationRecord struct {
	RunID     string    `json:"run_id"`
	Metric    string    `json:"metric"`
	Score     float64   `json:"score"`
	Passed    bool      `json:"passed"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

// ListQuery filters and paginates the run archive.
type ListQuery struct {
	State  string
	From   time.Time
	To     time.Time
	Cursor string
	Limit  int
}
