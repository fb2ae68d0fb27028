package catalog

import "time"

// SKUSpec describes one VM size offered by the provider: its nominal
// capacity and list price. The synthesizer uses capacity to check that
// a cheaper candidate can still carry a VM's workload; the list price
// serves as the offline fallback when no live quote is available.
type SKUSpec struct {
	Name        string    `json:"name"`
	CPUCores    int       `json:"cpu_cores"`
	RAMGB       float64   `json:"ram_gb"`
	ListMonthly float64   `json:"list_monthly_usd"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// UpsertSKUInput holds the fields required to create or replace a SKU spec.
type UpsertSKUInput struct {
	Name        string  `json:"name"`
	CPUCores    int     `json:"cpu_cores"`
	RAMGB       float64 `json:"ram_gb"`
	ListMonthly float64 `json:"list_monthly_usd"`
}

// ListParams controls listing and pagination of SKU specs.
type ListParams struct {
	Cursor string `json:"cursor"`
	Limit  int    `json:"limit"`
}
