package dataset

// VMRecord is one row of a fleet utilization dataset. Records are
// immutable after ingestion.
type VMRecord struct {
	VMID          string  `json:"vm_id"`
	CurrentSize   string  `json:"current_size"`
	CPUCores      int     `json:"cpu_cores"`
	RAMGB         float64 `json:"ram_gb"`
	MonthlyCost   float64 `json:"monthly_cost_usd"`
	AvgCPUPercent float64 `json:"avg_cpu_usage_percent"`
	AvgRAMPercent float64 `json:"avg_ram_usage_percent"`
	ClusterID     string  `json:"cluster_id"`
}

// RowError describes a dataset row that failed validation. The row is
// dropped; ingestion continues with the remaining rows.
type RowError struct {
	Line   int    `json:"line"`
	VMID   string `json:"vm_id,omitempty"`
	Reason string `json:"reason"`
}

func (e RowError) Error() string {
	if e.VMID != "" {
		return "row " + e.VMID + ": " + e.Reason
	}
	return e.Reason
}
