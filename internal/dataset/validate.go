package dataset

import (
	"errors"
	"strings"
)

// Validate checks a single record against the same rules CSV ingestion
// applies. Callers that accept records as JSON use it to reject
// malformed records individually.
func Validate(r VMRecord) error {
	if strings.TrimSpace(r.VMID) == "" {
		return errors.New("vm_id is empty")
	}
	if strings.TrimSpace(r.CurrentSize) == "" {
		return errors.New("current_size is empty")
	}
	if r.CPUCores <= 0 {
		return errors.New("cpu_cores must be a positive integer")
	}
	if r.RAMGB <= 0 {
		return errors.New("ram_gb must be a positive number")
	}
	if r.MonthlyCost < 0 {
		return errors.New("monthly_cost_usd must be a non-negative number")
	}
	if !validPercent(r.AvgCPUPercent) {
		return errors.New("avg_cpu_usage_percent must be between 0 and 100")
	}
	if !validPercent(r.AvgRAMPercent) {
		return errors.New("avg_ram_usage_percent must be between 0 and 100")
	}
	return nil
}
