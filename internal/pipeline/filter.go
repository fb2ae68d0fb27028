package pipeline

import "github.com/fleetcost/rightsize/internal/dataset"

// Filter classifies VMs as underutilized when both average CPU and RAM
// utilization fall below the configured thresholds.
type Filter struct {
	cpuThreshold float64
	ramThreshold float64
}

// NewFilter creates a Filter with the given percent thresholds.
func NewFilter(cpuThreshold, ramThreshold float64) *Filter {
	return &Filter{cpuThreshold: cpuThreshold, ramThreshold: ramThreshold}
}

// Apply returns the underutilized records in their original relative
// order. Pure function; the input slice is not modified.
func (f *Filter) Apply(records []dataset.VMRecord) []dataset.VMRecord {
	flagged := make([]dataset.VMRecord, 0, len(records))
	for _, r := range records {
		if f.Underutilized(r) {
			flagged = append(flagged, r)
		}
	}
	return flagged
}

// Underutilized reports whether a single record falls below both
// thresholds.
func (f *Filter) Underutilized(r dataset.VMRecord) bool {
	return r.AvgCPUPercent < f.cpuThreshold && r.AvgRAMPercent < f.ramThreshold
}
