package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

// ErrNoValidRows is returned when every row of the input failed
// validation. Callers should treat this as a dataset-level failure.
var ErrNoValidRows = errors.New("dataset contains no valid rows")

// expectedColumns is the required header, in order.
var expectedColumns = []string{
	"vm_id",
	"current_size",
	"cpu_cores",
	"ram_gb",
	"monthly_cost_usd",
	"avg_cpu_usage_percent",
	"avg_ram_usage_percent",
	"cluster_id",
}

// ReadCSV parses a utilization dataset. Malformed rows are rejected
// individually and reported in the returned RowError slice; valid rows
// are kept. Only a missing or wrong header, an unreadable stream, or a
// dataset with zero valid rows is an error.
func ReadCSV(r io.Reader) ([]VMRecord, []RowError, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("reading dataset header: %w", err)
	}
	index, err := columnIndex(header)
	if err != nil {
		return nil, nil, err
	}

	var records []VMRecord
	var rowErrs []RowError

	for line := 2; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			rowErrs = append(rowErrs, RowError{Line: line, Reason: err.Error()})
			continue
		}

		rec, rerr := parseRow(row, index)
		if rerr != nil {
			rerr.Line = line
			rowErrs = append(rowErrs, *rerr)
			continue
		}
		records = append(records, rec)
	}

	if len(records) == 0 {
		return nil, rowErrs, ErrNoValidRows
	}
	return records, rowErrs, nil
}

// ReadFile is a convenience wrapper around ReadCSV.
func ReadFile(path string) ([]VMRecord, []RowError, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening dataset: %w", err)
	}
	defer f.Close()
	return ReadCSV(f)
}

func columnIndex(header []string) (map[string]int, error) {
	index := make(map[string]int, len(header))
	for i, col := range header {
		index[strings.TrimSpace(strings.ToLower(col))] = i
	}
	for _, col := range expectedColumns {
		if _, ok := index[col]; !ok {
			return nil, fmt.Errorf("dataset header missing column %q", col)
		}
	}
	return index, nil
}

func parseRow(row []string, index map[string]int) (VMRecord, *RowError) {
	field := func(name string) string {
		i := index[name]
		if i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	vmID := field("vm_id")
	fail := func(reason string) (VMRecord, *RowError) {
		return VMRecord{}, &RowError{VMID: vmID, Reason: reason}
	}

	if vmID == "" {
		return fail("vm_id is empty")
	}
	size := field("current_size")
	if size == "" {
		return fail("current_size is empty")
	}

	cores, err := strconv.Atoi(field("cpu_cores"))
	if err != nil || cores <= 0 {
		return fail("cpu_cores must be a positive integer")
	}
	ramGB, err := strconv.ParseFloat(field("ram_gb"), 64)
	if err != nil || ramGB <= 0 {
		return fail("ram_gb must be a positive number")
	}
	cost, err := strconv.ParseFloat(field("monthly_cost_usd"), 64)
	if err != nil || cost < 0 {
		return fail("monthly_cost_usd must be a non-negative number")
	}
	cpuPct, err := strconv.ParseFloat(field("avg_cpu_usage_percent"), 64)
	if err != nil || !validPercent(cpuPct) {
		return fail("avg_cpu_usage_percent must be between 0 and 100")
	}
	ramPct, err := strconv.ParseFloat(field("avg_ram_usage_percent"), 64)
	if err != nil || !validPercent(ramPct) {
		return fail("avg_ram_usage_percent must be between 0 and 100")
	}

	return VMRecord{
		VMID:          vmID,
		CurrentSize:   size,
		CPUCores:      cores,
		RAMGB:         ramGB,
		MonthlyCost:   cost,
		AvgCPUPercent: cpuPct,
		AvgRAMPercent: ramPct,
		ClusterID:     field("cluster_id"),
	}, nil
}

func validPercent(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 100
}
