package pipeline

import (
	"sort"

	"github.com/fleetcost/rightsize/internal/catalog"
	"github.com/fleetcost/rightsize/internal/dataset"
	"github.com/fleetcost/rightsize/internal/pricing"
)

// Synthesizer turns a flagged VM and its price quotes into a
// Recommendation. The sizing heuristic requires a candidate to cover
// the VM's observed need with a safety floor: required capacity =
// current capacity * max(observed utilization%, floor%) / 100.
type Synthesizer struct {
	safetyFloor float64
}

// NewSynthesizer creates a Synthesizer with the given utilization
// floor percent.
func NewSynthesizer(safetyFloor float64) *Synthesizer {
	return &Synthesizer{safetyFloor: safetyFloor}
}

// Candidates returns the names of catalog SKUs worth pricing for a VM:
// strictly smaller than the current size but still large enough for
// the VM's required capacity. Sorted by list price ascending so
// resolvers see the cheapest plausible sizes first.
func (s *Synthesizer) Candidates(vm dataset.VMRecord, specs map[string]catalog.SKUSpec) []string {
	reqCPU, reqRAM := s.required(vm)

	var out []catalog.SKUSpec
	for _, spec := range specs {
		if spec.Name == vm.CurrentSize {
			continue
		}
		if spec.CPUCores > vm.CPUCores || spec.RAMGB > vm.RAMGB {
			continue
		}
		if spec.CPUCores == vm.CPUCores && spec.RAMGB == vm.RAMGB {
			continue
		}
		if float64(spec.CPUCores) < reqCPU || spec.RAMGB < reqRAM {
			continue
		}
		out = append(out, spec)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].ListMonthly != out[j].ListMonthly {
			return out[i].ListMonthly < out[j].ListMonthly
		}
		return out[i].Name < out[j].Name
	})

	names := make([]string, len(out))
	for i, spec := range out {
		names[i] = spec.Name
	}
	return names
}

// Synthesize picks the cheapest quote that undercuts the VM's current
// cost and still satisfies the sizing heuristic. Ties on cost go to
// the candidate with more headroom. No viable quote yields a
// null recommendation.
func (s *Synthesizer) Synthesize(vm dataset.VMRecord, quotes []pricing.Quote, specs map[string]catalog.SKUSpec) Recommendation {
	rec := Recommendation{
		VMID:        vm.VMID,
		CurrentSKU:  vm.CurrentSize,
		CurrentCost: vm.MonthlyCost,
	}

	reqCPU, reqRAM := s.required(vm)

	var (
		best         *pricing.Quote
		bestHeadroom float64
	)
	for i := range quotes {
		q := quotes[i]
		if q.MonthlyUSD >= vm.MonthlyCost {
			continue
		}
		spec, ok := specs[q.SKU]
		if !ok {
			continue
		}
		if float64(spec.CPUCores) < reqCPU || spec.RAMGB < reqRAM {
			continue
		}

		headroom := (float64(spec.CPUCores) - reqCPU) + (spec.RAMGB - reqRAM)
		if best == nil || q.MonthlyUSD < best.MonthlyUSD ||
			(q.MonthlyUSD == best.MonthlyUSD && headroom > bestHeadroom) {
			best = &quotes[i]
			bestHeadroom = headroom
		}
	}

	if best == nil {
		rec.Note = "no viable downsize"
		return rec
	}

	savings := vm.MonthlyCost - best.MonthlyUSD
	rec.RecommendedSKU = &best.SKU
	rec.RecommendedCost = &best.MonthlyUSD
	rec.Savings = &savings
	return rec
}

// nullRecommendation marks a VM that could not be priced at all.
func nullRecommendation(vm dataset.VMRecord, note string) Recommendation {
	return Recommendation{
		VMID:        vm.VMID,
		CurrentSKU:  vm.CurrentSize,
		CurrentCost: vm.MonthlyCost,
		Note:        note,
	}
}

// required computes the capacity a candidate must provide, floored so
// a briefly idle VM is not squeezed onto the smallest size available.
func (s *Synthesizer) required(vm dataset.VMRecord) (cpu, ram float64) {
	cpuPct := vm.AvgCPUPercent
	if cpuPct < s.safetyFloor {
		cpuPct = s.safetyFloor
	}
	ramPct := vm.AvgRAMPercent
	if ramPct < s.safetyFloor {
		ramPct = s.safetyFloor
	}
	return float64(vm.CPUCores) * cpuPct / 100, vm.RAMGB * ramPct / 100
}
