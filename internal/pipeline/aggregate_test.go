package pipeline

import (
	"math"
	"reflect"
	"testing"
)

func rec(vmID string, current float64, recommended *float64) Recommendation {
	r := Recommendation{VMID: vmID, CurrentCost: current}
	if recommended != nil {
		r.RecommendedCost = recommended
		savings := current - *recommended
		r.Savings = &savings
	} else {
		r.Note = "no viable downsize"
	}
	return r
}

func f64(v float64) *float64 { return &v }

func TestAggregate(t *testing.T) {
	recs := []Recommendation{
		rec("vm-1", 100, f64(40)),
		rec("vm-2", 50, nil),
		rec("vm-3", 60.5, f64(30.5)),
	}

	got := Aggregate(recs)

	if got.VMCount != 2 {
		t.Errorf("VMCount = %d, want 2", got.VMCount)
	}
	if got.TotalCurrentCost != 160.5 {
		t.Errorf("TotalCurrentCost = %v, want 160.5", got.TotalCurrentCost)
	}
	if got.TotalRecommendedCost != 70.5 {
		t.Errorf("TotalRecommendedCost = %v, want 70.5", got.TotalRecommendedCost)
	}
	if got.TotalSavings != 90 {
		t.Errorf("TotalSavings = %v, want 90", got.TotalSavings)
	}
	wantPct := 90 / 160.5 * 100
	if math.Abs(got.AverageSavingsPercent-wantPct) > 1e-9 {
		t.Errorf("AverageSavingsPercent = %v, want %v", got.AverageSavingsPercent, wantPct)
	}
}

func TestAggregateEmpty(t *testing.T) {
	got := Aggregate(nil)
	if got != (SavingsSummary{}) {
		t.Errorf("expected zero summary, got %+v", got)
	}
}

func TestAggregateAllNull(t *testing.T) {
	got := Aggregate([]Recommendation{rec("vm-1", 100, nil), rec("vm-2", 50, nil)})
	if got != (SavingsSummary{}) {
		t.Errorf("expected zero summary when no recommendation is viable, got %+v", got)
	}
}

func TestAggregateIdempotent(t *testing.T) {
	recs := []Recommendation{
		rec("vm-1", 22.11, nil),
		rec("vm-2", 50.00, f64(30.00)),
	}

	first := Aggregate(recs)
	second := Aggregate(recs)

	if !reflect.DeepEqual(first, second) {
		t.Errorf("Aggregate is not idempotent: %+v vs %+v", first, second)
	}
	if first.TotalSavings != 20.00 || first.VMCount != 1 {
		t.Errorf("expected total savings 20.00 over 1 VM, got %+v", first)
	}
}

func TestAggregateOrderIndependent(t *testing.T) {
	a := []Recommendation{rec("vm-1", 100, f64(40)), rec("vm-2", 80, f64(20))}
	b := []Recommendation{rec("vm-2", 80, f64(20)), rec("vm-1", 100, f64(40))}

	if !reflect.DeepEqual(Aggregate(a), Aggregate(b)) {
		t.Error("Aggregate should be order-independent")
	}
}
