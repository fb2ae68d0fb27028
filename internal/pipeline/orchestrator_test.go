package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fleetcost/rightsize/internal/catalog"
	"github.com/fleetcost/rightsize/internal/dataset"
	"github.com/fleetcost/rightsize/internal/pricing"
	"github.com/fleetcost/rightsize/internal/trace"
)

type stubResolver struct {
	quotes map[string][]pricing.Quote
	delay  time.Duration
	calls  int32
}

func (s *stubResolver) Resolve(ctx context.Context, tr *trace.Trace, currentSKU string, candidates []string, budget *pricing.CallBudget) []pricing.Quote {
	atomic.AddInt32(&s.calls, 1)
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	tr.Record(pricing.ToolSearchPricing, map[string]any{"sku": currentSKU}, "stub results", false)
	return s.quotes[currentSKU]
}

type failingSpecs struct{}

func (failingSpecs) Index(ctx context.Context) (map[string]catalog.SKUSpec, error) {
	return nil, errors.New("connection refused")
}

func newTestOrchestrator(resolver QuoteResolver, workers int, timeout time.Duration) *Orchestrator {
	return NewOrchestrator(
		NewFilter(30, 30),
		NewSynthesizer(50),
		resolver,
		StaticSpecs(catalog.BuiltinIndex()),
		workers,
		timeout,
		0,
	)
}

func TestRunEndToEnd(t *testing.T) {
	records := []dataset.VMRecord{
		{VMID: "vm-a", CurrentSize: "Standard_B2s", CPUCores: 2, RAMGB: 4, MonthlyCost: 22.11, AvgCPUPercent: 10, AvgRAMPercent: 10},
		{VMID: "vm-b", CurrentSize: "Standard_D2s_v3", CPUCores: 2, RAMGB: 8, MonthlyCost: 50.00, AvgCPUPercent: 12, AvgRAMPercent: 8},
		{VMID: "vm-c", CurrentSize: "Standard_D4s_v3", CPUCores: 4, RAMGB: 16, MonthlyCost: 140.16, AvgCPUPercent: 80, AvgRAMPercent: 70},
	}
	resolver := &stubResolver{quotes: map[string][]pricing.Quote{
		"Standard_D2s_v3": {{SKU: "Standard_B2s", MonthlyUSD: 30.00, Source: "test"}},
	}}

	res, err := newTestOrchestrator(resolver, 2, time.Minute).Run(context.Background(), "cut our VM spend", records)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if res.State != StateDone {
		t.Errorf("State = %s, want %s", res.State, StateDone)
	}
	if res.RunID == "" {
		t.Error("expected a run ID")
	}
	if res.Summary.VMCount != 1 || res.Summary.TotalSavings != 20.00 {
		t.Errorf("Summary = %+v, want 1 VM saving 20.00", res.Summary)
	}

	if len(res.Recommendations) != 2 {
		t.Fatalf("expected 2 recommendations for the 2 flagged VMs, got %d", len(res.Recommendations))
	}
	if res.Recommendations[0].VMID != "vm-a" || res.Recommendations[0].Viable() {
		t.Errorf("vm-a should carry a null recommendation: %+v", res.Recommendations[0])
	}
	vmB := res.Recommendations[1]
	if vmB.VMID != "vm-b" || !vmB.Viable() || *vmB.RecommendedSKU != "Standard_B2s" || *vmB.Savings != 20.00 {
		t.Errorf("unexpected vm-b recommendation: %+v", vmB)
	}

	names := res.Trace.ToolNames()
	if len(names) < 3 {
		t.Fatalf("expected at least 3 trace entries, got %v", names)
	}
	if names[0] != ToolFilterUnderutilized {
		t.Errorf("first trace entry = %s, want %s", names[0], ToolFilterUnderutilized)
	}
	if names[len(names)-1] != ToolCalculateSavings {
		t.Errorf("last trace entry = %s, want %s", names[len(names)-1], ToolCalculateSavings)
	}

	if !strings.Contains(res.Response, "$20.00") {
		t.Errorf("response should state the savings: %q", res.Response)
	}
	if res.Trace.Response() != res.Response {
		t.Error("trace should carry the final response")
	}
}

func TestRunEmptyDataset(t *testing.T) {
	res, err := newTestOrchestrator(&stubResolver{}, 1, 0).Run(context.Background(), "analyze", nil)

	if !errors.Is(err, ErrNoRecords) {
		t.Fatalf("expected ErrNoRecords, got %v", err)
	}
	if res.State != StateFailed {
		t.Errorf("State = %s, want %s", res.State, StateFailed)
	}
}

func TestRunCatalogUnavailable(t *testing.T) {
	o := NewOrchestrator(NewFilter(30, 30), NewSynthesizer(50), &stubResolver{}, failingSpecs{}, 1, 0, 0)

	records := []dataset.VMRecord{
		{VMID: "vm-a", CurrentSize: "Standard_B2s", CPUCores: 2, RAMGB: 4, MonthlyCost: 22.11, AvgCPUPercent: 10, AvgRAMPercent: 10},
	}
	res, err := o.Run(context.Background(), "analyze", records)

	if err == nil || !strings.Contains(err.Error(), "sku catalog") {
		t.Fatalf("expected catalog error, got %v", err)
	}
	if res.State != StateFailed {
		t.Errorf("State = %s, want %s", res.State, StateFailed)
	}
}

func TestRunNothingUnderutilized(t *testing.T) {
	resolver := &stubResolver{}
	records := []dataset.VMRecord{
		{VMID: "vm-999", CurrentSize: "Standard_D4s_v3", CPUCores: 4, RAMGB: 16, MonthlyCost: 140.16, AvgCPUPercent: 80, AvgRAMPercent: 70},
	}

	res, err := newTestOrchestrator(resolver, 2, time.Minute).Run(context.Background(), "analyze", records)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if res.State != StateDone {
		t.Errorf("State = %s, want %s", res.State, StateDone)
	}
	if res.Summary != (SavingsSummary{}) {
		t.Errorf("expected zero summary, got %+v", res.Summary)
	}
	if got := atomic.LoadInt32(&resolver.calls); got != 0 {
		t.Errorf("resolver should not be called, got %d calls", got)
	}
	if got := res.Trace.Len(); got != 2 {
		t.Errorf("expected filter + aggregate trace entries only, got %d", got)
	}
	if !strings.Contains(res.Response, "none are underutilized") {
		t.Errorf("unexpected response: %q", res.Response)
	}
}

func TestRunTimeoutDegradesToNullRecommendations(t *testing.T) {
	resolver := &stubResolver{
		delay: 50 * time.Millisecond,
		quotes: map[string][]pricing.Quote{
			"Standard_D2s_v3": {{SKU: "Standard_B2s", MonthlyUSD: 30.00, Source: "test"}},
		},
	}
	records := []dataset.VMRecord{
		{VMID: "vm-a", CurrentSize: "Standard_D2s_v3", CPUCores: 2, RAMGB: 8, MonthlyCost: 50, AvgCPUPercent: 10, AvgRAMPercent: 10},
		{VMID: "vm-b", CurrentSize: "Standard_D2s_v3", CPUCores: 2, RAMGB: 8, MonthlyCost: 50, AvgCPUPercent: 10, AvgRAMPercent: 10},
	}

	res, err := newTestOrchestrator(resolver, 1, 10*time.Millisecond).Run(context.Background(), "analyze", records)
	if err != nil {
		t.Fatalf("a timeout must not fail the run: %v", err)
	}

	if res.State != StateDone {
		t.Errorf("State = %s, want %s", res.State, StateDone)
	}
	last := res.Recommendations[len(res.Recommendations)-1]
	if last.Viable() || last.Note != "run timed out before pricing" {
		t.Errorf("expected the second VM to time out, got %+v", last)
	}
}

func TestRunTraceSequenceUnderConcurrency(t *testing.T) {
	resolver := &stubResolver{}
	var records []dataset.VMRecord
	for i := 0; i < 25; i++ {
		records = append(records, dataset.VMRecord{
			VMID:          fmt.Sprintf("vm-%d", i),
			CurrentSize:   "Standard_D4s_v3",
			CPUCores:      4,
			RAMGB:         16,
			MonthlyCost:   140.16,
			AvgCPUPercent: 10,
			AvgRAMPercent: 10,
		})
	}

	res, err := newTestOrchestrator(resolver, 8, time.Minute).Run(context.Background(), "analyze", records)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	calls := res.Trace.Calls()
	for i := 1; i < len(calls); i++ {
		if calls[i].Seq <= calls[i-1].Seq {
			t.Fatalf("trace sequence not strictly increasing at %d: %d then %d", i, calls[i-1].Seq, calls[i].Seq)
		}
	}
}

func TestRunWithListResolver(t *testing.T) {
	prices := make(map[string]float64)
	for name, spec := range catalog.BuiltinIndex() {
		prices[name] = spec.ListMonthly
	}
	resolver := pricing.NewListResolver(prices)

	records := []dataset.VMRecord{
		{VMID: "vm-100000", CurrentSize: "Standard_D4s_v3", CPUCores: 4, RAMGB: 16, MonthlyCost: 140.16, AvgCPUPercent: 26.72, AvgRAMPercent: 14.23},
	}

	res, err := newTestOrchestrator(resolver, 1, time.Minute).Run(context.Background(), "analyze", records)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if res.Summary.VMCount != 1 {
		t.Fatalf("expected 1 viable recommendation, got %+v", res.Summary)
	}
	got := res.Recommendations[0]
	if *got.RecommendedSKU != "Standard_D2s_v3" {
		t.Errorf("RecommendedSKU = %s, want Standard_D2s_v3 (cheapest size covering 2 cores / 8 GB)", *got.RecommendedSKU)
	}
	if want := 140.16 - 70.08; *got.Savings != want {
		t.Errorf("Savings = %v, want %v", *got.Savings, want)
	}
}
