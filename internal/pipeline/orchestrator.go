package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fleetcost/rightsize/internal/catalog"
	"github.com/fleetcost/rightsize/internal/dataset"
	"github.com/fleetcost/rightsize/internal/pricing"
	"github.com/fleetcost/rightsize/internal/trace"
)

// ErrNoRecords is returned when a run is started with an empty dataset.
var ErrNoRecords = errors.New("dataset contains no records")

// QuoteResolver prices downsizing candidates for one VM. Implemented
// by pricing.Resolver (live provider) and pricing.ListResolver
// (offline catalog prices).
type QuoteResolver interface {
	Resolve(ctx context.Context, tr *trace.Trace, currentSKU string, candidates []string, budget *pricing.CallBudget) []pricing.Quote
}

// SpecSource supplies the SKU catalog a run sizes candidates against.
type SpecSource interface {
	Index(ctx context.Context) (map[string]catalog.SKUSpec, error)
}

// StaticSpecs is an in-memory SpecSource.
type StaticSpecs map[string]catalog.SKUSpec

func (s StaticSpecs) Index(ctx context.Context) (map[string]catalog.SKUSpec, error) {
	return s, nil
}

// RunMetrics is an optional sink for run-level metrics.
type RunMetrics interface {
	IncRun(state string)
	ObserveRunDuration(seconds float64)
	AddRecommendations(viable, null int)
}

// Result is everything one pipeline run produces.
type Result struct {
	RunID           string           `json:"run_id"`
	Query           string           `json:"query"`
	State           State            `json:"state"`
	Response        string           `json:"response"`
	Summary         SavingsSummary   `json:"summary"`
	Recommendations []Recommendation `json:"recommendations"`
	Trace           *trace.Trace     `json:"-"`
	StartedAt       time.Time        `json:"started_at"`
	FinishedAt      time.Time        `json:"finished_at"`
}

// Orchestrator sequences the three pipeline stages over one dataset,
// fanning VM-level pricing out across a bounded worker pool. Each run
// owns its trace; nothing is shared across runs.
type Orchestrator struct {
	filter     *Filter
	synth      *Synthesizer
	resolver   QuoteResolver
	specs      SpecSource
	workers    int
	runTimeout time.Duration
	maxCalls   int
	metrics    RunMetrics
}

// NewOrchestrator wires a pipeline. maxCalls caps provider calls per
// run; <= 0 means unlimited.
func NewOrchestrator(filter *Filter, synth *Synthesizer, resolver QuoteResolver, specs SpecSource, workers int, runTimeout time.Duration, maxCalls int) *Orchestrator {
	if workers <= 0 {
		workers = 1
	}
	return &Orchestrator{
		filter:     filter,
		synth:      synth,
		resolver:   resolver,
		specs:      specs,
		workers:    workers,
		runTimeout: runTimeout,
		maxCalls:   maxCalls,
	}
}

// SetMetrics sets the optional metrics sink.
func (o *Orchestrator) SetMetrics(m RunMetrics) {
	o.metrics = m
}

// Run executes Filter -> Resolve/Synthesize -> Aggregate for the given
// query and dataset. Per-VM pricing failures degrade to null
// recommendations; only an empty dataset or an unreachable catalog
// fails the run.
func (o *Orchestrator) Run(ctx context.Context, query string, records []dataset.VMRecord) (*Result, error) {
	started := time.Now().UTC()
	tr := trace.New(query)
	res := &Result{
		RunID:     tr.ID,
		Query:     query,
		State:     StateIdle,
		Trace:     tr,
		StartedAt: started,
	}

	fail := func(err error) (*Result, error) {
		prev := res.State
		res.State = StateFailed
		res.FinishedAt = time.Now().UTC()
		o.observe(res, started)
		slog.Error("run failed", "run_id", res.RunID, "state_before", prev, "error", err)
		return res, err
	}

	if len(records) == 0 {
		return fail(ErrNoRecords)
	}
	specs, err := o.specs.Index(ctx)
	if err != nil {
		return fail(fmt.Errorf("loading sku catalog: %w", err))
	}

	res.State = StateFiltering
	flagged := o.filter.Apply(records)
	tr.Record(ToolFilterUnderutilized, map[string]any{
		"cpu_threshold": o.filter.cpuThreshold,
		"ram_threshold": o.filter.ramThreshold,
		"total_vms":     len(records),
	}, fmt.Sprintf("%d of %d VMs underutilized", len(flagged), len(records)), false)
	slog.Info("utilization filter applied", "run_id", res.RunID, "total", len(records), "underutilized", len(flagged))

	res.State = StateResolving
	recs := o.priceAndSynthesize(ctx, tr, flagged, specs)
	res.State = StateSynthesizing

	res.State = StateAggregating
	summary := Aggregate(recs)
	tr.Record(ToolCalculateSavings, map[string]any{
		"recommendations": len(recs),
	}, fmt.Sprintf("total monthly savings $%.2f across %d VMs", summary.TotalSavings, summary.VMCount), false)

	response := renderResponse(len(records), len(flagged), summary)
	tr.SetResponse(response)

	res.State = StateDone
	res.Response = response
	res.Summary = summary
	res.Recommendations = recs
	res.FinishedAt = time.Now().UTC()
	o.observe(res, started)

	slog.Info("run finished",
		"run_id", res.RunID,
		"underutilized", len(flagged),
		"viable", summary.VMCount,
		"total_savings_usd", summary.TotalSavings,
		"duration_ms", time.Since(started).Milliseconds(),
	)
	return res, nil
}

// priceAndSynthesize fans the flagged VMs out across the worker pool.
// Results land at the VM's original index, so output order matches
// input order no matter how workers interleave.
func (o *Orchestrator) priceAndSynthesize(ctx context.Context, tr *trace.Trace, flagged []dataset.VMRecord, specs map[string]catalog.SKUSpec) []Recommendation {
	runCtx := ctx
	if o.runTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, o.runTimeout)
		defer cancel()
	}

	budget := pricing.NewCallBudget(o.maxCalls)
	recs := make([]Recommendation, len(flagged))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < o.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				vm := flagged[i]
				if runCtx.Err() != nil {
					recs[i] = nullRecommendation(vm, "run timed out before pricing")
					continue
				}
				candidates := o.synth.Candidates(vm, specs)
				quotes := o.resolver.Resolve(runCtx, tr, vm.CurrentSize, candidates, budget)
				recs[i] = o.synth.Synthesize(vm, quotes, specs)
			}
		}()
	}
	for i := range flagged {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return recs
}

func (o *Orchestrator) observe(res *Result, started time.Time) {
	if o.metrics == nil {
		return
	}
	o.metrics.IncRun(string(res.State))
	o.metrics.ObserveRunDuration(time.Since(started).Seconds())
	if res.State == StateDone {
		viable := 0
		for _, r := range res.Recommendations {
			if r.Viable() {
				viable++
			}
		}
		o.metrics.AddRecommendations(viable, len(res.Recommendations)-viable)
	}
}

// renderResponse builds the final natural-language summary of a run.
func renderResponse(total, flagged int, summary SavingsSummary) string {
	if flagged == 0 {
		return fmt.Sprintf("Analyzed %d VMs: none are underutilized, so there is nothing to right-size.", total)
	}
	if summary.VMCount == 0 {
		return fmt.Sprintf("Analyzed %d VMs: %d are underutilized, but no viable downsize was found at current prices.", total, flagged)
	}
	return fmt.Sprintf(
		"Analyzed %d VMs: %d are underutilized and %d have a viable downsize. Projected monthly savings: $%.2f (%.1f%% of the $%.2f current spend on those VMs).",
		total, flagged, summary.VMCount,
		summary.TotalSavings, summary.AverageSavingsPercent, summary.TotalCurrentCost,
	)
}
