package evaluation

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/fleetcost/rightsize/internal/trace"
)

type stubJudge struct {
	completionScore Score
	efficiencyScore Score
	err             error
	prompts         []string
}

func (s *stubJudge) Score(ctx context.Context, prompt string) (Score, error) {
	s.prompts = append(s.prompts, prompt)
	if s.err != nil {
		return Score{}, s.err
	}
	if strings.Contains(prompt, "efficiency") {
		return s.efficiencyScore, nil
	}
	return s.completionScore, nil
}

func passingJudge() *stubJudge {
	return &stubJudge{
		completionScore: Score{Value: 0.9, Rationale: "answer states the savings"},
		efficiencyScore: Score{Value: 0.8, Rationale: "no redundant steps"},
	}
}

func TestToolCorrectness(t *testing.T) {
	expected := []string{"filter_underutilized_vms", "calculate_total_savings"}

	tests := []struct {
		name      string
		toolsUsed []string
		wantScore float64
		wantPass  bool
	}{
		{
			name:      "exact match",
			toolsUsed: []string{"filter_underutilized_vms", "calculate_total_savings"},
			wantScore: 1.0,
			wantPass:  true,
		},
		{
			name:      "exact match with repeats",
			toolsUsed: []string{"filter_underutilized_vms", "filter_underutilized_vms", "calculate_total_savings"},
			wantScore: 1.0,
			wantPass:  true,
		},
		{
			name:      "one expected tool missing",
			toolsUsed: []string{"filter_underutilized_vms"},
			wantScore: 0.5,
			wantPass:  true,
		},
		{
			name:      "no tools called",
			toolsUsed: nil,
			wantScore: 0,
			wantPass:  false,
		},
		{
			name:      "only unexpected tools",
			toolsUsed: []string{"company_research"},
			wantScore: 0,
			wantPass:  false,
		},
	}

	e := New(passingJudge(), 0.5, expected)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.toolCorrectness(tt.toolsUsed)
			if got.Score != tt.wantScore {
				t.Errorf("Score = %v, want %v", got.Score, tt.wantScore)
			}
			if got.Passed != tt.wantPass {
				t.Errorf("Passed = %v, want %v", got.Passed, tt.wantPass)
			}
			if got.Reason == "" {
				t.Error("expected a reason")
			}
		})
	}
}

func TestToolCorrectnessUnexpectedToolPenalty(t *testing.T) {
	e := New(passingJudge(), 0.5, []string{"a", "b"})

	got := e.toolCorrectness([]string{"a", "b", "c"})

	want := 1.0 - 1.0/3.0
	if got.Score < want-1e-9 || got.Score > want+1e-9 {
		t.Errorf("Score = %v, want %v", got.Score, want)
	}
	if !strings.Contains(got.Reason, "unexpected: c") {
		t.Errorf("Reason should name the unexpected tool: %q", got.Reason)
	}
}

func TestToolCorrectnessNoExpectedSet(t *testing.T) {
	e := New(passingJudge(), 0.5, nil)
	if got := e.toolCorrectness([]string{"anything"}); got.Score != 1 || !got.Passed {
		t.Errorf("expected score 1 with empty expected set, got %+v", got)
	}
}

func TestEvaluateAllMetrics(t *testing.T) {
	judge := passingJudge()
	e := New(judge, 0.5, []string{"filter_underutilized_vms", "calculate_total_savings"})

	tools := []string{"filter_underutilized_vms", "calculate_total_savings"}
	got, err := e.Evaluate(context.Background(), "cut our VM spend", "Savings: $20.00", tools, nil)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	if len(got) != 3 {
		t.Fatalf("expected 3 metrics, got %d", len(got))
	}

	completion := got[MetricTaskCompletion]
	if completion.Score != 0.9 || !completion.Passed || completion.Reason != "answer states the savings" {
		t.Errorf("unexpected task completion result: %+v", completion)
	}
	efficiency := got[MetricStepEfficiency]
	if efficiency.Score != 0.8 || !efficiency.Passed {
		t.Errorf("unexpected step efficiency result: %+v", efficiency)
	}
	correctness := got[MetricToolCorrectness]
	if correctness.Score != 1.0 || !correctness.Passed {
		t.Errorf("unexpected tool correctness result: %+v", correctness)
	}

	if len(judge.prompts) != 2 {
		t.Fatalf("expected 2 judge calls, got %d", len(judge.prompts))
	}
	if !strings.Contains(judge.prompts[0], "cut our VM spend") {
		t.Error("task completion prompt should carry the query")
	}
	if !strings.Contains(judge.prompts[0], "Savings: $20.00") {
		t.Error("task completion prompt should carry the response")
	}
}

func TestEvaluateThreshold(t *testing.T) {
	judge := &stubJudge{
		completionScore: Score{Value: 0.4, Rationale: "answer is vague"},
		efficiencyScore: Score{Value: 0.5, Rationale: "acceptable"},
	}
	e := New(judge, 0.5, []string{"filter_underutilized_vms"})

	got, err := e.Evaluate(context.Background(), "q", "r", []string{"filter_underutilized_vms"}, nil)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	if got[MetricTaskCompletion].Passed {
		t.Error("0.4 should fail a 0.5 threshold")
	}
	if !got[MetricStepEfficiency].Passed {
		t.Error("0.5 should pass a 0.5 threshold")
	}
}

func TestEvaluateJudgeUnavailable(t *testing.T) {
	judge := &stubJudge{err: errors.New("connection refused")}
	e := New(judge, 0.5, []string{"filter_underutilized_vms"})

	got, err := e.Evaluate(context.Background(), "q", "r", nil, nil)

	if !errors.Is(err, ErrJudgeUnavailable) {
		t.Fatalf("expected ErrJudgeUnavailable, got %v", err)
	}
	if got != nil {
		t.Error("expected no partial report on judge failure")
	}
}

func TestEvaluateIdempotent(t *testing.T) {
	e := New(passingJudge(), 0.5, []string{"filter_underutilized_vms", "calculate_total_savings"})

	tr := trace.New("cut our VM spend")
	tr.Record("filter_underutilized_vms", map[string]any{"total_vms": 3}, "2 of 3 VMs underutilized", false)
	tr.Record("calculate_total_savings", map[string]any{"recommendations": 2}, "total monthly savings $20.00", false)
	tools := tr.ToolNames()

	first, err := e.Evaluate(context.Background(), tr.Query, "Savings: $20.00", tools, tr)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	second, err := e.Evaluate(context.Background(), tr.Query, "Savings: $20.00", tools, tr)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	if !reflect.DeepEqual(first, second) {
		t.Errorf("evaluation not idempotent: %+v vs %+v", first, second)
	}
	if tr.Len() != 2 {
		t.Errorf("evaluation must not mutate the trace, got %d entries", tr.Len())
	}
}

func TestStepEfficiencyPromptCarriesDuplicateCount(t *testing.T) {
	judge := passingJudge()
	e := New(judge, 0.5, nil)

	tr := trace.New("q")
	tr.Record("search_vm_pricing", map[string]any{"sku": "Standard_D2s_v3"}, "ok", false)
	tr.Record("search_vm_pricing", map[string]any{"sku": "Standard_D2s_v3"}, "ok", false)
	tr.Record("search_vm_pricing", map[string]any{"sku": "Standard_D4s_v3"}, "ok", false)

	if _, err := e.Evaluate(context.Background(), "q", "r", tr.ToolNames(), tr); err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	var efficiencyPrompt string
	for _, p := range judge.prompts {
		if strings.Contains(p, "efficiency") {
			efficiencyPrompt = p
		}
	}
	if !strings.Contains(efficiencyPrompt, "1 of the calls repeated") {
		t.Errorf("prompt should report exactly one duplicate call:\n%s", efficiencyPrompt)
	}
	if !strings.Contains(efficiencyPrompt, "search_vm_pricing") {
		t.Error("prompt should list the tool calls")
	}
}

func TestCountDuplicateCalls(t *testing.T) {
	tr := trace.New("q")
	tr.Record("a", map[string]any{"x": 1}, "", false)
	tr.Record("a", map[string]any{"x": 1}, "", false)
	tr.Record("a", map[string]any{"x": 2}, "", false)
	tr.Record("b", map[string]any{"x": 1}, "", false)

	if got := countDuplicateCalls(tr.Calls()); got != 1 {
		t.Errorf("countDuplicateCalls = %d, want 1", got)
	}
}
