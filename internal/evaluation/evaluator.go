package evaluation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/fleetcost/rightsize/internal/trace"
)

// Metric names. One evaluation report carries all three.
const (
	MetricTaskCompletion  = "task_completion"
	MetricToolCorrectness = "tool_correctness"
	MetricStepEfficiency  = "step_efficiency"
)

// ErrJudgeUnavailable wraps judge transport failures. The pipeline run
// being evaluated is unaffected; only the evaluation call fails.
var ErrJudgeUnavailable = errors.New("judge unavailable")

// Result is one metric's outcome.
type Result struct {
	Metric string  `json:"metric"`
	Score  float64 `json:"score"`
	Passed bool    `json:"passed"`
	Reason string  `json:"reason"`
}

// Evaluator scores an agent run on three independent metrics. Task
// completion and step efficiency are judge-scored; tool correctness is
// computed deterministically from the tool lists. The evaluator never
// mutates the trace.
type Evaluator struct {
	judge         Judge
	threshold     float64
	expectedTools []string
}

// New creates an Evaluator. threshold is the pass mark applied to
// every metric; expectedTools is the allowed tool set for the task
// class.
func New(judge Judge, threshold float64, expectedTools []string) *Evaluator {
	return &Evaluator{
		judge:         judge,
		threshold:     threshold,
		expectedTools: expectedTools,
	}
}

// Evaluate scores one run. toolsUsed is the ordered list of tool names
// the agent called; tr may be nil when only the tool list is known.
// A judge failure returns ErrJudgeUnavailable and no partial report.
func (e *Evaluator) Evaluate(ctx context.Context, query, response string, toolsUsed []string, tr *trace.Trace) (map[string]Result, error) {
	completion, err := e.taskCompletion(ctx, query, response)
	if err != nil {
		return nil, err
	}
	efficiency, err := e.stepEfficiency(ctx, query, toolsUsed, tr)
	if err != nil {
		return nil, err
	}
	correctness := e.toolCorrectness(toolsUsed)

	return map[string]Result{
		MetricTaskCompletion:  completion,
		MetricToolCorrectness: correctness,
		MetricStepEfficiency:  efficiency,
	}, nil
}

func (e *Evaluator) taskCompletion(ctx context.Context, query, response string) (Result, error) {
	prompt := fmt.Sprintf(`You are grading an automated agent.

The user asked:
%s

The agent's final answer:
%s

Infer the task implied by the user's question and rate how completely the final answer satisfies it.
Respond with only a JSON object: {"score": <number between 0 and 1>, "reason": "<one sentence>"}`, query, response)

	score, err := e.judge.Score(ctx, prompt)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %s: %v", ErrJudgeUnavailable, MetricTaskCompletion, err)
	}
	return e.result(MetricTaskCompletion, score.Value, score.Rationale), nil
}

// toolCorrectness is deterministic: the fraction of expected tools
// that were called, penalized by the fraction of called tools that
// were outside the expected set. Floored at zero.
func (e *Evaluator) toolCorrectness(toolsUsed []string) Result {
	expected := uniqueNames(e.expectedTools)
	actual := uniqueNames(toolsUsed)

	if len(expected) == 0 {
		return e.result(MetricToolCorrectness, 1, "no expected tool set configured")
	}

	actualSet := make(map[string]bool, len(actual))
	for _, name := range actual {
		actualSet[name] = true
	}
	expectedSet := make(map[string]bool, len(expected))
	covered := 0
	for _, name := range expected {
		expectedSet[name] = true
		if actualSet[name] {
			covered++
		}
	}

	var missing, unexpected []string
	for _, name := range expected {
		if !actualSet[name] {
			missing = append(missing, name)
		}
	}
	for _, name := range actual {
		if !expectedSet[name] {
			unexpected = append(unexpected, name)
		}
	}

	score := float64(covered) / float64(len(expected))
	if len(actual) > 0 {
		score -= float64(len(unexpected)) / float64(len(actual))
	}
	if score < 0 {
		score = 0
	}

	reason := "all expected tools were called and no others"
	if len(missing) > 0 || len(unexpected) > 0 {
		var parts []string
		if len(missing) > 0 {
			parts = append(parts, "missing: "+strings.Join(missing, ", "))
		}
		if len(unexpected) > 0 {
			parts = append(parts, "unexpected: "+strings.Join(unexpected, ", "))
		}
		reason = strings.Join(parts, "; ")
	}
	return e.result(MetricToolCorrectness, score, reason)
}

func (e *Evaluator) stepEfficiency(ctx context.Context, query string, toolsUsed []string, tr *trace.Trace) (Result, error) {
	steps := strings.Join(toolsUsed, " -> ")
	duplicates := 0
	if tr != nil {
		steps = formatCalls(tr.Calls())
		duplicates = countDuplicateCalls(tr.Calls())
	}

	prompt := fmt.Sprintf(`You are grading an automated agent's efficiency.

The user asked:
%s

The agent executed these tool calls, in order:
%s

%d of the calls repeated an earlier call with identical arguments.
Rate whether this sequence was minimal for the task: penalize redundant, repeated, or out-of-order steps.
Respond with only a JSON object: {"score": <number between 0 and 1>, "reason": "<one sentence>"}`, query, steps, duplicates)

	score, err := e.judge.Score(ctx, prompt)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %s: %v", ErrJudgeUnavailable, MetricStepEfficiency, err)
	}
	return e.result(MetricStepEfficiency, score.Value, score.Rationale), nil
}

func (e *Evaluator) result(metric string, score float64, reason string) Result {
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return Result{
		Metric: metric,
		Score:  score,
		Passed: score >= e.threshold,
		Reason: reason,
	}
}

// uniqueNames keeps the first occurrence of each name, in order.
func uniqueNames(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, name := range names {
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}

// formatCalls renders trace entries one per line for the judge prompt.
func formatCalls(calls []trace.ToolCall) string {
	lines := make([]string, len(calls))
	for i, c := range calls {
		status := "ok"
		if c.Failed {
			status = "failed"
		}
		lines[i] = fmt.Sprintf("%d. %s(%s) [%s]", c.Seq, c.Tool, formatArgs(c.Args), status)
	}
	return strings.Join(lines, "\n")
}

// countDuplicateCalls counts calls that repeat an earlier call with
// the same tool name and identical arguments.
func countDuplicateCalls(calls []trace.ToolCall) int {
	seen := make(map[string]bool, len(calls))
	duplicates := 0
	for _, c := range calls {
		key := c.Tool + "|" + formatArgs(c.Args)
		if seen[key] {
			duplicates++
			continue
		}
		seen[key] = true
	}
	return duplicates
}

// formatArgs renders args deterministically, keys sorted.
func formatArgs(args map[string]any) string {
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		v, err := json.Marshal(args[k])
		if err != nil {
			v = []byte(fmt.Sprintf("%v", args[k]))
		}
		parts[i] = k + "=" + string(v)
	}
	return strings.Join(parts, ", ")
}
