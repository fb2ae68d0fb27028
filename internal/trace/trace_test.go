package trace

import (
	"fmt"
	"sync"
	"testing"
)

func TestRecordAssignsIncreasingSequence(t *testing.T) {
	tr := New("find waste")

	tr.Record("filter_underutilized_vms", map[string]any{"command": "all"}, "ok", false)
	tr.Record("search_vm_pricing", map[string]any{"query": "Standard_D4s_v3 pricing"}, "3 results", false)
	tr.Record("calculate_total_savings", nil, "ok", false)

	calls := tr.Calls()
	if len(calls) != 3 {
		t.Fatalf("expected 3 calls, got %d", len(calls))
	}
	for i, c := range calls {
		if c.Seq != i+1 {
			t.Errorf("call %d: expected seq %d, got %d", i, i+1, c.Seq)
		}
	}
}

func TestConcurrentRecordsStrictlyIncrease(t *testing.T) {
	tr := New("q")

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tr.Record("search_vm_pricing", map[string]any{"vm": fmt.Sprintf("vm-%d", i)}, "", false)
		}(i)
	}
	wg.Wait()

	calls := tr.Calls()
	if len(calls) != 100 {
		t.Fatalf("expected 100 calls, got %d", len(calls))
	}
	for i := 1; i < len(calls); i++ {
		if calls[i].Seq <= calls[i-1].Seq {
			t.Fatalf("sequence not strictly increasing at index %d: %d then %d",
				i, calls[i-1].Seq, calls[i].Seq)
		}
	}
}

func TestCallsReturnsCopy(t *testing.T) {
	tr := New("q")
	tr.Record("search_vm_pricing", nil, "first", false)

	calls := tr.Calls()
	calls[0].Output = "mutated"

	if tr.Calls()[0].Output != "first" {
		t.Error("mutating the returned slice changed the trace")
	}
}

func TestRecordCopiesArgs(t *testing.T) {
	tr := New("q")
	args := map[string]any{"query": "original"}
	tr.Record("search_vm_pricing", args, "", false)

	args["query"] = "changed"

	if got := tr.Calls()[0].Args["query"]; got != "original" {
		t.Errorf("expected recorded arg to stay original, got %v", got)
	}
}

func TestToolNames(t *testing.T) {
	tr := New("q")
	tr.Record("filter_underutilized_vms", nil, "", false)
	tr.Record("search_vm_pricing", nil, "", true)

	names := tr.ToolNames()
	if len(names) != 2 || names[0] != "filter_underutilized_vms" || names[1] != "search_vm_pricing" {
		t.Errorf("unexpected tool names: %v", names)
	}
}

func TestResponse(t *testing.T) {
	tr := New("q")
	if tr.Response() != "" {
		t.Error("expected empty response before run completes")
	}
	tr.SetResponse("done")
	if tr.Response() != "done" {
		t.Errorf("expected response %q, got %q", "done", tr.Response())
	}
}
