package trace

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// ToolCall is one recorded tool invocation. Entries are never mutated
// after they are appended to a Trace.
type ToolCall struct {
	Seq       int            `json:"seq"`
	Tool      string         `json:"tool"`
	Args      map[string]any `json:"args"`
	Output    string         `json:"output"`
	Failed    bool           `json:"failed"`
	Timestamp time.Time      `json:"timestamp"`
}

// Trace is the ordered record of all tool invocations during one
// pipeline run, plus the originating query and final response. A trace
// is owned by exactly one run. Appends are serialized, so sequence
// numbers are strictly increasing even when recorded from concurrent
// workers.
type Trace struct {
	ID    string `json:"id"`
	Query string `json:"query"`

	mu       sync.Mutex
	seq      int
	calls    []ToolCall
	response string
}

// New creates an empty trace for the given query.
func New(query string) *Trace {
	return &Trace{
		ID:    uuid.NewString(),
		Query: query,
	}
}

// Record appends a tool call and returns the entry with its assigned
// sequence number. Args is copied so callers may reuse their map.
func (t *Trace) Record(tool string, args map[string]any, output string, failed bool) ToolCall {
	argsCopy := make(map[string]any, len(args))
	for k, v := range args {
		argsCopy[k] = v
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.seq++
	call := ToolCall{
		Seq:       t.seq,
		Tool:      tool,
		Args:      argsCopy,
		Output:    output,
		Failed:    failed,
		Timestamp: time.Now().UTC(),
	}
	t.calls = append(t.calls, call)
	return call
}

// Calls returns a copy of all recorded entries in sequence order.
func (t *Trace) Calls() []ToolCall {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]ToolCall, len(t.calls))
	copy(out, t.calls)
	return out
}

// ToolNames returns the tool name of every entry, in call order.
func (t *Trace) ToolNames() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	names := make([]string, len(t.calls))
	for i, c := range t.calls {
		names[i] = c.Tool
	}
	return names
}

// Len returns the number of recorded entries.
func (t *Trace) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.calls)
}

// SetResponse records the final natural-language response of the run.
func (t *Trace) SetResponse(response string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.response = response
}

// Response returns the final response, or "" if the run has not finished.
func (t *Trace) Response() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.response
}
