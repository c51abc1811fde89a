package types

import "time"

// ExecutionRecord is appended once per node actually executed in a run.
type ExecutionRecord struct {
	Node      string        `json:"node_name"`
	Status    StatusType    `json:"status"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration_ns"`
	Attempts  int           `json:"attempts"`
	Error     string        `json:"error,omitempty"`
}

type RunResult struct {
	RunID     string
	RequestID string
	Pipeline  string

	Success   bool
	Context   Data
	Records   []*ExecutionRecord
	Duration  time.Duration
	FinalNode string
	Error     string
	// Err is the failure behind Error, a *RoutingError when the walk
	// itself broke rather than a node.
	Err error
}

// Fail records err as the reason the run failed.
func (r *RunResult) Fail(err error) {
	r.Err = err
	r.Error = err.Error()
}

// Visited lists the executed node names in order.
func (r *RunResult) Visited() []string {
	names := make([]string, 0, len(r.Records))
	for _, record := range r.Records {
		names = append(names, record.Node)
	}
	return names
}

// Summary is the diagnostic view of a run: it carries the context keys but
// not the context values.
func (r *RunResult) Summary() map[string]any {
	return map[string]any{
		"run_id":            r.RunID,
		"request_id":        r.RequestID,
		"pipeline":          r.Pipeline,
		"success":           r.Success,
		"final_node":        r.FinalNode,
		"total_duration_ms": float64(r.Duration) / float64(time.Millisecond),
		"error":             r.Error,
		"execution_log":     r.Records,
		"context_keys":      r.Context.Keys(),
	}
}

type ItemOutcome struct {
	Index   int
	ID      string
	Success bool
	Error   string
	Result  *RunResult
}

type BatchSummary struct {
	Total   int `json:"total"`
	Success int `json:"success"`
	Failed  int `json:"failed"`

	Duration time.Duration  `json:"-"`
	Outcomes []*ItemOutcome `json:"-"`
}
