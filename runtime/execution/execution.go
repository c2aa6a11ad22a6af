// Package execution defines the runtime state of a single workflow run: the
// in-flight context the engine mutates, the append-only step history, and the
// durable document shape persisted by execution stores.
//
// A Context lives in memory while an execution is active and is persisted on
// every transition so it can be reconstructed after a crash or restart. Two
// concurrent mutations of the same execution never occur; the engine serializes
// steps under the execution's named lock.
package execution

import (
	"errors"
	"time"
)

// Status represents the lifecycle state of an execution.
type Status string

const (
	// StatusRunning indicates the execution is actively stepping through nodes.
	StatusRunning Status = "running"
	// StatusPaused indicates the execution is suspended awaiting an external
	// event (human approval, timer expiry).
	StatusPaused Status = "paused"
	// StatusCompleted indicates the execution finished successfully.
	StatusCompleted Status = "completed"
	// StatusFailed indicates a step failed and terminated the execution.
	StatusFailed Status = "failed"
	// StatusCancelled indicates the execution was cancelled externally.
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status is a terminal state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// StepOutcome classifies the result of a single handler invocation.
type StepOutcome string

const (
	// OutcomeSuccess indicates the handler produced an output to merge.
	OutcomeSuccess StepOutcome = "success"
	// OutcomePause indicates the handler suspended the execution.
	OutcomePause StepOutcome = "pause"
	// OutcomeFailed indicates the handler reported an error.
	OutcomeFailed StepOutcome = "failed"
)

var (
	// ErrNotFound indicates that no execution exists for the given identifier.
	ErrNotFound = errors.New("execution not found")
)

type (
	// StepRecord captures one handler invocation in the execution history.
	StepRecord struct {
		// NodeID identifies the executed node.
		NodeID string
		// StartedAt is when the handler was invoked.
		StartedAt time.Time
		// Duration is the measured handler execution time.
		Duration time.Duration
		// Outcome classifies the handler result.
		Outcome StepOutcome
		// Input snapshots the variables visible to the handler at step start.
		Input map[string]any
		// Output holds the handler output on success, or the pause data on pause.
		Output map[string]any
		// Error holds the handler error message when the outcome is failed.
		Error string
		// Memory is the heap allocation observed at step end, in bytes.
		Memory int64
	}

	// Context is the in-flight state of one execution.
	Context struct {
		// ExecutionID is the process-unique execution identifier
		// (format exec_<ms>_<random>).
		ExecutionID string
		// WorkflowID references the executed workflow definition.
		WorkflowID string
		// CurrentNodeID is the traversal cursor.
		CurrentNodeID string
		// Variables is the accumulated variable state: the fold of step outputs
		// over the initial trigger payload (shallow merge, later keys win).
		Variables map[string]any
		// History is the append-only sequence of step records.
		History []StepRecord
		// Status is the execution lifecycle state.
		Status Status
		// StartTime is when the execution was created.
		StartTime time.Time
		// EndTime is set exactly when the execution reaches a terminal status.
		EndTime *time.Time
	}
)

// MergeVariables shallow-merges the given output into the execution variables.
// Later keys overwrite earlier ones. A nil output is a no-op.
func (c *Context) MergeVariables(output map[string]any) {
	if len(output) == 0 {
		return
	}
	if c.Variables == nil {
		c.Variables = make(map[string]any, len(output))
	}
	for k, v := range output {
		c.Variables[k] = v
	}
}

// AppendStep appends a step record to the history.
func (c *Context) AppendStep(rec StepRecord) {
	c.History = append(c.History, rec)
}

// LastStep returns the most recent history entry, or nil when the history is
// empty.
func (c *Context) LastStep() *StepRecord {
	if len(c.History) == 0 {
		return nil
	}
	return &c.History[len(c.History)-1]
}

// Clone returns a deep-enough copy of the context for read-only callers:
// history and variable maps are copied one level deep.
func (c *Context) Clone() *Context {
	cp := *c
	cp.Variables = cloneMap(c.Variables)
	cp.History = make([]StepRecord, len(c.History))
	copy(cp.History, c.History)
	if c.EndTime != nil {
		end := *c.EndTime
		cp.EndTime = &end
	}
	return &cp
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cp := make(map[string]any, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}
