package execution

import (
	"time"
)

type (
	// Document is the durable shape persisted for one execution. Stores upsert
	// a single document per execution ID on every transition.
	Document struct {
		// ID is the execution identifier (the store's primary key).
		ID string
		// WorkflowID references the executed workflow.
		WorkflowID string
		// Status is the execution lifecycle state at persist time.
		Status Status
		// StartTime is when the execution was created.
		StartTime time.Time
		// EndTime is set only for terminal executions.
		EndTime *time.Time
		// NodeExecutions is the ordered list of persisted step records.
		NodeExecutions []NodeExecution
		// Inputs snapshots the initial trigger payload.
		Inputs map[string]any
		// Outputs snapshots the variables at persist time.
		Outputs map[string]any
		// Metrics aggregates per-execution counters.
		Metrics Metrics
	}

	// NodeExecution is the persisted form of one step record. Pause steps are
	// persisted with status success; the pause data is kept in Output so boot
	// recovery can re-arm wake-ups.
	NodeExecution struct {
		// NodeID identifies the executed node.
		NodeID string
		// StartTime is when the handler was invoked.
		StartTime time.Time
		// EndTime is when the handler returned.
		EndTime time.Time
		// Status is "success" or "failed".
		Status StepOutcome
		// Paused marks a step whose handler paused the execution. The status
		// stays "success"; the marker lets reconstruction restore the pause
		// outcome after the execution has moved on.
		Paused bool
		// Error holds the handler error message for failed steps.
		Error string
		// Output holds the handler output (or pause data) for non-failed steps.
		Output map[string]any
		// Metrics holds per-step measurements.
		Metrics StepMetrics
	}

	// StepMetrics holds per-step measurements.
	StepMetrics struct {
		// Duration is the handler execution time in milliseconds.
		Duration int64
		// MemoryUsage is the heap allocation observed at step end, in bytes.
		MemoryUsage int64
	}

	// Metrics aggregates counters across all steps of an execution.
	Metrics struct {
		// TotalDuration is the sum of step durations in milliseconds.
		TotalDuration int64
		// TotalCost accumulates estimated AI provider cost.
		TotalCost float64
		// AITokensUsed accumulates AI token usage reported by steps.
		AITokensUsed int64
		// PeakMemoryUsage is the maximum per-step heap allocation in bytes.
		PeakMemoryUsage int64
		// NodeCount is the number of persisted steps.
		NodeCount int
		// SuccessfulNodes counts steps persisted with status success.
		SuccessfulNodes int
		// FailedNodes counts steps persisted with status failed.
		FailedNodes int
	}
)

// FromContext derives the durable document from an in-flight context. The
// inputs snapshot is the initial trigger payload captured at start; per-step
// inputs are not persisted (reconstruction is best-effort by design).
func FromContext(c *Context, inputs map[string]any) Document {
	doc := Document{
		ID:         c.ExecutionID,
		WorkflowID: c.WorkflowID,
		Status:     c.Status,
		StartTime:  c.StartTime,
		EndTime:    c.EndTime,
		Inputs:     cloneMap(inputs),
		Outputs:    cloneMap(c.Variables),
	}
	doc.NodeExecutions = make([]NodeExecution, 0, len(c.History))
	for _, step := range c.History {
		ne := NodeExecution{
			NodeID:    step.NodeID,
			StartTime: step.StartedAt,
			EndTime:   step.StartedAt.Add(step.Duration),
			Output:    cloneMap(step.Output),
			Metrics: StepMetrics{
				Duration:    step.Duration.Milliseconds(),
				MemoryUsage: step.Memory,
			},
		}
		switch step.Outcome {
		case OutcomeFailed:
			ne.Status = OutcomeFailed
			ne.Error = step.Error
		default:
			// Pause steps persist as success; the persisted step status set is
			// {success, failed}.
			ne.Status = OutcomeSuccess
			ne.Paused = step.Outcome == OutcomePause
		}
		doc.NodeExecutions = append(doc.NodeExecutions, ne)
		doc.Metrics.TotalDuration += ne.Metrics.Duration
		if ne.Metrics.MemoryUsage > doc.Metrics.PeakMemoryUsage {
			doc.Metrics.PeakMemoryUsage = ne.Metrics.MemoryUsage
		}
		if ne.Status == OutcomeFailed {
			doc.Metrics.FailedNodes++
		} else {
			doc.Metrics.SuccessfulNodes++
		}
		doc.Metrics.AITokensUsed += asInt64(step.Output["tokensUsed"])
		doc.Metrics.TotalCost += asFloat64(step.Output["cost"])
	}
	doc.Metrics.NodeCount = len(doc.NodeExecutions)
	return doc
}

// ToContext reconstructs an in-flight context from a persisted document.
// Per-step inputs are recreated from the persisted initial inputs snapshot,
// the cursor is the last step's node ID, and the variables are the persisted
// outputs. Steps carrying the pause marker (or the last entry of a paused
// document) come back with a pause outcome so the history keeps its pauses
// after reload.
func ToContext(doc Document) *Context {
	c := &Context{
		ExecutionID: doc.ID,
		WorkflowID:  doc.WorkflowID,
		Variables:   cloneMap(doc.Outputs),
		Status:      doc.Status,
		StartTime:   doc.StartTime,
	}
	if doc.EndTime != nil {
		end := *doc.EndTime
		c.EndTime = &end
	}
	c.History = make([]StepRecord, 0, len(doc.NodeExecutions))
	for i, ne := range doc.NodeExecutions {
		rec := StepRecord{
			NodeID:    ne.NodeID,
			StartedAt: ne.StartTime,
			Duration:  time.Duration(ne.Metrics.Duration) * time.Millisecond,
			Input:     cloneMap(doc.Inputs),
			Output:    cloneMap(ne.Output),
			Error:     ne.Error,
			Memory:    ne.Metrics.MemoryUsage,
		}
		switch {
		case ne.Status == OutcomeFailed:
			rec.Outcome = OutcomeFailed
		case ne.Paused || (doc.Status == StatusPaused && i == len(doc.NodeExecutions)-1):
			rec.Outcome = OutcomePause
		default:
			rec.Outcome = OutcomeSuccess
		}
		c.History = append(c.History, rec)
		c.CurrentNodeID = ne.NodeID
	}
	return c
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int64:
		return n
	case float64:
		return int64(n)
	default:
		return 0
	}
}

func asFloat64(v any) float64 {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case float64:
		return n
	default:
		return 0
	}
}
