package mongo

import (
	"time"

	"github.com/autoflowhq/autoflow/runtime/execution"
)

type (
	executionDocument struct {
		ExecutionID    string              `bson:"execution_id"`
		WorkflowID     string              `bson:"workflow_id"`
		Status         string              `bson:"status"`
		StartTime      time.Time           `bson:"start_time"`
		EndTime        *time.Time          `bson:"end_time,omitempty"`
		NodeExecutions []nodeExecutionDoc  `bson:"node_executions"`
		Inputs         map[string]any      `bson:"inputs,omitempty"`
		Outputs        map[string]any      `bson:"outputs,omitempty"`
		Metrics        executionMetricsDoc `bson:"metrics"`
	}

	nodeExecutionDoc struct {
		NodeID    string         `bson:"node_id"`
		StartTime time.Time      `bson:"start_time"`
		EndTime   time.Time      `bson:"end_time"`
		Status    string         `bson:"status"`
		Paused    bool           `bson:"paused,omitempty"`
		Error     string         `bson:"error,omitempty"`
		Output    map[string]any `bson:"output,omitempty"`
		Metrics   stepMetricsDoc `bson:"metrics"`
	}

	stepMetricsDoc struct {
		DurationMS  int64 `bson:"duration_ms"`
		MemoryUsage int64 `bson:"memory_usage"`
	}

	executionMetricsDoc struct {
		TotalDurationMS int64   `bson:"total_duration_ms"`
		TotalCost       float64 `bson:"total_cost"`
		AITokensUsed    int64   `bson:"ai_tokens_used"`
		PeakMemoryUsage int64   `bson:"peak_memory_usage"`
		NodeCount       int     `bson:"node_count"`
		SuccessfulNodes int     `bson:"successful_nodes"`
		FailedNodes     int     `bson:"failed_nodes"`
	}
)

func fromDocument(doc execution.Document) executionDocument {
	out := executionDocument{
		ExecutionID: doc.ID,
		WorkflowID:  doc.WorkflowID,
		Status:      string(doc.Status),
		StartTime:   doc.StartTime.UTC(),
		Inputs:      doc.Inputs,
		Outputs:     doc.Outputs,
		Metrics: executionMetricsDoc{
			TotalDurationMS: doc.Metrics.TotalDuration,
			TotalCost:       doc.Metrics.TotalCost,
			AITokensUsed:    doc.Metrics.AITokensUsed,
			PeakMemoryUsage: doc.Metrics.PeakMemoryUsage,
			NodeCount:       doc.Metrics.NodeCount,
			SuccessfulNodes: doc.Metrics.SuccessfulNodes,
			FailedNodes:     doc.Metrics.FailedNodes,
		},
	}
	if doc.EndTime != nil {
		end := doc.EndTime.UTC()
		out.EndTime = &end
	}
	out.NodeExecutions = make([]nodeExecutionDoc, 0, len(doc.NodeExecutions))
	for _, ne := range doc.NodeExecutions {
		out.NodeExecutions = append(out.NodeExecutions, nodeExecutionDoc{
			NodeID:    ne.NodeID,
			StartTime: ne.StartTime.UTC(),
			EndTime:   ne.EndTime.UTC(),
			Status:    string(ne.Status),
			Paused:    ne.Paused,
			Error:     ne.Error,
			Output:    ne.Output,
			Metrics: stepMetricsDoc{
				DurationMS:  ne.Metrics.Duration,
				MemoryUsage: ne.Metrics.MemoryUsage,
			},
		})
	}
	return out
}

func (d executionDocument) toDocument() execution.Document {
	out := execution.Document{
		ID:         d.ExecutionID,
		WorkflowID: d.WorkflowID,
		Status:     execution.Status(d.Status),
		StartTime:  d.StartTime,
		Inputs:     d.Inputs,
		Outputs:    d.Outputs,
		Metrics: execution.Metrics{
			TotalDuration:   d.Metrics.TotalDurationMS,
			TotalCost:       d.Metrics.TotalCost,
			AITokensUsed:    d.Metrics.AITokensUsed,
			PeakMemoryUsage: d.Metrics.PeakMemoryUsage,
			NodeCount:       d.Metrics.NodeCount,
			SuccessfulNodes: d.Metrics.SuccessfulNodes,
			FailedNodes:     d.Metrics.FailedNodes,
		},
	}
	if d.EndTime != nil {
		end := *d.EndTime
		out.EndTime = &end
	}
	out.NodeExecutions = make([]execution.NodeExecution, 0, len(d.NodeExecutions))
	for _, ne := range d.NodeExecutions {
		out.NodeExecutions = append(out.NodeExecutions, execution.NodeExecution{
			NodeID:    ne.NodeID,
			StartTime: ne.StartTime,
			EndTime:   ne.EndTime,
			Status:    execution.StepOutcome(ne.Status),
			Paused:    ne.Paused,
			Error:     ne.Error,
			Output:    ne.Output,
			Metrics: execution.StepMetrics{
				Duration:    ne.Metrics.DurationMS,
				MemoryUsage: ne.Metrics.MemoryUsage,
			},
		})
	}
	return out
}
