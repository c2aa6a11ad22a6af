package hooks

import (
	"time"

	"github.com/autoflowhq/autoflow/runtime/execution"
	"github.com/autoflowhq/autoflow/runtime/workflow"
)

// EventType names a lifecycle event on the wire. The values are part of the
// external contract: stream forwarders and trigger-layer consumers match on
// them.
type EventType string

const (
	// NodeStart fires immediately before a node handler is invoked.
	NodeStart EventType = "node:start"
	// NodeComplete fires after a node handler returns, whatever the outcome.
	NodeComplete EventType = "node:complete"
	// ExecutionPaused fires when an execution suspends awaiting external input.
	ExecutionPaused EventType = "execution:paused"
	// ExecutionComplete fires when an execution finishes successfully.
	ExecutionComplete EventType = "execution:complete"
	// ExecutionFailed fires when a step failure terminates an execution.
	ExecutionFailed EventType = "execution:failed"
	// AIRequest fires before an AI provider call.
	AIRequest EventType = "ai:request"
	// AIResponse fires after a successful AI provider call.
	AIResponse EventType = "ai:response"
	// AIError fires when every provider in the fallback chain failed.
	AIError EventType = "ai:error"
	// ApprovalRequested fires when a HumanTask node requests approval.
	ApprovalRequested EventType = "human:approval_requested"
	// ApprovalGranted resumes a paused execution with approval data.
	ApprovalGranted EventType = "human:approved"
	// ApprovalRejected terminates a paused execution as failed.
	ApprovalRejected EventType = "human:rejected"
	// TimerExpired resumes an execution paused on a long timer.
	TimerExpired EventType = "timer:expired"
	// WorkflowCompleted fires alongside ExecutionComplete with workflow scope.
	WorkflowCompleted EventType = "workflow:completed"
	// WorkflowFailed fires alongside ExecutionFailed with workflow scope.
	WorkflowFailed EventType = "workflow:failed"
)

type (
	// Event is the interface all bus events implement. Subscribers use type
	// switches to access event-specific fields:
	//
	//	func (s *MySubscriber) HandleEvent(ctx context.Context, evt hooks.Event) error {
	//	    switch e := evt.(type) {
	//	    case *hooks.NodeCompletedEvent:
	//	        log.Printf("node %s took %v", e.NodeID, e.Duration)
	//	    case *hooks.ExecutionPausedEvent:
	//	        log.Printf("paused: %s", e.Reason)
	//	    }
	//	    return nil
	//	}
	Event interface {
		// Type returns the event type constant (e.g. NodeStart).
		Type() EventType
		// ExecutionID returns the execution that produced the event. Adapter
		// events published outside an execution return an empty string.
		ExecutionID() string
		// Timestamp returns the Unix timestamp in milliseconds when the event
		// was created.
		Timestamp() int64
	}

	// baseEvent holds common fields shared by all event types.
	baseEvent struct {
		executionID string
		timestamp   int64
	}

	// NodeStartedEvent fires before a node handler runs.
	NodeStartedEvent struct {
		baseEvent
		// NodeID identifies the node about to execute.
		NodeID string
		// Kind is the node kind being dispatched.
		Kind workflow.NodeKind
	}

	// NodeCompletedEvent fires after a node handler returns.
	NodeCompletedEvent struct {
		baseEvent
		// NodeID identifies the executed node.
		NodeID string
		// Outcome classifies the handler result.
		Outcome execution.StepOutcome
		// Duration is the measured handler execution time.
		Duration time.Duration
	}

	// ExecutionPausedEvent fires when an execution suspends.
	ExecutionPausedEvent struct {
		baseEvent
		// NodeID is the node that requested the pause.
		NodeID string
		// Reason is the handler-provided pause reason.
		Reason string
		// Data carries the pause payload (approval descriptor, timer deadline).
		Data map[string]any
	}

	// ExecutionCompletedEvent fires when an execution finishes successfully.
	ExecutionCompletedEvent struct {
		baseEvent
		// WorkflowID references the executed workflow.
		WorkflowID string
		// Outputs snapshots the final variables.
		Outputs map[string]any
	}

	// ExecutionFailedEvent fires when a step failure terminates an execution.
	ExecutionFailedEvent struct {
		baseEvent
		// WorkflowID references the executed workflow.
		WorkflowID string
		// NodeID is the failing node when the failure originated in a step.
		NodeID string
		// Reason is the failure message.
		Reason string
	}

	// AIRequestEvent fires before an AI provider call.
	AIRequestEvent struct {
		baseEvent
		// NodeID identifies the AIProcessor node.
		NodeID string
		// Provider is the selected provider name (empty before routing).
		Provider string
		// Model is the requested model identifier when configured.
		Model string
		// TaskType is the detected or configured task type.
		TaskType string
	}

	// AIResponseEvent fires after a successful AI provider call.
	AIResponseEvent struct {
		baseEvent
		// NodeID identifies the AIProcessor node.
		NodeID string
		// Provider served the request.
		Provider string
		// TokensUsed is the total token usage reported by the provider.
		TokensUsed int
		// Cost is the estimated request cost.
		Cost float64
	}

	// AIErrorEvent fires when the provider chain is exhausted.
	AIErrorEvent struct {
		baseEvent
		// NodeID identifies the AIProcessor node.
		NodeID string
		// Reason is the terminal provider error message.
		Reason string
	}

	// Approval describes a pending human approval request.
	Approval struct {
		// Title is the short approval title shown to the assignee.
		Title string
		// Description explains what is being approved.
		Description string
		// Assignee is the approver address or identifier.
		Assignee string
		// ApprovalType categorizes the request (e.g. "approve_reject").
		ApprovalType string
		// Timeout bounds how long the approval may stay pending.
		Timeout time.Duration
		// Link points the assignee at the approval surface.
		Link string
		// Variables snapshots the execution variables at request time.
		Variables map[string]any
	}

	// ApprovalRequestedEvent fires when a HumanTask node requests approval.
	ApprovalRequestedEvent struct {
		baseEvent
		// NodeID identifies the HumanTask node.
		NodeID string
		// Approval is the request descriptor delivered to the approval surface.
		Approval Approval
	}

	// ApprovalGrantedEvent resumes a paused execution. Published by the
	// approval surface (trigger layer), consumed by the engine.
	ApprovalGrantedEvent struct {
		baseEvent
		// ApprovalData is merged into the execution variables on resume.
		ApprovalData map[string]any
	}

	// ApprovalRejectedEvent terminates a paused execution as failed. Published
	// by the approval surface, consumed by the engine.
	ApprovalRejectedEvent struct {
		baseEvent
		// Reason optionally explains the rejection.
		Reason string
	}

	// TimerExpiredEvent resumes an execution paused on a long timer.
	TimerExpiredEvent struct {
		baseEvent
		// NodeID identifies the Timer node whose delay elapsed.
		NodeID string
	}

	// WorkflowCompletedEvent fires alongside ExecutionCompletedEvent.
	WorkflowCompletedEvent struct {
		baseEvent
		// WorkflowID references the completed workflow.
		WorkflowID string
	}

	// WorkflowFailedEvent fires alongside ExecutionFailedEvent.
	WorkflowFailedEvent struct {
		baseEvent
		// WorkflowID references the failed workflow.
		WorkflowID string
		// Reason is the failure message.
		Reason string
	}

	// AdapterEvent carries adapter family events with dynamic names such as
	// "email:sent", "form:created", or "notification:delivered". Handlers
	// publish these after adapter calls; subscribers typically register family
	// wildcards ("email:*").
	AdapterEvent struct {
		baseEvent
		typ EventType
		// NodeID identifies the node that invoked the adapter.
		NodeID string
		// Payload carries adapter-specific details.
		Payload map[string]any
	}
)

func newBaseEvent(executionID string) baseEvent {
	return baseEvent{executionID: executionID, timestamp: time.Now().UnixMilli()}
}

// ExecutionID returns the execution that produced the event.
func (e baseEvent) ExecutionID() string { return e.executionID }

// Timestamp returns the Unix timestamp in milliseconds of event creation.
func (e baseEvent) Timestamp() int64 { return e.timestamp }

// NewNodeStartedEvent constructs a NodeStartedEvent.
func NewNodeStartedEvent(executionID, nodeID string, kind workflow.NodeKind) *NodeStartedEvent {
	return &NodeStartedEvent{baseEvent: newBaseEvent(executionID), NodeID: nodeID, Kind: kind}
}

// NewNodeCompletedEvent constructs a NodeCompletedEvent.
func NewNodeCompletedEvent(executionID, nodeID string, outcome execution.StepOutcome, d time.Duration) *NodeCompletedEvent {
	return &NodeCompletedEvent{baseEvent: newBaseEvent(executionID), NodeID: nodeID, Outcome: outcome, Duration: d}
}

// NewExecutionPausedEvent constructs an ExecutionPausedEvent.
func NewExecutionPausedEvent(executionID, nodeID, reason string, data map[string]any) *ExecutionPausedEvent {
	return &ExecutionPausedEvent{baseEvent: newBaseEvent(executionID), NodeID: nodeID, Reason: reason, Data: data}
}

// NewExecutionCompletedEvent constructs an ExecutionCompletedEvent.
func NewExecutionCompletedEvent(executionID, workflowID string, outputs map[string]any) *ExecutionCompletedEvent {
	return &ExecutionCompletedEvent{baseEvent: newBaseEvent(executionID), WorkflowID: workflowID, Outputs: outputs}
}

// NewExecutionFailedEvent constructs an ExecutionFailedEvent.
func NewExecutionFailedEvent(executionID, workflowID, nodeID, reason string) *ExecutionFailedEvent {
	return &ExecutionFailedEvent{baseEvent: newBaseEvent(executionID), WorkflowID: workflowID, NodeID: nodeID, Reason: reason}
}

// NewAIRequestEvent constructs an AIRequestEvent.
func NewAIRequestEvent(executionID, nodeID, provider, model, taskType string) *AIRequestEvent {
	return &AIRequestEvent{baseEvent: newBaseEvent(executionID), NodeID: nodeID, Provider: provider, Model: model, TaskType: taskType}
}

// NewAIResponseEvent constructs an AIResponseEvent.
func NewAIResponseEvent(executionID, nodeID, provider string, tokensUsed int, cost float64) *AIResponseEvent {
	return &AIResponseEvent{baseEvent: newBaseEvent(executionID), NodeID: nodeID, Provider: provider, TokensUsed: tokensUsed, Cost: cost}
}

// NewAIErrorEvent constructs an AIErrorEvent.
func NewAIErrorEvent(executionID, nodeID, reason string) *AIErrorEvent {
	return &AIErrorEvent{baseEvent: newBaseEvent(executionID), NodeID: nodeID, Reason: reason}
}

// NewApprovalRequestedEvent constructs an ApprovalRequestedEvent.
func NewApprovalRequestedEvent(executionID, nodeID string, approval Approval) *ApprovalRequestedEvent {
	return &ApprovalRequestedEvent{baseEvent: newBaseEvent(executionID), NodeID: nodeID, Approval: approval}
}

// NewApprovalGrantedEvent constructs an ApprovalGrantedEvent.
func NewApprovalGrantedEvent(executionID string, approvalData map[string]any) *ApprovalGrantedEvent {
	return &ApprovalGrantedEvent{baseEvent: newBaseEvent(executionID), ApprovalData: approvalData}
}

// NewApprovalRejectedEvent constructs an ApprovalRejectedEvent.
func NewApprovalRejectedEvent(executionID, reason string) *ApprovalRejectedEvent {
	return &ApprovalRejectedEvent{baseEvent: newBaseEvent(executionID), Reason: reason}
}

// NewTimerExpiredEvent constructs a TimerExpiredEvent.
func NewTimerExpiredEvent(executionID, nodeID string) *TimerExpiredEvent {
	return &TimerExpiredEvent{baseEvent: newBaseEvent(executionID), NodeID: nodeID}
}

// NewWorkflowCompletedEvent constructs a WorkflowCompletedEvent.
func NewWorkflowCompletedEvent(executionID, workflowID string) *WorkflowCompletedEvent {
	return &WorkflowCompletedEvent{baseEvent: newBaseEvent(executionID), WorkflowID: workflowID}
}

// NewWorkflowFailedEvent constructs a WorkflowFailedEvent.
func NewWorkflowFailedEvent(executionID, workflowID, reason string) *WorkflowFailedEvent {
	return &WorkflowFailedEvent{baseEvent: newBaseEvent(executionID), WorkflowID: workflowID, Reason: reason}
}

// NewAdapterEvent constructs an AdapterEvent with a dynamic family event name
// such as "email:sent".
func NewAdapterEvent(typ EventType, executionID, nodeID string, payload map[string]any) *AdapterEvent {
	return &AdapterEvent{baseEvent: newBaseEvent(executionID), typ: typ, NodeID: nodeID, Payload: payload}
}

// Type method implementations

func (e *NodeStartedEvent) Type() EventType        { return NodeStart }
func (e *NodeCompletedEvent) Type() EventType      { return NodeComplete }
func (e *ExecutionPausedEvent) Type() EventType    { return ExecutionPaused }
func (e *ExecutionCompletedEvent) Type() EventType { return ExecutionComplete }
func (e *ExecutionFailedEvent) Type() EventType    { return ExecutionFailed }
func (e *AIRequestEvent) Type() EventType          { return AIRequest }
func (e *AIResponseEvent) Type() EventType         { return AIResponse }
func (e *AIErrorEvent) Type() EventType            { return AIError }
func (e *ApprovalRequestedEvent) Type() EventType  { return ApprovalRequested }
func (e *ApprovalGrantedEvent) Type() EventType    { return ApprovalGranted }
func (e *ApprovalRejectedEvent) Type() EventType   { return ApprovalRejected }
func (e *TimerExpiredEvent) Type() EventType       { return TimerExpired }
func (e *WorkflowCompletedEvent) Type() EventType  { return WorkflowCompleted }
func (e *WorkflowFailedEvent) Type() EventType     { return WorkflowFailed }
func (e *AdapterEvent) Type() EventType            { return e.typ }
