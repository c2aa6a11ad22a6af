package builtin

import (
	"context"
	"errors"
	"maps"
	"time"

	"github.com/autoflowhq/autoflow/runtime/execution"
	"github.com/autoflowhq/autoflow/runtime/expr"
	"github.com/autoflowhq/autoflow/runtime/hooks"
	"github.com/autoflowhq/autoflow/runtime/node"
	"github.com/autoflowhq/autoflow/runtime/workflow"
)

// defaultApprovalTimeout bounds a pending approval when the node does not
// configure one.
const defaultApprovalTimeout = time.Hour

// HumanTaskHandler executes human task nodes. It publishes an approval
// request on the event bus and pauses the execution; the approval surface
// resumes or rejects it by publishing human:approved or human:rejected.
type HumanTaskHandler struct {
	bus hooks.Bus
}

// NewHumanTaskHandler builds the human task node handler.
func NewHumanTaskHandler(bus hooks.Bus) (*HumanTaskHandler, error) {
	if bus == nil {
		return nil, errors.New("event bus is required")
	}
	return &HumanTaskHandler{bus: bus}, nil
}

// Execute implements node.Handler. It always returns a pause result; the only
// error case is a missing assignee.
func (h *HumanTaskHandler) Execute(ctx context.Context, n workflow.Node, ec *execution.Context) node.Result {
	assignee := expr.Substitute(strVal(n.Config, "assignee"), ec.Variables)
	if assignee == "" {
		return node.Failf("human task node %s: assignee is required", n.ID)
	}
	title := expr.Substitute(strVal(n.Config, "title"), ec.Variables)
	if title == "" {
		title = n.Name
	}
	approvalType := strVal(n.Config, "approvalType")
	if approvalType == "" {
		approvalType = "approve_reject"
	}
	timeout := defaultApprovalTimeout
	if secs, ok := numVal(n.Config, "timeout"); ok && secs > 0 {
		timeout = time.Duration(secs * float64(time.Second))
	}
	approval := hooks.Approval{
		Title:        title,
		Description:  expr.Substitute(strVal(n.Config, "description"), ec.Variables),
		Assignee:     assignee,
		ApprovalType: approvalType,
		Timeout:      timeout,
		Link:         expr.Substitute(strVal(n.Config, "link"), ec.Variables),
		Variables:    maps.Clone(ec.Variables),
	}
	h.bus.Publish(ctx, hooks.NewApprovalRequestedEvent(ec.ExecutionID, n.ID, approval))
	return node.Pause("Waiting for human approval", map[string]any{
		"assignee":       assignee,
		"title":          title,
		"approvalType":   approvalType,
		"timeoutSeconds": timeout.Seconds(),
		"link":           approval.Link,
	})
}
