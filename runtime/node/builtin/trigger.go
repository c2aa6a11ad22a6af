package builtin

import (
	"context"
	"time"

	"github.com/autoflowhq/autoflow/runtime/execution"
	"github.com/autoflowhq/autoflow/runtime/node"
	"github.com/autoflowhq/autoflow/runtime/workflow"
)

// TriggerHandler executes trigger nodes. The trigger payload has already been
// merged into the execution variables by the engine, so the handler only
// records how and when the execution started.
type TriggerHandler struct{}

// NewTriggerHandler returns the trigger node handler.
func NewTriggerHandler() *TriggerHandler { return &TriggerHandler{} }

// Execute implements node.Handler.
func (h *TriggerHandler) Execute(_ context.Context, n workflow.Node, _ *execution.Context) node.Result {
	trigger := strVal(n.Config, "triggerType")
	if trigger == "" {
		trigger = "manual"
	}
	return node.Succeed(map[string]any{
		"trigger":   trigger,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
