package builtin

import (
	"context"

	"github.com/autoflowhq/autoflow/runtime/execution"
	"github.com/autoflowhq/autoflow/runtime/expr"
	"github.com/autoflowhq/autoflow/runtime/node"
	"github.com/autoflowhq/autoflow/runtime/telemetry"
	"github.com/autoflowhq/autoflow/runtime/workflow"
)

// DecisionHandler executes decision nodes. It evaluates every named condition
// against the execution variables and records which branch the execution
// should follow. Condition evaluation failures are logged and count as false;
// a decision node itself never fails.
type DecisionHandler struct {
	logger telemetry.Logger
}

// NewDecisionHandler returns the decision node handler. A nil logger discards
// evaluation warnings.
func NewDecisionHandler(logger telemetry.Logger) *DecisionHandler {
	if logger == nil {
		logger = telemetry.NoopLogger{}
	}
	return &DecisionHandler{logger: logger}
}

// Execute implements node.Handler. The output contains "conditionResults", a
// map of condition name to boolean, and "decisionPath", the name of the first
// condition that evaluated true or "default" when none did. Outgoing edge
// conditions typically compare against decisionPath.
func (h *DecisionHandler) Execute(ctx context.Context, n workflow.Node, ec *execution.Context) node.Result {
	results := make(map[string]any)
	path := "default"
	for _, raw := range sliceVal(n.Config, "conditions") {
		cond, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		name := strVal(cond, "name")
		expression := strVal(cond, "expression")
		if name == "" || expression == "" {
			continue
		}
		matched, err := expr.Evaluate(expression, ec.Variables)
		if err != nil {
			h.logger.Warn(ctx, "condition evaluation failed",
				"node", n.ID, "condition", name, "err", err.Error())
		}
		results[name] = matched
		if matched && path == "default" {
			path = name
		}
	}
	return node.Succeed(map[string]any{
		"conditionResults": results,
		"decisionPath":     path,
	})
}
