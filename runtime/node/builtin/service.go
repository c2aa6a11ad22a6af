package builtin

import (
	"context"
	"maps"

	"github.com/autoflowhq/autoflow/runtime/execution"
	"github.com/autoflowhq/autoflow/runtime/expr"
	"github.com/autoflowhq/autoflow/runtime/hooks"
	"github.com/autoflowhq/autoflow/runtime/node"
	"github.com/autoflowhq/autoflow/runtime/workflow"
)

// serviceHandler is the shared implementation behind the adapter-backed node
// kinds (file operations, form builder, data transform, push notification,
// and email automation). It substitutes variables into the whole node
// configuration, dispatches the configured operation to the adapter, and
// publishes a family event such as "email:sent" or "form:created" after a
// successful call.
type serviceHandler struct {
	family string
	svc    Service
	bus    hooks.Bus
}

func newServiceHandler(family string, svc Service, bus hooks.Bus) *serviceHandler {
	return &serviceHandler{family: family, svc: svc, bus: bus}
}

// Execute implements node.Handler.
func (h *serviceHandler) Execute(ctx context.Context, n workflow.Node, ec *execution.Context) node.Result {
	operation := strVal(n.Config, "operation")
	if operation == "" {
		return node.Failf("%s node %s: operation is required", h.family, n.ID)
	}
	if h.svc == nil {
		return node.Failf("%s node %s: adapter is not configured", h.family, n.ID)
	}
	cfg := expr.SubstituteMap(n.Config, ec.Variables)
	out, err := h.svc.Do(ctx, operation, cfg)
	if err != nil {
		return node.Failf("%s node %s: %s: %v", h.family, n.ID, operation, err)
	}
	if h.bus != nil {
		h.bus.Publish(ctx, hooks.NewAdapterEvent(
			hooks.EventType(h.family+":"+operation), ec.ExecutionID, n.ID, out))
	}
	output := map[string]any{"operation": operation}
	maps.Copy(output, out)
	return node.Succeed(output)
}

// NewFileOperationsHandler builds the handler for file operation nodes.
// Adapter events are published on the "file:*" family.
func NewFileOperationsHandler(svc Service, bus hooks.Bus) node.Handler {
	return newServiceHandler("file", svc, bus)
}

// NewFormBuilderHandler builds the handler for form builder nodes. Adapter
// events are published on the "form:*" family.
func NewFormBuilderHandler(svc Service, bus hooks.Bus) node.Handler {
	return newServiceHandler("form", svc, bus)
}

// NewDataTransformHandler builds the handler for data transform nodes.
// Adapter events are published on the "transform:*" family.
func NewDataTransformHandler(svc Service, bus hooks.Bus) node.Handler {
	return newServiceHandler("transform", svc, bus)
}

// NewPushNotificationHandler builds the handler for push notification nodes.
// Adapter events are published on the "notification:*" family.
func NewPushNotificationHandler(svc Service, bus hooks.Bus) node.Handler {
	return newServiceHandler("notification", svc, bus)
}

// NewEmailAutomationHandler builds the handler for email automation nodes.
// Adapter events are published on the "email:*" family.
func NewEmailAutomationHandler(svc Service, bus hooks.Bus) node.Handler {
	return newServiceHandler("email", svc, bus)
}
