package builtin

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/autoflowhq/autoflow/runtime/hooks"
	"github.com/autoflowhq/autoflow/runtime/node"
	"github.com/autoflowhq/autoflow/runtime/workflow"
)

type fakeService struct {
	lastOp  string
	lastCfg map[string]any
	out     map[string]any
	err     error
}

func (f *fakeService) Do(_ context.Context, operation string, cfg map[string]any) (map[string]any, error) {
	f.lastOp, f.lastCfg = operation, cfg
	return f.out, f.err
}

func TestEmailAutomationSubstitutesAndPublishes(t *testing.T) {
	bus := hooks.NewBus()
	rec := recordEvents(t, bus)
	svc := &fakeService{out: map[string]any{"messageId": "m-1"}}
	h := NewEmailAutomationHandler(svc, bus)

	n := workflow.Node{ID: "send", Kind: workflow.KindEmailAutomation, Config: map[string]any{
		"operation": "send",
		"to":        "{{customer}}",
	}}
	res := h.Execute(context.Background(), n, testContext(map[string]any{"customer": "a@b.c"}))

	require.Equal(t, node.OutcomeSuccess, res.Outcome)
	require.Equal(t, "send", svc.lastOp)
	require.Equal(t, "a@b.c", svc.lastCfg["to"])
	require.Equal(t, "send", res.Output["operation"])
	require.Equal(t, "m-1", res.Output["messageId"])

	evt := rec.find("email:send").(*hooks.AdapterEvent)
	require.Equal(t, "send", evt.NodeID)
	require.Equal(t, "m-1", evt.Payload["messageId"])
}

func TestServiceHandlerFamilies(t *testing.T) {
	cases := []struct {
		name    string
		build   func(Service, hooks.Bus) node.Handler
		wantTyp hooks.EventType
	}{
		{"file", NewFileOperationsHandler, "file:read"},
		{"form", NewFormBuilderHandler, "form:read"},
		{"transform", NewDataTransformHandler, "transform:read"},
		{"notification", NewPushNotificationHandler, "notification:read"},
		{"email", NewEmailAutomationHandler, "email:read"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			bus := hooks.NewBus()
			rec := recordEvents(t, bus)
			h := tc.build(&fakeService{}, bus)
			n := workflow.Node{ID: "op", Config: map[string]any{"operation": "read"}}

			res := h.Execute(context.Background(), n, testContext(nil))

			require.Equal(t, node.OutcomeSuccess, res.Outcome)
			require.NotNil(t, rec.find(tc.wantTyp))
		})
	}
}

func TestServiceHandlerRequiresOperation(t *testing.T) {
	h := NewFileOperationsHandler(&fakeService{}, hooks.NewBus())
	res := h.Execute(context.Background(), workflow.Node{ID: "op"}, testContext(nil))
	require.Equal(t, node.OutcomeError, res.Outcome)
	require.ErrorContains(t, res.Err, "operation is required")
}

func TestServiceHandlerWithoutAdapter(t *testing.T) {
	h := NewPushNotificationHandler(nil, hooks.NewBus())
	n := workflow.Node{ID: "op", Config: map[string]any{"operation": "deliver"}}
	res := h.Execute(context.Background(), n, testContext(nil))
	require.Equal(t, node.OutcomeError, res.Outcome)
	require.ErrorContains(t, res.Err, "adapter is not configured")
}

func TestServiceHandlerAdapterFailure(t *testing.T) {
	bus := hooks.NewBus()
	rec := recordEvents(t, bus)
	h := NewDataTransformHandler(&fakeService{err: errors.New("bad mapping")}, bus)
	n := workflow.Node{ID: "op", Config: map[string]any{"operation": "map"}}

	res := h.Execute(context.Background(), n, testContext(nil))

	require.Equal(t, node.OutcomeError, res.Outcome)
	require.ErrorContains(t, res.Err, "bad mapping")
	require.Empty(t, rec.types())
}
