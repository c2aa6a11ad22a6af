package builtin

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/autoflowhq/autoflow/runtime/node"
	"github.com/autoflowhq/autoflow/runtime/workflow"
)

func TestTriggerDefaultsToManual(t *testing.T) {
	h := NewTriggerHandler()
	res := h.Execute(context.Background(), workflow.Node{ID: "start", Kind: workflow.KindTrigger}, testContext(nil))

	require.Equal(t, node.OutcomeSuccess, res.Outcome)
	require.Equal(t, "manual", res.Output["trigger"])
	ts, ok := res.Output["timestamp"].(string)
	require.True(t, ok)
	_, err := time.Parse(time.RFC3339, ts)
	require.NoError(t, err)
}

func TestTriggerUsesConfiguredType(t *testing.T) {
	h := NewTriggerHandler()
	n := workflow.Node{ID: "start", Kind: workflow.KindTrigger, Config: map[string]any{"triggerType": "webhook"}}
	res := h.Execute(context.Background(), n, testContext(nil))

	require.Equal(t, node.OutcomeSuccess, res.Outcome)
	require.Equal(t, "webhook", res.Output["trigger"])
}
