package builtin

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/autoflowhq/autoflow/runtime/hooks"
	"github.com/autoflowhq/autoflow/runtime/node"
	"github.com/autoflowhq/autoflow/runtime/workflow"
)

func TestRegisterBindsAllKinds(t *testing.T) {
	reg := node.NewRegistry()
	require.NoError(t, Register(reg, Deps{Bus: hooks.NewBus(), AI: &fakeAI{}}))

	kinds := []workflow.NodeKind{
		workflow.KindTrigger,
		workflow.KindAIProcessor,
		workflow.KindDecision,
		workflow.KindHumanTask,
		workflow.KindAction,
		workflow.KindTimer,
		workflow.KindFileOperations,
		workflow.KindFormBuilder,
		workflow.KindDataTransform,
		workflow.KindPushNotification,
		workflow.KindEmailAutomation,
	}
	for _, kind := range kinds {
		_, ok := reg.Lookup(kind)
		require.True(t, ok, "kind %s not registered", kind)
	}
}

func TestRegisterWithoutAISkipsAIProcessor(t *testing.T) {
	reg := node.NewRegistry()
	require.NoError(t, Register(reg, Deps{Bus: hooks.NewBus()}))
	_, ok := reg.Lookup(workflow.KindAIProcessor)
	require.False(t, ok)
}

func TestRegisterRequiresBus(t *testing.T) {
	require.Error(t, Register(node.NewRegistry(), Deps{}))
	require.Error(t, Register(nil, Deps{Bus: hooks.NewBus()}))
}
