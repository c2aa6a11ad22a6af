package execution

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewIDFormat(t *testing.T) {
	id := NewID()
	require.True(t, strings.HasPrefix(id, "exec_"))
	parts := strings.Split(id, "_")
	require.Len(t, parts, 3)
	require.Len(t, parts[2], 9)
}

func TestNewIDUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewID()
		require.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestMergeVariables(t *testing.T) {
	c := &Context{Variables: map[string]any{"a": 1, "b": "old"}}
	c.MergeVariables(map[string]any{"b": "new", "c": true})
	require.Equal(t, map[string]any{"a": 1, "b": "new", "c": true}, c.Variables)

	c.MergeVariables(nil)
	require.Len(t, c.Variables, 3)

	empty := &Context{}
	empty.MergeVariables(map[string]any{"x": 1})
	require.Equal(t, map[string]any{"x": 1}, empty.Variables)
}

func TestStatusTerminal(t *testing.T) {
	require.False(t, StatusRunning.Terminal())
	require.False(t, StatusPaused.Terminal())
	require.True(t, StatusCompleted.Terminal())
	require.True(t, StatusFailed.Terminal())
	require.True(t, StatusCancelled.Terminal())
}

func TestCloneIsolation(t *testing.T) {
	end := time.Now()
	c := &Context{
		ExecutionID: "exec-1",
		Variables:   map[string]any{"a": 1},
		History:     []StepRecord{{NodeID: "n1"}},
		EndTime:     &end,
	}
	cp := c.Clone()
	cp.Variables["a"] = 2
	cp.History[0].NodeID = "changed"
	*cp.EndTime = end.Add(time.Hour)

	require.Equal(t, 1, c.Variables["a"])
	require.Equal(t, "n1", c.History[0].NodeID)
	require.Equal(t, end, *c.EndTime)
}

func TestAppendAndLastStep(t *testing.T) {
	c := &Context{}
	require.Nil(t, c.LastStep())
	c.AppendStep(StepRecord{NodeID: "n1"})
	c.AppendStep(StepRecord{NodeID: "n2"})
	require.Equal(t, "n2", c.LastStep().NodeID)
	require.Len(t, c.History, 2)
}
