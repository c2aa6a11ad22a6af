package builtin

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/autoflowhq/autoflow/runtime/execution"
	"github.com/autoflowhq/autoflow/runtime/hooks"
)

// eventRecorder captures every event published on a bus during a test.
type eventRecorder struct {
	mu     sync.Mutex
	events []hooks.Event
}

func recordEvents(t *testing.T, bus hooks.Bus) *eventRecorder {
	t.Helper()
	rec := &eventRecorder{}
	sub, err := bus.Subscribe("*", func(_ context.Context, evt hooks.Event) {
		rec.mu.Lock()
		rec.events = append(rec.events, evt)
		rec.mu.Unlock()
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Close() })
	return rec
}

func (r *eventRecorder) types() []hooks.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]hooks.EventType, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type()
	}
	return out
}

func (r *eventRecorder) find(typ hooks.EventType) hooks.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.Type() == typ {
			return e
		}
	}
	return nil
}

func testContext(vars map[string]any) *execution.Context {
	return &execution.Context{
		ExecutionID: "exec-test",
		WorkflowID:  "wf-test",
		Variables:   vars,
		Status:      execution.StatusRunning,
	}
}
