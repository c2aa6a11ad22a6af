package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/autoflowhq/autoflow/runtime/cache/inmem"
	"github.com/autoflowhq/autoflow/runtime/execution"
	executioninmem "github.com/autoflowhq/autoflow/runtime/execution/inmem"
	"github.com/autoflowhq/autoflow/runtime/hooks"
	lockinmem "github.com/autoflowhq/autoflow/runtime/lock/inmem"
	"github.com/autoflowhq/autoflow/runtime/node"
	"github.com/autoflowhq/autoflow/runtime/node/builtin"
	"github.com/autoflowhq/autoflow/runtime/workflow"
	workflowinmem "github.com/autoflowhq/autoflow/runtime/workflow/inmem"
)

const (
	waitFor = 3 * time.Second
	tick    = 5 * time.Millisecond
)

// kindProbe is a test-only node kind that records execution order.
const kindProbe workflow.NodeKind = "Probe"

type (
	testEnv struct {
		engine     *Engine
		bus        hooks.Bus
		workflows  *workflowinmem.Store
		executions *executioninmem.Store
		registry   *node.Registry
		sched      *captureScheduler
		rec        *eventRecorder

		mu       sync.Mutex
		executed []string
	}

	captureScheduler struct {
		mu  sync.Mutex
		fns []func()
	}

	eventRecorder struct {
		mu     sync.Mutex
		events []hooks.Event
	}
)

func (s *captureScheduler) AfterFunc(_ time.Duration, fn func()) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fns = append(s.fns, fn)
	return func() {}
}

// fire runs the most recently armed callback.
func (s *captureScheduler) fire(t *testing.T) {
	s.mu.Lock()
	require.NotEmpty(t, s.fns)
	fn := s.fns[len(s.fns)-1]
	s.mu.Unlock()
	fn()
}

func (r *eventRecorder) record(_ context.Context, evt hooks.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *eventRecorder) find(typ hooks.EventType) hooks.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, evt := range r.events {
		if evt.Type() == typ {
			return evt
		}
	}
	return nil
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		bus:        hooks.NewBus(),
		workflows:  workflowinmem.NewStore(),
		executions: executioninmem.NewStore(),
		sched:      &captureScheduler{},
		rec:        &eventRecorder{},
	}
	sub, err := env.bus.Subscribe("*", env.rec.record)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Close() })

	reg := node.NewRegistry()
	env.registry = reg
	require.NoError(t, builtin.Register(reg, builtin.Deps{
		Bus: env.bus,
		Timer: []builtin.TimerOption{
			builtin.WithScheduler(env.sched),
			builtin.WithSleep(func(context.Context, time.Duration) error { return nil }),
		},
	}))
	require.NoError(t, reg.Register(kindProbe,
		node.HandlerFunc(func(_ context.Context, n workflow.Node, _ *execution.Context) node.Result {
			env.mu.Lock()
			env.executed = append(env.executed, n.ID)
			env.mu.Unlock()
			return node.Succeed(map[string]any{"probe:" + n.ID: true})
		})))

	eng, err := New(Options{
		Workflows:  env.workflows,
		Executions: env.executions,
		Cache:      inmem.NewCache(),
		Locker:     lockinmem.NewLocker(),
		Registry:   reg,
		Bus:        env.bus,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })
	env.engine = eng
	return env
}

func (env *testEnv) probeOrder() []string {
	env.mu.Lock()
	defer env.mu.Unlock()
	return append([]string(nil), env.executed...)
}

func (env *testEnv) put(t *testing.T, wf *workflow.Workflow) {
	t.Helper()
	require.NoError(t, env.workflows.Put(wf))
}

func (env *testEnv) waitStatus(t *testing.T, executionID string, want execution.Status) *execution.Context {
	t.Helper()
	var ec *execution.Context
	require.Eventually(t, func() bool {
		var err error
		ec, err = env.engine.GetExecutionStatus(context.Background(), executionID)
		return err == nil && ec.Status == want
	}, waitFor, tick, "execution %s never reached %s", executionID, want)
	return ec
}

func triggerTo(next string) []workflow.Edge {
	return []workflow.Edge{{Source: "start", Target: next}}
}

func startNode() workflow.Node {
	return workflow.Node{ID: "start", Kind: workflow.KindTrigger}
}

func TestStartWorkflowRunsToCompletion(t *testing.T) {
	env := newTestEnv(t)
	env.put(t, &workflow.Workflow{
		ID: "wf-greet", Status: workflow.StatusActive,
		Nodes: []workflow.Node{
			startNode(),
			{ID: "greet", Kind: workflow.KindAction, Config: map[string]any{
				"actionType": "log",
				"message":    "hello {{name}}",
			}},
		},
		Edges: triggerTo("greet"),
	})

	id, err := env.engine.StartWorkflow(context.Background(), "wf-greet", map[string]any{"name": "ada"})
	require.NoError(t, err)
	require.Regexp(t, `^exec_`, id)

	ec := env.waitStatus(t, id, execution.StatusCompleted)
	require.Len(t, ec.History, 2)
	require.Equal(t, "start", ec.History[0].NodeID)
	require.Equal(t, "greet", ec.History[1].NodeID)
	require.Equal(t, "hello ada", ec.Variables["message"])
	require.NotNil(t, ec.EndTime)

	done := env.rec.find(hooks.ExecutionComplete).(*hooks.ExecutionCompletedEvent)
	require.Equal(t, id, done.ExecutionID())
	require.Equal(t, "hello ada", done.Outputs["message"])
	require.NotNil(t, env.rec.find(hooks.WorkflowCompleted))
}

func TestStartWorkflowAssignsUniqueIDs(t *testing.T) {
	env := newTestEnv(t)
	env.put(t, &workflow.Workflow{
		ID: "wf", Status: workflow.StatusActive,
		Nodes: []workflow.Node{startNode()},
	})

	a, err := env.engine.StartWorkflow(context.Background(), "wf", nil)
	require.NoError(t, err)
	b, err := env.engine.StartWorkflow(context.Background(), "wf", nil)
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}

func TestStartWorkflowValidation(t *testing.T) {
	env := newTestEnv(t)
	env.put(t, &workflow.Workflow{ID: "draft", Status: workflow.StatusDraft,
		Nodes: []workflow.Node{startNode()}})
	env.put(t, &workflow.Workflow{ID: "headless", Status: workflow.StatusActive,
		Nodes: []workflow.Node{{ID: "a", Kind: workflow.KindAction}}})

	_, err := env.engine.StartWorkflow(context.Background(), "draft", nil)
	require.ErrorIs(t, err, ErrWorkflowNotActive)

	_, err = env.engine.StartWorkflow(context.Background(), "headless", nil)
	require.ErrorIs(t, err, ErrNoTriggerNode)

	_, err = env.engine.StartWorkflow(context.Background(), "missing", nil)
	require.ErrorIs(t, err, workflow.ErrNotFound)
}

func TestDecisionRoutesSingleBranch(t *testing.T) {
	env := newTestEnv(t)
	env.put(t, &workflow.Workflow{
		ID: "wf-route", Status: workflow.StatusActive,
		Nodes: []workflow.Node{
			startNode(),
			{ID: "route", Kind: workflow.KindDecision, Config: map[string]any{
				"conditions": []any{
					map[string]any{"name": "big", "expression": "{{amount}} > 100"},
				},
			}},
			{ID: "escalate", Kind: kindProbe},
			{ID: "autoship", Kind: kindProbe},
		},
		Edges: []workflow.Edge{
			{Source: "start", Target: "route"},
			{Source: "route", Target: "escalate", Condition: `{{decisionPath}} == "big"`},
			{Source: "route", Target: "autoship", Condition: `{{decisionPath}} == "default"`},
		},
	})

	id, err := env.engine.StartWorkflow(context.Background(), "wf-route", map[string]any{"amount": float64(250)})
	require.NoError(t, err)

	ec := env.waitStatus(t, id, execution.StatusCompleted)
	require.Equal(t, "big", ec.Variables["decisionPath"])
	require.Equal(t, []string{"escalate"}, env.probeOrder())
}

// Decision edges may name the taken branch directly instead of carrying a
// comparison expression.
func TestDecisionRoutesBareBranchNames(t *testing.T) {
	env := newTestEnv(t)
	env.put(t, &workflow.Workflow{
		ID: "wf-priority", Status: workflow.StatusActive,
		Nodes: []workflow.Node{
			startNode(),
			{ID: "route", Kind: workflow.KindDecision, Config: map[string]any{
				"conditions": []any{
					map[string]any{"name": "hi", "expression": `{{priority}} == "high"`},
				},
			}},
			{ID: "page", Kind: kindProbe},
			{ID: "queue", Kind: kindProbe},
		},
		Edges: []workflow.Edge{
			{Source: "start", Target: "route"},
			{Source: "route", Target: "page", Condition: "hi"},
			{Source: "route", Target: "queue", Condition: "default"},
		},
	})

	id, err := env.engine.StartWorkflow(context.Background(), "wf-priority", map[string]any{"priority": "high"})
	require.NoError(t, err)
	ec := env.waitStatus(t, id, execution.StatusCompleted)
	require.Equal(t, "hi", ec.Variables["decisionPath"])
	require.Equal(t, []string{"page"}, env.probeOrder())

	id, err = env.engine.StartWorkflow(context.Background(), "wf-priority", map[string]any{"priority": "low"})
	require.NoError(t, err)
	env.waitStatus(t, id, execution.StatusCompleted)
	require.Equal(t, []string{"page", "queue"}, env.probeOrder())
}

func TestHumanApprovalResumesExecution(t *testing.T) {
	env := newTestEnv(t)
	env.put(t, approvalWorkflow())

	id, err := env.engine.StartWorkflow(context.Background(), "wf-approve", map[string]any{"orderId": "o-1"})
	require.NoError(t, err)

	ec := env.waitStatus(t, id, execution.StatusPaused)
	require.Equal(t, "approve", ec.CurrentNodeID)
	require.NotNil(t, env.rec.find(hooks.ApprovalRequested))

	env.bus.Publish(context.Background(),
		hooks.NewApprovalGrantedEvent(id, map[string]any{"comment": "lgtm"}))

	ec = env.waitStatus(t, id, execution.StatusCompleted)
	require.Equal(t, true, ec.Variables["approved"])
	require.Equal(t, "lgtm", ec.Variables["comment"])
	require.Equal(t, []string{"ship"}, env.probeOrder())
	require.Len(t, ec.History, 3)
	require.Equal(t, execution.OutcomePause, ec.History[1].Outcome)
}

func TestHumanRejectionFailsExecution(t *testing.T) {
	env := newTestEnv(t)
	env.put(t, approvalWorkflow())

	id, err := env.engine.StartWorkflow(context.Background(), "wf-approve", nil)
	require.NoError(t, err)
	env.waitStatus(t, id, execution.StatusPaused)

	env.bus.Publish(context.Background(), hooks.NewApprovalRejectedEvent(id, "budget denied"))

	ec := env.waitStatus(t, id, execution.StatusFailed)
	require.NotNil(t, ec.EndTime)
	require.Empty(t, env.probeOrder())

	failed := env.rec.find(hooks.ExecutionFailed).(*hooks.ExecutionFailedEvent)
	require.Equal(t, "approve", failed.NodeID)
	require.Equal(t, "Human approval rejected", failed.Reason)
}

func approvalWorkflow() *workflow.Workflow {
	return &workflow.Workflow{
		ID: "wf-approve", Status: workflow.StatusActive,
		Nodes: []workflow.Node{
			startNode(),
			{ID: "approve", Kind: workflow.KindHumanTask, Config: map[string]any{
				"assignee": "ops@example.com",
			}},
			{ID: "ship", Kind: kindProbe},
		},
		Edges: []workflow.Edge{
			{Source: "start", Target: "approve"},
			{Source: "approve", Target: "ship"},
		},
	}
}

func timerWorkflow(delayMs int) *workflow.Workflow {
	return &workflow.Workflow{
		ID: "wf-timer", Status: workflow.StatusActive,
		Nodes: []workflow.Node{
			startNode(),
			{ID: "wait", Kind: workflow.KindTimer, Config: map[string]any{"delay": delayMs}},
			{ID: "after", Kind: kindProbe},
		},
		Edges: []workflow.Edge{
			{Source: "start", Target: "wait"},
			{Source: "wait", Target: "after"},
		},
	}
}

func TestTimerShortDelayRunsInline(t *testing.T) {
	env := newTestEnv(t)
	env.put(t, timerWorkflow(500))

	id, err := env.engine.StartWorkflow(context.Background(), "wf-timer", nil)
	require.NoError(t, err)

	ec := env.waitStatus(t, id, execution.StatusCompleted)
	require.Equal(t, []string{"after"}, env.probeOrder())
	require.Equal(t, execution.OutcomeSuccess, ec.History[1].Outcome)
	require.Nil(t, env.rec.find(hooks.ExecutionPaused))
}

func TestTimerLongDelayPausesThenResumes(t *testing.T) {
	env := newTestEnv(t)
	env.put(t, timerWorkflow(120000))

	id, err := env.engine.StartWorkflow(context.Background(), "wf-timer", nil)
	require.NoError(t, err)

	ec := env.waitStatus(t, id, execution.StatusPaused)
	require.Equal(t, "wait", ec.CurrentNodeID)
	require.Empty(t, env.probeOrder())
	paused := env.rec.find(hooks.ExecutionPaused).(*hooks.ExecutionPausedEvent)
	require.Equal(t, "Waiting for timer", paused.Reason)

	env.sched.fire(t)

	env.waitStatus(t, id, execution.StatusCompleted)
	require.Equal(t, []string{"after"}, env.probeOrder())
}

func TestStepFailureFailsExecution(t *testing.T) {
	env := newTestEnv(t)
	env.put(t, &workflow.Workflow{
		ID: "wf-email", Status: workflow.StatusActive,
		Nodes: []workflow.Node{
			startNode(),
			{ID: "notify", Kind: workflow.KindAction, Config: map[string]any{
				"actionType": "email",
				"to":         "a@b.c",
			}},
			{ID: "after", Kind: kindProbe},
		},
		Edges: []workflow.Edge{
			{Source: "start", Target: "notify"},
			{Source: "notify", Target: "after"},
		},
	})

	id, err := env.engine.StartWorkflow(context.Background(), "wf-email", nil)
	require.NoError(t, err)

	ec := env.waitStatus(t, id, execution.StatusFailed)
	require.NotNil(t, ec.EndTime)
	require.Empty(t, env.probeOrder())

	failed := env.rec.find(hooks.ExecutionFailed).(*hooks.ExecutionFailedEvent)
	require.Equal(t, "notify", failed.NodeID)
	require.Contains(t, failed.Reason, "email adapter is not configured")
	require.NotNil(t, env.rec.find(hooks.WorkflowFailed))
}

func TestFanOutRunsBranchesInEdgeOrder(t *testing.T) {
	env := newTestEnv(t)
	env.put(t, &workflow.Workflow{
		ID: "wf-fan", Status: workflow.StatusActive,
		Nodes: []workflow.Node{
			startNode(),
			{ID: "first", Kind: kindProbe},
			{ID: "second", Kind: kindProbe},
			{ID: "third", Kind: kindProbe},
		},
		Edges: []workflow.Edge{
			{Source: "start", Target: "first"},
			{Source: "start", Target: "second"},
			{Source: "first", Target: "third"},
		},
	})

	id, err := env.engine.StartWorkflow(context.Background(), "wf-fan", nil)
	require.NoError(t, err)

	env.waitStatus(t, id, execution.StatusCompleted)
	// Breadth-first: both fan-out branches run before first's successor.
	require.Equal(t, []string{"first", "second", "third"}, env.probeOrder())
}

func TestCancelExecution(t *testing.T) {
	env := newTestEnv(t)
	env.put(t, approvalWorkflow())

	id, err := env.engine.StartWorkflow(context.Background(), "wf-approve", nil)
	require.NoError(t, err)
	env.waitStatus(t, id, execution.StatusPaused)

	require.NoError(t, env.engine.CancelExecution(context.Background(), id))

	ec := env.waitStatus(t, id, execution.StatusCancelled)
	require.NotNil(t, ec.EndTime)

	err = env.engine.CancelExecution(context.Background(), id)
	require.ErrorIs(t, err, ErrTerminal)

	err = env.engine.ResumeWorkflow(context.Background(), id, nil)
	require.ErrorIs(t, err, ErrNotPaused)
}

// A cancel racing a handler that pauses must leave the execution cancelled:
// the pause outcome is recorded in the history but does not reopen the
// execution.
func TestCancelDuringPausingStepStaysCancelled(t *testing.T) {
	env := newTestEnv(t)
	entered := make(chan struct{})
	release := make(chan struct{})
	require.NoError(t, env.registry.Register("Gate",
		node.HandlerFunc(func(context.Context, workflow.Node, *execution.Context) node.Result {
			close(entered)
			<-release
			return node.Pause("Waiting for gate", map[string]any{"gate": "hold"})
		})))
	env.put(t, &workflow.Workflow{
		ID: "wf-gate", Status: workflow.StatusActive,
		Nodes: []workflow.Node{
			startNode(),
			{ID: "hold", Kind: "Gate"},
			{ID: "after", Kind: kindProbe},
		},
		Edges: []workflow.Edge{
			{Source: "start", Target: "hold"},
			{Source: "hold", Target: "after"},
		},
	})

	id, err := env.engine.StartWorkflow(context.Background(), "wf-gate", nil)
	require.NoError(t, err)
	<-entered
	require.NoError(t, env.engine.CancelExecution(context.Background(), id))
	close(release)

	var doc execution.Document
	require.Eventually(t, func() bool {
		var err error
		doc, err = env.executions.FindByID(context.Background(), id)
		return err == nil && len(doc.NodeExecutions) == 2
	}, waitFor, tick)
	require.Equal(t, execution.StatusCancelled, doc.Status)
	require.NotNil(t, doc.EndTime)
	require.Nil(t, env.rec.find(hooks.ExecutionPaused))

	err = env.engine.ResumeWorkflow(context.Background(), id, nil)
	require.ErrorIs(t, err, ErrNotPaused)
	require.Empty(t, env.probeOrder())
}

// Subscribers reacting to execution:paused must already see the paused
// document in the store.
func TestPausePersistedBeforePausedEvent(t *testing.T) {
	env := newTestEnv(t)
	env.put(t, approvalWorkflow())

	var (
		mu   sync.Mutex
		seen []execution.Status
	)
	sub, err := env.bus.Subscribe(string(hooks.ExecutionPaused), func(ctx context.Context, evt hooks.Event) {
		doc, err := env.executions.FindByID(ctx, evt.ExecutionID())
		if err != nil {
			return
		}
		mu.Lock()
		seen = append(seen, doc.Status)
		mu.Unlock()
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Close() })

	id, err := env.engine.StartWorkflow(context.Background(), "wf-approve", nil)
	require.NoError(t, err)
	env.waitStatus(t, id, execution.StatusPaused)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 1
	}, waitFor, tick)
	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, execution.StatusPaused, seen[0])
}

func TestResumeValidation(t *testing.T) {
	env := newTestEnv(t)
	env.put(t, &workflow.Workflow{
		ID: "wf", Status: workflow.StatusActive,
		Nodes: []workflow.Node{startNode()},
	})

	id, err := env.engine.StartWorkflow(context.Background(), "wf", nil)
	require.NoError(t, err)
	env.waitStatus(t, id, execution.StatusCompleted)

	err = env.engine.ResumeWorkflow(context.Background(), id, nil)
	require.ErrorIs(t, err, ErrNotPaused)

	err = env.engine.ResumeWorkflow(context.Background(), "exec_missing", nil)
	require.ErrorIs(t, err, execution.ErrNotFound)
}

func TestRecoverRearmsPersistedTimer(t *testing.T) {
	env := newTestEnv(t)
	env.put(t, timerWorkflow(120000))

	id, err := env.engine.StartWorkflow(context.Background(), "wf-timer", nil)
	require.NoError(t, err)
	env.waitStatus(t, id, execution.StatusPaused)

	// Simulate a restart: a fresh engine on the same stores and a new bus.
	bus := hooks.NewBus()
	reg := node.NewRegistry()
	require.NoError(t, builtin.Register(reg, builtin.Deps{Bus: bus}))
	require.NoError(t, reg.Register(kindProbe,
		node.HandlerFunc(func(context.Context, workflow.Node, *execution.Context) node.Result {
			return node.Succeed(nil)
		})))
	var (
		mu    sync.Mutex
		armed []func()
	)
	restarted, err := New(Options{
		Workflows:  env.workflows,
		Executions: env.executions,
		Locker:     lockinmem.NewLocker(),
		Registry:   reg,
		Bus:        bus,
		AfterFunc: func(_ time.Duration, fn func()) {
			mu.Lock()
			armed = append(armed, fn)
			mu.Unlock()
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = restarted.Close() })

	require.NoError(t, restarted.Recover(context.Background()))

	mu.Lock()
	require.Len(t, armed, 1)
	fire := armed[0]
	mu.Unlock()
	fire()

	require.Eventually(t, func() bool {
		ec, err := restarted.GetExecutionStatus(context.Background(), id)
		return err == nil && ec.Status == execution.StatusCompleted
	}, waitFor, tick)
}

func TestRecoverFiresExpiredTimerImmediately(t *testing.T) {
	env := newTestEnv(t)
	env.put(t, timerWorkflow(120000))

	// Persist an execution paused on a timer whose deadline already passed.
	past := time.Now().Add(-time.Minute).UTC().Format(time.RFC3339)
	ec := &execution.Context{
		ExecutionID:   execution.NewID(),
		WorkflowID:    "wf-timer",
		CurrentNodeID: "wait",
		Status:        execution.StatusPaused,
		StartTime:     time.Now().Add(-2 * time.Minute),
		History: []execution.StepRecord{
			{NodeID: "start", Outcome: execution.OutcomeSuccess, StartedAt: time.Now().Add(-2 * time.Minute)},
			{NodeID: "wait", Outcome: execution.OutcomePause, StartedAt: time.Now().Add(-2 * time.Minute),
				Output: map[string]any{"resumeAt": past, "delayMs": int64(120000)}},
		},
	}
	require.NoError(t, env.executions.Upsert(context.Background(), execution.FromContext(ec, nil)))

	require.NoError(t, env.engine.Recover(context.Background()))

	env.waitStatus(t, ec.ExecutionID, execution.StatusCompleted)
	require.Equal(t, []string{"after"}, env.probeOrder())
}
