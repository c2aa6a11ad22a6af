package builtin

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/autoflowhq/autoflow/runtime/hooks"
	"github.com/autoflowhq/autoflow/runtime/node"
	"github.com/autoflowhq/autoflow/runtime/workflow"
)

type fakeScheduler struct {
	delay time.Duration
	fn    func()
	armed bool
}

func (f *fakeScheduler) AfterFunc(d time.Duration, fn func()) func() {
	f.delay, f.fn, f.armed = d, fn, true
	return func() {}
}

func timerNode(cfg map[string]any) workflow.Node {
	return workflow.Node{ID: "wait", Kind: workflow.KindTimer, Config: cfg}
}

func noSleep(t *testing.T, slept *time.Duration) TimerOption {
	t.Helper()
	return WithSleep(func(_ context.Context, d time.Duration) error {
		*slept = d
		return nil
	})
}

func TestTimerShortDelaySleepsInline(t *testing.T) {
	var slept time.Duration
	h, err := NewTimerHandler(hooks.NewBus(), noSleep(t, &slept))
	require.NoError(t, err)

	res := h.Execute(context.Background(), timerNode(map[string]any{"delay": 59999}), testContext(nil))

	require.Equal(t, node.OutcomeSuccess, res.Outcome)
	require.Equal(t, 59999*time.Millisecond, slept)
	require.Equal(t, int64(59999), res.Output["delayed"])
}

func TestTimerLongDelayPauses(t *testing.T) {
	bus := hooks.NewBus()
	sched := &fakeScheduler{}
	var slept time.Duration
	h, err := NewTimerHandler(bus, WithScheduler(sched), noSleep(t, &slept))
	require.NoError(t, err)

	before := time.Now()
	res := h.Execute(context.Background(), timerNode(map[string]any{"delay": 60000}), testContext(nil))

	require.Equal(t, node.OutcomePause, res.Outcome)
	require.Equal(t, "Waiting for timer", res.Reason)
	require.Zero(t, slept)
	require.True(t, sched.armed)
	require.Equal(t, time.Minute, sched.delay)
	require.Equal(t, int64(60000), res.Data["delayMs"])

	resumeAt, err := time.Parse(time.RFC3339, res.Data["resumeAt"].(string))
	require.NoError(t, err)
	require.WithinDuration(t, before.Add(time.Minute), resumeAt, 5*time.Second)

	// Firing the armed callback publishes the wake-up event.
	rec := recordEvents(t, bus)
	sched.fn()
	evt := rec.find(hooks.TimerExpired).(*hooks.TimerExpiredEvent)
	require.Equal(t, "exec-test", evt.ExecutionID())
	require.Equal(t, "wait", evt.NodeID)
}

func TestTimerUnits(t *testing.T) {
	var slept time.Duration
	h, err := NewTimerHandler(hooks.NewBus(), noSleep(t, &slept))
	require.NoError(t, err)

	res := h.Execute(context.Background(),
		timerNode(map[string]any{"delay": 30, "unit": "seconds"}), testContext(nil))

	require.Equal(t, node.OutcomeSuccess, res.Outcome)
	require.Equal(t, 30*time.Second, slept)
}

func TestTimerMinutesAlwaysPause(t *testing.T) {
	sched := &fakeScheduler{}
	h, err := NewTimerHandler(hooks.NewBus(), WithScheduler(sched))
	require.NoError(t, err)

	res := h.Execute(context.Background(),
		timerNode(map[string]any{"delay": 5, "unit": "minutes"}), testContext(nil))

	require.Equal(t, node.OutcomePause, res.Outcome)
	require.Equal(t, 5*time.Minute, sched.delay)
}

func TestTimerRejectsBadConfig(t *testing.T) {
	h, err := NewTimerHandler(hooks.NewBus())
	require.NoError(t, err)

	res := h.Execute(context.Background(), timerNode(nil), testContext(nil))
	require.Equal(t, node.OutcomeError, res.Outcome)
	require.ErrorContains(t, res.Err, "delay must be a positive number")

	res = h.Execute(context.Background(), timerNode(map[string]any{"delay": -5}), testContext(nil))
	require.Equal(t, node.OutcomeError, res.Outcome)

	res = h.Execute(context.Background(),
		timerNode(map[string]any{"delay": 5, "unit": "fortnights"}), testContext(nil))
	require.Equal(t, node.OutcomeError, res.Outcome)
	require.ErrorContains(t, res.Err, "unknown delay unit")
}
