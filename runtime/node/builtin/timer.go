package builtin

import (
	"context"
	"errors"
	"time"

	"github.com/autoflowhq/autoflow/runtime/execution"
	"github.com/autoflowhq/autoflow/runtime/hooks"
	"github.com/autoflowhq/autoflow/runtime/node"
	"github.com/autoflowhq/autoflow/runtime/workflow"
)

// pauseThreshold separates inline delays from durable pauses. Delays shorter
// than one minute block the step inline; a delay of one minute or more pauses
// the execution and schedules a timer:expired event instead.
const pauseThreshold = time.Minute

type (
	// TimerOption configures a TimerHandler.
	TimerOption func(*TimerHandler)

	// TimerHandler executes timer nodes.
	TimerHandler struct {
		bus       hooks.Bus
		scheduler Scheduler
		sleep     func(ctx context.Context, d time.Duration) error
		now       func() time.Time
	}
)

// WithScheduler overrides the scheduler used for long delays.
func WithScheduler(s Scheduler) TimerOption {
	return func(h *TimerHandler) { h.scheduler = s }
}

// WithSleep overrides the inline sleep used for short delays.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) TimerOption {
	return func(h *TimerHandler) { h.sleep = sleep }
}

// NewTimerHandler builds the timer node handler.
func NewTimerHandler(bus hooks.Bus, opts ...TimerOption) (*TimerHandler, error) {
	if bus == nil {
		return nil, errors.New("event bus is required")
	}
	h := &TimerHandler{
		bus:       bus,
		scheduler: ClockScheduler{},
		sleep:     sleepContext,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Execute implements node.Handler. The delay is read from the "delay" config
// key in the unit named by "unit" (milliseconds, seconds, minutes, or hours;
// milliseconds when absent). Short delays sleep inline and succeed; long
// delays pause with the resume deadline recorded in the pause data so boot
// recovery can re-arm them.
func (h *TimerHandler) Execute(ctx context.Context, n workflow.Node, ec *execution.Context) node.Result {
	delay, ok := numVal(n.Config, "delay")
	if !ok || delay <= 0 {
		return node.Failf("timer node %s: delay must be a positive number", n.ID)
	}
	unit, err := delayUnit(strVal(n.Config, "unit"))
	if err != nil {
		return node.Failf("timer node %s: %v", n.ID, err)
	}
	d := time.Duration(delay * float64(unit))
	if d < pauseThreshold {
		if err := h.sleep(ctx, d); err != nil {
			return node.Failf("timer node %s: %v", n.ID, err)
		}
		return node.Succeed(map[string]any{
			"delayed":     d.Milliseconds(),
			"completedAt": h.now().UTC().Format(time.RFC3339),
		})
	}
	resumeAt := h.now().Add(d)
	executionID, nodeID := ec.ExecutionID, n.ID
	h.scheduler.AfterFunc(d, func() {
		h.bus.Publish(context.Background(), hooks.NewTimerExpiredEvent(executionID, nodeID))
	})
	return node.Pause("Waiting for timer", map[string]any{
		"resumeAt": resumeAt.UTC().Format(time.RFC3339),
		"delayMs":  d.Milliseconds(),
	})
}

func delayUnit(unit string) (time.Duration, error) {
	switch unit {
	case "", "milliseconds":
		return time.Millisecond, nil
	case "seconds":
		return time.Second, nil
	case "minutes":
		return time.Minute, nil
	case "hours":
		return time.Hour, nil
	default:
		return 0, errors.New("unknown delay unit " + unit)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
