// Package engine implements the workflow execution engine. It walks stored
// workflow graphs node by node, dispatches each node to its registered
// handler, folds handler outputs into the execution variables, and persists
// the execution document on every transition.
//
// Steps of one execution run strictly serialized under the execution's named
// lock. Fan-out is breadth-first: when a node has several outgoing edges the
// successors are queued and executed one at a time in edge declaration order.
// Pauses suspend the whole execution; human approval and timer expiry events
// published on the bus resume it.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	stdruntime "runtime"
	"sync"
	"time"

	"github.com/autoflowhq/autoflow/runtime/cache"
	"github.com/autoflowhq/autoflow/runtime/execution"
	"github.com/autoflowhq/autoflow/runtime/expr"
	"github.com/autoflowhq/autoflow/runtime/hooks"
	"github.com/autoflowhq/autoflow/runtime/lock"
	"github.com/autoflowhq/autoflow/runtime/node"
	"github.com/autoflowhq/autoflow/runtime/telemetry"
	"github.com/autoflowhq/autoflow/runtime/workflow"
)

// defaultCacheTTL bounds how long hot execution documents stay cached.
const defaultCacheTTL = 30 * time.Minute

var (
	// ErrWorkflowNotActive indicates a start was attempted on a draft or
	// archived workflow.
	ErrWorkflowNotActive = errors.New("workflow is not active")

	// ErrNoTriggerNode indicates the workflow has no Trigger node to start
	// from.
	ErrNoTriggerNode = errors.New("workflow has no trigger node")

	// ErrNotPaused indicates a resume was attempted on an execution that is
	// not paused.
	ErrNotPaused = errors.New("execution is not paused")

	// ErrTerminal indicates the operation targeted an already finished
	// execution.
	ErrTerminal = errors.New("execution already finished")
)

type (
	// Options configures an Engine.
	Options struct {
		// Workflows loads workflow definitions. Required.
		Workflows workflow.Store
		// Executions persists execution documents. Required.
		Executions execution.Store
		// Cache holds hot execution documents. Optional.
		Cache cache.Cache
		// Locker serializes steps of one execution. Required.
		Locker lock.Locker
		// Registry maps node kinds to handlers. Required.
		Registry *node.Registry
		// Bus publishes lifecycle events and delivers resume events. Required.
		Bus hooks.Bus
		// Logger receives engine diagnostics. Nil discards.
		Logger telemetry.Logger
		// Metrics records engine counters and timers. Nil discards.
		Metrics telemetry.Metrics
		// CacheTTL overrides the hot document TTL.
		CacheTTL time.Duration
		// AfterFunc schedules deferred callbacks for recovered timers. Nil uses
		// time.AfterFunc.
		AfterFunc func(d time.Duration, fn func())
	}

	// Engine executes workflows.
	Engine struct {
		workflows  workflow.Store
		executions execution.Store
		cache      cache.Cache
		locker     lock.Locker
		registry   *node.Registry
		bus        hooks.Bus
		logger     telemetry.Logger
		metrics    telemetry.Metrics
		cacheTTL   time.Duration
		after      func(d time.Duration, fn func())

		mu      sync.RWMutex
		running map[string]*run

		subs      []hooks.Subscription
		closeOnce sync.Once
	}

	// run is the in-memory state of one active execution: the workflow graph
	// snapshot taken at start, the mutable context, the initial inputs, and
	// the FIFO queue of nodes awaiting execution.
	run struct {
		wf     *workflow.Workflow
		ec     *execution.Context
		inputs map[string]any
		queue  []string
	}
)

// New constructs an Engine and subscribes it to the resume events on the bus.
func New(opts Options) (*Engine, error) {
	if opts.Workflows == nil {
		return nil, errors.New("workflow store is required")
	}
	if opts.Executions == nil {
		return nil, errors.New("execution store is required")
	}
	if opts.Locker == nil {
		return nil, errors.New("locker is required")
	}
	if opts.Registry == nil {
		return nil, errors.New("handler registry is required")
	}
	if opts.Bus == nil {
		return nil, errors.New("event bus is required")
	}
	e := &Engine{
		workflows:  opts.Workflows,
		executions: opts.Executions,
		cache:      opts.Cache,
		locker:     opts.Locker,
		registry:   opts.Registry,
		bus:        opts.Bus,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
		cacheTTL:   opts.CacheTTL,
		after:      opts.AfterFunc,
		running:    make(map[string]*run),
	}
	if e.logger == nil {
		e.logger = telemetry.NoopLogger{}
	}
	if e.metrics == nil {
		e.metrics = telemetry.NoopMetrics{}
	}
	if e.cacheTTL <= 0 {
		e.cacheTTL = defaultCacheTTL
	}
	if e.after == nil {
		e.after = func(d time.Duration, fn func()) { time.AfterFunc(d, fn) }
	}
	for pattern, fn := range map[string]func(ctx context.Context, evt hooks.Event){
		string(hooks.ApprovalGranted):  e.onApproved,
		string(hooks.ApprovalRejected): e.onRejected,
		string(hooks.TimerExpired):     e.onTimerExpired,
	} {
		sub, err := e.bus.Subscribe(pattern, fn)
		if err != nil {
			return nil, err
		}
		e.subs = append(e.subs, sub)
	}
	return e, nil
}

// Close unsubscribes the engine from the bus. In-flight executions keep
// running; Close only stops event-driven resumes.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		for _, sub := range e.subs {
			sub.Close()
		}
	})
	return nil
}

// StartWorkflow starts a new execution of the given workflow with the trigger
// payload as the initial variables. It returns the new execution ID
// immediately; the execution itself proceeds asynchronously.
func (e *Engine) StartWorkflow(ctx context.Context, workflowID string, trigger map[string]any) (string, error) {
	wf, err := e.workflows.FindByID(ctx, workflowID)
	if err != nil {
		return "", err
	}
	if wf.Status != workflow.StatusActive {
		return "", fmt.Errorf("%w: %s is %s", ErrWorkflowNotActive, wf.ID, wf.Status)
	}
	start := wf.StartNode()
	if start == nil {
		return "", fmt.Errorf("%w: %s", ErrNoTriggerNode, wf.ID)
	}
	ec := &execution.Context{
		ExecutionID:   execution.NewID(),
		WorkflowID:    wf.ID,
		CurrentNodeID: start.ID,
		Variables:     cloneVars(trigger),
		Status:        execution.StatusRunning,
		StartTime:     time.Now(),
	}
	r := &run{
		wf:     snapshot(wf),
		ec:     ec,
		inputs: cloneVars(trigger),
		queue:  []string{start.ID},
	}
	e.mu.Lock()
	e.running[ec.ExecutionID] = r
	e.mu.Unlock()
	e.persist(ctx, r)
	e.logger.Info(ctx, "execution started",
		"execution", ec.ExecutionID, "workflow", wf.ID)
	e.metrics.IncCounter("executions_started", 1, "workflow", wf.ID)
	go e.drive(context.WithoutCancel(ctx), r)
	return ec.ExecutionID, nil
}

// ResumeWorkflow resumes a paused execution. The resume data is merged into
// the execution variables before traversal continues with the successors of
// the paused node.
func (e *Engine) ResumeWorkflow(ctx context.Context, executionID string, resumeData map[string]any) error {
	r, err := e.findRun(ctx, executionID)
	if err != nil {
		return err
	}
	e.mu.Lock()
	if r.ec.Status != execution.StatusPaused {
		status := r.ec.Status
		e.mu.Unlock()
		return fmt.Errorf("%w: %s is %s", ErrNotPaused, executionID, status)
	}
	pausedNode := r.ec.CurrentNodeID
	r.ec.MergeVariables(resumeData)
	r.ec.Status = execution.StatusRunning
	r.queue = append(r.queue, e.successorsLocked(ctx, r, pausedNode)...)
	e.mu.Unlock()
	e.persist(ctx, r)
	e.logger.Info(ctx, "execution resumed",
		"execution", executionID, "node", pausedNode)
	go e.drive(context.WithoutCancel(ctx), r)
	return nil
}

// CancelExecution cancels a running or paused execution. Cancellation takes
// effect at the next step boundary; a step already executing finishes first.
func (e *Engine) CancelExecution(ctx context.Context, executionID string) error {
	r, err := e.findRun(ctx, executionID)
	if err != nil {
		return err
	}
	e.mu.Lock()
	if r.ec.Status.Terminal() {
		status := r.ec.Status
		e.mu.Unlock()
		return fmt.Errorf("%w: %s is %s", ErrTerminal, executionID, status)
	}
	now := time.Now()
	r.ec.Status = execution.StatusCancelled
	r.ec.EndTime = &now
	r.queue = nil
	e.mu.Unlock()
	e.persist(ctx, r)
	e.forget(executionID)
	e.logger.Info(ctx, "execution cancelled", "execution", executionID)
	e.metrics.IncCounter("executions_cancelled", 1, "workflow", r.ec.WorkflowID)
	return nil
}

// GetExecutionStatus returns a read-only copy of the execution context. Live
// executions are served from memory, finished or evicted ones from the cache
// and the durable store.
func (e *Engine) GetExecutionStatus(ctx context.Context, executionID string) (*execution.Context, error) {
	e.mu.RLock()
	r := e.running[executionID]
	var ec *execution.Context
	if r != nil {
		ec = r.ec.Clone()
	}
	e.mu.RUnlock()
	if ec != nil {
		return ec, nil
	}
	if e.cache != nil {
		if b, ok, err := e.cache.Get(ctx, cache.ExecutionKey(executionID)); err == nil && ok {
			var doc execution.Document
			if json.Unmarshal(b, &doc) == nil {
				return execution.ToContext(doc), nil
			}
		}
	}
	doc, err := e.executions.FindByID(ctx, executionID)
	if err != nil {
		return nil, err
	}
	return execution.ToContext(doc), nil
}

// Recover reloads paused executions from the durable store after a restart.
// Executions paused on a timer are re-armed from the persisted resume
// deadline (expired deadlines fire immediately); executions paused on an
// approval simply wait for their approval events again.
func (e *Engine) Recover(ctx context.Context) error {
	docs, err := e.executions.ListByStatus(ctx, execution.StatusPaused)
	if err != nil {
		return fmt.Errorf("list paused executions: %w", err)
	}
	recovered := 0
	for _, doc := range docs {
		e.mu.RLock()
		_, loaded := e.running[doc.ID]
		e.mu.RUnlock()
		if loaded {
			continue
		}
		wf, err := e.workflows.FindByID(ctx, doc.WorkflowID)
		if err != nil {
			e.logger.Error(ctx, "cannot recover execution, workflow missing",
				"execution", doc.ID, "workflow", doc.WorkflowID, "err", err.Error())
			continue
		}
		r := &run{wf: snapshot(wf), ec: execution.ToContext(doc), inputs: cloneVars(doc.Inputs)}
		e.mu.Lock()
		e.running[doc.ID] = r
		e.mu.Unlock()
		e.rearmTimer(ctx, r)
		recovered++
	}
	if recovered > 0 {
		e.logger.Info(ctx, "recovered paused executions", "count", recovered)
	}
	return nil
}

// rearmTimer schedules a timer:expired event for an execution paused on a
// timer node, based on the resumeAt deadline kept in the pause data.
func (e *Engine) rearmTimer(ctx context.Context, r *run) {
	last := r.ec.LastStep()
	if last == nil || last.Outcome != execution.OutcomePause {
		return
	}
	raw, ok := last.Output["resumeAt"].(string)
	if !ok {
		return
	}
	resumeAt, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		e.logger.Warn(ctx, "invalid resume deadline in pause data",
			"execution", r.ec.ExecutionID, "resumeAt", raw)
		return
	}
	executionID, nodeID := r.ec.ExecutionID, last.NodeID
	fire := func() {
		e.bus.Publish(context.Background(), hooks.NewTimerExpiredEvent(executionID, nodeID))
	}
	if delay := time.Until(resumeAt); delay > 0 {
		e.after(delay, fire)
	} else {
		go fire()
	}
}

// drive pops nodes off the run queue and executes them until the queue drains
// (completion), a handler pauses, or a step fails.
func (e *Engine) drive(ctx context.Context, r *run) {
	for {
		e.mu.Lock()
		if r.ec.Status != execution.StatusRunning {
			e.mu.Unlock()
			return
		}
		if len(r.queue) == 0 {
			e.mu.Unlock()
			e.complete(ctx, r)
			return
		}
		nodeID := r.queue[0]
		r.queue = r.queue[1:]
		e.mu.Unlock()

		res := e.executeStep(ctx, r, nodeID)
		switch res.Outcome {
		case node.OutcomeSuccess:
			e.mu.Lock()
			r.queue = append(r.queue, e.successorsLocked(ctx, r, nodeID)...)
			e.mu.Unlock()
		case node.OutcomePause:
			return
		case node.OutcomeError:
			e.fail(ctx, r, nodeID, res.Err.Error())
			return
		}
	}
}

// executeStep runs one node under the execution's named lock.
func (e *Engine) executeStep(ctx context.Context, r *run, nodeID string) node.Result {
	var res node.Result
	err := e.locker.WithLock(ctx, lock.ExecutionKey(r.ec.ExecutionID), func(ctx context.Context) error {
		res = e.step(ctx, r, nodeID)
		return nil
	})
	if err != nil {
		return node.Fail(fmt.Errorf("acquire execution lock: %w", err))
	}
	return res
}

func (e *Engine) step(ctx context.Context, r *run, nodeID string) node.Result {
	executionID := r.ec.ExecutionID
	n := r.wf.NodeByID(nodeID)
	if n == nil {
		return node.Failf("node %s not found in workflow %s", nodeID, r.wf.ID)
	}
	handler, ok := e.registry.Lookup(n.Kind)
	if !ok {
		return node.Failf("no handler registered for node kind %s", n.Kind)
	}

	e.mu.Lock()
	r.ec.CurrentNodeID = nodeID
	input := cloneVars(r.ec.Variables)
	e.mu.Unlock()

	e.bus.Publish(ctx, hooks.NewNodeStartedEvent(executionID, nodeID, n.Kind))
	started := time.Now()
	res := invoke(ctx, handler, *n, r.ec)
	duration := time.Since(started)
	var ms stdruntime.MemStats
	stdruntime.ReadMemStats(&ms)

	rec := execution.StepRecord{
		NodeID:    nodeID,
		StartedAt: started,
		Duration:  duration,
		Input:     input,
		Memory:    int64(ms.HeapAlloc),
	}
	e.mu.Lock()
	paused := false
	switch res.Outcome {
	case node.OutcomeSuccess:
		rec.Outcome = execution.OutcomeSuccess
		rec.Output = res.Output
		r.ec.MergeVariables(res.Output)
	case node.OutcomePause:
		rec.Outcome = execution.OutcomePause
		rec.Output = res.Data
		// A cancel issued while the handler was in flight wins over the
		// pause, mirroring the guard in complete.
		if r.ec.Status == execution.StatusRunning {
			r.ec.Status = execution.StatusPaused
			paused = true
		}
	case node.OutcomeError:
		rec.Outcome = execution.OutcomeFailed
		rec.Error = res.Err.Error()
	}
	r.ec.AppendStep(rec)
	e.mu.Unlock()

	// Persist before publishing so subscribers reacting to the pause never
	// observe a stale document.
	if res.Outcome != node.OutcomeError {
		e.persist(ctx, r)
	}
	e.bus.Publish(ctx, hooks.NewNodeCompletedEvent(executionID, nodeID, rec.Outcome, duration))
	e.metrics.RecordTimer("node_duration", duration, "kind", string(n.Kind))
	if paused {
		e.bus.Publish(ctx, hooks.NewExecutionPausedEvent(executionID, nodeID, res.Reason, res.Data))
		e.logger.Info(ctx, "execution paused",
			"execution", executionID, "node", nodeID, "reason", res.Reason)
	}
	return res
}

// invoke dispatches the handler with a panic guard: a panicking handler fails
// the step instead of crashing the engine.
func invoke(ctx context.Context, h node.Handler, n workflow.Node, ec *execution.Context) (res node.Result) {
	defer func() {
		if r := recover(); r != nil {
			res = node.Failf("handler for node %s panicked: %v", n.ID, r)
		}
	}()
	return h.Execute(ctx, n, ec)
}

func (e *Engine) complete(ctx context.Context, r *run) {
	e.mu.Lock()
	if r.ec.Status != execution.StatusRunning {
		e.mu.Unlock()
		return
	}
	now := time.Now()
	r.ec.Status = execution.StatusCompleted
	r.ec.EndTime = &now
	executionID, workflowID := r.ec.ExecutionID, r.ec.WorkflowID
	outputs := cloneVars(r.ec.Variables)
	e.mu.Unlock()
	e.persist(ctx, r)
	e.forget(executionID)
	e.bus.Publish(ctx, hooks.NewExecutionCompletedEvent(executionID, workflowID, outputs))
	e.bus.Publish(ctx, hooks.NewWorkflowCompletedEvent(executionID, workflowID))
	e.logger.Info(ctx, "execution completed", "execution", executionID, "workflow", workflowID)
	e.metrics.IncCounter("executions_completed", 1, "workflow", workflowID)
}

func (e *Engine) fail(ctx context.Context, r *run, nodeID, reason string) {
	e.mu.Lock()
	if r.ec.Status.Terminal() {
		e.mu.Unlock()
		return
	}
	now := time.Now()
	r.ec.Status = execution.StatusFailed
	r.ec.EndTime = &now
	r.queue = nil
	executionID, workflowID := r.ec.ExecutionID, r.ec.WorkflowID
	e.mu.Unlock()
	e.persist(ctx, r)
	e.forget(executionID)
	e.bus.Publish(ctx, hooks.NewExecutionFailedEvent(executionID, workflowID, nodeID, reason))
	e.bus.Publish(ctx, hooks.NewWorkflowFailedEvent(executionID, workflowID, reason))
	e.logger.Error(ctx, "execution failed",
		"execution", executionID, "workflow", workflowID, "node", nodeID, "reason", reason)
	e.metrics.IncCounter("executions_failed", 1, "workflow", workflowID)
}

// branchName matches edge conditions that are a plain branch identifier
// rather than an expression.
var branchName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_-]*$`)

// successorsLocked returns the next node IDs for traversal in edge
// declaration order, skipping conditional edges whose condition does not
// hold. Callers must hold e.mu.
func (e *Engine) successorsLocked(ctx context.Context, r *run, nodeID string) []string {
	n := r.wf.NodeByID(nodeID)
	fromDecision := n != nil && n.Kind == workflow.KindDecision
	var next []string
	for _, edge := range r.wf.OutgoingEdges(nodeID) {
		if edge.Condition != "" && !e.edgeMatches(ctx, r, fromDecision, edge) {
			continue
		}
		next = append(next, edge.Target)
	}
	return next
}

// edgeMatches reports whether a conditional edge should be followed. Edges
// leaving a Decision node may carry the bare name of a branch; such a
// condition holds when it equals the decision's decisionPath output or names
// a condition that evaluated true. Everything else is evaluated as an
// expression against the current variables; evaluation failures are logged
// and treated as false.
func (e *Engine) edgeMatches(ctx context.Context, r *run, fromDecision bool, edge workflow.Edge) bool {
	if fromDecision && branchName.MatchString(edge.Condition) {
		if path, _ := r.ec.Variables["decisionPath"].(string); path == edge.Condition {
			return true
		}
		results, _ := r.ec.Variables["conditionResults"].(map[string]any)
		taken, _ := results[edge.Condition].(bool)
		return taken
	}
	matched, err := expr.Evaluate(edge.Condition, r.ec.Variables)
	if err != nil {
		e.logger.Warn(ctx, "edge condition evaluation failed",
			"execution", r.ec.ExecutionID, "source", edge.Source,
			"target", edge.Target, "err", err.Error())
	}
	return matched
}

// findRun returns the in-memory run for the execution, reloading it from the
// durable store when the engine no longer holds it (e.g. after a restart).
func (e *Engine) findRun(ctx context.Context, executionID string) (*run, error) {
	e.mu.RLock()
	r := e.running[executionID]
	e.mu.RUnlock()
	if r != nil {
		return r, nil
	}
	doc, err := e.executions.FindByID(ctx, executionID)
	if err != nil {
		return nil, err
	}
	wf, err := e.workflows.FindByID(ctx, doc.WorkflowID)
	if err != nil {
		return nil, fmt.Errorf("load workflow %s: %w", doc.WorkflowID, err)
	}
	r = &run{wf: snapshot(wf), ec: execution.ToContext(doc), inputs: cloneVars(doc.Inputs)}
	e.mu.Lock()
	if existing := e.running[executionID]; existing != nil {
		r = existing
	} else if !r.ec.Status.Terminal() {
		e.running[executionID] = r
	}
	e.mu.Unlock()
	return r, nil
}

// persist writes the execution document to the durable store and refreshes
// the hot cache. Persistence failures are logged, not fatal: the in-memory
// state remains authoritative for the life of the process.
func (e *Engine) persist(ctx context.Context, r *run) {
	e.mu.RLock()
	ec := r.ec.Clone()
	inputs := r.inputs
	e.mu.RUnlock()
	doc := execution.FromContext(ec, inputs)
	if err := e.executions.Upsert(ctx, doc); err != nil {
		e.logger.Error(ctx, "persist execution failed",
			"execution", doc.ID, "err", err.Error())
	}
	if e.cache == nil {
		return
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return
	}
	if err := e.cache.Set(ctx, cache.ExecutionKey(doc.ID), b, e.cacheTTL); err != nil {
		e.logger.Warn(ctx, "cache execution failed",
			"execution", doc.ID, "err", err.Error())
	}
}

func (e *Engine) forget(executionID string) {
	e.mu.Lock()
	delete(e.running, executionID)
	e.mu.Unlock()
}

func (e *Engine) onApproved(ctx context.Context, evt hooks.Event) {
	ev, ok := evt.(*hooks.ApprovalGrantedEvent)
	if !ok {
		return
	}
	data := map[string]any{"approved": true}
	for k, v := range ev.ApprovalData {
		data[k] = v
	}
	if err := e.ResumeWorkflow(ctx, ev.ExecutionID(), data); err != nil {
		e.logger.Warn(ctx, "approval resume failed",
			"execution", ev.ExecutionID(), "err", err.Error())
	}
}

func (e *Engine) onRejected(ctx context.Context, evt hooks.Event) {
	ev, ok := evt.(*hooks.ApprovalRejectedEvent)
	if !ok {
		return
	}
	r, err := e.findRun(ctx, ev.ExecutionID())
	if err != nil {
		e.logger.Warn(ctx, "rejection for unknown execution",
			"execution", ev.ExecutionID(), "err", err.Error())
		return
	}
	e.mu.Lock()
	if r.ec.Status != execution.StatusPaused {
		e.mu.Unlock()
		return
	}
	nodeID := r.ec.CurrentNodeID
	e.mu.Unlock()
	if ev.Reason != "" {
		e.logger.Info(ctx, "approval rejected",
			"execution", ev.ExecutionID(), "reason", ev.Reason)
	}
	e.fail(ctx, r, nodeID, "Human approval rejected")
}

func (e *Engine) onTimerExpired(ctx context.Context, evt hooks.Event) {
	ev, ok := evt.(*hooks.TimerExpiredEvent)
	if !ok {
		return
	}
	r, err := e.findRun(ctx, ev.ExecutionID())
	if err != nil {
		e.logger.Warn(ctx, "timer expiry for unknown execution",
			"execution", ev.ExecutionID(), "err", err.Error())
		return
	}
	e.mu.RLock()
	relevant := r.ec.Status == execution.StatusPaused && r.ec.CurrentNodeID == ev.NodeID
	e.mu.RUnlock()
	if !relevant {
		return
	}
	if err := e.ResumeWorkflow(ctx, ev.ExecutionID(), nil); err != nil {
		e.logger.Warn(ctx, "timer resume failed",
			"execution", ev.ExecutionID(), "err", err.Error())
	}
}

// snapshot copies the workflow graph so in-flight executions are isolated
// from definition updates.
func snapshot(wf *workflow.Workflow) *workflow.Workflow {
	cp := *wf
	cp.Nodes = make([]workflow.Node, len(wf.Nodes))
	copy(cp.Nodes, wf.Nodes)
	cp.Edges = make([]workflow.Edge, len(wf.Edges))
	copy(cp.Edges, wf.Edges)
	return &cp
}

func cloneVars(m map[string]any) map[string]any {
	cp := make(map[string]any, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}
