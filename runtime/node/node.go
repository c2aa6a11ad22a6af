// Package node defines the uniform handler contract the engine dispatches
// node execution through, the three-variant handler result, and the registry
// mapping node kinds to handlers.
//
// Handlers are stateless with respect to each other. They may call external
// services but must translate adapter failures into an error Result rather
// than returning a Go error or panicking; the engine treats any error Result
// as a terminal execution failure.
package node

import (
	"context"
	"fmt"
	"sync"

	"github.com/autoflowhq/autoflow/runtime/execution"
	"github.com/autoflowhq/autoflow/runtime/workflow"
)

// Outcome discriminates the Result variants.
type Outcome string

const (
	// OutcomeSuccess carries an output map to merge into the variables.
	OutcomeSuccess Outcome = "success"
	// OutcomePause suspends the execution until an external resume.
	OutcomePause Outcome = "pause"
	// OutcomeError terminates the execution as failed.
	OutcomeError Outcome = "error"
)

type (
	// Result is the three-variant outcome of a handler invocation. Use the
	// Succeed, Pause, and Fail constructors rather than building it directly.
	Result struct {
		// Outcome discriminates the variant.
		Outcome Outcome
		// Output is the success payload merged into the execution variables.
		Output map[string]any
		// Reason is the human-readable pause reason.
		Reason string
		// Data is the pause payload (approval descriptor, timer deadline).
		Data map[string]any
		// Err is the error payload.
		Err error
	}

	// Handler implements the behavior of one node kind.
	Handler interface {
		// Execute runs the node against the execution context and returns the
		// outcome. Implementations read node.Config, substitute variables from
		// ec.Variables, and never mutate ec.
		Execute(ctx context.Context, n workflow.Node, ec *execution.Context) Result
	}

	// HandlerFunc adapts a function to the Handler interface.
	HandlerFunc func(ctx context.Context, n workflow.Node, ec *execution.Context) Result

	// Registry maps node kinds to handlers. It is populated at server start
	// and read-only afterwards; Lookup is safe for concurrent use.
	Registry struct {
		mu       sync.RWMutex
		handlers map[workflow.NodeKind]Handler
	}
)

// Execute implements Handler.
func (f HandlerFunc) Execute(ctx context.Context, n workflow.Node, ec *execution.Context) Result {
	return f(ctx, n, ec)
}

// Succeed returns a success Result with the given output.
func Succeed(output map[string]any) Result {
	return Result{Outcome: OutcomeSuccess, Output: output}
}

// Pause returns a pause Result with the given reason and payload.
func Pause(reason string, data map[string]any) Result {
	return Result{Outcome: OutcomePause, Reason: reason, Data: data}
}

// Fail returns an error Result.
func Fail(err error) Result {
	return Result{Outcome: OutcomeError, Err: err}
}

// Failf returns an error Result with a formatted message.
func Failf(format string, args ...any) Result {
	return Result{Outcome: OutcomeError, Err: fmt.Errorf(format, args...)}
}

// NewRegistry returns an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[workflow.NodeKind]Handler)}
}

// Register binds a handler to a node kind. Registering the same kind twice is
// an error.
func (r *Registry) Register(kind workflow.NodeKind, h Handler) error {
	if kind == "" {
		return fmt.Errorf("node kind is required")
	}
	if h == nil {
		return fmt.Errorf("handler is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.handlers[kind]; dup {
		return fmt.Errorf("handler for kind %q already registered", kind)
	}
	r.handlers[kind] = h
	return nil
}

// Lookup returns the handler for the given kind.
func (r *Registry) Lookup(kind workflow.NodeKind) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[kind]
	return h, ok
}
