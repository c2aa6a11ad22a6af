// Package workflow defines the workflow graph primitives the engine executes:
// workflows, nodes, edges, and the read-only store interface used to load
// definitions at execution time.
//
// A workflow is a directed graph. Each node carries a kind from a closed set
// and an arbitrary configuration consumed by the handler registered for that
// kind. Edges connect nodes and may carry a condition string that gates
// traversal when the source node is a Decision node.
//
// Workflows are immutable from the engine's perspective: executions read
// definitions by ID and never write back through this package.
package workflow

import (
	"context"
	"errors"
)

// Status represents the lifecycle state of a workflow definition.
type Status string

const (
	// StatusDraft indicates the workflow is being edited and must not execute.
	StatusDraft Status = "draft"
	// StatusActive indicates the workflow accepts new executions.
	StatusActive Status = "active"
	// StatusArchived indicates the workflow is retired and must not execute.
	StatusArchived Status = "archived"
)

// NodeKind identifies the behavior of a node. The set is closed: the engine
// fails a step when it encounters a kind with no registered handler.
type NodeKind string

const (
	// KindTrigger marks the designated start node of a workflow.
	KindTrigger NodeKind = "Trigger"
	// KindAIProcessor invokes an AI provider with a templated prompt.
	KindAIProcessor NodeKind = "AIProcessor"
	// KindDecision evaluates named conditions and selects a routing path.
	KindDecision NodeKind = "Decision"
	// KindHumanTask pauses the execution until a human approves or rejects.
	KindHumanTask NodeKind = "HumanTask"
	// KindAction performs an external side effect (HTTP, email, database, log).
	KindAction NodeKind = "Action"
	// KindTimer delays execution, inline for short delays and via a durable
	// pause for long ones.
	KindTimer NodeKind = "Timer"
	// KindFileOperations delegates file manipulation to the file adapter.
	KindFileOperations NodeKind = "FileOperations"
	// KindFormBuilder delegates form operations to the form adapter.
	KindFormBuilder NodeKind = "FormBuilder"
	// KindDataTransform delegates data reshaping to the transform adapter.
	KindDataTransform NodeKind = "DataTransform"
	// KindPushNotification delegates push delivery to the notification adapter.
	KindPushNotification NodeKind = "PushNotification"
	// KindEmailAutomation delegates campaign operations to the email adapter.
	KindEmailAutomation NodeKind = "EmailAutomation"
)

var (
	// ErrNotFound indicates that no workflow exists for the given identifier.
	ErrNotFound = errors.New("workflow not found")
)

type (
	// Workflow is a stored automation graph.
	Workflow struct {
		// ID uniquely identifies the workflow.
		ID string
		// Name is the human-readable workflow name.
		Name string
		// Status is the definition lifecycle state. Only active workflows start.
		Status Status
		// Nodes is the ordered set of graph vertices. Order matters: the engine
		// picks the first Trigger node as the start node.
		Nodes []Node
		// Edges is the set of directed arcs. Declaration order is preserved when
		// computing successor nodes.
		Edges []Edge
		// Version increments on definition updates. Executions snapshot the
		// graph at start, so a version bump never affects in-flight runs.
		Version int
	}

	// Node is a single unit of work within a workflow.
	Node struct {
		// ID is unique within the workflow.
		ID string
		// Kind selects the registered handler that executes this node.
		Kind NodeKind
		// Name is an optional human-readable label.
		Name string
		// Config carries arbitrary structured values consumed by the handler.
		Config map[string]any
	}

	// Edge is a directed arc between two nodes.
	Edge struct {
		// Source is the node ID the edge leaves from.
		Source string
		// Target is the node ID the edge points to.
		Target string
		// Condition optionally gates traversal. It is only consulted when the
		// source node is a Decision node; an empty condition is a default path.
		Condition string
	}

	// Store retrieves workflow definitions. The engine never mutates workflows
	// through this interface.
	Store interface {
		// FindByID returns the workflow with the given ID or ErrNotFound.
		FindByID(ctx context.Context, id string) (*Workflow, error)
	}
)

// NodeByID returns the node with the given ID, or nil when absent.
func (w *Workflow) NodeByID(id string) *Node {
	for i := range w.Nodes {
		if w.Nodes[i].ID == id {
			return &w.Nodes[i]
		}
	}
	return nil
}

// StartNode returns the first Trigger node in declaration order, or nil when
// the workflow has none.
func (w *Workflow) StartNode() *Node {
	for i := range w.Nodes {
		if w.Nodes[i].Kind == KindTrigger {
			return &w.Nodes[i]
		}
	}
	return nil
}

// OutgoingEdges returns the edges leaving the given node in declaration order.
func (w *Workflow) OutgoingEdges(nodeID string) []Edge {
	var out []Edge
	for _, e := range w.Edges {
		if e.Source == nodeID {
			out = append(out, e)
		}
	}
	return out
}
