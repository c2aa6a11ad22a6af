// Command autoflow-demo runs a small workflow end to end on the in-memory
// stack: no Redis, no Mongo, no real AI providers. It wires the engine the
// same way a service would and prints the execution history.
package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/autoflowhq/autoflow/runtime/cache/inmem"
	"github.com/autoflowhq/autoflow/runtime/engine"
	executioninmem "github.com/autoflowhq/autoflow/runtime/execution/inmem"
	"github.com/autoflowhq/autoflow/runtime/hooks"
	lockinmem "github.com/autoflowhq/autoflow/runtime/lock/inmem"
	"github.com/autoflowhq/autoflow/runtime/node"
	"github.com/autoflowhq/autoflow/runtime/node/builtin"
	"github.com/autoflowhq/autoflow/runtime/workflow"
	workflowinmem "github.com/autoflowhq/autoflow/runtime/workflow/inmem"
)

// stubAI is a tiny AI client that echoes a canned completion.
type stubAI struct{}

func (stubAI) Complete(_ context.Context, req builtin.AIRequest) (builtin.AIResponse, error) {
	return builtin.AIResponse{
		Text:       fmt.Sprintf("summary of %q", req.Prompt),
		Provider:   "stub",
		Model:      "stub-1",
		TaskType:   "summarization",
		TokensUsed: len(strings.Fields(req.Prompt)),
	}, nil
}

func main() {
	ctx := context.Background()

	// 1) Stores, bus, and handler registry (in-memory everything).
	workflows := workflowinmem.NewStore()
	executions := executioninmem.NewStore()
	bus := hooks.NewBus()
	registry := node.NewRegistry()
	if err := builtin.Register(registry, builtin.Deps{Bus: bus, AI: stubAI{}}); err != nil {
		panic(err)
	}

	// 2) The engine.
	eng, err := engine.New(engine.Options{
		Workflows:  workflows,
		Executions: executions,
		Cache:      inmem.NewCache(),
		Locker:     lockinmem.NewLocker(),
		Registry:   registry,
		Bus:        bus,
	})
	if err != nil {
		panic(err)
	}
	defer eng.Close()

	// 3) Watch the lifecycle on the bus.
	sub, err := bus.Subscribe("*", func(_ context.Context, evt hooks.Event) {
		fmt.Printf("event  %-20s execution=%s\n", evt.Type(), evt.ExecutionID())
	})
	if err != nil {
		panic(err)
	}
	defer sub.Close()

	// 4) A workflow: trigger -> summarize -> decide -> log.
	workflows.Put(&workflow.Workflow{
		ID:     "wf-demo",
		Name:   "Demo",
		Status: workflow.StatusActive,
		Nodes: []workflow.Node{
			{ID: "start", Kind: workflow.KindTrigger},
			{ID: "summarize", Kind: workflow.KindAIProcessor, Config: map[string]any{
				"prompt": "Summarize: {{text}}",
			}},
			{ID: "decide", Kind: workflow.KindDecision, Config: map[string]any{
				"conditions": []any{
					map[string]any{"name": "long", "expression": "{{tokensUsed}} > 3"},
				},
			}},
			{ID: "report", Kind: workflow.KindAction, Config: map[string]any{
				"actionType": "log",
				"message":    "path={{decisionPath}} result={{result}}",
			}},
		},
		Edges: []workflow.Edge{
			{Source: "start", Target: "summarize"},
			{Source: "summarize", Target: "decide"},
			{Source: "decide", Target: "report"},
		},
	})

	// 5) Run it.
	executionID, err := eng.StartWorkflow(ctx, "wf-demo", map[string]any{
		"text": "the quick brown fox jumps over the lazy dog",
	})
	if err != nil {
		panic(err)
	}
	fmt.Println("execution:", executionID)

	for {
		ec, err := eng.GetExecutionStatus(ctx, executionID)
		if err != nil {
			panic(err)
		}
		if ec.Status.Terminal() {
			fmt.Println("status:", ec.Status)
			for _, step := range ec.History {
				fmt.Printf("step   %-10s %-8s %v\n", step.NodeID, step.Outcome, step.Duration)
			}
			fmt.Println("outputs:", ec.Variables["message"])
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
}
