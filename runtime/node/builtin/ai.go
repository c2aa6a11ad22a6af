package builtin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/autoflowhq/autoflow/runtime/execution"
	"github.com/autoflowhq/autoflow/runtime/expr"
	"github.com/autoflowhq/autoflow/runtime/hooks"
	"github.com/autoflowhq/autoflow/runtime/node"
	"github.com/autoflowhq/autoflow/runtime/workflow"
)

type (
	// AIRequest is the handler-level completion request handed to the AI
	// client. The router feature implements the matching client on top of its
	// provider fleet.
	AIRequest struct {
		// Provider forces a specific provider when set.
		Provider string
		// TaskType selects the routing policy entry. Empty lets the client
		// detect the task type from the prompt.
		TaskType string
		// Model optionally overrides the provider's default model.
		Model string
		// Prompt is the fully substituted prompt text.
		Prompt string
		// System is optional additional context delivered as a system message.
		System string
		// Temperature controls sampling randomness.
		Temperature float32
		// MaxTokens caps completion tokens.
		MaxTokens int
	}

	// AIResponse is the completion result returned by the AI client.
	AIResponse struct {
		Text       string
		Provider   string
		Model      string
		TaskType   string
		TokensUsed int
		Cost       float64
	}

	// AIClient performs routed AI completions on behalf of the AIProcessor
	// handler.
	AIClient interface {
		Complete(ctx context.Context, req AIRequest) (AIResponse, error)
	}

	// AIHandler executes AIProcessor nodes: it substitutes variables into the
	// configured prompt, routes the completion through the AI client, and
	// publishes the ai:request / ai:response / ai:error lifecycle events.
	AIHandler struct {
		ai  AIClient
		bus hooks.Bus
	}
)

// NewAIHandler builds the AIProcessor node handler.
func NewAIHandler(ai AIClient, bus hooks.Bus) (*AIHandler, error) {
	if ai == nil {
		return nil, errors.New("ai client is required")
	}
	if bus == nil {
		return nil, errors.New("event bus is required")
	}
	return &AIHandler{ai: ai, bus: bus}, nil
}

// Execute implements node.Handler. The success output carries "result" (the
// completion text, JSON-decoded when parseJson is set and the text parses),
// plus provider, model, taskType, tokensUsed, and cost.
func (h *AIHandler) Execute(ctx context.Context, n workflow.Node, ec *execution.Context) node.Result {
	prompt := strVal(n.Config, "prompt")
	if prompt == "" {
		return node.Failf("ai node %s: prompt is required", n.ID)
	}
	req := AIRequest{
		Provider: strVal(n.Config, "aiProvider"),
		TaskType: strVal(n.Config, "taskType"),
		Model:    strVal(n.Config, "model"),
		Prompt:   expr.Substitute(prompt, ec.Variables),
		System:   expr.Substitute(strVal(n.Config, "context"), ec.Variables),
	}
	if t, ok := numVal(n.Config, "temperature"); ok {
		req.Temperature = float32(t)
	}
	if mt, ok := numVal(n.Config, "maxTokens"); ok {
		req.MaxTokens = int(mt)
	}

	h.bus.Publish(ctx, hooks.NewAIRequestEvent(ec.ExecutionID, n.ID, req.Provider, req.Model, req.TaskType))
	resp, err := h.ai.Complete(ctx, req)
	if err != nil {
		h.bus.Publish(ctx, hooks.NewAIErrorEvent(ec.ExecutionID, n.ID, err.Error()))
		return node.Fail(fmt.Errorf("ai node %s: %w", n.ID, err))
	}
	h.bus.Publish(ctx, hooks.NewAIResponseEvent(ec.ExecutionID, n.ID, resp.Provider, resp.TokensUsed, resp.Cost))

	var result any = resp.Text
	if boolVal(n.Config, "parseJson") {
		var parsed any
		if jerr := json.Unmarshal([]byte(resp.Text), &parsed); jerr == nil {
			result = parsed
		}
	}
	return node.Succeed(map[string]any{
		"result":     result,
		"provider":   resp.Provider,
		"model":      resp.Model,
		"taskType":   resp.TaskType,
		"tokensUsed": resp.TokensUsed,
		"cost":       resp.Cost,
	})
}
