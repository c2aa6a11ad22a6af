package router

import (
	"context"

	"github.com/autoflowhq/autoflow/runtime/node/builtin"
)

// NodeClient adapts a Router to the AI client interface consumed by the
// AIProcessor node handler.
type NodeClient struct {
	router *Router
}

// NewNodeClient wraps the router for node handler wiring.
func NewNodeClient(r *Router) *NodeClient { return &NodeClient{router: r} }

// Complete implements builtin.AIClient.
func (c *NodeClient) Complete(ctx context.Context, req builtin.AIRequest) (builtin.AIResponse, error) {
	resp, err := c.router.Complete(ctx, Request{
		Provider:    req.Provider,
		TaskType:    TaskType(req.TaskType),
		Model:       req.Model,
		Prompt:      req.Prompt,
		System:      req.System,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return builtin.AIResponse{}, err
	}
	return builtin.AIResponse{
		Text:       resp.Text,
		Provider:   resp.Provider,
		Model:      resp.Model,
		TaskType:   string(resp.TaskType),
		TokensUsed: resp.TokensUsed,
		Cost:       resp.Cost,
	}, nil
}
