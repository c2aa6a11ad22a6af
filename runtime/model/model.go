// Package model defines the provider-agnostic AI client abstraction consumed
// by the AIProcessor routing layer. Implementations wrap provider SDKs
// (OpenAI, Anthropic) and translate Request/Response to provider-specific
// formats. Clients must be thread-safe and reusable across executions.
package model

import (
	"context"
	"errors"
)

// ErrQuotaExhausted indicates the provider's daily quota is spent and the
// router should fall back to the next provider in the chain.
var ErrQuotaExhausted = errors.New("provider daily quota exhausted")

type (
	// Client is the contract the router uses to invoke a provider.
	Client interface {
		// Complete sends a completion request and returns the generated text.
		// Implementations translate provider failures into *ProviderError so
		// the router can classify them.
		Complete(ctx context.Context, req Request) (Response, error)
	}

	// Request captures the normalized parameters for a provider invocation.
	Request struct {
		// Model identifies the target model using the provider-specific
		// identifier. Empty selects the adapter's default model.
		Model string
		// Prompt is the fully substituted user prompt.
		Prompt string
		// System optionally sets a system instruction.
		System string
		// Temperature controls sampling randomness. Zero uses the provider
		// default.
		Temperature float32
		// MaxTokens caps completion tokens. Zero uses the provider default.
		MaxTokens int
	}

	// Response wraps the generated text and usage accounting.
	Response struct {
		// Text is the generated completion.
		Text string
		// Model is the model that actually served the request.
		Model string
		// Usage reports token accounting when the provider returns it.
		Usage TokenUsage
	}

	// TokenUsage reports token accounting for one request.
	TokenUsage struct {
		// InputTokens counts prompt tokens.
		InputTokens int
		// OutputTokens counts completion tokens.
		OutputTokens int
		// TotalTokens is the provider-reported total (input + output).
		TotalTokens int
	}
)
