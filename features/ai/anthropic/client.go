// Package anthropic provides a model.Client implementation backed by the
// Anthropic Claude Messages API. It translates router requests into
// anthropic.Message calls using github.com/anthropics/anthropic-sdk-go and
// maps failures into structured provider errors the router can classify.
package anthropic

import (
	"context"
	"errors"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/autoflowhq/autoflow/runtime/model"
)

const (
	providerName = "anthropic"

	// defaultMaxTokens caps completions when the request does not specify one;
	// the Messages API requires an explicit cap.
	defaultMaxTokens = 1024
)

// MessagesClient captures the subset of the Anthropic SDK client used by the
// adapter. It is satisfied by *sdk.MessageService so callers can pass either
// a real client or a mock in tests.
type MessagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// Options configures the Anthropic adapter.
type Options struct {
	// DefaultModel is the Claude model identifier used when the request does
	// not name one. Use the typed model constants from anthropic-sdk-go.
	DefaultModel string
	// MaxTokens is the default completion cap when the request does not set
	// MaxTokens. Zero falls back to a conservative built-in default.
	MaxTokens int
}

// Client implements model.Client via the Anthropic Messages API.
type Client struct {
	msg          MessagesClient
	defaultModel string
	maxTokens    int
}

// New builds an Anthropic-backed model client.
func New(msg MessagesClient, opts Options) (*Client, error) {
	if msg == nil {
		return nil, errors.New("messages client is required")
	}
	if opts.DefaultModel == "" {
		return nil, errors.New("default model is required")
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &Client{msg: msg, defaultModel: opts.DefaultModel, maxTokens: maxTokens}, nil
}

// NewFromAPIKey constructs a client using the default Anthropic HTTP client.
func NewFromAPIKey(apiKey, defaultModel string) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("api key is required")
	}
	ac := sdk.NewClient(option.WithAPIKey(apiKey))
	return New(&ac.Messages, Options{DefaultModel: defaultModel})
}

// Complete issues a non-streaming Messages.New request and returns the
// concatenated text blocks of the response.
func (c *Client) Complete(ctx context.Context, req model.Request) (model.Response, error) {
	if req.Prompt == "" {
		return model.Response{}, errors.New("prompt is required")
	}
	modelID := req.Model
	if modelID == "" {
		modelID = c.defaultModel
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}
	params := sdk.MessageNewParams{
		Model:     sdk.Model(modelID),
		MaxTokens: int64(maxTokens),
		Messages:  []sdk.MessageParam{sdk.NewUserMessage(sdk.NewTextBlock(req.Prompt))},
	}
	if req.System != "" {
		params.System = []sdk.TextBlockParam{{Text: req.System}}
	}
	if req.Temperature > 0 {
		params.Temperature = sdk.Float(float64(req.Temperature))
	}
	msg, err := c.msg.New(ctx, params)
	if err != nil {
		return model.Response{}, translateError(err)
	}
	return translateResponse(msg)
}

func translateResponse(msg *sdk.Message) (model.Response, error) {
	if msg == nil {
		return model.Response{}, errors.New("anthropic: response message is nil")
	}
	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	return model.Response{
		Text:  text,
		Model: string(msg.Model),
		Usage: model.TokenUsage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
			TotalTokens:  int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		},
	}, nil
}

// translateError maps Anthropic SDK failures into structured provider errors.
func translateError(err error) error {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		kind, retryable := classifyStatus(apiErr.StatusCode)
		return model.NewProviderError(providerName, apiErr.StatusCode, kind,
			apiErr.Error(), retryable, err)
	}
	return model.NewProviderError(providerName, 0, model.ProviderErrorKindUnavailable,
		err.Error(), true, err)
}

func classifyStatus(status int) (model.ProviderErrorKind, bool) {
	switch {
	case status == 401 || status == 403:
		return model.ProviderErrorKindAuth, false
	case status == 429:
		return model.ProviderErrorKindRateLimited, true
	case status >= 500:
		return model.ProviderErrorKindUnavailable, true
	case status >= 400:
		return model.ProviderErrorKindInvalidRequest, false
	default:
		return model.ProviderErrorKindUnknown, true
	}
}
