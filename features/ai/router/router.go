// Package router dispatches AI requests to providers. It detects the task
// type of a prompt, selects a provider via a policy table, enforces per-
// provider daily token quotas and request rate limits, and falls back along a
// per-provider chain when a provider is unavailable or out of budget.
package router

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/autoflowhq/autoflow/features/ai/quota"
	"github.com/autoflowhq/autoflow/runtime/model"
	"github.com/autoflowhq/autoflow/runtime/telemetry"
)

var (
	// ErrNoProviders indicates the router has no provider able to serve the
	// request: every candidate in the chain was exhausted or failed.
	ErrNoProviders = errors.New("no available ai provider")

	// ErrUnknownProvider indicates the request named a provider that is not
	// registered.
	ErrUnknownProvider = errors.New("unknown ai provider")
)

type (
	// Provider describes one registered provider.
	Provider struct {
		// Name is the provider identifier used in policy and fallback tables.
		Name string
		// Client performs the actual completion calls.
		Client model.Client
		// DailyTokenLimit caps tokens per UTC day. Zero means unlimited.
		DailyTokenLimit int64
		// RequestsPerMinute throttles calls to the provider. Zero disables the
		// limiter.
		RequestsPerMinute float64
		// CostPerMillionTokens estimates request cost from total token usage.
		CostPerMillionTokens float64
		// Fallbacks lists provider names to try, in order, when this provider
		// fails or is out of budget.
		Fallbacks []string
	}

	// Config configures a Router.
	Config struct {
		// Providers lists the registered providers. At least one is required.
		Providers []Provider
		// Policy maps task types to preferred provider names. Task types
		// missing from the table use Default.
		Policy map[TaskType]string
		// Default is the provider used when the policy has no entry. Required.
		Default string
		// Quota tracks daily token usage. Nil uses an in-memory store.
		Quota quota.Store
		// Logger reports fallback decisions. Nil discards.
		Logger telemetry.Logger
	}

	// Request is a routed completion request.
	Request struct {
		// Provider forces a specific provider, bypassing the policy table.
		// The fallback chain still applies if the forced provider fails.
		Provider string
		// TaskType selects the policy entry. Empty triggers detection from the
		// prompt.
		TaskType TaskType
		// Model optionally overrides the provider's default model.
		Model string
		// Prompt is the fully substituted prompt text.
		Prompt string
		// System is optional system-message context.
		System string
		// Temperature controls sampling randomness.
		Temperature float32
		// MaxTokens caps completion tokens.
		MaxTokens int
	}

	// Response is the routed completion result.
	Response struct {
		// Text is the generated completion.
		Text string
		// Provider is the provider that served the request.
		Provider string
		// Model is the model that served the request.
		Model string
		// TaskType is the task type used for routing.
		TaskType TaskType
		// TokensUsed is the total token usage reported by the provider.
		TokensUsed int
		// Cost is the estimated request cost.
		Cost float64
	}

	// Router selects providers and executes completion requests.
	Router struct {
		providers map[string]*registered
		policy    map[TaskType]string
		deflt     string
		quota     quota.Store
		logger    telemetry.Logger
		clock     func() time.Time
	}

	registered struct {
		Provider
		limiter *rate.Limiter
	}
)

// New constructs a Router from the given configuration.
func New(cfg Config) (*Router, error) {
	if len(cfg.Providers) == 0 {
		return nil, errors.New("at least one provider is required")
	}
	if cfg.Default == "" {
		return nil, errors.New("default provider is required")
	}
	r := &Router{
		providers: make(map[string]*registered, len(cfg.Providers)),
		policy:    cfg.Policy,
		deflt:     cfg.Default,
		quota:     cfg.Quota,
		logger:    cfg.Logger,
		clock:     time.Now,
	}
	if r.quota == nil {
		r.quota = quota.NewInmem()
	}
	if r.logger == nil {
		r.logger = telemetry.NoopLogger{}
	}
	for _, p := range cfg.Providers {
		if p.Name == "" || p.Client == nil {
			return nil, errors.New("provider name and client are required")
		}
		if _, dup := r.providers[p.Name]; dup {
			return nil, fmt.Errorf("provider %q already registered", p.Name)
		}
		reg := &registered{Provider: p}
		if p.RequestsPerMinute > 0 {
			reg.limiter = rate.NewLimiter(rate.Limit(p.RequestsPerMinute/60.0), 1)
		}
		r.providers[p.Name] = reg
	}
	if _, ok := r.providers[cfg.Default]; !ok {
		return nil, fmt.Errorf("default provider %q is not registered", cfg.Default)
	}
	return r, nil
}

// Complete routes the request to a provider and returns the completion. The
// candidate chain is the preferred provider followed by its fallbacks;
// providers whose daily quota is spent are skipped, and provider failures
// advance the chain. When every candidate is exhausted, Complete returns the
// last provider error joined with ErrNoProviders.
func (r *Router) Complete(ctx context.Context, req Request) (Response, error) {
	taskType := req.TaskType
	if taskType == "" {
		taskType = DetectTaskType(req.Prompt)
	}
	preferred, err := r.preferred(req, taskType)
	if err != nil {
		return Response{}, err
	}
	chain := r.chain(preferred)
	var lastErr error
	for _, name := range chain {
		reg := r.providers[name]
		if reg == nil {
			continue
		}
		if ok, qerr := r.withinQuota(ctx, reg); qerr != nil {
			lastErr = qerr
			continue
		} else if !ok {
			r.logger.Warn(ctx, "provider quota exhausted, falling back", "provider", name)
			lastErr = fmt.Errorf("%s: %w", name, model.ErrQuotaExhausted)
			continue
		}
		if reg.limiter != nil {
			if err := reg.limiter.Wait(ctx); err != nil {
				return Response{}, err
			}
		}
		resp, err := reg.Client.Complete(ctx, model.Request{
			Model:       req.Model,
			Prompt:      req.Prompt,
			System:      req.System,
			Temperature: req.Temperature,
			MaxTokens:   req.MaxTokens,
		})
		if err != nil {
			r.logger.Warn(ctx, "provider call failed, falling back",
				"provider", name, "err", err.Error())
			lastErr = err
			continue
		}
		tokens := resp.Usage.TotalTokens
		if err := r.quota.Add(ctx, name, r.clock(), int64(tokens)); err != nil {
			r.logger.Warn(ctx, "quota accounting failed", "provider", name, "err", err.Error())
		}
		return Response{
			Text:       resp.Text,
			Provider:   name,
			Model:      resp.Model,
			TaskType:   taskType,
			TokensUsed: tokens,
			Cost:       float64(tokens) / 1e6 * reg.CostPerMillionTokens,
		}, nil
	}
	if lastErr != nil {
		return Response{}, errors.Join(ErrNoProviders, lastErr)
	}
	return Response{}, ErrNoProviders
}

// preferred resolves the first provider to try: an explicit request override,
// then the policy entry for the task type, then the default.
func (r *Router) preferred(req Request, taskType TaskType) (string, error) {
	if req.Provider != "" {
		if _, ok := r.providers[req.Provider]; !ok {
			return "", fmt.Errorf("%w: %s", ErrUnknownProvider, req.Provider)
		}
		return req.Provider, nil
	}
	if name, ok := r.policy[taskType]; ok {
		return name, nil
	}
	return r.deflt, nil
}

// chain returns the preferred provider followed by its fallbacks, with
// duplicates removed while preserving order.
func (r *Router) chain(preferred string) []string {
	seen := map[string]bool{preferred: true}
	chain := []string{preferred}
	if reg := r.providers[preferred]; reg != nil {
		for _, name := range reg.Fallbacks {
			if !seen[name] {
				seen[name] = true
				chain = append(chain, name)
			}
		}
	}
	return chain
}

func (r *Router) withinQuota(ctx context.Context, reg *registered) (bool, error) {
	if reg.DailyTokenLimit <= 0 {
		return true, nil
	}
	used, err := r.quota.Used(ctx, reg.Name, r.clock())
	if err != nil {
		return false, err
	}
	return used < reg.DailyTokenLimit, nil
}
