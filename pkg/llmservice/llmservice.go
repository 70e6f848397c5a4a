// Package llmservice is the single call path for any chat generation:
// resolve the model, check the context window, admit against the
// provider's rate bucket, consult the cache, pass through the circuit
// breaker, retry transient provider failures, round-trip tool calls, and
// fall back to another model when the primary is unavailable. Grounded on
// the teacher's pkg/controller.Controller.step/callModel control-loop shape
// (load config, dispatch, handle result) generalized from the teacher's
// single-operative single-provider loop to a registry of models/providers
// with the resilience layer spliced in between dispatch and the adapter
// call.
package llmservice

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/meridian-ai/agentcore/pkg/apperr"
	"github.com/meridian-ai/agentcore/pkg/breaker"
	"github.com/meridian-ai/agentcore/pkg/cache"
	"github.com/meridian-ai/agentcore/pkg/domain"
	"github.com/meridian-ai/agentcore/pkg/metrics"
	"github.com/meridian-ai/agentcore/pkg/providers"
	"github.com/meridian-ai/agentcore/pkg/ratelimit"
	"github.com/meridian-ai/agentcore/pkg/tools"
)

const (
	maxRetryAttempts  = 3
	maxFallbackDepth  = 3
	charsPerTokenEst  = 4
)

var retryBackoff = []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}

// Result is the final object returned for a chat generation, carrying
// accumulated usage across any tool round-trip and recording which model
// actually served the request after fallback.
type Result struct {
	Content           string
	Usage             domain.Usage
	ToolCalls         []domain.ToolCall
	ModelActuallyUsed string
}

// ModelRegistry resolves a logical model name to its configuration and
// fallback chain. Process-wide and read-only after initialization.
type ModelRegistry struct {
	configs   map[string]domain.ModelConfig
	fallbacks map[string][]string
}

// NewModelRegistry creates an empty registry.
func NewModelRegistry() *ModelRegistry {
	return &ModelRegistry{
		configs:   make(map[string]domain.ModelConfig),
		fallbacks: make(map[string][]string),
	}
}

// Register adds a model configuration.
func (r *ModelRegistry) Register(cfg domain.ModelConfig) {
	r.configs[cfg.Model] = cfg
}

// SetFallbackChain sets the ordered list of models to try when model is
// unavailable.
func (r *ModelRegistry) SetFallbackChain(model string, chain ...string) {
	r.fallbacks[model] = chain
}

func (r *ModelRegistry) resolve(model string) (domain.ModelConfig, bool) {
	cfg, ok := r.configs[model]
	return cfg, ok
}

// List returns every registered model configuration, in no particular
// order, for reporting (e.g. the models list CLI command). Fallback chains
// are not included; FallbackChain returns them per model.
func (r *ModelRegistry) List() []domain.ModelConfig {
	out := make([]domain.ModelConfig, 0, len(r.configs))
	for _, cfg := range r.configs {
		out = append(out, cfg)
	}
	return out
}

// FallbackChain returns the configured fallback chain for model, if any.
func (r *ModelRegistry) FallbackChain(model string) []string {
	return r.fallbacks[model]
}

// Service is the orchestration core's single LLM call path.
type Service struct {
	models     *ModelRegistry
	adapters   *providers.Registry
	buckets    *ratelimit.Registry
	breakers   *breaker.Registry
	respCache  *cache.Cache
	negotiator *tools.Negotiator

	onFallback func(from, to string)
}

// New wires the resilience layer around a model/provider registry.
func New(
	models *ModelRegistry,
	adapters *providers.Registry,
	buckets *ratelimit.Registry,
	breakers *breaker.Registry,
	respCache *cache.Cache,
	negotiator *tools.Negotiator,
) *Service {
	return &Service{
		models:     models,
		adapters:   adapters,
		buckets:    buckets,
		breakers:   breakers,
		respCache:  respCache,
		negotiator: negotiator,
	}
}

// OnFallback registers a callback invoked whenever the model-fallback chain
// is used, so the gateway/orchestrator can emit a model-fallback event.
func (s *Service) OnFallback(fn func(from, to string)) {
	s.onFallback = fn
}

// Generate runs the full resolve -> rate -> cache -> breaker -> retry ->
// adapter -> fallback pipeline for model and returns the accumulated
// result, or a classified *apperr.Error.
func (s *Service) Generate(ctx context.Context, model string, req providers.Request, toolsEnabled bool) (*Result, error) {
	return s.generate(ctx, model, req, toolsEnabled, 0)
}

func (s *Service) generate(ctx context.Context, model string, req providers.Request, toolsEnabled bool, fallbackDepth int) (*Result, error) {
	cfg, ok := s.models.resolve(model)
	if !ok {
		return nil, apperr.New(apperr.KindModelNotSupported, "no such model: "+model)
	}

	estimated := estimateTokens(req)
	if cfg.ContextWindowTokens > 0 && estimated > cfg.ContextWindowTokens {
		return nil, &apperr.Error{
			Kind:      apperr.KindContextWindowExceeded,
			Message:   "estimated token count exceeds model context window",
			Estimated: estimated,
			Limit:     cfg.ContextWindowTokens,
		}
	}

	if admitted, wait := s.buckets.Admit(cfg.Provider); !admitted {
		metrics.RateLimitRejections.WithLabelValues(cfg.Provider).Inc()
		return nil, &apperr.Error{
			Kind:         apperr.KindRateLimited,
			Message:      "provider rate limit exceeded",
			Provider:     cfg.Provider,
			RetryAfterMs: wait.Milliseconds(),
		}
	}

	req.APIName = cfg.APIName
	fp := cache.Fingerprint(model, req.Messages, cache.Params{
		Temperature: req.Params.Temperature,
		TopP:        req.Params.TopP,
		MaxTokens:   req.Params.MaxOutputTokens,
	})
	if hit, ok := s.respCache.Get(fp, time.Now()); ok {
		metrics.CacheHits.WithLabelValues("hit").Inc()
		resp := hit.(*providers.Response)
		return &Result{
			Content:           resp.Content,
			Usage:             resp.Usage,
			ToolCalls:         resp.ToolCalls,
			ModelActuallyUsed: model,
		}, nil
	}
	metrics.CacheHits.WithLabelValues("miss").Inc()

	br := s.breakers.Get("model", model)
	if !br.Allow(time.Now()) {
		metrics.BreakerState.WithLabelValues("model", model).Set(metrics.BreakerStateValue(string(br.Status().State)))
		return s.fallback(ctx, model, req, toolsEnabled, fallbackDepth,
			apperr.New(apperr.KindCircuitOpen, "circuit open for model: "+model))
	}

	adapter, err := s.adapters.Get(cfg.Provider)
	if err != nil {
		return nil, err
	}

	resp, err := s.callWithRetry(ctx, adapter, req)
	if err != nil {
		br.RecordFailure(time.Now())
		metrics.BreakerState.WithLabelValues("model", model).Set(metrics.BreakerStateValue(string(br.Status().State)))
		return s.fallback(ctx, model, req, toolsEnabled, fallbackDepth, err)
	}
	br.RecordSuccess(time.Now())
	metrics.BreakerState.WithLabelValues("model", model).Set(metrics.BreakerStateValue(string(br.Status().State)))

	if toolsEnabled && s.negotiator != nil && len(resp.ToolCalls) > 0 {
		resp, err = s.runToolRoundTrip(ctx, adapter, req, resp)
		if err != nil {
			return nil, err
		}
	}

	s.respCache.Set(fp, model, resp, time.Now())

	return &Result{
		Content:           resp.Content,
		Usage:             resp.Usage,
		ToolCalls:         resp.ToolCalls,
		ModelActuallyUsed: model,
	}, nil
}

// runToolRoundTrip executes every detected tool call, appends the results as
// tool-role turns, and re-invokes the adapter exactly once for a final
// assistant message, accumulating usage across both calls.
func (s *Service) runToolRoundTrip(ctx context.Context, adapter providers.Adapter, req providers.Request, first *providers.Response) (*providers.Response, error) {
	turns := append([]domain.ChatTurn{}, req.Messages...)
	turns = append(turns, domain.ChatTurn{Role: domain.RoleAssistant, Content: first.Content})

	for _, call := range first.ToolCalls {
		result, err := s.negotiator.Invoke(ctx, call)
		if err != nil {
			return nil, err
		}
		turns = append(turns, tools.FormatResult(result, call))
	}

	followUp := req
	followUp.Messages = turns
	second, err := adapter.Complete(ctx, followUp)
	if err != nil {
		return nil, err
	}

	second.Usage = domain.Usage{
		Prompt:     first.Usage.Prompt + second.Usage.Prompt,
		Completion: first.Usage.Completion + second.Usage.Completion,
		Total:      first.Usage.Total + second.Usage.Total,
	}
	return second, nil
}

// callWithRetry calls adapter.Complete under bounded retry: up to
// maxRetryAttempts total attempts with exponential backoff, only for errors
// classified Retryable. Terminal errors return immediately.
func (s *Service) callWithRetry(ctx context.Context, adapter providers.Adapter, req providers.Request) (*providers.Response, error) {
	var lastErr error
	for attempt := 0; attempt < maxRetryAttempts; attempt++ {
		resp, err := adapter.Complete(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		appErr, ok := err.(*apperr.Error)
		if !ok || !appErr.Retryable {
			return nil, err
		}
		if attempt == maxRetryAttempts-1 {
			break
		}

		backoff := retryBackoff[attempt]
		slog.Warn("retrying provider call", "provider", adapter.Name(), "attempt", attempt+1, "backoff", backoff, "error", err)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

// fallback looks up the first still-viable entry in model's fallback chain
// and re-enters the pipeline from the top, up to maxFallbackDepth.
func (s *Service) fallback(ctx context.Context, model string, req providers.Request, toolsEnabled bool, depth int, cause error) (*Result, error) {
	if depth >= maxFallbackDepth {
		return nil, cause
	}
	chain := s.models.fallbacks[model]
	for _, next := range chain {
		if _, ok := s.models.resolve(next); !ok {
			continue
		}
		if s.onFallback != nil {
			s.onFallback(model, next)
		}
		return s.generate(ctx, next, req, toolsEnabled, depth+1)
	}
	return nil, cause
}

// estimateTokens approximates token count as ceil(totalChars / 4), per the
// spec's cheap, provider-agnostic estimator.
func estimateTokens(req providers.Request) int {
	total := len(req.SystemPrompt)
	for _, t := range req.Messages {
		total += len(t.Content)
	}
	return int(math.Ceil(float64(total) / charsPerTokenEst))
}
