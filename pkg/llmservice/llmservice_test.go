package llmservice

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meridian-ai/agentcore/pkg/apperr"
	"github.com/meridian-ai/agentcore/pkg/breaker"
	"github.com/meridian-ai/agentcore/pkg/cache"
	"github.com/meridian-ai/agentcore/pkg/domain"
	"github.com/meridian-ai/agentcore/pkg/providers"
	"github.com/meridian-ai/agentcore/pkg/providers/mock"
	"github.com/meridian-ai/agentcore/pkg/ratelimit"
	"github.com/meridian-ai/agentcore/pkg/tools"
)

func newTestService(t *testing.T, adapters *providers.Registry, models *ModelRegistry) *Service {
	t.Helper()
	buckets := ratelimit.NewRegistry()
	buckets.Configure("mock", 100, 1)
	breakers := breaker.NewRegistry(breaker.Config{
		FailureThreshold: 3, ResetTimeout: 30 * time.Second, MonitoringPeriod: 5 * time.Minute,
	})
	respCache := cache.New(cache.Config{Enabled: true, TTL: time.Minute, MaxSize: 100})
	t.Cleanup(respCache.Close)

	return New(models, adapters, buckets, breakers, respCache, tools.NewNegotiator())
}

func basicModels() *ModelRegistry {
	models := NewModelRegistry()
	models.Register(domain.ModelConfig{
		Model: "primary", Provider: "mock", APIName: "primary", ContextWindowTokens: 1000,
	})
	return models
}

func chatRequest(message string) providers.Request {
	return providers.Request{
		Messages: []domain.ChatTurn{{Role: domain.RoleUser, Content: message}},
		Params:   domain.Params{Temperature: 0.5, TopP: 1, MaxOutputTokens: 100},
	}
}

func TestGenerate_HappyPath(t *testing.T) {
	adapters := providers.NewRegistry()
	adapters.Register(mock.New("mock"))

	svc := newTestService(t, adapters, basicModels())
	result, err := svc.Generate(context.Background(), "primary", chatRequest("hello"), false)

	require.NoError(t, err)
	require.Equal(t, "hello", result.Content)
	require.Equal(t, "primary", result.ModelActuallyUsed)
}

func TestGenerate_UnknownModelFailsModelNotSupported(t *testing.T) {
	adapters := providers.NewRegistry()
	svc := newTestService(t, adapters, basicModels())

	_, err := svc.Generate(context.Background(), "does-not-exist", chatRequest("hi"), false)
	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, apperr.KindModelNotSupported, appErr.Kind)
}

func TestGenerate_ContextWindowExceeded(t *testing.T) {
	adapters := providers.NewRegistry()
	adapters.Register(mock.New("mock"))

	models := NewModelRegistry()
	models.Register(domain.ModelConfig{Model: "tiny", Provider: "mock", APIName: "tiny", ContextWindowTokens: 1})
	svc := newTestService(t, adapters, models)

	_, err := svc.Generate(context.Background(), "tiny", chatRequest("a message long enough to exceed one token"), false)
	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, apperr.KindContextWindowExceeded, appErr.Kind)
}

func TestGenerate_RateLimited(t *testing.T) {
	adapters := providers.NewRegistry()
	adapters.Register(mock.New("mock"))

	buckets := ratelimit.NewRegistry()
	buckets.Configure("mock", 1, 0)
	breakers := breaker.NewRegistry(breaker.DefaultConfig())
	respCache := cache.New(cache.Config{Enabled: true, TTL: time.Minute, MaxSize: 10})
	defer respCache.Close()

	svc := New(basicModels(), adapters, buckets, breakers, respCache, tools.NewNegotiator())

	_, err := svc.Generate(context.Background(), "primary", chatRequest("first"), false)
	require.NoError(t, err)

	_, err = svc.Generate(context.Background(), "primary", chatRequest("second, a different message"), false)
	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, apperr.KindRateLimited, appErr.Kind)
}

func TestGenerate_CacheHitSkipsAdapterCall(t *testing.T) {
	adapters := providers.NewRegistry()
	adapter := mock.New("mock")
	adapters.Register(adapter)

	svc := newTestService(t, adapters, basicModels())
	req := chatRequest("repeatable message")

	_, err := svc.Generate(context.Background(), "primary", req, false)
	require.NoError(t, err)
	_, err = svc.Generate(context.Background(), "primary", req, false)
	require.NoError(t, err)

	require.Equal(t, 1, adapter.CallCount(), "second identical request should hit the cache, not the adapter")
}

func TestGenerate_RetriesRetryableFailureThenSucceeds(t *testing.T) {
	adapters := providers.NewRegistry()
	adapter := mock.New("mock").WithFailures(2, 503)
	adapters.Register(adapter)

	svc := newTestService(t, adapters, basicModels())
	result, err := svc.Generate(context.Background(), "primary", chatRequest("retry me"), false)

	require.NoError(t, err)
	require.Equal(t, "retry me", result.Content)
	require.Equal(t, 3, adapter.CallCount())
}

func TestGenerate_FallsBackToSecondaryModelOnTerminalFailure(t *testing.T) {
	adapters := providers.NewRegistry()
	adapters.Register(mock.ValidationFailure("mock-primary"))
	adapters.Register(mock.New("mock-secondary"))

	models := NewModelRegistry()
	models.Register(domain.ModelConfig{Model: "primary", Provider: "mock-primary", APIName: "primary", ContextWindowTokens: 1000})
	models.Register(domain.ModelConfig{Model: "secondary", Provider: "mock-secondary", APIName: "secondary", ContextWindowTokens: 1000})
	models.SetFallbackChain("primary", "secondary")

	svc := newTestService(t, adapters, models)

	var fellBack bool
	svc.OnFallback(func(from, to string) {
		fellBack = true
		require.Equal(t, "primary", from)
		require.Equal(t, "secondary", to)
	})

	result, err := svc.Generate(context.Background(), "primary", chatRequest("fall back please"), false)
	require.NoError(t, err)
	require.True(t, fellBack)
	require.Equal(t, "secondary", result.ModelActuallyUsed)
}

func TestGenerate_BreakerOpensAfterRepeatedFailuresAndTriggersFallback(t *testing.T) {
	adapters := providers.NewRegistry()
	adapters.Register(mock.New("mock-primary").WithAlwaysFail(400))
	adapters.Register(mock.New("mock-secondary"))

	models := NewModelRegistry()
	models.Register(domain.ModelConfig{Model: "primary", Provider: "mock-primary", APIName: "primary", ContextWindowTokens: 1000})
	models.Register(domain.ModelConfig{Model: "secondary", Provider: "mock-secondary", APIName: "secondary", ContextWindowTokens: 1000})
	models.SetFallbackChain("primary", "secondary")

	buckets := ratelimit.NewRegistry()
	buckets.Configure("mock-primary", 100, 1)
	buckets.Configure("mock-secondary", 100, 1)
	breakers := breaker.NewRegistry(breaker.Config{FailureThreshold: 1, ResetTimeout: time.Hour, MonitoringPeriod: time.Hour})
	respCache := cache.New(cache.Config{Enabled: false})
	svc := New(models, adapters, buckets, breakers, respCache, tools.NewNegotiator())

	// The primary adapter's terminal (non-retryable) failure opens the
	// breaker on the very first call, then the pipeline falls back to
	// secondary.
	result, err := svc.Generate(context.Background(), "primary", chatRequest("first call"), false)
	require.NoError(t, err)
	require.Equal(t, "secondary", result.ModelActuallyUsed)

	// The breaker for "primary" is now open; a second call should fall back
	// immediately without ever invoking the primary adapter again.
	_, err = svc.Generate(context.Background(), "primary", chatRequest("second call, distinct"), false)
	require.NoError(t, err)

	status := breakers.Get("model", "primary").Status()
	require.Equal(t, breaker.StateOpen, status.State)
}

func TestGenerate_ToolRoundTripAccumulatesUsage(t *testing.T) {
	n := tools.NewNegotiator()
	n.Register(tools.Tool{
		Name: "lookup",
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			return "42", nil
		},
	})

	adapters := providers.NewRegistry()
	adapters.Register(&toolCallingAdapter{})

	buckets := ratelimit.NewRegistry()
	buckets.Configure("mock", 100, 1)
	breakers := breaker.NewRegistry(breaker.DefaultConfig())
	respCache := cache.New(cache.Config{Enabled: false})

	svc := New(basicModels(), adapters, buckets, breakers, respCache, n)
	result, err := svc.Generate(context.Background(), "primary", chatRequest("what is the answer"), true)

	require.NoError(t, err)
	require.Equal(t, "final answer: 42", result.Content)
	require.Equal(t, 2, result.Usage.Total, "usage from both the tool-call and follow-up responses should accumulate")
}

// toolCallingAdapter returns a single tool call on its first invocation and
// a plain text answer on its second, modeling a provider that issues a tool
// call then a finishing message.
type toolCallingAdapter struct {
	calls int
}

func (a *toolCallingAdapter) Name() string { return "mock" }

func (a *toolCallingAdapter) Complete(ctx context.Context, req providers.Request) (*providers.Response, error) {
	a.calls++
	if a.calls == 1 {
		return &providers.Response{
			ToolCalls: []domain.ToolCall{{ID: "call-1", Name: "lookup"}},
			Usage:     domain.Usage{Total: 1},
		}, nil
	}
	return &providers.Response{Content: "final answer: 42", Usage: domain.Usage{Total: 1}}, nil
}

func (a *toolCallingAdapter) CompleteStreaming(ctx context.Context, req providers.Request) (<-chan providers.StreamDelta, error) {
	panic("not used in this test")
}
