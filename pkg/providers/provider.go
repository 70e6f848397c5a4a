// Package providers defines the normalized adapter contract every upstream
// chat-completion provider implements, plus a dispatch registry keyed by
// provider tag — grounded on dimetron-kagent's pkg/adk/llm factory/client
// split (NewClientFromConfig switching on a provider type to produce a
// common Client interface).
package providers

import (
	"context"

	"github.com/meridian-ai/agentcore/pkg/apperr"
	"github.com/meridian-ai/agentcore/pkg/domain"
)

// Request is a normalized chat-completion request.
type Request struct {
	APIName      string
	Messages     []domain.ChatTurn
	SystemPrompt string
	Params       domain.Params
	Tools        []ToolSchema
}

// ToolSchema is a provider-agnostic tool declaration.
type ToolSchema struct {
	Name        string
	Description string
	Parameters  map[string]any // JSON Schema
}

// Response is a normalized chat-completion response.
type Response struct {
	Content   string
	ToolCalls []domain.ToolCall
	Usage     domain.Usage
}

// StreamDelta is one lazy, non-restartable text delta from a streaming call.
type StreamDelta struct {
	Text string
	Done bool
}

// Adapter is the capability every provider implements: complete,
// completeStreaming, and the auth-failure/retryability classification the
// LLM Service depends on.
type Adapter interface {
	// Name returns the provider tag, e.g. "gemini", "anthropic", "openai".
	Name() string

	// Complete sends req and returns the full response, or a classified
	// *apperr.Error (KindAuthentication, KindProvider with Retryable set,
	// KindValidation, ...).
	Complete(ctx context.Context, req Request) (*Response, error)

	// CompleteStreaming returns a finite, non-restartable channel of text
	// deltas. The channel is closed when the stream ends or ctx is
	// cancelled; a send on an error-terminated stream carries no delta.
	CompleteStreaming(ctx context.Context, req Request) (<-chan StreamDelta, error)
}

// NormalizeRepetitionPenalty maps the data-model convention (1.0 == no
// penalty) to the "delta from neutral" convention most provider wire
// formats use: 1.0 -> 0, otherwise penalty-1.
func NormalizeRepetitionPenalty(penalty float64) float64 {
	if penalty == 1.0 {
		return 0
	}
	return penalty - 1
}

// Registry dispatches by provider tag, mirroring
// dimetron-kagent/go/pkg/adk/llm.NewClientFromConfig's switch statement.
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register adds or replaces the adapter for a provider tag.
func (r *Registry) Register(a Adapter) {
	r.adapters[a.Name()] = a
}

// Get resolves the adapter for a provider tag.
func (r *Registry) Get(provider string) (Adapter, error) {
	a, ok := r.adapters[provider]
	if !ok {
		return nil, apperr.New(apperr.KindValidation, "no adapter registered for provider: "+provider)
	}
	return a, nil
}
