// Package tools implements the Tool Negotiator: a static registry of tools
// keyed by name, an allow-list mapping agent archetypes to permitted tools,
// and the advertise/parse/invoke/format round-trip the LLM Service drives on
// tool-call detection. Grounded on the teacher's pkg/tools.Registry
// (Register/Get/List over a map[string]Tool), generalized from the sibling
// module's single global registry to the spec's per-archetype allow-list,
// and on operative/pkg/controller/tools.go's toolXxx handler shape, folded
// here into a single Handler function type instead of one method per tool.
package tools

import (
	"context"

	"github.com/meridian-ai/agentcore/pkg/apperr"
	"github.com/meridian-ai/agentcore/pkg/domain"
	"github.com/meridian-ai/agentcore/pkg/providers"
)

// Handler executes a tool's side effect given structured arguments.
type Handler func(ctx context.Context, arguments map[string]any) (string, error)

// Tool is a registered capability: its schema plus the handler invoked when
// a provider's response contains a matching tool call.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any // JSON Schema
	Handler     Handler
}

// Negotiator holds the static tool registry and the per-archetype allow-list.
type Negotiator struct {
	tools     map[string]Tool
	allowList map[string][]string // archetype -> tool names
}

// NewNegotiator creates an empty Negotiator.
func NewNegotiator() *Negotiator {
	return &Negotiator{
		tools:     make(map[string]Tool),
		allowList: make(map[string][]string),
	}
}

// Register adds or replaces a tool in the static registry.
func (n *Negotiator) Register(t Tool) {
	n.tools[t.Name] = t
}

// Allow grants an agent archetype permission to use the named tools. Names
// not present in the registry are silently ignored by Advertise (they can
// never be advertised), but a call to Invoke for an unregistered name still
// fails ValidationError regardless of allow-listing.
func (n *Negotiator) Allow(archetype string, toolNames ...string) {
	n.allowList[archetype] = append(n.allowList[archetype], toolNames...)
}

// Advertise returns the provider-agnostic tool schemas permitted for
// archetype, in allow-list order.
func (n *Negotiator) Advertise(archetype string) []providers.ToolSchema {
	var out []providers.ToolSchema
	for _, name := range n.allowList[archetype] {
		t, ok := n.tools[name]
		if !ok {
			continue
		}
		out = append(out, providers.ToolSchema{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.Parameters,
		})
	}
	return out
}

// Invoke runs the named tool's handler. Unregistered tool names fail with a
// KindValidation error, matching the spec's "unknown tools fail
// ValidationError" rule.
func (n *Negotiator) Invoke(ctx context.Context, call domain.ToolCall) (*domain.ToolResult, error) {
	t, ok := n.tools[call.Name]
	if !ok {
		return nil, apperr.New(apperr.KindValidation, "unknown tool: "+call.Name)
	}

	content, err := t.Handler(ctx, call.Arguments)
	if err != nil {
		return &domain.ToolResult{
			ToolCallID: call.ID,
			Content:    err.Error(),
			IsError:    true,
		}, nil
	}
	return &domain.ToolResult{
		ToolCallID: call.ID,
		Content:    content,
	}, nil
}

// FormatResult turns a tool result into the tool-role chat turn the adapter
// round-trip appends before its second Complete call.
func FormatResult(result *domain.ToolResult, call domain.ToolCall) domain.ChatTurn {
	return domain.ChatTurn{
		Role:       domain.RoleTool,
		Content:    result.Content,
		ToolCallID: call.ID,
		ToolName:   call.Name,
	}
}
