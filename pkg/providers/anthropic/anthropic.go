// Package anthropic adapts github.com/anthropics/anthropic-sdk-go to the
// providers.Adapter contract. Grounded on
// dimetron-kagent/go/pkg/adk/llm/anthropic.go's use of the functional-option
// request-param builder (anthropic.F/anthropic.Int/anthropic.Float) and its
// message/tool conversion helpers, adapted to the orchestration core's
// normalized Request/Response types instead of kagent's ADK converters.
package anthropic

import (
	"context"
	"encoding/json"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/meridian-ai/agentcore/pkg/domain"
	"github.com/meridian-ai/agentcore/pkg/providers"
)

// Adapter implements providers.Adapter using the Anthropic Messages API.
type Adapter struct {
	client *anthropicsdk.Client
}

var _ providers.Adapter = (*Adapter)(nil)

// New creates an Anthropic adapter authenticated with apiKey.
func New(apiKey string) *Adapter {
	var opts []option.RequestOption
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	client := anthropicsdk.NewClient(opts...)
	return &Adapter{client: client}
}

func (a *Adapter) Name() string { return "anthropic" }

func (a *Adapter) Complete(ctx context.Context, req providers.Request) (*providers.Response, error) {
	params := a.buildParams(req)

	msg, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return nil, classifyAnthropicError(err)
	}
	return fromAnthropicMessage(msg), nil
}

func (a *Adapter) CompleteStreaming(ctx context.Context, req providers.Request) (<-chan providers.StreamDelta, error) {
	params := a.buildParams(req)
	stream := a.client.Messages.NewStreaming(ctx, params)

	out := make(chan providers.StreamDelta, 8)
	go func() {
		defer close(out)
		for stream.Next() {
			event := stream.Current()
			if event.Type == anthropicsdk.MessageStreamEventTypeContentBlockDelta {
				if delta, ok := event.Delta.(anthropicsdk.ContentBlockDeltaEventDelta); ok &&
					delta.Type == anthropicsdk.ContentBlockDeltaEventDeltaTypeTextDelta {
					out <- providers.StreamDelta{Text: delta.Text}
				}
			}
		}
		out <- providers.StreamDelta{Done: true}
	}()
	return out, nil
}

func (a *Adapter) buildParams(req providers.Request) anthropicsdk.MessageNewParams {
	messages, system := convertMessages(req.Messages)

	maxTokens := req.Params.MaxOutputTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	params := anthropicsdk.MessageNewParams{
		Model:     anthropicsdk.F(req.APIName),
		Messages:  anthropicsdk.F(messages),
		MaxTokens: anthropicsdk.Int(int64(maxTokens)),
	}
	if req.Params.Temperature != 0 {
		params.Temperature = anthropicsdk.Float(req.Params.Temperature)
	}
	if req.Params.TopP != 0 {
		params.TopP = anthropicsdk.Float(req.Params.TopP)
	}
	if system == "" {
		system = req.SystemPrompt
	}
	if system != "" {
		params.System = anthropicsdk.F([]anthropicsdk.TextBlockParam{
			anthropicsdk.NewTextBlock(system),
		})
	}
	if len(req.Tools) > 0 {
		params.Tools = anthropicsdk.F(convertTools(req.Tools))
	}
	return params
}

func convertMessages(turns []domain.ChatTurn) ([]anthropicsdk.MessageParam, string) {
	var out []anthropicsdk.MessageParam
	var system string
	for _, t := range turns {
		switch t.Role {
		case domain.RoleSystem:
			system = t.Content
		case domain.RoleUser, domain.RoleTool:
			out = append(out, anthropicsdk.NewUserMessage(anthropicsdk.NewTextBlock(t.Content)))
		case domain.RoleAssistant:
			out = append(out, anthropicsdk.NewAssistantMessage(anthropicsdk.NewTextBlock(t.Content)))
		}
	}
	return out, system
}

func convertTools(tools []providers.ToolSchema) []anthropicsdk.ToolUnionUnionParam {
	var out []anthropicsdk.ToolUnionUnionParam
	for _, t := range tools {
		p := anthropicsdk.ToolParam{
			Name:        anthropicsdk.F(t.Name),
			Description: anthropicsdk.F(t.Description),
		}
		if t.Parameters != nil {
			p.InputSchema = anthropicsdk.F[any](t.Parameters)
		}
		out = append(out, p)
	}
	return out
}

func fromAnthropicMessage(msg *anthropicsdk.Message) *providers.Response {
	resp := &providers.Response{
		Usage: domain.Usage{
			Prompt:     int(msg.Usage.InputTokens),
			Completion: int(msg.Usage.OutputTokens),
			Total:      int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		},
	}
	for _, block := range msg.Content {
		switch block.Type {
		case anthropicsdk.ContentBlockTypeText:
			resp.Content += block.Text
		case anthropicsdk.ContentBlockTypeToolUse:
			var args map[string]any
			json.Unmarshal(block.Input, &args)
			resp.ToolCalls = append(resp.ToolCalls, domain.ToolCall{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: args,
			})
		}
	}
	return resp
}

func classifyAnthropicError(err error) error {
	if apiErr, ok := err.(*anthropicsdk.Error); ok {
		return providers.ClassifyHTTPError("anthropic", apiErr.StatusCode, apiErr.Error())
	}
	return providers.ClassifyTransportError("anthropic", err)
}
