// Package openai adapts github.com/openai/openai-go to the providers.Adapter
// contract. Grounded on dimetron-kagent/go/pkg/adk/llm/openai.go's use of the
// functional-option request-param builder (openai.F/openai.Int/openai.Float)
// and its message/tool/response conversion helpers, adapted to the
// orchestration core's normalized Request/Response types instead of kagent's
// ADK converters.
package openai

import (
	"encoding/json"

	"context"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/meridian-ai/agentcore/pkg/domain"
	"github.com/meridian-ai/agentcore/pkg/providers"
)

// Adapter implements providers.Adapter using the OpenAI Chat Completions API.
type Adapter struct {
	client *openaisdk.Client
}

var _ providers.Adapter = (*Adapter)(nil)

// New creates an OpenAI adapter authenticated with apiKey. baseURL overrides
// the default API host when non-empty, for OpenAI-compatible gateways.
func New(apiKey, baseURL string) *Adapter {
	var opts []option.RequestOption
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := openaisdk.NewClient(opts...)
	return &Adapter{client: client}
}

func (a *Adapter) Name() string { return "openai" }

func (a *Adapter) Complete(ctx context.Context, req providers.Request) (*providers.Response, error) {
	params := a.buildParams(req)

	completion, err := a.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, classifyOpenAIError(err)
	}
	return fromOpenAICompletion(completion), nil
}

func (a *Adapter) CompleteStreaming(ctx context.Context, req providers.Request) (<-chan providers.StreamDelta, error) {
	params := a.buildParams(req)
	stream := a.client.Chat.Completions.NewStreaming(ctx, params)

	out := make(chan providers.StreamDelta, 8)
	go func() {
		defer close(out)
		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			if delta := chunk.Choices[0].Delta.Content; delta != "" {
				out <- providers.StreamDelta{Text: delta}
			}
		}
		out <- providers.StreamDelta{Done: true}
	}()
	return out, nil
}

func (a *Adapter) buildParams(req providers.Request) openaisdk.ChatCompletionNewParams {
	params := openaisdk.ChatCompletionNewParams{
		Model:    openaisdk.F(req.APIName),
		Messages: openaisdk.F(convertMessages(req.SystemPrompt, req.Messages)),
	}
	if req.Params.Temperature != 0 {
		params.Temperature = openaisdk.Float(req.Params.Temperature)
	}
	if req.Params.TopP != 0 {
		params.TopP = openaisdk.Float(req.Params.TopP)
	}
	if req.Params.MaxOutputTokens > 0 {
		params.MaxTokens = openaisdk.Int(int64(req.Params.MaxOutputTokens))
	}
	if penalty := providers.NormalizeRepetitionPenalty(req.Params.RepetitionPenalty); penalty != 0 {
		params.FrequencyPenalty = openaisdk.Float(penalty)
	}
	if len(req.Tools) > 0 {
		params.Tools = openaisdk.F(convertTools(req.Tools))
	}
	return params
}

func convertMessages(systemPrompt string, turns []domain.ChatTurn) []openaisdk.ChatCompletionMessageParamUnion {
	var out []openaisdk.ChatCompletionMessageParamUnion
	if systemPrompt != "" {
		out = append(out, openaisdk.SystemMessage(systemPrompt))
	}
	for _, t := range turns {
		switch t.Role {
		case domain.RoleSystem:
			out = append(out, openaisdk.SystemMessage(t.Content))
		case domain.RoleUser:
			out = append(out, openaisdk.UserMessage(t.Content))
		case domain.RoleAssistant:
			out = append(out, openaisdk.AssistantMessage(t.Content))
		case domain.RoleTool:
			out = append(out, openaisdk.ToolMessage(t.ToolCallID, t.Content))
		}
	}
	return out
}

func convertTools(tools []providers.ToolSchema) []openaisdk.ChatCompletionToolParam {
	var out []openaisdk.ChatCompletionToolParam
	for _, t := range tools {
		fn := openaisdk.FunctionDefinitionParam{
			Name:        openaisdk.String(t.Name),
			Description: openaisdk.String(t.Description),
		}
		if t.Parameters != nil {
			fn.Parameters = openaisdk.F(openaisdk.FunctionParameters(t.Parameters))
		}
		out = append(out, openaisdk.ChatCompletionToolParam{
			Type:     openaisdk.F(openaisdk.ChatCompletionToolTypeFunction),
			Function: openaisdk.F(fn),
		})
	}
	return out
}

func fromOpenAICompletion(completion *openaisdk.ChatCompletion) *providers.Response {
	resp := &providers.Response{
		Usage: domain.Usage{
			Prompt:     int(completion.Usage.PromptTokens),
			Completion: int(completion.Usage.CompletionTokens),
			Total:      int(completion.Usage.TotalTokens),
		},
	}
	if len(completion.Choices) == 0 {
		return resp
	}

	msg := completion.Choices[0].Message
	resp.Content = msg.Content

	for _, tc := range msg.ToolCalls {
		var args map[string]any
		json.Unmarshal([]byte(tc.Function.Arguments), &args)
		resp.ToolCalls = append(resp.ToolCalls, domain.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: args,
		})
	}
	return resp
}

func classifyOpenAIError(err error) error {
	if apiErr, ok := err.(*openaisdk.Error); ok {
		return providers.ClassifyHTTPError("openai", apiErr.StatusCode, apiErr.Error())
	}
	return providers.ClassifyTransportError("openai", err)
}
