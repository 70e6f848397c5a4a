// Package gemini adapts the Google Gen AI SDK to the providers.Adapter
// contract. Adapted from the teacher's pkg/model/gemini/gemini.go: the
// message-to-genai.Content conversion and streaming accumulation are kept,
// generalized from the teacher's fixed IPython-tool roster to the
// orchestration core's caller-supplied tool schema.
package gemini

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/meridian-ai/agentcore/pkg/domain"
	"github.com/meridian-ai/agentcore/pkg/providers"
)

// Adapter implements providers.Adapter using google.golang.org/genai.
type Adapter struct {
	client *genai.Client
}

var _ providers.Adapter = (*Adapter)(nil)

// New creates a Gemini adapter authenticated with apiKey.
func New(ctx context.Context, apiKey string) (*Adapter, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}
	return &Adapter{client: client}, nil
}

func (a *Adapter) Name() string { return "gemini" }

func (a *Adapter) Complete(ctx context.Context, req providers.Request) (*providers.Response, error) {
	contents, systemInstruction := toGenaiContents(req)
	config := &genai.GenerateContentConfig{
		Tools:             toGenaiTools(req.Tools),
		SystemInstruction: systemInstruction,
		Temperature:       genai.Ptr(float32(req.Params.Temperature)),
		TopP:              genai.Ptr(float32(req.Params.TopP)),
	}

	resp, err := a.client.Models.GenerateContent(ctx, req.APIName, contents, config)
	if err != nil {
		return nil, classifyGeminiError(err)
	}

	return fromGenaiResponse(resp), nil
}

func (a *Adapter) CompleteStreaming(ctx context.Context, req providers.Request) (<-chan providers.StreamDelta, error) {
	contents, systemInstruction := toGenaiContents(req)
	config := &genai.GenerateContentConfig{
		Tools:             toGenaiTools(req.Tools),
		SystemInstruction: systemInstruction,
	}

	streamCtx, cancel := context.WithCancel(ctx)
	iter := a.client.Models.GenerateContentStream(streamCtx, req.APIName, contents, config)

	out := make(chan providers.StreamDelta, 4)
	go func() {
		defer close(out)
		defer cancel()
		for resp, err := range iter {
			if err != nil {
				return
			}
			for _, d := range fromGenaiStreamChunk(resp) {
				select {
				case out <- d:
				case <-streamCtx.Done():
					return
				}
			}
		}
		out <- providers.StreamDelta{Done: true}
	}()
	return out, nil
}

func toGenaiContents(req providers.Request) ([]*genai.Content, *genai.Content) {
	var systemInstruction *genai.Content
	if req.SystemPrompt != "" {
		systemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.SystemPrompt}}}
	}

	var contents []*genai.Content
	for _, t := range req.Messages {
		if t.Role == domain.RoleSystem {
			continue
		}
		role := "user"
		if t.Role == domain.RoleAssistant {
			role = "model"
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: t.Content}},
		})
	}
	return contents, systemInstruction
}

func toGenaiTools(tools []providers.ToolSchema) []*genai.Tool {
	if len(tools) == 0 {
		return nil
	}
	var decls []*genai.FunctionDeclaration
	for _, t := range tools {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  schemaFromMap(t.Parameters),
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

func schemaFromMap(m map[string]any) *genai.Schema {
	if m == nil {
		return &genai.Schema{Type: genai.TypeObject}
	}
	props := map[string]*genai.Schema{}
	if rawProps, ok := m["properties"].(map[string]any); ok {
		for name := range rawProps {
			props[name] = &genai.Schema{Type: genai.TypeString}
		}
	}
	var required []string
	if rawReq, ok := m["required"].([]string); ok {
		required = rawReq
	}
	return &genai.Schema{Type: genai.TypeObject, Properties: props, Required: required}
}

func fromGenaiResponse(resp *genai.GenerateContentResponse) *providers.Response {
	out := &providers.Response{}
	var text strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part.Text != "" {
				text.WriteString(part.Text)
			}
			if part.FunctionCall != nil {
				out.ToolCalls = append(out.ToolCalls, domain.ToolCall{
					ID:        part.FunctionCall.ID,
					Name:      part.FunctionCall.Name,
					Arguments: part.FunctionCall.Args,
				})
			}
		}
	}
	out.Content = text.String()
	if resp.UsageMetadata != nil {
		out.Usage = domain.Usage{
			Prompt:     int(resp.UsageMetadata.PromptTokenCount),
			Completion: int(resp.UsageMetadata.CandidatesTokenCount),
			Total:      int(resp.UsageMetadata.TotalTokenCount),
		}
	}
	return out
}

func fromGenaiStreamChunk(resp *genai.GenerateContentResponse) []providers.StreamDelta {
	var deltas []providers.StreamDelta
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part.Text != "" {
				deltas = append(deltas, providers.StreamDelta{Text: part.Text})
			}
		}
	}
	return deltas
}

func classifyGeminiError(err error) error {
	msg := err.Error()
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "401") || strings.Contains(lower, "403") || strings.Contains(lower, "api key"):
		return providers.ClassifyHTTPError("gemini", 401, msg)
	case strings.Contains(lower, "429"):
		return providers.ClassifyHTTPError("gemini", 429, msg)
	case strings.Contains(lower, "500") || strings.Contains(lower, "503"):
		return providers.ClassifyHTTPError("gemini", 500, msg)
	default:
		return providers.ClassifyTransportError("gemini", err)
	}
}
