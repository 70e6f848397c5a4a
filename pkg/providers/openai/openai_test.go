package openai

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meridian-ai/agentcore/pkg/domain"
	"github.com/meridian-ai/agentcore/pkg/providers"
)

func TestConvertMessages_PrependsSystemPromptAndMapsEveryRole(t *testing.T) {
	turns := []domain.ChatTurn{
		{Role: domain.RoleSystem, Content: "also system"},
		{Role: domain.RoleUser, Content: "hi"},
		{Role: domain.RoleAssistant, Content: "hello"},
		{Role: domain.RoleTool, Content: "result", ToolCallID: "call-1"},
	}

	messages := convertMessages("be terse", turns)

	require.Len(t, messages, 5, "the explicit systemPrompt plus all four turns each produce one message")
}

func TestConvertMessages_NoSystemPromptOmitsLeadingMessage(t *testing.T) {
	messages := convertMessages("", []domain.ChatTurn{{Role: domain.RoleUser, Content: "hi"}})
	require.Len(t, messages, 1)
}

func TestConvertTools_BuildsOneChatCompletionToolPerSchema(t *testing.T) {
	tools := convertTools([]providers.ToolSchema{
		{Name: "lookup", Description: "looks things up", Parameters: map[string]any{"type": "object"}},
		{Name: "bare"},
	})

	require.Len(t, tools, 2)
}
