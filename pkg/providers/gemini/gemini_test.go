package gemini

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/meridian-ai/agentcore/pkg/apperr"
	"github.com/meridian-ai/agentcore/pkg/domain"
	"github.com/meridian-ai/agentcore/pkg/providers"
)

func TestToGenaiContents_SkipsSystemRoleAndMapsAssistantToModel(t *testing.T) {
	req := providers.Request{
		SystemPrompt: "be concise",
		Messages: []domain.ChatTurn{
			{Role: domain.RoleSystem, Content: "ignored, goes to SystemInstruction instead"},
			{Role: domain.RoleUser, Content: "hi"},
			{Role: domain.RoleAssistant, Content: "hello back"},
		},
	}

	contents, system := toGenaiContents(req)

	require.NotNil(t, system)
	require.Equal(t, "be concise", system.Parts[0].Text)

	require.Len(t, contents, 2)
	require.Equal(t, "user", contents[0].Role)
	require.Equal(t, "hi", contents[0].Parts[0].Text)
	require.Equal(t, "model", contents[1].Role)
	require.Equal(t, "hello back", contents[1].Parts[0].Text)
}

func TestToGenaiContents_NoSystemPromptLeavesInstructionNil(t *testing.T) {
	req := providers.Request{Messages: []domain.ChatTurn{{Role: domain.RoleUser, Content: "hi"}}}
	_, system := toGenaiContents(req)
	require.Nil(t, system)
}

func TestToGenaiTools_EmptyReturnsNil(t *testing.T) {
	require.Nil(t, toGenaiTools(nil))
}

func TestToGenaiTools_BuildsOneToolWithAllFunctionDeclarations(t *testing.T) {
	tools := toGenaiTools([]providers.ToolSchema{
		{Name: "lookup", Description: "looks things up"},
		{Name: "search", Description: "searches things"},
	})

	require.Len(t, tools, 1)
	require.Len(t, tools[0].FunctionDeclarations, 2)
	require.Equal(t, "lookup", tools[0].FunctionDeclarations[0].Name)
	require.Equal(t, "search", tools[0].FunctionDeclarations[1].Name)
}

func TestSchemaFromMap_NilMapDefaultsToBareObject(t *testing.T) {
	schema := schemaFromMap(nil)
	require.Equal(t, genai.TypeObject, schema.Type)
	require.Empty(t, schema.Properties)
}

func TestSchemaFromMap_ExtractsPropertiesAndRequired(t *testing.T) {
	schema := schemaFromMap(map[string]any{
		"properties": map[string]any{"city": map[string]any{}},
		"required":   []string{"city"},
	})

	require.Contains(t, schema.Properties, "city")
	require.Equal(t, []string{"city"}, schema.Required)
}

func TestClassifyGeminiError_RoutesByMessageContent(t *testing.T) {
	cases := []struct {
		msg  string
		kind apperr.Kind
	}{
		{"403 PERMISSION_DENIED: invalid api key", apperr.KindAuthentication},
		{"429 RESOURCE_EXHAUSTED", apperr.KindProvider},
		{"500 internal error", apperr.KindProvider},
		{"unexpected network hiccup", apperr.KindProvider},
	}

	for _, tc := range cases {
		err := classifyGeminiError(errors.New(tc.msg))
		var appErr *apperr.Error
		require.ErrorAs(t, err, &appErr)
		require.Equal(t, tc.kind, appErr.Kind, "message %q", tc.msg)
	}
}
