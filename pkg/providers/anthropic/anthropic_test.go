package anthropic

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meridian-ai/agentcore/pkg/domain"
	"github.com/meridian-ai/agentcore/pkg/providers"
)

func TestConvertMessages_ExtractsSystemAndMapsRoles(t *testing.T) {
	turns := []domain.ChatTurn{
		{Role: domain.RoleSystem, Content: "be terse"},
		{Role: domain.RoleUser, Content: "hi"},
		{Role: domain.RoleAssistant, Content: "hello"},
		{Role: domain.RoleTool, Content: "tool output"},
	}

	messages, system := convertMessages(turns)

	require.Equal(t, "be terse", system)
	require.Len(t, messages, 3, "user, assistant and tool turns all become messages; system does not")
}

func TestConvertTools_BuildsOneToolParamPerSchema(t *testing.T) {
	tools := convertTools([]providers.ToolSchema{
		{Name: "lookup", Description: "looks things up", Parameters: map[string]any{"type": "object"}},
		{Name: "bare"},
	})

	require.Len(t, tools, 2)
}
