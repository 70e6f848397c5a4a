package model

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestApplyReinforcement_UpdatesQValueTowardReward(t *testing.T) {
	m := New("agent-1")
	m.ApplyReinforcement("idle", "greet", 1.0)

	before := m.qTable[qKey{State: "idle", Action: "greet"}]
	require.Greater(t, before, 0.0, "a positive reward should raise the Q-value above its zero initialization")

	m.ApplyReinforcement("idle", "greet", 1.0)
	after := m.qTable[qKey{State: "idle", Action: "greet"}]
	require.Greater(t, after, before, "repeated positive reward should keep raising the Q-value")
}

func TestApplyReinforcement_NegativeRewardLowersQValue(t *testing.T) {
	m := New("agent-1")
	m.ApplyReinforcement("idle", "interrupt", -1.0)

	v := m.qTable[qKey{State: "idle", Action: "interrupt"}]
	require.Less(t, v, 0.0)
}

func TestApplyReinforcement_LogsRouteByRewardSign(t *testing.T) {
	m := New("agent-1")
	m.ApplyReinforcement("s", "a", 1.0)
	m.ApplyReinforcement("s", "b", -1.0)

	require.Len(t, m.rewardLog, 1)
	require.Len(t, m.punishmentLog, 1)
	require.Equal(t, "a", m.rewardLog[0].Action)
	require.Equal(t, "b", m.punishmentLog[0].Action)
}

func TestApplyReinforcement_AdjustsEmotions(t *testing.T) {
	m := New("agent-1")
	m.ApplyReinforcement("s", "a", 1.0)
	require.Greater(t, m.emotions["satisfaction"], 0.0)

	m.ApplyReinforcement("s", "a", -1.0)
	require.Greater(t, m.emotions["frustration"], 0.0)
}

func TestSelectAction_GreedilyPicksHighestQValue(t *testing.T) {
	m := New("agent-1")
	m.explorationRate = 0 // disable exploration for a deterministic greedy test
	m.qTable[qKey{State: "s", Action: "a"}] = 0.1
	m.qTable[qKey{State: "s", Action: "b"}] = 0.9

	got := m.SelectAction("s", []string{"a", "b"})
	require.Equal(t, "b", got)
}

func TestSelectAction_TiesBreakToFirstListed(t *testing.T) {
	m := New("agent-1")
	m.explorationRate = 0

	got := m.SelectAction("unseen-state", []string{"first", "second", "third"})
	require.Equal(t, "first", got)
}

func TestSelectAction_EmptyActionsReturnsEmptyString(t *testing.T) {
	m := New("agent-1")
	require.Equal(t, "", m.SelectAction("s", nil))
}

func TestAddPreference_AccumulatesAndClamps(t *testing.T) {
	m := New("agent-1")
	m.AddPreference("topic", "go", 0.6, "conversation")
	m.AddPreference("topic", "go", 0.8, "conversation")

	require.Equal(t, 1.0, m.preferences["topic"].Strength, "strength must clamp at 1.0")
}

func TestSnapshot_SaveLoadRoundTrip(t *testing.T) {
	m := New("agent-1")
	m.AddTrait("curiosity", "high", 0.8)
	m.AddPreference("topic", "go", 0.5, "chat")
	m.AddSkill("summarizing")
	m.ApplyReinforcement("idle", "greet", 1.0)
	m.AddStructuredMemory("remembered something")

	snap := m.Save()
	restored := Load(snap)

	require.Equal(t, m.AgentID, restored.AgentID)
	require.Equal(t, m.traits, restored.traits)
	require.Equal(t, m.preferences, restored.preferences)
	require.Equal(t, m.skills, restored.skills)
	require.Equal(t, m.qTable, restored.qTable)
	require.Equal(t, len(m.rewardLog), len(restored.rewardLog))
	require.Equal(t, len(m.structuredMem), len(restored.structuredMem))
}

func TestTruncateLog_BoundsLength(t *testing.T) {
	m := New("agent-1")
	m.maxLogEntries = 3
	for i := 0; i < 10; i++ {
		m.ApplyReinforcement("s", "a", 1.0)
	}
	require.Len(t, m.rewardLog, 3)
}
