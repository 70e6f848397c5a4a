package meta

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUpdateUserProfile_MergesPreferencesAndAppendsLists(t *testing.T) {
	m := New()
	m.UpdateUserProfile(ProfilePatch{
		Preferences: map[string]string{"tone": "concise"},
		Goals:       []string{"ship v1"},
		Highlights:  []string{"likes diagrams"},
	})
	m.UpdateUserProfile(ProfilePatch{
		Preferences: map[string]string{"tone": "formal", "language": "go"},
		Goals:       []string{"ship v2"},
	})

	p := m.Profile()
	require.Equal(t, "formal", p.Preferences["tone"], "a later patch should overwrite the same key")
	require.Equal(t, "go", p.Preferences["language"])
	require.Equal(t, []string{"ship v1", "ship v2"}, p.Goals)
	require.Equal(t, []string{"likes diagrams"}, p.Highlights)
}

func TestAddGoal_SeparatesShortAndLongTerm(t *testing.T) {
	m := New()
	m.AddGoal("quick task", GoalShortTerm)
	m.AddGoal("big initiative", GoalLongTerm)

	short, long := m.ActiveGoals()
	require.Len(t, short, 1)
	require.Len(t, long, 1)
	require.Equal(t, "quick task", short[0].Text)
	require.Equal(t, "big initiative", long[0].Text)
}

func TestUpdateGoalProgress_ClampsAndCompletesAt100(t *testing.T) {
	m := New()
	id := m.AddGoal("ship it", GoalShortTerm)

	m.UpdateGoalProgress(id, 150)
	short, _ := m.ActiveGoals()
	require.Len(t, short, 0, "a goal reaching >=100 moves out of the active short-term list")

	require.Equal(t, float64(100), m.goalIndex[id].Progress)
	require.False(t, m.goalIndex[id].CompletedAt.IsZero())
}

func TestUpdateGoalProgress_NegativeClampsToZero(t *testing.T) {
	m := New()
	id := m.AddGoal("ship it", GoalShortTerm)
	m.UpdateGoalProgress(id, -20)
	require.Equal(t, float64(0), m.goalIndex[id].Progress)
}

func TestUpdateGoalProgress_UnknownIDIsANoop(t *testing.T) {
	m := New()
	require.NotPanics(t, func() { m.UpdateGoalProgress("missing", 50) })
}

func TestUpdateEffectiveness_BlendsTowardScore(t *testing.T) {
	m := New()
	first := m.UpdateEffectiveness(EffectivenessInputs{ConsensusRate: 1, GoalProgress: 1, ParticipationBalance: 1})
	require.InDelta(t, 0.3, first, 1e-9)

	second := m.UpdateEffectiveness(EffectivenessInputs{ConsensusRate: 1, GoalProgress: 1, ParticipationBalance: 1})
	require.Greater(t, second, first)
	require.LessOrEqual(t, second, 1.0)
}

func TestFacts_ReturnsDefensiveCopy(t *testing.T) {
	m := New()
	m.AddSharedFact("the sky is blue", 0.9, []string{"agent-a"})

	facts := m.Facts()
	facts[0].Text = "mutated"

	require.Equal(t, "the sky is blue", m.Facts()[0].Text, "Facts() must return a copy, not shared state")
}
