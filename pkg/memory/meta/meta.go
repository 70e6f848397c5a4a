// Package meta implements the process-wide Meta Memory: the shared user
// profile, collaboration goals with progress, shared facts/concepts/
// decisions/principles, and an exponentially-smoothed effectiveness score.
// No teacher analogue exists; it follows the same mutex-guarded
// plain-struct convention as pkg/memory/conversation, but as a process-wide
// singleton bound to program lifetime rather than per-session, matching the
// spec's §3 ownership rule.
package meta

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// GoalScope distinguishes short-term from long-term collaboration goals.
type GoalScope string

const (
	GoalShortTerm GoalScope = "shortTerm"
	GoalLongTerm  GoalScope = "longTerm"
)

// Goal is one collaboration goal tracked with completion progress.
type Goal struct {
	ID          string
	Text        string
	Scope       GoalScope
	Progress    float64 // percent, [0,100]
	CreatedAt   time.Time
	CompletedAt time.Time
}

// UserProfile is the shared, mergeable profile of the human collaborator.
type UserProfile struct {
	Preferences map[string]string
	Goals       []string
	Highlights  []string
	Context     map[string]string
}

// ProfilePatch merges into UserProfile: preferences are merged key-wise,
// goals and highlights are appended, context is shallow-merged.
type ProfilePatch struct {
	Preferences map[string]string
	Goals       []string
	Highlights  []string
	Context     map[string]string
}

// Fact is an append-only shared understanding record with a confidence and
// supporting sources.
type Fact struct {
	Text       string
	Confidence float64
	Sources    []string
	At         time.Time
}

// Concept is a named shared definition.
type Concept struct {
	Name     string
	Def      string
	Examples []string
	At       time.Time
}

// Decision is an append-only recorded group decision.
type Decision struct {
	Text       string
	Participants []string
	Reasoning  string
	At         time.Time
}

// EffectivenessInputs feeds the system-effectiveness EMA.
type EffectivenessInputs struct {
	ConsensusRate        float64
	GoalProgress         float64
	ParticipationBalance float64
}

// Memory is the process-wide Meta Memory singleton.
type Memory struct {
	mu sync.Mutex

	profile UserProfile

	shortTerm []*Goal
	longTerm  []*Goal
	completed []*Goal
	goalIndex map[string]*Goal

	facts      []Fact
	concepts   map[string]Concept
	decisions  []Decision
	principles []string

	effectiveness float64
}

// New creates an empty, process-wide Meta Memory.
func New() *Memory {
	return &Memory{
		profile: UserProfile{
			Preferences: make(map[string]string),
			Context:     make(map[string]string),
		},
		goalIndex: make(map[string]*Goal),
		concepts:  make(map[string]Concept),
	}
}

// UpdateUserProfile merges a patch into the shared user profile.
func (m *Memory) UpdateUserProfile(patch ProfilePatch) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range patch.Preferences {
		m.profile.Preferences[k] = v
	}
	m.profile.Goals = append(m.profile.Goals, patch.Goals...)
	m.profile.Highlights = append(m.profile.Highlights, patch.Highlights...)
	for k, v := range patch.Context {
		m.profile.Context[k] = v
	}
}

// AddGoal creates a collaboration goal with zero progress and returns its
// id.
func (m *Memory) AddGoal(text string, scope GoalScope) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	g := &Goal{ID: uuid.New().String(), Text: text, Scope: scope, CreatedAt: time.Now()}
	m.goalIndex[g.ID] = g
	switch scope {
	case GoalLongTerm:
		m.longTerm = append(m.longTerm, g)
	default:
		m.shortTerm = append(m.shortTerm, g)
	}
	return g.ID
}

// UpdateGoalProgress clamps percent to [0,100] and moves the goal to
// completed once it reaches 100.
func (m *Memory) UpdateGoalProgress(id string, percent float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	g, ok := m.goalIndex[id]
	if !ok {
		return
	}
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	g.Progress = percent

	if percent >= 100 {
		g.CompletedAt = time.Now()
		m.shortTerm = removeGoal(m.shortTerm, id)
		m.longTerm = removeGoal(m.longTerm, id)
		m.completed = append(m.completed, g)
	}
}

func removeGoal(list []*Goal, id string) []*Goal {
	out := list[:0]
	for _, g := range list {
		if g.ID != id {
			out = append(out, g)
		}
	}
	return out
}

// AddSharedFact appends a timestamped fact.
func (m *Memory) AddSharedFact(text string, confidence float64, sources []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.facts = append(m.facts, Fact{Text: text, Confidence: confidence, Sources: sources, At: time.Now()})
}

// AddSharedConcept upserts a named concept definition.
func (m *Memory) AddSharedConcept(name, def string, examples []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.concepts[name] = Concept{Name: name, Def: def, Examples: examples, At: time.Now()}
}

// AddDecision appends a timestamped group decision.
func (m *Memory) AddDecision(text string, participants []string, reasoning string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.decisions = append(m.decisions, Decision{Text: text, Participants: participants, Reasoning: reasoning, At: time.Now()})
}

// AddPrinciple appends a guiding principle.
func (m *Memory) AddPrinciple(text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.principles = append(m.principles, text)
}

// UpdateEffectiveness computes a weighted score from inputs and blends it
// into the effectiveness EMA: effectiveness = 0.7*effectiveness + 0.3*score.
func (m *Memory) UpdateEffectiveness(in EffectivenessInputs) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	score := 0.3*in.ConsensusRate + 0.4*in.GoalProgress + 0.3*in.ParticipationBalance
	m.effectiveness = 0.7*m.effectiveness + 0.3*score
	return m.effectiveness
}

// Effectiveness returns the current EMA value.
func (m *Memory) Effectiveness() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.effectiveness
}

// Profile returns a copy of the current user profile.
func (m *Memory) Profile() UserProfile {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefs := make(map[string]string, len(m.profile.Preferences))
	for k, v := range m.profile.Preferences {
		prefs[k] = v
	}
	ctx := make(map[string]string, len(m.profile.Context))
	for k, v := range m.profile.Context {
		ctx[k] = v
	}
	return UserProfile{
		Preferences: prefs,
		Goals:       append([]string{}, m.profile.Goals...),
		Highlights:  append([]string{}, m.profile.Highlights...),
		Context:     ctx,
	}
}

// Facts returns a copy of the recorded shared facts.
func (m *Memory) Facts() []Fact {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Fact{}, m.facts...)
}

// ActiveGoals returns the short-term and long-term goal lists.
func (m *Memory) ActiveGoals() (shortTerm, longTerm []*Goal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*Goal{}, m.shortTerm...), append([]*Goal{}, m.longTerm...)
}
