// Package model implements per-agent Model Memory: traits, preferences,
// skills, a Q-learning table, and reward/punishment logs driving an
// emergent-personality feedback loop. There is no teacher analogue for this
// subsystem (operative has no personality/reinforcement model); it is
// written fresh in the teacher's plain-struct-plus-mutex style used
// throughout pkg/store/sqlite for guarding shared maps, with bounded-log
// truncation mirroring the teacher's compaction.go window-trim approach.
package model

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	defaultMaxLogEntries  = 100
	defaultMaxStructured  = 500
)

// Trait is a named personality dimension with a confidence in [0,1].
type Trait struct {
	Value      string
	Confidence float64
}

// Preference is a named inclination with a strength in [0,1] and the
// context it was learned in.
type Preference struct {
	Value    string
	Strength float64
	Context  string
}

// LogEntry records one reinforcement event.
type LogEntry struct {
	Action string
	Amount float64
	At     time.Time
}

// StructuredEntry is one append-only structured memory record.
type StructuredEntry struct {
	Text string
	At   time.Time
}

// qKey identifies one (state, action) cell of the Q-table.
type qKey struct {
	State  string
	Action string
}

// Memory is one agent's owned, mutable personality and learning state. It is
// referenced by agents through a stable handle; only this package's methods
// mutate it.
type Memory struct {
	mu sync.Mutex

	AgentID string

	traits      map[string]Trait
	preferences map[string]Preference
	skills      map[string]bool
	emotions    map[string]float64

	qTable map[qKey]float64

	rewardLog      []LogEntry
	punishmentLog  []LogEntry
	structuredMem  []StructuredEntry

	learningRate    float64
	discountFactor  float64
	explorationRate float64

	maxLogEntries int
	maxStructured int

	rngState uint64
}

// New creates Model Memory for agentID with the spec's default learning
// parameters (learningRate 0.1, discountFactor 0.9, explorationRate 0.1).
func New(agentID string) *Memory {
	return &Memory{
		AgentID:         agentID,
		traits:          make(map[string]Trait),
		preferences:     make(map[string]Preference),
		skills:          make(map[string]bool),
		emotions:        make(map[string]float64),
		qTable:          make(map[qKey]float64),
		learningRate:    0.1,
		discountFactor:  0.9,
		explorationRate: 0.1,
		maxLogEntries:   defaultMaxLogEntries,
		maxStructured:   defaultMaxStructured,
		rngState:        1,
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// AddTrait upserts a personality trait.
func (m *Memory) AddTrait(name, value string, confidence float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.traits[name] = Trait{Value: value, Confidence: clamp01(confidence)}
}

// AddPreference upserts a preference, adding strengthDelta to any existing
// strength (clamped to [0,1]).
func (m *Memory) AddPreference(name, value string, strengthDelta float64, context string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur := m.preferences[name]
	m.preferences[name] = Preference{
		Value:    value,
		Strength: clamp01(cur.Strength + strengthDelta),
		Context:  context,
	}
}

// AddSkill records a learned skill.
func (m *Memory) AddSkill(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.skills[name] = true
}

// ApplyReinforcement runs the full reinforcement update for one (state,
// action, reward) observation: reward/punishment logging, preference
// strength adjustment, the Q-learning update, and emotion adjustment.
func (m *Memory) ApplyReinforcement(state, action string, reward float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry := LogEntry{Action: action, Amount: math.Abs(reward), At: time.Now()}
	if reward > 0 {
		m.rewardLog = append(m.rewardLog, entry)
		m.rewardLog = truncateLog(m.rewardLog, m.maxLogEntries)
	} else {
		m.punishmentLog = append(m.punishmentLog, entry)
		m.punishmentLog = truncateLog(m.punishmentLog, m.maxLogEntries)
	}

	if pref, ok := m.preferences[action]; ok {
		pref.Strength = clamp01(pref.Strength + reward*m.learningRate)
		m.preferences[action] = pref
	}

	key := qKey{State: state, Action: action}
	maxNextQ := m.maxQForState(state)
	old := m.qTable[key]
	m.qTable[key] = old + m.learningRate*(reward+m.discountFactor*maxNextQ-old)

	m.adjustEmotions(reward)
}

// maxQForState returns the highest Q-value recorded for state across any
// action, or 0 if none exist. Caller must hold mu.
func (m *Memory) maxQForState(state string) float64 {
	max := 0.0
	found := false
	for k, v := range m.qTable {
		if k.State != state {
			continue
		}
		if !found || v > max {
			max = v
			found = true
		}
	}
	if !found {
		return 0
	}
	return max
}

// adjustEmotions boosts satisfaction (positive reward) or frustration
// (negative reward) by 0.5*|reward|, clamped, and decays every other
// emotion by 0.95. Caller must hold mu.
func (m *Memory) adjustEmotions(reward float64) {
	boosted := "frustration"
	if reward > 0 {
		boosted = "satisfaction"
	}
	for name, v := range m.emotions {
		if name == boosted {
			continue
		}
		m.emotions[name] = v * 0.95
	}
	m.emotions[boosted] = clamp01(m.emotions[boosted] + 0.5*math.Abs(reward))
}

// SelectAction picks one of availableActions via epsilon-greedy selection
// against state's Q-values: with probability explorationRate pick uniformly
// at random, otherwise pick the argmax (ties broken by first-listed).
func (m *Memory) SelectAction(state string, availableActions []string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(availableActions) == 0 {
		return ""
	}
	if m.nextFloat() < m.explorationRate {
		return availableActions[int(m.nextFloat()*float64(len(availableActions)))%len(availableActions)]
	}

	best := availableActions[0]
	bestQ := m.qTable[qKey{State: state, Action: best}]
	for _, a := range availableActions[1:] {
		q := m.qTable[qKey{State: state, Action: a}]
		if q > bestQ {
			best, bestQ = a, q
		}
	}
	return best
}

// nextFloat is a deterministic xorshift PRNG in [0,1), used instead of
// math/rand so SelectAction stays reproducible under fixed seeds in tests.
// Caller must hold mu.
func (m *Memory) nextFloat() float64 {
	x := m.rngState
	x ^= x << 13
	x ^= x >> 7
	x ^= x << 17
	m.rngState = x
	return float64(x%1_000_000) / 1_000_000
}

// AddStructuredMemory appends a free-form structured memory entry, trimming
// to the last maxStructured entries.
func (m *Memory) AddStructuredMemory(text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.structuredMem = append(m.structuredMem, StructuredEntry{Text: text, At: time.Now()})
	if len(m.structuredMem) > m.maxStructured {
		m.structuredMem = m.structuredMem[len(m.structuredMem)-m.maxStructured:]
	}
}

// Summary produces a tagged textual representation of personality,
// emotions, and learning statistics.
func (m *Memory) Summary() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := "[traits] " + m.traitsString()
	out += " [emotions] " + m.emotionsString()
	out += fmt.Sprintf(" [learning] rewards=%d punishments=%d qcells=%d",
		len(m.rewardLog), len(m.punishmentLog), len(m.qTable))
	return out
}

// TraitsSummary renders the trait map as "name=value(confidence)" pairs, in
// name order, for feeding the prompt assembler's {{personalityTraits}}
// placeholder.
func (m *Memory) TraitsSummary() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.traitsString()
}

// PreferencesSummary renders the preference map as "name=value(strength)"
// pairs, in name order, for feeding the prompt assembler's {{preferences}}
// placeholder.
func (m *Memory) PreferencesSummary() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var names []string
	for name := range m.preferences {
		names = append(names, name)
	}
	sort.Strings(names)

	var parts []string
	for _, n := range names {
		p := m.preferences[n]
		parts = append(parts, fmt.Sprintf("%s=%s(%.2f)", n, p.Value, p.Strength))
	}
	return strings.Join(parts, " ")
}

// EmotionsSummary renders the emotion map as "name=intensity" pairs, in
// name order, for feeding the prompt assembler's {{emotionalState}}
// placeholder.
func (m *Memory) EmotionsSummary() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.emotionsString()
}

// traitsString and emotionsString render their respective maps without
// locking; callers must already hold mu.
func (m *Memory) traitsString() string {
	var names []string
	for name := range m.traits {
		names = append(names, name)
	}
	sort.Strings(names)

	var parts []string
	for _, n := range names {
		t := m.traits[n]
		parts = append(parts, fmt.Sprintf("%s=%s(%.2f)", n, t.Value, t.Confidence))
	}
	return strings.Join(parts, " ")
}

func (m *Memory) emotionsString() string {
	var names []string
	for name := range m.emotions {
		names = append(names, name)
	}
	sort.Strings(names)

	var parts []string
	for _, n := range names {
		parts = append(parts, fmt.Sprintf("%s=%.2f", n, m.emotions[n]))
	}
	return strings.Join(parts, " ")
}

func truncateLog(log []LogEntry, max int) []LogEntry {
	if len(log) <= max {
		return log
	}
	return log[len(log)-max:]
}

// Snapshot is the persisted, round-trippable form of Memory, excluding
// bounded-log truncation details (property 10: round-tripping yields
// structurally equal objects modulo truncation).
type Snapshot struct {
	AgentID         string
	Traits          map[string]Trait
	Preferences     map[string]Preference
	Skills          []string
	Emotions        map[string]float64
	QTable          map[string]float64 // "state|action" -> value
	RewardLog       []LogEntry
	PunishmentLog   []LogEntry
	StructuredMem   []StructuredEntry
	LearningRate    float64
	DiscountFactor  float64
	ExplorationRate float64
}

// Save produces a Snapshot suitable for JSON persistence.
func (m *Memory) Save() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	skills := make([]string, 0, len(m.skills))
	for s := range m.skills {
		skills = append(skills, s)
	}
	sort.Strings(skills)

	qt := make(map[string]float64, len(m.qTable))
	for k, v := range m.qTable {
		qt[k.State+"|"+k.Action] = v
	}

	return Snapshot{
		AgentID:         m.AgentID,
		Traits:          copyTraits(m.traits),
		Preferences:     copyPreferences(m.preferences),
		Skills:          skills,
		Emotions:        copyFloats(m.emotions),
		QTable:          qt,
		RewardLog:       append([]LogEntry{}, m.rewardLog...),
		PunishmentLog:   append([]LogEntry{}, m.punishmentLog...),
		StructuredMem:   append([]StructuredEntry{}, m.structuredMem...),
		LearningRate:    m.learningRate,
		DiscountFactor:  m.discountFactor,
		ExplorationRate: m.explorationRate,
	}
}

// Load restores Memory from a Snapshot, e.g. on process start.
func Load(s Snapshot) *Memory {
	m := New(s.AgentID)
	m.traits = copyTraits(s.Traits)
	m.preferences = copyPreferences(s.Preferences)
	m.skills = make(map[string]bool, len(s.Skills))
	for _, sk := range s.Skills {
		m.skills[sk] = true
	}
	m.emotions = copyFloats(s.Emotions)
	m.qTable = make(map[qKey]float64, len(s.QTable))
	for k, v := range s.QTable {
		state, action := splitQKey(k)
		m.qTable[qKey{State: state, Action: action}] = v
	}
	m.rewardLog = append([]LogEntry{}, s.RewardLog...)
	m.punishmentLog = append([]LogEntry{}, s.PunishmentLog...)
	m.structuredMem = append([]StructuredEntry{}, s.StructuredMem...)
	if s.LearningRate != 0 {
		m.learningRate = s.LearningRate
	}
	if s.DiscountFactor != 0 {
		m.discountFactor = s.DiscountFactor
	}
	if s.ExplorationRate != 0 {
		m.explorationRate = s.ExplorationRate
	}
	return m
}

func splitQKey(k string) (string, string) {
	for i := 0; i < len(k); i++ {
		if k[i] == '|' {
			return k[:i], k[i+1:]
		}
	}
	return k, ""
}

func copyTraits(m map[string]Trait) map[string]Trait {
	out := make(map[string]Trait, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyPreferences(m map[string]Preference) map[string]Preference {
	out := make(map[string]Preference, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyFloats(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
