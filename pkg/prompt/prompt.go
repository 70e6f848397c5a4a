// Package prompt assembles the final per-agent system prompt from three
// layers (collective, scenario, individual; there is no separate dynamic
// layer), substitutes placeholders from Meta/Conversation/Model memory,
// strips any that remain unfilled, and validates the result. No teacher
// analogue exists for this subsystem; it follows the teacher's
// buildInstructions concatenation style from
// operative/pkg/controller/controller.go (ordered string-joined sections)
// applied to three memory-driven layers, with version counting and an
// append-only history added fresh.
package prompt

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/meridian-ai/agentcore/pkg/apperr"
)

const maxPromptLength = 10000

var placeholderPattern = regexp.MustCompile(`\{\{\s*[\w]+\s*\}\}`)

// Scenario selects an optional template layer for the current turn.
type Scenario string

const (
	ScenarioConsensus    Scenario = "consensus"
	ScenarioCreativity   Scenario = "creativity"
	ScenarioAnalysis     Scenario = "analysis"
	ScenarioLearning     Scenario = "learning"
	ScenarioCollaboration Scenario = "collaboration"
)

// CollectiveContext feeds the {{userContext}}, {{currentGoals}},
// {{sharedKnowledge}}, {{sessionContext}} placeholders of the collective
// prompt layer.
type CollectiveContext struct {
	UserContext     string
	CurrentGoals    string
	SharedKnowledge string
	SessionContext  string
}

// IndividualContext feeds the per-agent placeholders of the individual
// prompt layer.
type IndividualContext struct {
	AgentName           string
	Role                string
	Expertise           string
	Style               string
	PersonalityTraits   string
	Preferences         string
	EmotionalState      string
	SpecialInstructions string
}

// HistoryEntry is one recorded assembled prompt for an agent.
type HistoryEntry struct {
	Version int
	Prompt  string
}

// Assembler merges the three layers into a validated final system prompt and
// keeps a per-agent append-only history with a version counter.
type Assembler struct {
	mu sync.Mutex

	collectiveTemplate  string
	scenarioTemplates   map[Scenario]string
	individualTemplates map[string]string // agentID -> template

	versions map[string]int
	history  map[string][]HistoryEntry
}

// NewAssembler creates an Assembler seeded with the collective prompt
// template shared by every agent.
func NewAssembler(collectiveTemplate string) *Assembler {
	return &Assembler{
		collectiveTemplate:  collectiveTemplate,
		scenarioTemplates:   make(map[Scenario]string),
		individualTemplates: make(map[string]string),
		versions:            make(map[string]int),
		history:             make(map[string][]HistoryEntry),
	}
}

// SetScenarioTemplate registers the template text for a named scenario.
func (a *Assembler) SetScenarioTemplate(s Scenario, template string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.scenarioTemplates[s] = template
}

// SetIndividualTemplate registers agentID's individual prompt template.
func (a *Assembler) SetIndividualTemplate(agentID, template string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.individualTemplates[agentID] = template
}

// Assemble builds the final system prompt for agentID in the current turn,
// substituting placeholders and stripping any left unfilled, then validates
// and records it in the agent's history.
func (a *Assembler) Assemble(agentID string, cc CollectiveContext, scenario Scenario, ic IndividualContext) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var parts []string

	collective := substituteCollective(a.collectiveTemplate, cc)
	parts = append(parts, collective)

	if scenario != "" {
		if tmpl, ok := a.scenarioTemplates[scenario]; ok && tmpl != "" {
			parts = append(parts, tmpl)
		}
	}

	individual := substituteIndividual(a.individualTemplates[agentID], ic)
	if individual != "" {
		parts = append(parts, individual)
	}

	final := strings.Join(parts, "\n\n")
	final = stripUnfilledPlaceholders(final)

	if err := validate(final); err != nil {
		return "", err
	}

	a.versions[agentID]++
	a.history[agentID] = append(a.history[agentID], HistoryEntry{Version: a.versions[agentID], Prompt: final})

	return final, nil
}

// Version reports the current version counter for agentID.
func (a *Assembler) Version(agentID string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.versions[agentID]
}

// History returns agentID's append-only assembly history.
func (a *Assembler) History(agentID string) []HistoryEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]HistoryEntry{}, a.history[agentID]...)
}

func substituteCollective(template string, cc CollectiveContext) string {
	r := strings.NewReplacer(
		"{{userContext}}", cc.UserContext,
		"{{currentGoals}}", cc.CurrentGoals,
		"{{sharedKnowledge}}", cc.SharedKnowledge,
		"{{sessionContext}}", cc.SessionContext,
	)
	return r.Replace(template)
}

func substituteIndividual(template string, ic IndividualContext) string {
	r := strings.NewReplacer(
		"{{agentName}}", ic.AgentName,
		"{{role}}", ic.Role,
		"{{expertise}}", ic.Expertise,
		"{{style}}", ic.Style,
		"{{personalityTraits}}", ic.PersonalityTraits,
		"{{preferences}}", ic.Preferences,
		"{{emotionalState}}", ic.EmotionalState,
		"{{specialInstructions}}", ic.SpecialInstructions,
	)
	return r.Replace(template)
}

// stripUnfilledPlaceholders removes any remaining {{token}} markers, e.g.
// placeholders with no registered substitution.
func stripUnfilledPlaceholders(s string) string {
	return placeholderPattern.ReplaceAllString(s, "")
}

// validate rejects prompts over 10,000 characters or containing residual
// placeholders (should be unreachable after stripUnfilledPlaceholders, but
// guarded per the spec's explicit validate() contract).
func validate(prompt string) error {
	if len(prompt) > maxPromptLength {
		return apperr.New(apperr.KindValidation, fmt.Sprintf("assembled prompt exceeds %d characters", maxPromptLength))
	}
	if placeholderPattern.MatchString(prompt) {
		return apperr.New(apperr.KindValidation, "assembled prompt contains residual placeholders")
	}
	return nil
}
