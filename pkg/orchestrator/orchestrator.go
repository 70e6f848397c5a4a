// Package orchestrator executes one of five coordination strategies over a
// dynamic agent set: parallel, sequential, pipeline, competitive, consensus.
// No teacher analogue exists for multi-agent coordination (operative runs a
// single operative's control loop); this package generalizes the teacher's
// step/callModel control-loop shape in pkg/controller/controller.go — load
// config, dispatch, handle result, emit — to fan out per-agent dispatch
// across goroutines with the concurrency patterns sync.WaitGroup/errgroup-
// style channels, since the teacher's codebase has no native multi-task
// fan-out to imitate directly.
package orchestrator

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/meridian-ai/agentcore/pkg/apperr"
	"github.com/meridian-ai/agentcore/pkg/breaker"
	"github.com/meridian-ai/agentcore/pkg/domain"
	"github.com/meridian-ai/agentcore/pkg/llmservice"
	"github.com/meridian-ai/agentcore/pkg/memory/meta"
	"github.com/meridian-ai/agentcore/pkg/memory/model"
	"github.com/meridian-ai/agentcore/pkg/metrics"
	"github.com/meridian-ai/agentcore/pkg/prompt"
	"github.com/meridian-ai/agentcore/pkg/providers"
)

// observe records an orchestration run's wall-clock duration against the
// ambient metrics layer, labeled by strategy and outcome.
func observe(strategy domain.Strategy, start time.Time, outcome string) {
	metrics.OrchestrationDuration.WithLabelValues(string(strategy), outcome).Observe(time.Since(start).Seconds())
}

const (
	defaultConsensusThreshold = 0.7
	consensusPointThreshold   = 0.6
	maxConsensusIterations    = 5
	minKeyPointLength         = 20
)

var agreementPhrases = []string{"agree", "consensus", "aligned", "same", "correct"}

// defaultCollectiveTemplate is the shared layer every agent's assembled
// system prompt starts with, substituted from Meta/Conversation memory.
const defaultCollectiveTemplate = "{{userContext}}\n{{currentGoals}}\n{{sharedKnowledge}}\n{{sessionContext}}"

// defaultIndividualTemplate is the per-agent layer, substituted from the
// agent's own Model Memory plus whatever the client supplied as its
// system prompt (folded in as specialInstructions).
const defaultIndividualTemplate = "You are {{agentName}}. Role: {{role}}. Expertise: {{expertise}}. Style: {{style}}.\n" +
	"Personality traits: {{personalityTraits}}\nPreferences: {{preferences}}\nEmotional state: {{emotionalState}}\n{{specialInstructions}}"

// reinforcementAction is the single action tracked in the Q-table for the
// orchestration loop's reinforcement signal: the spec defines the
// reinforcement mechanism generically over "an action" without naming one
// for the orchestrator specifically, so every agent call is reinforced
// under the same "respond" action keyed by strategy as the Q-learning
// state.
const reinforcementAction = "respond"

// Dispatcher is the minimal surface the orchestrator needs from the LLM
// Service: a per-agent chat-completion call.
type Dispatcher interface {
	Generate(ctx context.Context, model string, req providers.Request, toolsEnabled bool) (*llmservice.Result, error)
}

// AgentResult is one agent's outcome within an orchestration.
type AgentResult struct {
	Agent     domain.Agent
	Success   bool
	Response  string
	Usage     domain.Usage
	ToolCalls []domain.ToolCall
	Error     error
}

// Settings configures one orchestration run.
type Settings struct {
	Strategy              domain.Strategy
	EnableTools           bool
	BreakOnError          bool
	ConsensusThreshold    float64
	CompetitiveTimeoutMs  int64
}

// PipelineStage is one agent's step in a pipeline run.
type PipelineStage struct {
	Agent  domain.Agent
	Input  string
	Output string
	Error  error
}

// PipelineResult is the outcome of a pipeline orchestration.
type PipelineResult struct {
	Stages      []PipelineStage
	FinalOutput string
}

// ConsensusResult is the outcome of a consensus orchestration.
type ConsensusResult struct {
	Reached         bool
	Points          []string
	Confidence      float64
	DivergentPoints []string
	Participants    []string

	// AgentResults holds each agent's first-round response, so a caller that
	// wants to stream per-agent output (as it does for every other strategy)
	// has something to stream even though consensus only reports an
	// aggregate Points/Confidence verdict.
	AgentResults []AgentResult

	// AgreementLevel is the fraction of the iteration's responses containing
	// an agreement-phrase from the stop-list (spec §6 consensus_result.agreementLevel).
	AgreementLevel float64
}

// Orchestrator dispatches a user turn across a set of agents under a
// selected strategy.
type Orchestrator struct {
	dispatcher    Dispatcher
	meta          *meta.Memory
	agentBreakers *breaker.Registry

	assembler *prompt.Assembler

	memMu  sync.Mutex
	models map[string]*model.Memory
}

// New creates an Orchestrator backed by dispatcher for agent calls and meta
// for recording consensus facts. agentBreakers may be nil, disabling
// per-agent circuit breaking (model-scoped breaking still happens inside
// dispatcher regardless). Each agent's Model Memory and assembled system
// prompt are owned internally: New seeds a prompt.Assembler with the
// collective template and the five scenario templates, and every dispatch
// lazily creates the per-agent Model Memory handle the spec's emergent-
// personality loop reads and writes.
func New(dispatcher Dispatcher, metaMemory *meta.Memory, agentBreakers *breaker.Registry) *Orchestrator {
	assembler := prompt.NewAssembler(defaultCollectiveTemplate)
	assembler.SetScenarioTemplate(prompt.ScenarioConsensus, "Work toward a single aligned statement the whole group can stand behind.")
	assembler.SetScenarioTemplate(prompt.ScenarioCreativity, "Favor original, divergent ideas over the safest answer.")
	assembler.SetScenarioTemplate(prompt.ScenarioAnalysis, "Reason step by step and ground claims in the input you were given.")
	assembler.SetScenarioTemplate(prompt.ScenarioLearning, "Explain your reasoning so the group can learn from it, not just the conclusion.")
	assembler.SetScenarioTemplate(prompt.ScenarioCollaboration, "Build on what the rest of the group has already said where it helps.")

	return &Orchestrator{
		dispatcher:    dispatcher,
		meta:          metaMemory,
		agentBreakers: agentBreakers,
		assembler:     assembler,
		models:        make(map[string]*model.Memory),
	}
}

// memoryFor returns the owned Model Memory handle for agentID, creating it
// on first use. Anonymous agents (empty ID) share a single "anonymous"
// memory rather than each getting a throwaway instance.
func (o *Orchestrator) memoryFor(agentID string) *model.Memory {
	if agentID == "" {
		agentID = "anonymous"
	}
	o.memMu.Lock()
	defer o.memMu.Unlock()
	mem, ok := o.models[agentID]
	if !ok {
		mem = model.New(agentID)
		o.models[agentID] = mem
	}
	return mem
}

// scenarioFor maps a coordination strategy to the scenario template the
// orchestrator selects for the current turn (spec §4.10 layer 2).
func scenarioFor(strategy domain.Strategy) prompt.Scenario {
	switch strategy {
	case domain.StrategyConsensus:
		return prompt.ScenarioConsensus
	case domain.StrategyPipeline:
		return prompt.ScenarioAnalysis
	case domain.StrategyCompetitive:
		return prompt.ScenarioCreativity
	default:
		return prompt.ScenarioCollaboration
	}
}

// assemblePrompt builds the final system prompt for one agent turn via the
// prompt assembler: the collective layer from Meta Memory, the scenario
// layer from the current strategy, and the individual layer from the
// agent's own Model Memory plus whatever system prompt the client supplied
// (folded in as {{specialInstructions}}). Falls back to the agent's raw
// system prompt if assembly fails validation (over-length or a residual
// placeholder neither layer filled).
func (o *Orchestrator) assemblePrompt(agent domain.Agent, strategy domain.Strategy, mem *model.Memory) string {
	o.assembler.SetIndividualTemplate(agent.ID, defaultIndividualTemplate)

	var cc prompt.CollectiveContext
	if o.meta != nil {
		profile := o.meta.Profile()
		cc.UserContext = strings.Join(profile.Highlights, "; ")
		shortTerm, longTerm := o.meta.ActiveGoals()
		cc.CurrentGoals = joinGoalTexts(shortTerm, longTerm)
		cc.SharedKnowledge = joinFactTexts(o.meta.Facts())
	}

	ic := prompt.IndividualContext{
		AgentName:           agent.Name,
		PersonalityTraits:   mem.TraitsSummary(),
		Preferences:         mem.PreferencesSummary(),
		EmotionalState:      mem.EmotionsSummary(),
		SpecialInstructions: agent.SystemPrompt,
	}

	final, err := o.assembler.Assemble(agent.ID, cc, scenarioFor(strategy), ic)
	if err != nil {
		slog.Warn("prompt assembly failed, falling back to raw agent system prompt", "agent", agent.ID, "error", err)
		return agent.SystemPrompt
	}
	return final
}

func joinGoalTexts(lists ...[]*meta.Goal) string {
	var parts []string
	for _, list := range lists {
		for _, g := range list {
			parts = append(parts, g.Text)
		}
	}
	return strings.Join(parts, "; ")
}

func joinFactTexts(facts []meta.Fact) string {
	parts := make([]string, 0, len(facts))
	for _, f := range facts {
		parts = append(parts, f.Text)
	}
	return strings.Join(parts, "; ")
}

// agentBreakerFor returns the named circuit breaker for agent.ID, or nil if
// agent-scoped breaking is disabled for this orchestrator.
func (o *Orchestrator) agentBreakerFor(agent domain.Agent) *breaker.Breaker {
	if o.agentBreakers == nil || agent.ID == "" {
		return nil
	}
	return o.agentBreakers.Get("agent", agent.ID)
}

func (o *Orchestrator) callAgent(ctx context.Context, agent domain.Agent, turns []domain.ChatTurn, settings Settings) AgentResult {
	br := o.agentBreakerFor(agent)
	if br != nil && !br.Allow(time.Now()) {
		return AgentResult{
			Agent:   agent,
			Success: false,
			Error:   apperr.New(apperr.KindCircuitOpen, "circuit open for agent: "+agent.ID),
		}
	}

	mem := o.memoryFor(agent.ID)
	req := providers.Request{
		Messages:     turns,
		SystemPrompt: o.assemblePrompt(agent, settings.Strategy, mem),
		Params:       agent.Params,
	}

	result, err := o.dispatcher.Generate(ctx, agent.Model, req, settings.EnableTools)

	reward := 1.0
	if err != nil {
		reward = -1.0
	}
	mem.ApplyReinforcement(string(settings.Strategy), reinforcementAction, reward)

	if err != nil {
		if br != nil {
			br.RecordFailure(time.Now())
		}
		return AgentResult{Agent: agent, Success: false, Error: err}
	}
	if br != nil {
		br.RecordSuccess(time.Now())
	}
	return AgentResult{
		Agent:     agent,
		Success:   true,
		Response:  result.Content,
		Usage:     result.Usage,
		ToolCalls: result.ToolCalls,
	}
}

// RunParallel dispatches one call per agent concurrently. Agent failures
// are isolated: one agent's failure never cancels another's in-flight call.
func (o *Orchestrator) RunParallel(ctx context.Context, agents []domain.Agent, userMessage string, settings Settings) []AgentResult {
	start := time.Now()
	turns := []domain.ChatTurn{{Role: domain.RoleUser, Content: userMessage}}

	results := make([]AgentResult, len(agents))
	var wg sync.WaitGroup
	for i, agent := range agents {
		wg.Add(1)
		go func(i int, agent domain.Agent) {
			defer wg.Done()
			results[i] = o.callAgent(ctx, agent, turns, settings)
		}(i, agent)
	}
	wg.Wait()
	observe(domain.StrategyParallel, start, outcomeFor(results))
	return results
}

// RunSequential processes agents in order, appending each successful
// agent's output to a growing message list seen by the next agent. On
// failure it stops if settings.BreakOnError, otherwise skips and continues.
func (o *Orchestrator) RunSequential(ctx context.Context, agents []domain.Agent, userMessage string, settings Settings) []AgentResult {
	start := time.Now()
	turns := []domain.ChatTurn{{Role: domain.RoleUser, Content: userMessage}}
	results := make([]AgentResult, 0, len(agents))

	for _, agent := range agents {
		r := o.callAgent(ctx, agent, turns, settings)
		results = append(results, r)
		if !r.Success {
			if settings.BreakOnError {
				break
			}
			continue
		}
		turns = append(turns, domain.ChatTurn{
			Role:      domain.RoleAssistant,
			Content:   r.Response,
			AgentName: agent.Name,
		})
	}
	observe(domain.StrategySequential, start, outcomeFor(results))
	return results
}

// RunPipeline processes agents in order; each agent receives only the
// current input as its user turn, and its output becomes the next agent's
// input. Stops on the first failure.
func (o *Orchestrator) RunPipeline(ctx context.Context, agents []domain.Agent, userMessage string, settings Settings) PipelineResult {
	start := time.Now()
	input := userMessage
	var stages []PipelineStage
	finalOutput := ""

	outcome := "success"
	for _, agent := range agents {
		turns := []domain.ChatTurn{{Role: domain.RoleUser, Content: input}}
		r := o.callAgent(ctx, agent, turns, settings)

		stage := PipelineStage{Agent: agent, Input: input}
		if !r.Success {
			stage.Error = r.Error
			stages = append(stages, stage)
			outcome = "error"
			break
		}
		stage.Output = r.Response
		stages = append(stages, stage)
		input = r.Response
		finalOutput = r.Response
	}

	observe(domain.StrategyPipeline, start, outcome)
	return PipelineResult{Stages: stages, FinalOutput: finalOutput}
}

// RunCompetitive dispatches all agents concurrently; the first successful
// response wins and all other in-flight calls are cancelled best-effort. If
// no agent succeeds before the configured timeout, it returns
// CompetitiveTimeout.
func (o *Orchestrator) RunCompetitive(ctx context.Context, agents []domain.Agent, userMessage string, settings Settings) (AgentResult, error) {
	start := time.Now()
	timeout := time.Duration(settings.CompetitiveTimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	raceCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	turns := []domain.ChatTurn{{Role: domain.RoleUser, Content: userMessage}}

	winner := make(chan AgentResult, len(agents))
	var wg sync.WaitGroup
	for _, agent := range agents {
		wg.Add(1)
		go func(agent domain.Agent) {
			defer wg.Done()
			r := o.callAgent(raceCtx, agent, turns, settings)
			if r.Success {
				select {
				case winner <- r:
				default:
				}
			}
		}(agent)
	}

	go func() {
		wg.Wait()
		close(winner)
	}()

	select {
	case r, ok := <-winner:
		cancel()
		if ok {
			observe(domain.StrategyCompetitive, start, "success")
			return r, nil
		}
		observe(domain.StrategyCompetitive, start, "error")
		return AgentResult{}, apperr.New(apperr.KindCompetitiveTimeout, "no agent produced a successful response")
	case <-raceCtx.Done():
		observe(domain.StrategyCompetitive, start, "error")
		return AgentResult{}, apperr.New(apperr.KindCompetitiveTimeout, "competitive strategy deadline exceeded")
	}
}

// RunConsensus runs a parallel dispatch, requires a super-majority of
// successes, then iterates key-point extraction/voting until a consensus
// point emerges or maxConsensusIterations is exhausted.
func (o *Orchestrator) RunConsensus(ctx context.Context, agents []domain.Agent, userMessage string, settings Settings) (result ConsensusResult, err error) {
	start := time.Now()
	defer func() {
		outcome := "error"
		if err == nil && result.Reached {
			outcome = "success"
		} else if err == nil {
			outcome = "not_reached"
		}
		observe(domain.StrategyConsensus, start, outcome)
	}()

	threshold := settings.ConsensusThreshold
	if threshold <= 0 {
		threshold = defaultConsensusThreshold
	}

	results := o.RunParallel(ctx, agents, userMessage, settings)
	successes := successfulResponses(results)

	required := ceilInt(threshold * float64(len(agents)))
	if len(successes) < required {
		return ConsensusResult{
			AgentResults:   results,
			AgreementLevel: agreementRatio(responseTexts(successes)),
		}, apperr.New(apperr.KindConsensusNotReached, "insufficient successful responses for consensus")
	}

	participants := participantNames(results)

	responses := responseTexts(successes)
	for iter := 0; iter < maxConsensusIterations; iter++ {
		consensusPoints, totalPoints := thresholdConsensusPoints(responses)
		agreement := agreementRatio(responses)

		if agreement >= 0.7 {
			return o.recordConsensus(consensusPoints, totalPoints, participants, results, agreement), nil
		}

		if len(consensusPoints) > 0 {
			return o.recordConsensus(consensusPoints, totalPoints, participants, results, agreement), nil
		}

		// No consensus point yet: synthesize a combined-viewpoint prompt and
		// re-dispatch for the next iteration.
		combined := strings.Join(responses, "\n")
		turns := []domain.ChatTurn{{
			Role:    domain.RoleUser,
			Content: "Reconcile the following viewpoints into a single aligned statement:\n" + combined,
		}}
		var next []string
		for _, agent := range agents {
			r := o.callAgent(ctx, agent, turns, settings)
			if r.Success {
				next = append(next, r.Response)
			}
		}
		if len(next) == 0 {
			break
		}
		responses = next
	}

	return ConsensusResult{
		Reached:         false,
		DivergentPoints: topKeyPoints(responses),
		Participants:    participants,
		AgentResults:    results,
		AgreementLevel:  agreementRatio(responses),
	}, nil
}

func (o *Orchestrator) recordConsensus(points []string, totalPoints int, participants []string, agentResults []AgentResult, agreement float64) ConsensusResult {
	confidence := 0.0
	if totalPoints > 0 {
		confidence = float64(len(points)) / float64(totalPoints)
	}
	if o.meta != nil {
		for _, p := range points {
			o.meta.AddSharedFact(p, confidence, participants)
		}
	}
	return ConsensusResult{
		Reached:        true,
		Points:         points,
		Confidence:     confidence,
		Participants:   participants,
		AgentResults:   agentResults,
		AgreementLevel: agreement,
	}
}

// outcomeFor labels a metrics observation "success" if at least one agent
// succeeded, "error" if every agent failed (or none ran).
func outcomeFor(results []AgentResult) string {
	for _, r := range results {
		if r.Success {
			return "success"
		}
	}
	return "error"
}

func successfulResponses(results []AgentResult) []AgentResult {
	var out []AgentResult
	for _, r := range results {
		if r.Success {
			out = append(out, r)
		}
	}
	return out
}

func participantNames(results []AgentResult) []string {
	var out []string
	for _, r := range results {
		out = append(out, r.Agent.Name)
	}
	return out
}

func responseTexts(results []AgentResult) []string {
	var out []string
	for _, r := range results {
		out = append(out, r.Response)
	}
	return out
}

func ceilInt(v float64) int {
	i := int(v)
	if float64(i) < v {
		i++
	}
	return i
}

// agreementRatio is the fraction of responses containing an agreement
// phrase from the stop-list ({"agree", "consensus", "aligned", "same",
// "correct"}), reported to callers as the consensus_result event's
// agreementLevel.
func agreementRatio(responses []string) float64 {
	if len(responses) == 0 {
		return 0
	}
	hits := 0
	for _, r := range responses {
		lower := strings.ToLower(r)
		for _, phrase := range agreementPhrases {
			if strings.Contains(lower, phrase) {
				hits++
				break
			}
		}
	}
	return float64(hits) / float64(len(responses))
}

// thresholdConsensusPoints extracts key points across responses and filters
// them down to those meeting the consensus frequency threshold (>= 0.6 *
// len(responses)), returning the filtered points alongside the total number
// of distinct points extracted (the denominator for the confidence score).
// Used by both the early-agreement short-circuit and the main per-iteration
// check so neither path reports unfiltered points as consensus.
func thresholdConsensusPoints(responses []string) (consensusPoints []string, totalPoints int) {
	points, frequency := extractConsensusPoints(responses)
	required := ceilInt(consensusPointThreshold * float64(len(responses)))
	for _, p := range points {
		if frequency[p] >= required {
			consensusPoints = append(consensusPoints, p)
		}
	}
	return consensusPoints, len(points)
}

// extractConsensusPoints extracts up to three sentences >= 20 chars from
// each response as key points, normalizes them, and counts frequency.
func extractConsensusPoints(responses []string) ([]string, map[string]int) {
	frequency := make(map[string]int)
	var order []string
	seen := make(map[string]bool)

	for _, r := range responses {
		for _, p := range topKeyPointsOne(r) {
			frequency[p]++
			if !seen[p] {
				seen[p] = true
				order = append(order, p)
			}
		}
	}
	return order, frequency
}

func topKeyPoints(responses []string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, r := range responses {
		for _, p := range topKeyPointsOne(r) {
			if !seen[p] {
				seen[p] = true
				out = append(out, p)
			}
		}
	}
	return out
}

// topKeyPointsOne returns up to the first three sentences >= 20 chars,
// normalized (lower-cased, trimmed).
func topKeyPointsOne(text string) []string {
	sentences := splitSentences(text)
	var points []string
	for _, s := range sentences {
		norm := normalizeSentence(s)
		if len(norm) >= minKeyPointLength {
			points = append(points, norm)
		}
		if len(points) == 3 {
			break
		}
	}
	sort.Strings(points)
	return points
}

func splitSentences(text string) []string {
	raw := strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '!' || r == '?'
	})
	var out []string
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func normalizeSentence(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
