package gateway

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meridian-ai/agentcore/pkg/apperr"
	"github.com/meridian-ai/agentcore/pkg/domain"
	"github.com/meridian-ai/agentcore/pkg/orchestrator"
)

// fakeOrchestrate is a test double satisfying Orchestrate so handleChat can
// be exercised without a real LLM service or websocket connection.
type fakeOrchestrate struct {
	parallelResults    []orchestrator.AgentResult
	sequentialResults  []orchestrator.AgentResult
	pipelineResult     orchestrator.PipelineResult
	competitiveResult  orchestrator.AgentResult
	competitiveErr     error
	consensusResult    orchestrator.ConsensusResult
	consensusErr       error
}

func (f *fakeOrchestrate) RunParallel(ctx context.Context, agents []domain.Agent, userMessage string, settings orchestrator.Settings) []orchestrator.AgentResult {
	return f.parallelResults
}

func (f *fakeOrchestrate) RunSequential(ctx context.Context, agents []domain.Agent, userMessage string, settings orchestrator.Settings) []orchestrator.AgentResult {
	return f.sequentialResults
}

func (f *fakeOrchestrate) RunPipeline(ctx context.Context, agents []domain.Agent, userMessage string, settings orchestrator.Settings) orchestrator.PipelineResult {
	return f.pipelineResult
}

func (f *fakeOrchestrate) RunCompetitive(ctx context.Context, agents []domain.Agent, userMessage string, settings orchestrator.Settings) (orchestrator.AgentResult, error) {
	return f.competitiveResult, f.competitiveErr
}

func (f *fakeOrchestrate) RunConsensus(ctx context.Context, agents []domain.Agent, userMessage string, settings orchestrator.Settings) (orchestrator.ConsensusResult, error) {
	return f.consensusResult, f.consensusErr
}

func newTestClient(userID string) *client {
	return &client{userID: userID, outbound: make(chan OutboundEnvelope, writeQueueSize), sessions: make(map[string]*session)}
}

func drain(t *testing.T, c *client, n int) []OutboundEnvelope {
	t.Helper()
	var out []OutboundEnvelope
	for i := 0; i < n; i++ {
		select {
		case env := <-c.outbound:
			out = append(out, env)
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for envelope %d/%d", i+1, n)
		}
	}
	return out
}

func chatPayload(strategy domain.Strategy, agents ...string) ChatPayload {
	specs := make([]AgentSpec, len(agents))
	for i, a := range agents {
		specs[i] = AgentSpec{ID: a, Name: a, Model: a}
	}
	return ChatPayload{
		SessionID: "sess-1",
		Agents:    specs,
		Message:   "hello",
		Settings:  ChatSettings{OrchestrationStrategy: strategy},
	}
}

func TestHandleChat_NoAgentsEmitsError(t *testing.T) {
	g := New(&fakeOrchestrate{})
	c := newTestClient("u1")

	g.handleChat(context.Background(), c, chatPayload(domain.StrategyParallel))

	envs := drain(t, c, 1)
	require.Equal(t, TypeError, envs[0].Type)
	require.Contains(t, envs[0].Error, "no agents")
}

func TestHandleChat_ParallelEmitsResponsesThenComplete(t *testing.T) {
	fo := &fakeOrchestrate{parallelResults: []orchestrator.AgentResult{
		{Agent: domain.Agent{ID: "a1", Name: "A"}, Success: true, Response: "hi there"},
		{Agent: domain.Agent{ID: "a2", Name: "B"}, Success: false, Error: apperr.New(apperr.KindProvider, "boom")},
	}}
	g := New(fo)
	c := newTestClient("u1")

	g.handleChat(context.Background(), c, chatPayload(domain.StrategyParallel, "a1", "a2"))

	envs := drain(t, c, 3)
	require.Equal(t, TypeAgentResponse, envs[0].Type)
	require.Equal(t, "hi there", envs[0].Response)
	require.Equal(t, TypeAgentResponseErr, envs[1].Type)
	require.Contains(t, envs[1].Error, "boom")
	require.Equal(t, TypeChatComplete, envs[2].Type)
}

func TestHandleChat_PipelineEmitsPerAgentResponsesThenPipelineResult(t *testing.T) {
	fo := &fakeOrchestrate{pipelineResult: orchestrator.PipelineResult{
		Stages: []orchestrator.PipelineStage{
			{Agent: domain.Agent{ID: "a1", Name: "A"}, Input: "hello", Output: "stage one"},
		},
		FinalOutput: "stage one",
	}}
	g := New(fo)
	c := newTestClient("u1")

	g.handleChat(context.Background(), c, chatPayload(domain.StrategyPipeline, "a1"))

	envs := drain(t, c, 3)
	require.Equal(t, TypeAgentResponse, envs[0].Type, "pipeline must stream per-stage responses same as the other strategies")
	require.Equal(t, "stage one", envs[0].Response)
	require.Equal(t, TypePipelineResult, envs[1].Type)
	require.Equal(t, "stage one", envs[1].FinalOutput)
	require.Len(t, envs[1].Pipeline, 1)
	require.Equal(t, TypeChatComplete, envs[2].Type)
}

func TestHandleChat_CompetitiveErrorEmitsRecoverableError(t *testing.T) {
	fo := &fakeOrchestrate{competitiveErr: apperr.New(apperr.KindCompetitiveTimeout, "nobody answered")}
	g := New(fo)
	c := newTestClient("u1")

	g.handleChat(context.Background(), c, chatPayload(domain.StrategyCompetitive, "a1"))

	envs := drain(t, c, 2)
	require.Equal(t, TypeError, envs[0].Type)
	require.True(t, envs[0].Recoverable)
	require.Equal(t, TypeChatComplete, envs[1].Type)
}

func TestHandleChat_ConsensusEmitsPerAgentResponsesThenConsensusResult(t *testing.T) {
	fo := &fakeOrchestrate{consensusResult: orchestrator.ConsensusResult{
		Reached: true, Points: []string{"point one"}, Confidence: 0.9, AgreementLevel: 0.85,
		AgentResults: []orchestrator.AgentResult{
			{Agent: domain.Agent{ID: "a1", Name: "A"}, Success: true, Response: "first round reply"},
		},
	}}
	g := New(fo)
	c := newTestClient("u1")

	g.handleChat(context.Background(), c, chatPayload(domain.StrategyConsensus, "a1"))

	envs := drain(t, c, 3)
	require.Equal(t, TypeAgentResponse, envs[0].Type, "consensus must stream per-agent responses same as the other strategies")
	require.Equal(t, "first round reply", envs[0].Response)
	require.Equal(t, TypeConsensusResult, envs[1].Type)
	require.True(t, envs[1].Reached)
	require.Equal(t, []string{"point one"}, envs[1].Points)
	require.Equal(t, 0.85, envs[1].AgreementLevel)
	require.Equal(t, TypeChatComplete, envs[2].Type)
}

func TestHandleChat_UnknownStrategyEmitsErrorAndSkipsChatComplete(t *testing.T) {
	g := New(&fakeOrchestrate{})
	c := newTestClient("u1")

	g.handleChat(context.Background(), c, chatPayload(domain.Strategy("bogus"), "a1"))

	envs := drain(t, c, 1)
	require.Equal(t, TypeError, envs[0].Type)
	require.Len(t, c.outbound, 0, "an unknown strategy must return before emitting chat_complete")
}

func TestHandle_MalformedChatPayloadEmitsError(t *testing.T) {
	g := New(&fakeOrchestrate{})
	c := newTestClient("u1")

	g.handle(context.Background(), c, InboundEnvelope{Type: TypeChat, Payload: json.RawMessage(`{not json`)})

	envs := drain(t, c, 1)
	require.Equal(t, TypeError, envs[0].Type)
}

func TestHandle_UnknownEnvelopeTypeEmitsError(t *testing.T) {
	g := New(&fakeOrchestrate{})
	c := newTestClient("u1")

	g.handle(context.Background(), c, InboundEnvelope{Type: "whatever"})

	envs := drain(t, c, 1)
	require.Equal(t, TypeError, envs[0].Type)
	require.Contains(t, envs[0].Error, "unknown message type")
}

func TestHandle_GetStatusReportsConnectedClients(t *testing.T) {
	g := New(&fakeOrchestrate{})
	c := newTestClient("u1")
	g.mu.Lock()
	g.clients["u1"] = c
	g.mu.Unlock()

	g.handle(context.Background(), c, InboundEnvelope{Type: TypeGetStatus})

	envs := drain(t, c, 1)
	require.Equal(t, TypeStatus, envs[0].Type)
	require.Equal(t, 1, envs[0].ConnectedClients)
}

func TestGetOrCreateSession_ReusesExistingSession(t *testing.T) {
	g := New(&fakeOrchestrate{})
	c := newTestClient("u1")

	s1 := g.getOrCreateSession(c, "sess-1")
	s2 := g.getOrCreateSession(c, "sess-1")
	require.Same(t, s1, s2)
}

func TestSend_StatusEventDroppedWhenQueueFull(t *testing.T) {
	c := &client{userID: "u1", outbound: make(chan OutboundEnvelope, 1)}
	c.outbound <- OutboundEnvelope{Type: TypeStatus}

	g := New(&fakeOrchestrate{})
	// The queue is already full; a second status event must be dropped, not
	// block, since status is the one non-essential event type.
	done := make(chan struct{})
	go func() {
		g.send(c, OutboundEnvelope{Type: TypeStatus, ConnectedClients: 7})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("send of a status event must not block on a full queue")
	}
	require.Equal(t, 1, len(c.outbound))
}

func TestSend_NilOutboundIsANoop(t *testing.T) {
	c := &client{userID: "u1"}
	g := New(&fakeOrchestrate{})
	require.NotPanics(t, func() { g.send(c, OutboundEnvelope{Type: TypeChatComplete}) })
}

func TestAttach_ReportsReconnectionOnSecondAttach(t *testing.T) {
	g := New(&fakeOrchestrate{})
	first := g.attach("u1", nil)
	require.False(t, first, "first attach for a user is never a reconnection")

	second := g.attach("u1", nil)
	require.True(t, second, "attaching again for the same userId is a reconnection")
}

func TestListIDs_AggregatesSessionsAcrossClients(t *testing.T) {
	g := New(&fakeOrchestrate{})
	c1 := newTestClient("u1")
	c1.sessions["s1"] = &session{id: "s1"}
	c2 := newTestClient("u2")
	c2.sessions["s2"] = &session{id: "s2"}

	g.mu.Lock()
	g.clients["u1"] = c1
	g.clients["u2"] = c2
	g.mu.Unlock()

	ids, err := g.ListIDs(context.Background())
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"s1", "s2"}, ids)
}
