package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/meridian-ai/agentcore/pkg/domain"
	"github.com/meridian-ai/agentcore/pkg/memory/conversation"
	"github.com/meridian-ai/agentcore/pkg/orchestrator"
)

const (
	writeQueueSize  = 64
	keepaliveEvery  = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Orchestrate is the minimal surface the Gateway needs to dispatch a chat
// envelope through the orchestration core.
type Orchestrate interface {
	RunParallel(ctx context.Context, agents []domain.Agent, userMessage string, settings orchestrator.Settings) []orchestrator.AgentResult
	RunSequential(ctx context.Context, agents []domain.Agent, userMessage string, settings orchestrator.Settings) []orchestrator.AgentResult
	RunPipeline(ctx context.Context, agents []domain.Agent, userMessage string, settings orchestrator.Settings) orchestrator.PipelineResult
	RunCompetitive(ctx context.Context, agents []domain.Agent, userMessage string, settings orchestrator.Settings) (orchestrator.AgentResult, error)
	RunConsensus(ctx context.Context, agents []domain.Agent, userMessage string, settings orchestrator.Settings) (orchestrator.ConsensusResult, error)
}

// session tracks one logical conversation a client participates in.
type session struct {
	id    string
	conv  *conversation.Memory
	turnMu sync.Mutex // serializes chat envelopes within this session
}

// client is one connected (or disconnected-but-reconnectable) user.
type client struct {
	userID string

	mu       sync.Mutex
	conn     *websocket.Conn
	outbound chan OutboundEnvelope
	sessions map[string]*session
}

// Gateway accepts websocket connections keyed by userId and dispatches
// chat/start-conversation/get-status envelopes through an Orchestrate.
type Gateway struct {
	orchestrator Orchestrate
	startedAt    time.Time

	mu      sync.Mutex
	clients map[string]*client
}

// New creates a Gateway dispatching through orch.
func New(orch Orchestrate) *Gateway {
	return &Gateway{
		orchestrator: orch,
		startedAt:    time.Now(),
		clients:      make(map[string]*client),
	}
}

// ServeHTTP upgrades the connection and runs its reader/writer loops. userID
// is resolved by the caller (query parameter or header); an empty userID is
// replaced by a freshly generated one here.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request, userID string) {
	if userID == "" {
		userID = uuid.New().String()
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("gateway: upgrade failed", "error", err)
		return
	}

	isReconnection := g.attach(userID, conn)
	defer g.detach(userID, conn)

	c := g.getClient(userID)

	g.send(c, OutboundEnvelope{
		Type:           TypeConnected,
		UserID:         userID,
		IsReconnection: isReconnection,
		Agents:         c.sessionIDs(),
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		g.writeLoop(c, conn)
	}()

	g.readLoop(c, conn)
	wg.Wait()
}

func (g *Gateway) attach(userID string, conn *websocket.Conn) (isReconnection bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	c, existed := g.clients[userID]
	if !existed {
		c = &client{userID: userID, sessions: make(map[string]*session)}
		g.clients[userID] = c
	}
	c.mu.Lock()
	c.conn = conn
	c.outbound = make(chan OutboundEnvelope, writeQueueSize)
	c.mu.Unlock()
	return existed
}

func (g *Gateway) detach(userID string, conn *websocket.Conn) {
	g.mu.Lock()
	c, ok := g.clients[userID]
	g.mu.Unlock()
	if !ok {
		return
	}
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
		close(c.outbound)
	}
	c.mu.Unlock()
}

func (g *Gateway) getClient(userID string) *client {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.clients[userID]
}

// ListIDs implements sandbox.SessionLister, aggregating every session ID
// across every connected (or reconnectable) client, so the sandbox
// reconciliation loop can tear down containers for sessions no client holds
// anymore.
func (g *Gateway) ListIDs(ctx context.Context) ([]string, error) {
	g.mu.Lock()
	clients := make([]*client, 0, len(g.clients))
	for _, c := range g.clients {
		clients = append(clients, c)
	}
	g.mu.Unlock()

	var out []string
	for _, c := range clients {
		out = append(out, c.sessionIDs()...)
	}
	return out, nil
}

func (c *client) sessionIDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for id := range c.sessions {
		out = append(out, id)
	}
	return out
}

// send enqueues an event on the client's bounded writer queue. Per the
// spec's backpressure policy, a full queue drops non-essential events first
// (status is the only "metrics-update"-equivalent event emitted here);
// critical events (chat_complete, errors) block for up to 2 seconds, and if
// the queue stays full the event is dropped and send closes the connection.
func (g *Gateway) send(c *client, env OutboundEnvelope) {
	c.mu.Lock()
	ch := c.outbound
	c.mu.Unlock()
	if ch == nil {
		return
	}

	if env.Type == TypeStatus {
		select {
		case ch <- env:
		default:
		}
		return
	}

	select {
	case ch <- env:
	case <-time.After(2 * time.Second):
		slog.Warn("gateway: dropping connection, writer queue blocked on critical event", "userId", c.userID, "type", env.Type)
		c.mu.Lock()
		if c.conn != nil {
			c.conn.Close()
		}
		c.mu.Unlock()
	}
}

func (g *Gateway) writeLoop(c *client, conn *websocket.Conn) {
	ticker := time.NewTicker(keepaliveEvery)
	defer ticker.Stop()

	for {
		select {
		case env, ok := <-c.outbound:
			if !ok {
				return
			}
			if err := conn.WriteJSON(env); err != nil {
				slog.Error("gateway: write error", "userId", c.userID, "error", err)
				return
			}
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (g *Gateway) readLoop(c *client, conn *websocket.Conn) {
	for {
		var env InboundEnvelope
		if err := conn.ReadJSON(&env); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Error("gateway: read error", "userId", c.userID, "error", err)
			}
			return
		}
		g.handle(context.Background(), c, env)
	}
}

func (g *Gateway) handle(ctx context.Context, c *client, env InboundEnvelope) {
	switch env.Type {
	case TypeChat:
		var payload ChatPayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			g.send(c, OutboundEnvelope{Type: TypeError, Error: "malformed chat payload", Recoverable: false})
			return
		}
		g.handleChat(ctx, c, payload)

	case TypeStartConversation:
		var payload StartConversationPayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			g.send(c, OutboundEnvelope{Type: TypeError, Error: "malformed start-conversation payload", Recoverable: false})
			return
		}
		sess := g.getOrCreateSession(c, payload.SessionID)
		_ = sess
		g.send(c, OutboundEnvelope{Type: TypeConversationStart, SessionID: payload.SessionID})

	case TypeGetStatus:
		g.mu.Lock()
		connected := len(g.clients)
		g.mu.Unlock()
		g.send(c, OutboundEnvelope{
			Type:                TypeStatus,
			ConnectedClients:    connected,
			ActiveConversations: len(c.sessionIDs()),
			UptimeSeconds:       int64(time.Since(g.startedAt).Seconds()),
		})

	default:
		g.send(c, OutboundEnvelope{Type: TypeError, Error: "unknown message type: " + env.Type, Recoverable: false})
	}
}

func (g *Gateway) getOrCreateSession(c *client, sessionID string) *session {
	c.mu.Lock()
	defer c.mu.Unlock()
	sess, ok := c.sessions[sessionID]
	if !ok {
		sess = &session{id: sessionID, conv: conversation.New(sessionID)}
		c.sessions[sessionID] = sess
	}
	return sess
}

// handleChat dispatches one chat envelope through the orchestrator and
// streams the resulting events back in order. Turns within a session are
// serialized: a new chat envelope for the same session does not begin
// dispatch until the previous one's chat_complete has been emitted.
func (g *Gateway) handleChat(ctx context.Context, c *client, payload ChatPayload) {
	sess := g.getOrCreateSession(c, payload.SessionID)
	sess.turnMu.Lock()
	defer sess.turnMu.Unlock()

	agents := make([]domain.Agent, 0, len(payload.Agents))
	for _, spec := range payload.Agents {
		agent := domain.Agent{
			ID:           spec.ID,
			Name:         spec.Name,
			Provider:     spec.Provider,
			Model:        spec.Model,
			SystemPrompt: spec.SystemPrompt,
		}
		if params, ok := payload.Settings.AgentParameters[spec.ID]; ok {
			agent.Params = params
		}
		if cred, ok := payload.Settings.AgentAPIKeys[spec.ID]; ok {
			agent.CredentialRef = cred
		}
		agents = append(agents, agent)
	}

	if len(agents) == 0 {
		g.send(c, OutboundEnvelope{Type: TypeError, Error: "no agents provided", Recoverable: false})
		return
	}

	settings := orchestrator.Settings{
		Strategy:             payload.Settings.OrchestrationStrategy,
		EnableTools:          payload.Settings.EnableTools,
		BreakOnError:         payload.Settings.BreakOnError,
		ConsensusThreshold:   payload.Settings.ConsensusThreshold,
		CompetitiveTimeoutMs: payload.Settings.CompetitiveTimeoutMs,
	}

	sess.conv.AddMessage("user", payload.Message)

	switch settings.Strategy {
	case domain.StrategyParallel:
		results := g.orchestrator.RunParallel(ctx, agents, payload.Message, settings)
		g.emitAgentResults(c, sess, results)

	case domain.StrategySequential:
		results := g.orchestrator.RunSequential(ctx, agents, payload.Message, settings)
		g.emitAgentResults(c, sess, results)

	case domain.StrategyPipeline:
		result := g.orchestrator.RunPipeline(ctx, agents, payload.Message, settings)
		g.emitAgentResults(c, sess, stagesToAgentResults(result.Stages))
		g.send(c, OutboundEnvelope{
			Type:        TypePipelineResult,
			Pipeline:    toPipelineView(result.Stages),
			FinalOutput: result.FinalOutput,
		})

	case domain.StrategyCompetitive:
		result, err := g.orchestrator.RunCompetitive(ctx, agents, payload.Message, settings)
		if err != nil {
			g.send(c, OutboundEnvelope{Type: TypeError, Error: err.Error(), Recoverable: true})
		} else {
			g.emitAgentResults(c, sess, []orchestrator.AgentResult{result})
		}

	case domain.StrategyConsensus:
		result, err := g.orchestrator.RunConsensus(ctx, agents, payload.Message, settings)
		if err != nil {
			g.send(c, OutboundEnvelope{Type: TypeError, Error: err.Error(), Recoverable: true})
		} else {
			g.emitAgentResults(c, sess, result.AgentResults)
			g.send(c, OutboundEnvelope{
				Type:            TypeConsensusResult,
				Reached:         result.Reached,
				Points:          result.Points,
				Confidence:      result.Confidence,
				DivergentPoints: result.DivergentPoints,
				AgreementLevel:  result.AgreementLevel,
			})
		}

	default:
		g.send(c, OutboundEnvelope{Type: TypeError, Error: "unknown orchestration strategy: " + string(settings.Strategy), Recoverable: false})
		return
	}

	g.send(c, OutboundEnvelope{Type: TypeChatComplete, Strategy: settings.Strategy})
}

func (g *Gateway) emitAgentResults(c *client, sess *session, results []orchestrator.AgentResult) {
	for _, r := range results {
		ref := &AgentRef{ID: r.Agent.ID, Name: r.Agent.Name}
		if r.Success {
			sess.conv.AddMessage(r.Agent.ID, r.Response)
			usage := r.Usage
			g.send(c, OutboundEnvelope{
				Type:      TypeAgentResponse,
				Agent:     ref,
				Response:  r.Response,
				Usage:     &usage,
				ToolCalls: r.ToolCalls,
			})
		} else {
			errMsg := ""
			if r.Error != nil {
				errMsg = r.Error.Error()
			}
			g.send(c, OutboundEnvelope{Type: TypeAgentResponseErr, Agent: ref, Error: errMsg})
		}
	}
}

// stagesToAgentResults adapts pipeline stages into the same AgentResult shape
// every other strategy streams, so a pipeline run emits per-agent
// agent_response/agent_response_error events in addition to its aggregate
// pipeline_result, matching parallel/sequential/competitive instead of
// replacing their per-agent stream with the aggregate event.
func stagesToAgentResults(stages []orchestrator.PipelineStage) []orchestrator.AgentResult {
	out := make([]orchestrator.AgentResult, 0, len(stages))
	for _, s := range stages {
		out = append(out, orchestrator.AgentResult{
			Agent:    s.Agent,
			Success:  s.Error == nil,
			Response: s.Output,
			Error:    s.Error,
		})
	}
	return out
}

func toPipelineView(stages []orchestrator.PipelineStage) []PipelineStageView {
	out := make([]PipelineStageView, 0, len(stages))
	for _, s := range stages {
		view := PipelineStageView{
			Agent:  AgentRef{ID: s.Agent.ID, Name: s.Agent.Name},
			Input:  s.Input,
			Output: s.Output,
		}
		if s.Error != nil {
			view.Error = s.Error.Error()
		}
		out = append(out, view)
	}
	return out
}
