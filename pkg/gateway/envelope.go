// Package gateway implements the bidirectional per-client session channel:
// accepts chat/start-conversation/get-status envelopes and streams
// structured agent_response/agent_response_error/chat_complete/
// consensus_result/pipeline_result events back in order. Grounded on the
// teacher's pkg/server/websocket.go connection handling (gorilla/websocket
// upgrade, a done channel plus a writer goroutine and a reader loop), but
// generalized from the teacher's single-stream entry sync to the spec's
// typed client/server envelope protocol and per-userId reconnection
// tracking, which has no teacher analogue.
package gateway

import (
	"encoding/json"

	"github.com/meridian-ai/agentcore/pkg/domain"
)

// Inbound envelope types, client -> server.
const (
	TypeChat             = "chat"
	TypeStartConversation = "start-conversation"
	TypeGetStatus        = "get-status"
)

// Outbound envelope types, server -> client.
const (
	TypeConnected        = "connected"
	TypeConversationStart = "conversation-start"
	TypeAgentResponse    = "agent_response"
	TypeAgentResponseErr = "agent_response_error"
	TypePipelineResult   = "pipeline_result"
	TypeConsensusResult  = "consensus_result"
	TypeChatComplete     = "chat_complete"
	TypeError            = "error"
	TypeStatus           = "status"
)

// AgentRef identifies an agent in outbound envelopes.
type AgentRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// AgentSpec is the client-supplied agent binding for a chat envelope.
type AgentSpec struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Provider     string `json:"provider"`
	Model        string `json:"model"`
	SystemPrompt string `json:"systemPrompt,omitempty"`
}

// ChatSettings configures one chat envelope's orchestration.
type ChatSettings struct {
	OrchestrationStrategy domain.Strategy    `json:"orchestrationStrategy"`
	EnableTools           bool               `json:"enableTools,omitempty"`
	AgentModels           map[string]string  `json:"agentModels,omitempty"`
	AgentParameters       map[string]domain.Params `json:"agentParameters,omitempty"`
	AgentAPIKeys          map[string]string  `json:"agentApiKeys,omitempty"`
	ConsensusThreshold    float64            `json:"consensusThreshold,omitempty"`
	CompetitiveTimeoutMs  int64              `json:"competitiveTimeoutMs,omitempty"`
	BreakOnError          bool               `json:"breakOnError,omitempty"`
}

// ChatPayload is the payload of an inbound "chat" envelope.
type ChatPayload struct {
	SessionID string      `json:"sessionId"`
	Agents    []AgentSpec `json:"agents"`
	Message   string      `json:"message"`
	Settings  ChatSettings `json:"settings"`
}

// StartConversationPayload is the payload of an inbound
// "start-conversation" envelope.
type StartConversationPayload struct {
	SessionID string      `json:"sessionId"`
	Topic     string      `json:"topic"`
	Agents    []AgentSpec `json:"agents"`
}

// InboundEnvelope is any client -> server message. Payload is decoded
// per-type by the caller once Type is known.
type InboundEnvelope struct {
	Type    string `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// OutboundEnvelope is any server -> client message, marshaled with
// omitempty so a given event only carries the fields relevant to its type.
type OutboundEnvelope struct {
	Type string `json:"type"`

	// connected
	UserID        string   `json:"userId,omitempty"`
	IsReconnection bool    `json:"isReconnection,omitempty"`
	Agents        []string `json:"agents,omitempty"`

	// conversation-start
	SessionID string `json:"sessionId,omitempty"`

	// agent_response / agent_response_error
	Agent        *AgentRef       `json:"agent,omitempty"`
	Response     string          `json:"response,omitempty"`
	ResponseTime int64           `json:"responseTime,omitempty"`
	Usage        *domain.Usage   `json:"usage,omitempty"`
	ToolCalls    []domain.ToolCall `json:"toolCalls,omitempty"`

	// pipeline_result
	Pipeline    []PipelineStageView `json:"pipeline,omitempty"`
	FinalOutput string              `json:"finalOutput,omitempty"`

	// consensus_result
	Reached         bool     `json:"reached,omitempty"`
	Points          []string `json:"points,omitempty"`
	Confidence      float64  `json:"confidence,omitempty"`
	DivergentPoints []string `json:"divergentPoints,omitempty"`
	AgreementLevel  float64  `json:"agreementLevel,omitempty"`

	// chat_complete
	Strategy domain.Strategy `json:"strategy,omitempty"`

	// error
	Error       string `json:"error,omitempty"`
	Recoverable bool   `json:"recoverable,omitempty"`

	// status
	ActiveConversations int `json:"activeConversations,omitempty"`
	ConnectedClients    int `json:"connectedClients,omitempty"`
	UptimeSeconds       int64 `json:"uptimeSeconds,omitempty"`
}

// PipelineStageView is the wire shape of one pipeline stage.
type PipelineStageView struct {
	Agent  AgentRef `json:"agent"`
	Input  string   `json:"input"`
	Output string   `json:"output,omitempty"`
	Error  string   `json:"error,omitempty"`
}
