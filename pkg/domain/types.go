package domain

import "time"

// Agent is a session participant bound to a logical model and an assembled
// system prompt. Immutable after creation except for the per-turn derived
// prompt, which the prompt assembler regenerates every turn.
type Agent struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Provider string `json:"provider"`
	Model    string `json:"model"`

	SystemPrompt string `json:"system_prompt,omitempty"`

	Params Params `json:"params"`

	// CredentialRef is an opaque reference resolved through a credential.Provider.
	// Never a raw API key.
	CredentialRef string `json:"credential_ref,omitempty"`
}

// Params holds per-agent sampling parameters.
type Params struct {
	Temperature       float64 `json:"temperature"`
	TopP              float64 `json:"top_p"`
	MaxOutputTokens   int     `json:"max_output_tokens"`
	RepetitionPenalty float64 `json:"repetition_penalty"`
}

// ModelConfig is a process-wide, read-only registration of a logical model.
type ModelConfig struct {
	Model               string `json:"model"`
	Provider            string `json:"provider"`
	APIName             string `json:"api_name"`
	ContextWindowTokens int    `json:"context_window_tokens"`
}

// ChatTurn is one entry in an ordered conversation.
type ChatTurn struct {
	Role        Role   `json:"role"`
	Content     string `json:"content"`
	AgentName   string `json:"agent_name,omitempty"`
	ToolCallID  string `json:"tool_call_id,omitempty"`
	ToolName    string `json:"tool_name,omitempty"`
}

// ToolCall is a normalized tool invocation requested by a model.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ToolResult is the normalized outcome of executing a ToolCall.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	Content    string `json:"content"`
	IsError    bool   `json:"is_error"`
}

// Usage tracks token accounting for a single model invocation, possibly
// accumulated across a tool round-trip.
type Usage struct {
	Prompt     int `json:"prompt"`
	Completion int `json:"completion"`
	Total      int `json:"total"`
}

// Session is an ordered sequence of turns between a user identity and a set
// of agents.
type Session struct {
	SessionID   string          `json:"session_id"`
	Participants map[string]bool `json:"participants"`
	Turns       []ChatTurn      `json:"turns"`
	StartedAt   time.Time       `json:"started_at"`
}

// NewSession creates an empty session seeded with its participant set.
func NewSession(sessionID string, participants []string) *Session {
	p := make(map[string]bool, len(participants))
	for _, id := range participants {
		p[id] = true
	}
	return &Session{
		SessionID:    sessionID,
		Participants: p,
		StartedAt:    time.Now(),
	}
}
