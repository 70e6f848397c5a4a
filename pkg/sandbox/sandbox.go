// Package sandbox defines the pluggable tool-execution boundary the spec
// keeps out of the orchestration core: the Tool Negotiator only negotiates
// tool call/response shapes, and any sandboxed execution behind a
// negotiated tool call is delegated to an implementation of Manager wired
// in at the composition root (cmd/agentcore), never imported directly by
// pkg/orchestrator or pkg/llmservice. Adapted from the teacher's
// pkg/sandbox.Manager/Delegate contract, generalized from a single-
// operative-per-container model to one sandbox per session.
package sandbox

import "context"

// Result is the output of one sandboxed cell execution.
type Result struct {
	Output string `json:"output,omitempty"`
	Stdout string `json:"stdout,omitempty"`
	Stderr string `json:"stderr,omitempty"`
}

// SessionLister lists session IDs for sandbox reconciliation, kept minimal
// to avoid this package depending on the gateway/session packages.
type SessionLister interface {
	ListIDs(ctx context.Context) ([]string, error)
}

// Delegate is the callback surface sandboxed code can invoke to interact
// with the owning session's model and event stream.
type Delegate interface {
	// PromptModel sends prompt through the session's LLM Service and
	// returns the text response. Used for sub-task delegation from within
	// a sandboxed tool invocation.
	PromptModel(ctx context.Context, prompt string) (string, error)

	// PromptSelf emits message back into the session's event stream as a
	// system-originated note, without waiting for a response.
	PromptSelf(ctx context.Context, message string) error
}

// Manager manages per-session sandbox containers used by tools that need
// code execution (as opposed to the pure function-call tools registered
// directly with the Tool Negotiator).
type Manager interface {
	// Run starts a long-running reconciliation loop keeping sandbox
	// containers in sync with known sessions, removing containers for
	// sessions no longer listed. Blocks until ctx is cancelled.
	Run(ctx context.Context, sessions SessionLister) error

	// RunCell executes code within the sandbox owned by sessionID. The
	// sandbox is launched on first use if it is not already running; Run's
	// reconciliation never starts sandboxes.
	RunCell(ctx context.Context, sessionID, code string, delegate Delegate) (*Result, error)

	// Status reports "running", "stopped", or "unknown" for sessionID.
	Status(ctx context.Context, sessionID string) (string, error)

	// Close releases resources held by the manager (e.g. a docker client).
	Close() error
}
