// Package domain holds the shared vocabulary of the orchestration core: chat
// turns, agents, sessions and the small set of enums that thread through every
// other package.
package domain

// Role identifies the sender of a chat turn.
type Role string

const (
	// RoleSystem is a system-level instruction. At most one leading system
	// message is permitted per turn sequence.
	RoleSystem Role = "system"
	// RoleUser is a message from the end user.
	RoleUser Role = "user"
	// RoleAssistant is a message produced by an agent.
	RoleAssistant Role = "assistant"
	// RoleTool is the result of a tool invocation.
	RoleTool Role = "tool"
)

// Strategy names the coordination mode for one orchestration.
type Strategy string

const (
	StrategyParallel    Strategy = "parallel"
	StrategySequential  Strategy = "sequential"
	StrategyPipeline    Strategy = "pipeline"
	StrategyCompetitive Strategy = "competitive"
	StrategyConsensus   Strategy = "consensus"
)
