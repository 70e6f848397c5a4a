package main

import (
	"github.com/spf13/cobra"
)

// newRootCmd builds the agentcore CLI, grounded on dimetron-kagent's
// adk.NewADKCmd root/subcommand split.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agentcore",
		Short: "Multi-provider LLM orchestration core",
		Long: `agentcore runs the orchestration engine, resilience layer and
websocket client gateway described in the project's specification.

Available subcommands:
  serve         Start the gateway server
  models list   List registered models and their fallback chains`,
	}

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newModelsCmd())

	return cmd
}
