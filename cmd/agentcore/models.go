package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/meridian-ai/agentcore/pkg/credential"
)

// newModelsCmd groups model-registry reporting subcommands, grounded on
// dimetron-kagent's adk.NewADKCmd pattern of a thin parent command whose
// only job is to gather subcommands.
func newModelsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "Inspect the logical model registry",
	}
	cmd.AddCommand(newModelsListCmd())
	return cmd
}

func newModelsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered models, their provider and fallback chain",
		RunE: func(cmd *cobra.Command, args []string) error {
			models, _ := registerModels(context.Background(), credential.EnvProvider{})

			cfgs := models.List()
			sort.Slice(cfgs, func(i, j int) bool { return cfgs[i].Model < cfgs[j].Model })

			bold := color.New(color.Bold)
			green := color.New(color.FgGreen)
			dim := color.New(color.FgHiBlack)

			if len(cfgs) == 0 {
				dim.Println("no models registered (no provider credentials resolved)")
				return nil
			}

			for _, cfg := range cfgs {
				bold.Printf("%s\n", cfg.Model)
				fmt.Printf("  provider: %s\n", cfg.Provider)
				fmt.Printf("  api name: %s\n", cfg.APIName)
				fmt.Printf("  context window: %d tokens\n", cfg.ContextWindowTokens)
				if chain := models.FallbackChain(cfg.Model); len(chain) > 0 {
					green.Printf("  fallback: %v\n", chain)
				} else {
					dim.Println("  fallback: (none)")
				}
			}
			return nil
		},
	}
}
