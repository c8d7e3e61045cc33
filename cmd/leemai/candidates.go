package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/leemai/leemai/internal/config"
	"github.com/spf13/cobra"
)

func newCandidatesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "candidates",
		Short: "List the candidate models in the order they are tried",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			return printCandidates(cmd.OutOrStdout(), cfg.Candidates)
		},
	}
}

func printCandidates(out io.Writer, candidates []config.CandidateConfig) error {
	bold := color.New(color.Bold)
	for i, candidate := range candidates {
		if _, err := fmt.Fprintf(out, "%d. %s  %s, %s, timeout %s\n",
			i+1,
			bold.Sprint(candidate.DisplayName()),
			candidate.Provider,
			candidate.Model,
			candidate.Timeout,
		); err != nil {
			return fmt.Errorf("fmt.Fprintf() > %w", err)
		}
	}
	return nil
}
