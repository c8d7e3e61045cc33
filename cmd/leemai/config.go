package main

import (
	"fmt"
	"io"

	"github.com/leemai/leemai/internal/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const redacted = "********"

func newConfigCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			return printConfig(cmd.OutOrStdout(), cfg)
		},
	}
}

func printConfig(out io.Writer, cfg *config.Config) error {
	printable := *cfg
	if printable.HasCredential() {
		printable.HuggingFace.Token = redacted
	}

	encoder := yaml.NewEncoder(out)
	encoder.SetIndent(2)
	if err := encoder.Encode(printable); err != nil {
		return fmt.Errorf("encoder.Encode() > %w", err)
	}
	return encoder.Close()
}
