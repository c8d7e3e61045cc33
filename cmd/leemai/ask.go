package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/leemai/leemai/internal/bootstrap"
	"github.com/leemai/leemai/internal/config"
	"github.com/leemai/leemai/internal/inference"
	"github.com/leemai/leemai/internal/inference/fallback"
	"github.com/leemai/leemai/internal/prompt"
	"github.com/spf13/cobra"
)

func newAskCommand() *cobra.Command {
	var language string

	command := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a question and print the first answer from the candidate models",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			if !cfg.HasCredential() {
				return errors.New("HF_TOKEN environment variable is required")
			}

			chain, closeChain, err := bootstrap.NewChain(cfg, nil)
			if err != nil {
				return fmt.Errorf("bootstrap.NewChain() > %w", err)
			}
			defer func() {
				_ = closeChain()
			}()

			return runAsk(cmd.Context(), cmd.OutOrStdout(), cfg, chain, strings.Join(args, " "), language)
		},
	}
	command.Flags().StringVarP(&language, "language", "l", "", `answer language tag, "ur" for Urdu`)
	return command
}

func runAsk(ctx context.Context, out io.Writer, cfg *config.Config, client inference.Client, question, language string) error {
	question = strings.TrimSpace(question)
	if question == "" {
		return errors.New("question must not be empty")
	}

	p := prompt.Build(question, language)
	response, err := client.Generate(ctx, inference.GenerateRequest{
		Prompt:       p,
		MaxNewTokens: cfg.Generation.MaxNewTokens,
		Temperature:  cfg.Generation.Temperature,
		TopP:         cfg.Generation.TopP,
	})
	if err != nil {
		var exhausted *fallback.ExhaustedError
		if !errors.As(err, &exhausted) {
			return fmt.Errorf("client.Generate() > %w", err)
		}
		red := color.New(color.FgRed)
		for _, attempt := range exhausted.Attempts {
			if _, err := red.Fprintf(out, "✗ %s: %s\n", attempt.Candidate, inference.ErrorKindOf(attempt.Err)); err != nil {
				return fmt.Errorf("red.Fprintf() > %w", err)
			}
		}
		return fmt.Errorf("no candidate model answered: %w", err)
	}

	answer := prompt.Clean(response.Text, p, cfg.Answer.MaxLength)
	if answer == "" {
		return fmt.Errorf("model %s returned only the prompt", response.Model)
	}
	if _, err := color.New(color.Faint).Fprintf(out, "(%s)\n", response.Model); err != nil {
		return fmt.Errorf("color.Fprintf() > %w", err)
	}
	if _, err := color.New(color.FgGreen).Fprintln(out, answer); err != nil {
		return fmt.Errorf("color.Fprintln() > %w", err)
	}
	return nil
}
