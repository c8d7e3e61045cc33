package bootstrap

import (
	"errors"
	"fmt"

	"github.com/leemai/leemai/internal/config"
	"github.com/leemai/leemai/internal/inference/fallback"
	"github.com/leemai/leemai/internal/inference/huggingface"
	"github.com/leemai/leemai/internal/inference/openai"
	"github.com/leemai/leemai/internal/metrics"
	"github.com/leemai/leemai/internal/server"
)

type closableClient interface {
	Close() error
}

// NewChain builds one provider client per configured candidate, in order.
// The returned function closes every client.
func NewChain(cfg *config.Config, m *metrics.Metrics) (*fallback.Chain, func() error, error) {
	candidates := make([]fallback.Candidate, 0, len(cfg.Candidates))
	closers := make([]closableClient, 0, len(cfg.Candidates))
	closeAll := func() error {
		var errs []error
		for _, c := range closers {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}

	for _, candidateConfig := range cfg.Candidates {
		candidate := fallback.Candidate{
			Name:    candidateConfig.DisplayName(),
			Model:   candidateConfig.Model,
			Timeout: candidateConfig.Timeout,
		}
		switch candidateConfig.Provider {
		case config.ProviderHuggingFace:
			client := huggingface.NewClient(cfg.HuggingFace.BaseURL, cfg.HuggingFace.Token, candidateConfig.Model)
			candidate.Client = client
			closers = append(closers, client)
		case config.ProviderOpenAI:
			client := openai.NewClient(cfg.HuggingFace.RouterURL, cfg.HuggingFace.Token, candidateConfig.Model)
			candidate.Client = client
			closers = append(closers, client)
		default:
			_ = closeAll()
			return nil, nil, fmt.Errorf("unknown provider %q for candidate %s", candidateConfig.Provider, candidate.Name)
		}
		candidates = append(candidates, candidate)
	}

	return fallback.NewChain(candidates, m), closeAll, nil
}

// NewAskHandler builds the fallback chain and the HTTP handler on top of it.
func NewAskHandler(cfg *config.Config, m *metrics.Metrics) (*server.AskHandler, func() error, error) {
	chain, closeChain, err := NewChain(cfg, m)
	if err != nil {
		return nil, nil, fmt.Errorf("NewChain() > %w", err)
	}
	handler, err := server.NewAskHandler(cfg, chain, m)
	if err != nil {
		_ = closeChain()
		return nil, nil, fmt.Errorf("server.NewAskHandler() > %w", err)
	}
	return handler, closeChain, nil
}
