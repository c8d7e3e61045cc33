// Package fallback tries an ordered list of candidate models until one answers.
package fallback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"github.com/leemai/leemai/internal/inference"
	"github.com/leemai/leemai/internal/metrics"
)

const DefaultAttemptTimeout = 25 * time.Second

// Candidate is one upstream model in the fallback order.
type Candidate struct {
	Name    string
	Model   string
	Timeout time.Duration
	Client  inference.Client
}

// Chain implements inference.Client by trying its candidates one after another.
// Only one call is in flight at a time.
type Chain struct {
	candidates []Candidate
	metrics    *metrics.Metrics
}

func NewChain(candidates []Candidate, m *metrics.Metrics) *Chain {
	return &Chain{
		candidates: candidates,
		metrics:    m,
	}
}

// Candidates returns the candidates in the order they are attempted.
func (chain *Chain) Candidates() []Candidate {
	return append([]Candidate(nil), chain.candidates...)
}

// Generate implements the inference.Client interface
func (chain *Chain) Generate(
	ctx context.Context,
	params inference.GenerateRequest,
) (inference.GenerateResponse, error) {
	if len(chain.candidates) == 0 {
		return inference.GenerateResponse{}, &ExhaustedError{}
	}

	var (
		result   inference.GenerateResponse
		attempts []AttemptError
		next     int
	)
	err := retry.Do(
		func() error {
			candidate := chain.candidates[next]
			next++

			response, err := chain.attempt(ctx, candidate, params)
			if err != nil {
				attempts = append(attempts, AttemptError{Candidate: candidate.name(), Err: err})
				return err
			}
			result = response
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(uint(len(chain.candidates))),
		retry.Delay(0),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(error) bool {
			return ctx.Err() == nil
		}),
	)
	if err == nil {
		return result, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return inference.GenerateResponse{}, fmt.Errorf("fallback chain stopped after %d attempt(s) > %w", len(attempts), ctxErr)
	}
	return inference.GenerateResponse{}, &ExhaustedError{Attempts: attempts}
}

func (chain *Chain) attempt(
	ctx context.Context,
	candidate Candidate,
	params inference.GenerateRequest,
) (inference.GenerateResponse, error) {
	timeout := candidate.Timeout
	if timeout <= 0 {
		timeout = DefaultAttemptTimeout
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	response, err := candidate.Client.Generate(attemptCtx, params)
	if err == nil && strings.TrimSpace(response.Text) == "" {
		err = &inference.Error{Kind: inference.ErrorKindEmpty, Model: candidate.Model, Err: errors.New("empty output")}
	}
	if err != nil && ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		var inferenceErr *inference.Error
		if !errors.As(err, &inferenceErr) || inferenceErr.Kind != inference.ErrorKindTimeout {
			err = &inference.Error{Kind: inference.ErrorKindTimeout, Model: candidate.Model, Err: err}
		}
	}
	elapsed := time.Since(start)

	if err != nil {
		kind := inference.ErrorKindOf(err)
		chain.metrics.ObserveAttempt(candidate.name(), string(kind), elapsed)
		slog.Default().Warn("candidate model failed, trying next",
			"candidate", candidate.name(),
			"model", candidate.Model,
			"kind", kind,
			"elapsed", elapsed,
			"error", err)
		return inference.GenerateResponse{}, err
	}

	chain.metrics.ObserveAttempt(candidate.name(), "success", elapsed)
	slog.Default().Info("candidate model answered",
		"candidate", candidate.name(),
		"model", candidate.Model,
		"elapsed", elapsed,
		"length", len(response.Text))
	if response.Model == "" {
		response.Model = candidate.Model
	}
	return response, nil
}

func (c Candidate) name() string {
	if c.Name != "" {
		return c.Name
	}
	return c.Model
}

// AttemptError records why one candidate was discarded.
type AttemptError struct {
	Candidate string
	Err       error
}

// ExhaustedError is returned when every candidate failed.
type ExhaustedError struct {
	Attempts []AttemptError
}

func (e *ExhaustedError) Error() string {
	if len(e.Attempts) == 0 {
		return "no candidate models configured"
	}
	messages := make([]string, 0, len(e.Attempts))
	for _, attempt := range e.Attempts {
		messages = append(messages, fmt.Sprintf("%s: %v", attempt.Candidate, attempt.Err))
	}
	return fmt.Sprintf("all %d candidate models failed: %s", len(e.Attempts), strings.Join(messages, "; "))
}

func (e *ExhaustedError) Unwrap() []error {
	errs := make([]error, 0, len(e.Attempts))
	for _, attempt := range e.Attempts {
		errs = append(errs, attempt.Err)
	}
	return errs
}

// AllLoading reports whether every candidate failed because its model was still loading.
func (e *ExhaustedError) AllLoading() bool {
	if len(e.Attempts) == 0 {
		return false
	}
	for _, attempt := range e.Attempts {
		if inference.ErrorKindOf(attempt.Err) != inference.ErrorKindLoading {
			return false
		}
	}
	return true
}
