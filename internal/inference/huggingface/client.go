// Package huggingface calls the Hugging Face text-generation inference API.
package huggingface

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/leemai/leemai/internal/inference"
	"resty.dev/v3"
)

const DefaultBaseURL = "https://api-inference.huggingface.co"

type Client struct {
	httpClient *resty.Client
	model      string
}

func NewClient(baseURL, token, model string) *Client {
	client := resty.New()
	client.SetBaseURL(baseURL)
	client.SetHeader("Authorization", "Bearer "+token)
	client.SetHeader("Content-Type", "application/json")

	return &Client{
		httpClient: client,
		model:      model,
	}
}

func (client *Client) Close() error {
	return client.httpClient.Close()
}

// GetModel returns the model name configured for this client
func (client *Client) GetModel() string {
	return client.model
}

type TextGenerationRequest struct {
	Inputs     string     `json:"inputs"`
	Parameters Parameters `json:"parameters"`
}

type Parameters struct {
	MaxNewTokens   int     `json:"max_new_tokens,omitempty"`
	Temperature    float64 `json:"temperature,omitempty"`
	TopP           float64 `json:"top_p,omitempty"`
	ReturnFullText bool    `json:"return_full_text"`
}

// TextGenerationResult is one element of the response. The API answers with
// either a single object or an array of them, and reports failures through
// the same shape.
type TextGenerationResult struct {
	GeneratedText string  `json:"generated_text"`
	Error         string  `json:"error,omitempty"`
	EstimatedTime float64 `json:"estimated_time,omitempty"`
}

// Generate implements the inference.Client interface
func (client *Client) Generate(
	ctx context.Context,
	params inference.GenerateRequest,
) (inference.GenerateResponse, error) {
	requestBody := TextGenerationRequest{
		Inputs: params.Prompt,
		Parameters: Parameters{
			MaxNewTokens:   params.MaxNewTokens,
			Temperature:    params.Temperature,
			TopP:           params.TopP,
			ReturnFullText: false,
		},
	}

	response, err := client.httpClient.R().
		SetContext(ctx).
		SetBody(requestBody).
		Post("/models/" + client.model)
	if err != nil {
		return inference.GenerateResponse{}, inference.NewTransportError(ctx, client.model, fmt.Errorf("httpClient.Post > %w", err))
	}

	body := response.String()
	if response.IsError() {
		return inference.GenerateResponse{}, &inference.Error{
			Kind:       inference.Classify(response.StatusCode(), body),
			Model:      client.model,
			StatusCode: response.StatusCode(),
			Err:        fmt.Errorf("response error %d: %s", response.StatusCode(), errorMessage(body)),
		}
	}

	results, err := decodeResults([]byte(body))
	if err != nil {
		slog.Default().Error("Failed to parse Hugging Face response as JSON",
			"model", client.model,
			"error", err)
		return inference.GenerateResponse{}, &inference.Error{
			Kind:  inference.ErrorKindMalformed,
			Model: client.model,
			Err:   fmt.Errorf("json.Unmarshal(%s) > %w", truncate(body, 200), err),
		}
	}
	slog.Default().Debug("huggingface response",
		"model", client.model,
		"results", len(results),
	)

	if len(results) == 0 {
		return inference.GenerateResponse{}, &inference.Error{
			Kind:  inference.ErrorKindEmpty,
			Model: client.model,
			Err:   fmt.Errorf("empty response body: %s", truncate(body, 200)),
		}
	}

	first := results[0]
	if first.Error != "" {
		kind := inference.ErrorKindStatus
		if first.EstimatedTime > 0 || inference.IsLoadingMessage(first.Error) {
			kind = inference.ErrorKindLoading
		}
		return inference.GenerateResponse{}, &inference.Error{
			Kind:       kind,
			Model:      client.model,
			StatusCode: response.StatusCode(),
			Err:        fmt.Errorf("model error: %s", first.Error),
		}
	}
	if strings.TrimSpace(first.GeneratedText) == "" {
		return inference.GenerateResponse{}, &inference.Error{
			Kind:  inference.ErrorKindEmpty,
			Model: client.model,
			Err:   fmt.Errorf("empty generated_text"),
		}
	}

	return inference.GenerateResponse{
		Text:  first.GeneratedText,
		Model: client.model,
	}, nil
}

func decodeResults(body []byte) ([]TextGenerationResult, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var results []TextGenerationResult
		if err := json.Unmarshal(trimmed, &results); err != nil {
			return nil, err
		}
		return results, nil
	}

	var result TextGenerationResult
	if err := json.Unmarshal(trimmed, &result); err != nil {
		return nil, err
	}
	return []TextGenerationResult{result}, nil
}

// errorMessage extracts the "error" field of a failed response, falling back to the raw body.
func errorMessage(body string) string {
	var result TextGenerationResult
	if err := json.Unmarshal([]byte(body), &result); err == nil && result.Error != "" {
		return result.Error
	}
	return truncate(body, 200)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
