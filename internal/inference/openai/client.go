// Package openai calls OpenAI-compatible chat completion endpoints, such as the Hugging Face router.
package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/leemai/leemai/internal/inference"
	"resty.dev/v3"
)

type Client struct {
	httpClient *resty.Client
	model      string
}

func NewClient(baseURL, apiKey, model string) *Client {
	client := resty.New()
	client.SetBaseURL(baseURL)
	client.SetHeader("Authorization", "Bearer "+apiKey)
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

type ChatCompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	TopP        float64   `json:"top_p,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

type Role string

const RoleUser Role = "user"

type ChatCompletionResponse struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

type Choice struct {
	Index        int           `json:"index"`
	Message      ChoiceMessage `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

type ChoiceMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

func (client *Client) getRequestBody(args inference.GenerateRequest) ChatCompletionRequest {
	return ChatCompletionRequest{
		Model: client.model,
		Messages: []Message{
			{Role: RoleUser, Content: args.Prompt},
		},
		Temperature: args.Temperature,
		TopP:        args.TopP,
		MaxTokens:   args.MaxNewTokens,
	}
}

// Generate implements the inference.Client interface
func (client *Client) Generate(
	ctx context.Context,
	args inference.GenerateRequest,
) (inference.GenerateResponse, error) {
	requestBody := client.getRequestBody(args)

	response, err := client.httpClient.R().
		SetContext(ctx).
		SetBody(requestBody).
		Post("/chat/completions")
	if err != nil {
		return inference.GenerateResponse{}, inference.NewTransportError(ctx, client.model, fmt.Errorf("httpClient.Post > %w", err))
	}
	if response.IsError() {
		return inference.GenerateResponse{}, &inference.Error{
			Kind:       inference.Classify(response.StatusCode(), response.String()),
			Model:      client.model,
			StatusCode: response.StatusCode(),
			Err:        fmt.Errorf("response error %d: %s", response.StatusCode(), response.String()),
		}
	}

	var responseBody ChatCompletionResponse
	if err := json.NewDecoder(strings.NewReader(response.String())).Decode(&responseBody); err != nil {
		slog.Default().Error("Failed to parse chat completion response as JSON",
			"model", client.model,
			"error", err)
		return inference.GenerateResponse{}, &inference.Error{
			Kind:  inference.ErrorKindMalformed,
			Model: client.model,
			Err:   fmt.Errorf("json.Unmarshal(%s) > %w", response.String(), err),
		}
	}
	if len(responseBody.Choices) == 0 {
		return inference.GenerateResponse{}, &inference.Error{
			Kind:  inference.ErrorKindEmpty,
			Model: client.model,
			Err:   fmt.Errorf("empty response body or choices: %s", response.String()),
		}
	}

	content := responseBody.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return inference.GenerateResponse{}, &inference.Error{
			Kind:  inference.ErrorKindEmpty,
			Model: client.model,
			Err:   fmt.Errorf("empty response content: %s", response.String()),
		}
	}
	slog.Default().Debug("openai response content",
		"model", client.model,
		"finishReason", responseBody.Choices[0].FinishReason,
		"usage", responseBody.Usage,
	)

	return inference.GenerateResponse{
		Text:  content,
		Model: client.model,
	}, nil
}
