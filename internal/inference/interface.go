package inference

import (
	"context"
)

//go:generate mockgen -source=interface.go -destination=../mocks/inference/mock_client.go -package=mock_inference

// Client interface defines the methods for text generation against a hosted model
type Client interface {
	Generate(ctx context.Context, params GenerateRequest) (GenerateResponse, error)
}

// GenerateRequest holds the composed prompt and sampling parameters
type GenerateRequest struct {
	Prompt       string  `json:"prompt"`
	MaxNewTokens int     `json:"max_new_tokens"`
	Temperature  float64 `json:"temperature"`
	TopP         float64 `json:"top_p"`
}

type GenerateResponse struct {
	Text  string `json:"text"`
	Model string `json:"model"` // Model that produced Text
}
