package huggingface

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/leemai/leemai/internal/inference"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Generate(t *testing.T) {
	request := inference.GenerateRequest{
		Prompt:       "Question: What is osmosis?\n\nAnswer:",
		MaxNewTokens: 400,
		Temperature:  0.7,
		TopP:         0.95,
	}

	tests := []struct {
		name              string
		mockServerHandler func(t *testing.T, w http.ResponseWriter, r *http.Request)

		wantResponse inference.GenerateResponse
		wantKind     inference.ErrorKind
		wantStatus   int
	}{
		{
			name: "array response",
			mockServerHandler: func(t *testing.T, w http.ResponseWriter, r *http.Request) {
				// Verify request
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "/models/mistralai/Mistral-7B-Instruct-v0.2", r.URL.Path)
				assert.Equal(t, "Bearer hf_test", r.Header.Get("Authorization"))
				assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

				var reqBody TextGenerationRequest
				err := json.NewDecoder(r.Body).Decode(&reqBody)
				require.NoError(t, err)
				assert.Equal(t, request.Prompt, reqBody.Inputs)
				assert.Equal(t, 400, reqBody.Parameters.MaxNewTokens)
				assert.Equal(t, 0.95, reqBody.Parameters.TopP)
				assert.False(t, reqBody.Parameters.ReturnFullText)

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write([]byte(`[{"generated_text": " Osmosis is the movement of water."}]`))
			},
			wantResponse: inference.GenerateResponse{
				Text:  " Osmosis is the movement of water.",
				Model: "mistralai/Mistral-7B-Instruct-v0.2",
			},
		},
		{
			name: "object response",
			mockServerHandler: func(t *testing.T, w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(`{"generated_text": "Photosynthesis makes food."}`))
			},
			wantResponse: inference.GenerateResponse{
				Text:  "Photosynthesis makes food.",
				Model: "mistralai/Mistral-7B-Instruct-v0.2",
			},
		},
		{
			name: "model loading with 503",
			mockServerHandler: func(t *testing.T, w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"error": "Model mistralai/Mistral-7B-Instruct-v0.2 is currently loading", "estimated_time": 20.0}`))
			},
			wantKind:   inference.ErrorKindLoading,
			wantStatus: http.StatusServiceUnavailable,
		},
		{
			name: "loading error in a successful response",
			mockServerHandler: func(t *testing.T, w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"error": "Loading", "estimated_time": 12.5}`))
			},
			wantKind:   inference.ErrorKindLoading,
			wantStatus: http.StatusOK,
		},
		{
			name: "model error in array",
			mockServerHandler: func(t *testing.T, w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`[{"error": "Input validation error"}]`))
			},
			wantKind:   inference.ErrorKindStatus,
			wantStatus: http.StatusOK,
		},
		{
			name: "unauthorized",
			mockServerHandler: func(t *testing.T, w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error": "Invalid credentials in Authorization header"}`))
			},
			wantKind:   inference.ErrorKindAuth,
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "HTTP 500 error",
			mockServerHandler: func(t *testing.T, w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte(`internal error`))
			},
			wantKind:   inference.ErrorKindStatus,
			wantStatus: http.StatusInternalServerError,
		},
		{
			name: "empty generated text",
			mockServerHandler: func(t *testing.T, w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`[{"generated_text": "   \n"}]`))
			},
			wantKind: inference.ErrorKindEmpty,
		},
		{
			name: "empty array",
			mockServerHandler: func(t *testing.T, w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`[]`))
			},
			wantKind: inference.ErrorKindEmpty,
		},
		{
			name: "invalid JSON response",
			mockServerHandler: func(t *testing.T, w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`<html>gateway</html>`))
			},
			wantKind: inference.ErrorKindMalformed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				tt.mockServerHandler(t, w, r)
			}))
			defer server.Close()

			client := NewClient(server.URL, "hf_test", "mistralai/Mistral-7B-Instruct-v0.2")
			defer func() {
				_ = client.Close()
			}()

			gotResponse, gotErr := client.Generate(context.Background(), request)

			if tt.wantKind != "" {
				require.Error(t, gotErr)
				var inferenceErr *inference.Error
				require.ErrorAs(t, gotErr, &inferenceErr)
				assert.Equal(t, tt.wantKind, inferenceErr.Kind)
				assert.Equal(t, tt.wantStatus, inferenceErr.StatusCode)
				assert.Equal(t, "mistralai/Mistral-7B-Instruct-v0.2", inferenceErr.Model)
				return
			}

			require.NoError(t, gotErr)
			assert.Equal(t, tt.wantResponse, gotResponse)
		})
	}
}

func TestClient_Generate_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	client := NewClient(server.URL, "hf_test", "google/flan-t5-large")
	defer func() {
		_ = client.Close()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.Generate(ctx, inference.GenerateRequest{Prompt: "hello"})
	require.Error(t, err)
	assert.Equal(t, inference.ErrorKindTimeout, inference.ErrorKindOf(err))
}
