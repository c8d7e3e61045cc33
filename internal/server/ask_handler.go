// Package server provides the HTTP handler that answers student questions.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/leemai/leemai/internal/config"
	"github.com/leemai/leemai/internal/inference"
	"github.com/leemai/leemai/internal/inference/fallback"
	"github.com/leemai/leemai/internal/metrics"
	"github.com/leemai/leemai/internal/prompt"
	"github.com/leemai/leemai/internal/validation"
)

// MaxRequestBodyBytes caps the size of an ask request body.
const MaxRequestBodyBytes = 64 << 10

// Messages returned in the answer field when no model answer is available.
// They are returned with status 200 so the front-end has a single success path.
const (
	MessageNotConfigured = "The AI service is not properly configured. Please contact support."
	MessageUnavailable   = "The AI service is currently unavailable. Please try again in a few minutes."
	MessageModelLoading  = "The AI model is currently loading. Please wait a moment and try again. (This is normal for the first request)"
	MessageUnexpected    = "An unexpected error occurred. Please try again. If the problem persists, contact support."
	MessageNoAnswer      = "I couldn't generate a response. Please try asking your question differently."
)

// AskRequest is the JSON body of an ask request.
type AskRequest struct {
	Question string `json:"question" validate:"notblank"`
	Language string `json:"language"`
}

// askRequestBody is the wire form of AskRequest. Language is optional and any
// value that is not a string selects the default answer language.
type askRequestBody struct {
	Question string `json:"question"`
	Language any    `json:"language"`
}

var errTrailingData = errors.New("request body must contain a single JSON value")

// AskResponse carries either an answer or a client error.
type AskResponse struct {
	Answer string `json:"answer,omitempty"`
	Error  string `json:"error,omitempty"`
}

// AskHandler answers a question with the first candidate model that produces text.
type AskHandler struct {
	client          inference.Client
	validator       *validation.Validator
	metrics         *metrics.Metrics
	hasCredential   bool
	allowedOrigin   string
	maxAnswerLength int
	generation      config.GenerationConfig
}

// NewAskHandler creates a new AskHandler.
func NewAskHandler(cfg *config.Config, client inference.Client, m *metrics.Metrics) (*AskHandler, error) {
	v, err := validation.New()
	if err != nil {
		return nil, fmt.Errorf("validation.New() > %w", err)
	}
	return &AskHandler{
		client:          client,
		validator:       v,
		metrics:         m,
		hasCredential:   cfg.HasCredential(),
		allowedOrigin:   cfg.Server.AllowedOrigin,
		maxAnswerLength: cfg.Answer.MaxLength,
		generation:      cfg.Generation,
	}, nil
}

func (h *AskHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := slog.Default().With("requestID", RequestIDFromContext(r.Context()))
	setCORSHeaders(w.Header(), h.allowedOrigin)

	defer func() {
		if recovered := recover(); recovered != nil {
			logger.Error("panic while answering a question",
				"panic", recovered,
				"stack", string(debug.Stack()))
			h.metrics.ObserveRequest(metrics.OutcomeInternal)
			writeJSON(w, http.StatusOK, AskResponse{Answer: MessageUnexpected})
		}
	}()

	switch r.Method {
	case http.MethodOptions:
		h.metrics.ObserveRequest(metrics.OutcomePreflight)
		w.WriteHeader(http.StatusOK)
		return
	case http.MethodPost:
	default:
		h.metrics.ObserveRequest(metrics.OutcomeClientError)
		writeJSON(w, http.StatusMethodNotAllowed, AskResponse{Error: "Only POST allowed"})
		return
	}

	req, err := h.decodeRequest(w, r)
	if err != nil {
		logger.Info("rejected ask request", "error", err)
		h.metrics.ObserveRequest(metrics.OutcomeClientError)
		writeJSON(w, http.StatusBadRequest, AskResponse{Error: err.Error()})
		return
	}

	if !h.hasCredential {
		logger.Error("HF_TOKEN is not configured")
		h.metrics.ObserveRequest(metrics.OutcomeUnconfigured)
		writeJSON(w, http.StatusOK, AskResponse{Answer: MessageNotConfigured})
		return
	}

	logger.Info("received question",
		"language", req.Language,
		"questionLength", len(req.Question))

	p := prompt.Build(req.Question, req.Language)
	response, err := h.client.Generate(r.Context(), inference.GenerateRequest{
		Prompt:       p,
		MaxNewTokens: h.generation.MaxNewTokens,
		Temperature:  h.generation.Temperature,
		TopP:         h.generation.TopP,
	})
	if err != nil {
		message, outcome := failureAnswer(err)
		logger.Error("no candidate model answered", "error", err, "outcome", outcome)
		h.metrics.ObserveRequest(outcome)
		writeJSON(w, http.StatusOK, AskResponse{Answer: message})
		return
	}

	answer := prompt.Clean(response.Text, p, h.maxAnswerLength)
	if answer == "" {
		answer = MessageNoAnswer
	}
	logger.Info("returning answer",
		"model", response.Model,
		"length", len(answer))
	h.metrics.ObserveRequest(metrics.OutcomeAnswered)
	writeJSON(w, http.StatusOK, AskResponse{Answer: answer})
}

func (h *AskHandler) decodeRequest(w http.ResponseWriter, r *http.Request) (AskRequest, error) {
	var body askRequestBody
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxRequestBodyBytes))
	err := decoder.Decode(&body)
	switch {
	case errors.Is(err, io.EOF):
		err = nil
	case err == nil:
		var trailing json.RawMessage
		if err = decoder.Decode(&trailing); errors.Is(err, io.EOF) {
			err = nil
		} else if err == nil {
			err = errTrailingData
		}
	}
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		var typeErr *json.UnmarshalTypeError
		switch {
		case errors.As(err, &maxBytesErr):
			return AskRequest{}, &requestError{message: fmt.Sprintf("Request body must not exceed %d bytes", MaxRequestBodyBytes)}
		case errors.As(err, &typeErr) && typeErr.Field != "":
			return AskRequest{}, &requestError{message: typeErr.Field + " must be a string"}
		default:
			return AskRequest{}, &requestError{message: "Invalid JSON in request body"}
		}
	}

	req := AskRequest{Question: body.Question}
	if language, ok := body.Language.(string); ok {
		req.Language = language
	}
	if err := h.validator.Struct(req); err != nil {
		return AskRequest{}, err
	}
	return req, nil
}

// requestError is a client mistake whose message is returned verbatim.
type requestError struct {
	message string
}

func (e *requestError) Error() string {
	return e.message
}

// failureAnswer picks the user-facing message for a failed generation.
func failureAnswer(err error) (string, string) {
	var exhausted *fallback.ExhaustedError
	if errors.As(err, &exhausted) {
		if exhausted.AllLoading() {
			return MessageModelLoading, metrics.OutcomeUnavailable
		}
		return MessageUnavailable, metrics.OutcomeUnavailable
	}
	switch inference.ErrorKindOf(err) {
	case inference.ErrorKindLoading:
		return MessageModelLoading, metrics.OutcomeUnavailable
	case inference.ErrorKindUnknown:
		if errors.Is(err, context.Canceled) {
			return MessageUnavailable, metrics.OutcomeUnavailable
		}
		return MessageUnexpected, metrics.OutcomeInternal
	default:
		return MessageUnavailable, metrics.OutcomeUnavailable
	}
}

func setCORSHeaders(header http.Header, allowedOrigin string) {
	header.Set("Access-Control-Allow-Origin", allowedOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	header.Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, statusCode int, body AskResponse) {
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Default().Error("failed to write response", "error", err)
	}
}

// NewFailedStartupHandler answers every question with MessageUnexpected. It is
// served when the ask handler could not be built, so callers still receive the
// usual CORS headers and a parseable answer.
func NewFailedStartupHandler(allowedOrigin string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setCORSHeaders(w.Header(), allowedOrigin)
		switch r.Method {
		case http.MethodOptions:
			w.WriteHeader(http.StatusOK)
		case http.MethodPost:
			writeJSON(w, http.StatusOK, AskResponse{Answer: MessageUnexpected})
		default:
			writeJSON(w, http.StatusMethodNotAllowed, AskResponse{Error: "Only POST allowed"})
		}
	})
}
