// Package ai wraps the generative backend: quest generation from a
// configuration plus POI context, and multimodal photo verification.
// Responses are decoded against a strict schema and fail closed.
package ai

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// ErrInvalidRequest marks a precondition violation by the caller.
var ErrInvalidRequest = errors.New("invalid request")

const (
	outcomeOK              = "ok"
	outcomeInvalidRequest  = "invalid_request"
	outcomeProviderError   = "provider_error"
	outcomeInvalidResponse = "invalid_response"
)

type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	VisionModel string
	Temperature float32
}

// Recorder receives one observation per backend call.
type Recorder interface {
	Generation(outcome string, d time.Duration)
	Verification(outcome string, d time.Duration)
}

type Client struct {
	api      *openai.Client
	cfg      Config
	prompts  *Prompts
	logger   *slog.Logger
	recorder Recorder
}

func NewClient(cfg Config, httpClient *http.Client, prompts *Prompts, logger *slog.Logger, rec Recorder) *Client {
	if cfg.Model == "" {
		cfg.Model = openai.GPT4oMini
	}
	if cfg.VisionModel == "" {
		cfg.VisionModel = cfg.Model
	}

	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	if httpClient != nil {
		oc.HTTPClient = httpClient
	}

	return &Client{
		api:      openai.NewClientWithConfig(oc),
		cfg:      cfg,
		prompts:  prompts,
		logger:   logger,
		recorder: rec,
	}
}

// complete sends one chat completion in JSON-object mode and returns the
// raw content of the first choice.
func (c *Client) complete(ctx context.Context, model string, messages []openai.ChatCompletionMessage, temperature float32) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: temperature,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errEmptyCompletion
	}
	return resp.Choices[0].Message.Content, nil
}

var errEmptyCompletion = errors.New("backend returned no choices")

// providerFailure extracts the HTTP status and message of a failed call.
func providerFailure(err error) (int, string) {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode, apiErr.Message
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode, reqErr.Error()
	}
	return 0, err.Error()
}

func (c *Client) observeGeneration(outcome string, start time.Time) {
	if c.recorder != nil {
		c.recorder.Generation(outcome, time.Since(start))
	}
}

func (c *Client) observeVerification(outcome string, start time.Time) {
	if c.recorder != nil {
		c.recorder.Verification(outcome, time.Since(start))
	}
}

// stripFences removes a markdown code fence some models still wrap
// around JSON-mode output.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
