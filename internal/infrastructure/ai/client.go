// Package ai wraps the chat completion endpoint used for advisor answers,
// executive briefings and weekly digests.
package ai

import (
	"context"
	stderrors "errors"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/turtacn/compliance-advisor/internal/config"
	"github.com/turtacn/compliance-advisor/pkg/errors"
	"github.com/turtacn/compliance-advisor/pkg/logger"
)

// ModelClient produces a completion for a system prompt and a user message.
type ModelClient interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// OpenAIClient implements ModelClient for Azure OpenAI and OpenAI-compatible endpoints.
type OpenAIClient struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
	log         logger.Logger
}

// NewModelClient builds the client for the configured provider.
func NewModelClient(cfg *config.AIConfig, log logger.Logger) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.Validation("ai.api_key is required")
	}
	if cfg.Model == "" {
		return nil, errors.Validation("ai.model is required")
	}

	var clientConfig openai.ClientConfig
	switch strings.ToLower(cfg.Provider) {
	case "azure":
		if cfg.Endpoint == "" {
			return nil, errors.Validation("ai.endpoint is required for azure")
		}
		clientConfig = openai.DefaultAzureConfig(cfg.APIKey, cfg.Endpoint)
		if cfg.APIVersion != "" {
			clientConfig.APIVersion = cfg.APIVersion
		}
	default:
		clientConfig = openai.DefaultConfig(cfg.APIKey)
		if cfg.Endpoint != "" {
			clientConfig.BaseURL = cfg.Endpoint
		}
	}
	clientConfig.HTTPClient = &http.Client{Timeout: 60 * time.Second}

	return &OpenAIClient{
		client:      openai.NewClientWithConfig(clientConfig),
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		log:         log.WithComponent("model_client"),
	}, nil
}

// Complete runs one non-streaming chat completion.
func (c *OpenAIClient) Complete(ctx context.Context, system, user string) (string, error) {
	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		c.log.Error(ctx, "Chat completion failed", err, logger.String("model", c.model))
		return "", classify(err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.Upstream("model returned no choices")
	}

	c.log.Debug(ctx, "Chat completion finished",
		logger.String("model", c.model),
		logger.Int("prompt_tokens", resp.Usage.PromptTokens),
		logger.Int("completion_tokens", resp.Usage.CompletionTokens),
		logger.Int64("latency_ms", time.Since(start).Milliseconds()),
	)
	return resp.Choices[0].Message.Content, nil
}

func classify(err error) error {
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case stderrors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case stderrors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}
	if status == 0 || status == http.StatusTooManyRequests || status >= 500 {
		return errors.TransientUpstream("model request failed").WithCause(err)
	}
	return errors.Upstream("model request rejected with status %d", status).WithCause(err)
}

// DisabledClient fails every call so callers fall back to their deterministic path.
type DisabledClient struct{}

func (DisabledClient) Complete(context.Context, string, string) (string, error) {
	return "", errors.Upstream("model inference is disabled")
}
