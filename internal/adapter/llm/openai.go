package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"docqa/internal/adapter/prompt"
	"github.com/sashabaranov/go-openai"
)

// greedyTemperature stands in for 0, which the request encoder omits.
const greedyTemperature = 1e-4

// OpenAICompletion calls an OpenAI compatible /completions endpoint with a
// raw prompt. text-generation-webui, llama.cpp server and vLLM all serve it.
// The chat markup is applied here, so the server must not add its own.
type OpenAICompletion struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
	stop        []string
	wrapper     *prompt.ChatWrapper
	logger      *slog.Logger
}

func NewOpenAICompletion(opts Options) (*OpenAICompletion, error) {
	opts.defaults()
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("llm.base_url is required for the openai provider")
	}
	if opts.Wrapper == nil {
		return nil, fmt.Errorf("chat wrapper is required for raw completions")
	}
	if opts.APIKey == "" {
		opts.APIKey = "no-key"
	}

	cfg := openai.DefaultConfig(opts.APIKey)
	cfg.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	cfg.HTTPClient = opts.HTTPClient

	temp := float32(opts.Temperature)
	if temp <= 0 {
		temp = greedyTemperature
	}

	return &OpenAICompletion{
		client:      openai.NewClientWithConfig(cfg),
		model:       opts.Model,
		maxTokens:   opts.MaxNewTokens,
		temperature: temp,
		stop:        opts.Stop,
		wrapper:     opts.Wrapper,
		logger:      opts.Logger,
	}, nil
}

func (c *OpenAICompletion) Complete(ctx context.Context, system, user string) (string, error) {
	raw := c.wrapper.Wrap(system, user)
	start := time.Now()
	c.logger.Debug("completion request", "model", c.model, "prompt_chars", len(raw), "max_tokens", c.maxTokens)

	resp, err := c.client.CreateCompletion(ctx, openai.CompletionRequest{
		Model:       c.model,
		Prompt:      raw,
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
		Stop:        c.stop,
	})
	if err != nil {
		c.logger.Error("completion failed", "model", c.model, "error", err)
		return "", fmt.Errorf("completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("completion returned no choices")
	}

	tokens := 0
	if resp.Usage != nil {
		tokens = resp.Usage.CompletionTokens
	}
	c.logger.Debug("completion done", "model", c.model,
		"finish_reason", resp.Choices[0].FinishReason,
		"completion_tokens", tokens,
		"elapsed", time.Since(start))
	return strings.TrimSpace(resp.Choices[0].Text), nil
}

func (c *OpenAICompletion) ModelName() string {
	return c.model
}
