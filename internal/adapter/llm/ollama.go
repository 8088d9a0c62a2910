package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
)

// Ollama sends the system and user prompts as chat messages; the model's
// own template renders them, so no client side wrapper is applied.
type Ollama struct {
	llm         *ollama.LLM
	model       string
	maxTokens   int
	temperature float64
	stop        []string
	logger      *slog.Logger
}

func NewOllama(opts Options) (*Ollama, error) {
	opts.defaults()
	if opts.Model == "" {
		opts.Model = "llama2"
	}

	llmOpts := []ollama.Option{
		ollama.WithModel(opts.Model),
		ollama.WithHTTPClient(opts.HTTPClient),
	}
	if opts.BaseURL != "" {
		llmOpts = append(llmOpts, ollama.WithServerURL(opts.BaseURL))
	}
	client, err := ollama.New(llmOpts...)
	if err != nil {
		return nil, fmt.Errorf("create ollama client: %w", err)
	}

	return &Ollama{
		llm:         client,
		model:       opts.Model,
		maxTokens:   opts.MaxNewTokens,
		temperature: opts.Temperature,
		stop:        opts.Stop,
		logger:      opts.Logger,
	}, nil
}

func (o *Ollama) Complete(ctx context.Context, system, user string) (string, error) {
	o.logger.Debug("chat request", "provider", "ollama", "model", o.model, "prompt_chars", len(system)+len(user))

	var msgs []llms.MessageContent
	if system != "" {
		msgs = append(msgs, llms.TextParts(llms.ChatMessageTypeSystem, system))
	}
	msgs = append(msgs, llms.TextParts(llms.ChatMessageTypeHuman, user))

	resp, err := o.llm.GenerateContent(ctx, msgs,
		llms.WithTemperature(o.temperature),
		llms.WithMaxTokens(o.maxTokens),
		llms.WithStopWords(o.stop),
	)
	if err != nil {
		o.logger.Error("chat failed", "provider", "ollama", "model", o.model, "error", err)
		return "", fmt.Errorf("ollama chat failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("ollama returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Content), nil
}

func (o *Ollama) ModelName() string {
	return o.model
}
