package llm

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"docqa/config"
	"docqa/internal/adapter/prompt"
	"docqa/internal/port"
)

// Options configures the model clients.
type Options struct {
	Model        string
	BaseURL      string
	APIKey       string
	MaxNewTokens int
	Temperature  float64
	Stop         []string
	Wrapper      *prompt.ChatWrapper // raw completion clients only
	HTTPClient   *http.Client
	Logger       *slog.Logger
}

func (o *Options) defaults() {
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{Timeout: 10 * time.Minute}
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// New builds the language model client selected by cfg.
func New(cfg config.LLMConfig, promptCfg config.PromptConfig, logger *slog.Logger) (port.LLM, error) {
	wrapper, err := prompt.NewChatWrapper(promptCfg.QueryWrapper)
	if err != nil {
		return nil, err
	}

	opts := Options{
		Model:        cfg.Model,
		BaseURL:      cfg.BaseURL,
		MaxNewTokens: cfg.MaxNewTokens,
		Temperature:  cfg.Temperature,
		Stop:         []string{"</s>"},
		Wrapper:      wrapper,
		Logger:       logger,
	}
	if cfg.APIKeyEnv != "" {
		opts.APIKey = os.Getenv(cfg.APIKeyEnv)
	}
	if cfg.TimeoutSec > 0 {
		opts.HTTPClient = &http.Client{Timeout: time.Duration(cfg.TimeoutSec) * time.Second}
	}

	switch cfg.Provider {
	case "openai":
		return NewOpenAICompletion(opts)
	case "ollama":
		return NewOllama(opts)
	case "mock":
		return NewMock(opts.Wrapper), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", cfg.Provider)
	}
}
