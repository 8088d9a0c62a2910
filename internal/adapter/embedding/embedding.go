package embedding

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"docqa/config"
	"docqa/internal/port"
)

const defaultBatchSize = 32

// Options configures the HTTP backed embedders.
type Options struct {
	Model       string
	BaseURL     string
	APIKey      string
	Dimension   int // 0 = learn from the first response
	BatchSize   int
	QueryPrefix string
	TEI         bool
	HTTPClient  *http.Client
	Logger      *slog.Logger
}

func (o *Options) defaults() {
	if o.BatchSize <= 0 {
		o.BatchSize = defaultBatchSize
	}
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{Timeout: 120 * time.Second}
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// New builds the embedder selected by cfg.
func New(cfg config.EmbeddingConfig, logger *slog.Logger) (port.Embedder, error) {
	opts := Options{
		Model:       cfg.Model,
		BaseURL:     cfg.BaseURL,
		Dimension:   cfg.Dimension,
		BatchSize:   cfg.BatchSize,
		QueryPrefix: cfg.QueryPrefix,
		TEI:         cfg.TEI,
		Logger:      logger,
	}
	if cfg.APIKeyEnv != "" {
		opts.APIKey = os.Getenv(cfg.APIKeyEnv)
	}

	switch cfg.Provider {
	case "huggingface":
		return NewHuggingFaceEmbedder(opts), nil
	case "openai":
		return NewOpenAIEmbedder(opts)
	case "ollama":
		return NewOllamaEmbedder(opts)
	case "mock":
		dim := cfg.Dimension
		if dim <= 0 {
			dim = 384
		}
		return NewMockEmbedder(dim), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Provider)
	}
}

// dimension tracks the vector width a model produces.
type dimension struct {
	mu      sync.Mutex
	n       int
	learned bool
}

func (d *dimension) get() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.n
}

// observe records the width of vecs and rejects ragged responses. The
// configured width is only a hint until the first response arrives.
func (d *dimension) observe(vecs [][]float32, logger *slog.Logger) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, v := range vecs {
		if len(v) == 0 {
			return fmt.Errorf("empty embedding returned")
		}
		if !d.learned {
			if d.n != 0 && d.n != len(v) && logger != nil {
				logger.Warn("embedding dimension differs from configuration", "configured", d.n, "actual", len(v))
			}
			d.n = len(v)
			d.learned = true
			continue
		}
		if len(v) != d.n {
			return fmt.Errorf("embedding dimension mismatch: expected %d, got %d", d.n, len(v))
		}
	}
	return nil
}
