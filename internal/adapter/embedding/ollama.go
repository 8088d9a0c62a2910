package embedding

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
)

// OllamaEmbedder embeds through a local Ollama server.
type OllamaEmbedder struct {
	embedder    *embeddings.EmbedderImpl
	model       string
	queryPrefix string
	dim         dimension
	logger      *slog.Logger
}

func NewOllamaEmbedder(opts Options) (*OllamaEmbedder, error) {
	opts.defaults()
	if opts.Model == "" {
		opts.Model = "nomic-embed-text"
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

	emb, err := embeddings.NewEmbedder(client,
		embeddings.WithBatchSize(opts.BatchSize),
		embeddings.WithStripNewLines(false),
	)
	if err != nil {
		return nil, fmt.Errorf("create ollama embedder: %w", err)
	}

	e := &OllamaEmbedder{
		embedder:    emb,
		model:       opts.Model,
		queryPrefix: opts.QueryPrefix,
		logger:      opts.Logger,
	}
	e.dim.n = opts.Dimension
	return e, nil
}

func (e *OllamaEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	e.logger.Debug("embedding batch", "provider", "ollama", "model", e.model, "count", len(texts))

	vecs, err := e.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("ollama embedding failed: %w", err)
	}
	if err := e.dim.observe(vecs, e.logger); err != nil {
		return nil, err
	}
	return vecs, nil
}

func (e *OllamaEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vec, err := e.embedder.EmbedQuery(ctx, e.queryPrefix+text)
	if err != nil {
		return nil, fmt.Errorf("ollama embedding failed: %w", err)
	}
	if err := e.dim.observe([][]float32{vec}, e.logger); err != nil {
		return nil, err
	}
	return vec, nil
}

func (e *OllamaEmbedder) Dimension() int {
	return e.dim.get()
}

func (e *OllamaEmbedder) ModelName() string {
	return e.model
}
