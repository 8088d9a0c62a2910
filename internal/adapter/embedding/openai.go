package embedding

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sashabaranov/go-openai"
	"github.com/tmc/langchaingo/embeddings"
)

const openAIBaseURL = "https://api.openai.com/v1"

// OpenAIEmbedder talks to any OpenAI compatible /embeddings endpoint:
// OpenAI itself, llama.cpp server, LocalAI or text-generation-webui.
type OpenAIEmbedder struct {
	client      *openai.Client
	model       string
	batchSize   int
	queryPrefix string
	dim         dimension
	logger      *slog.Logger
}

func NewOpenAIEmbedder(opts Options) (*OpenAIEmbedder, error) {
	opts.defaults()
	if opts.BaseURL == "" {
		opts.BaseURL = openAIBaseURL
	}
	if opts.APIKey == "" {
		if opts.BaseURL == openAIBaseURL {
			return nil, fmt.Errorf("API key required for %s", openAIBaseURL)
		}
		// local servers ignore the key but go-openai always sends one
		opts.APIKey = "no-key"
	}
	if opts.Model == "" {
		opts.Model = string(openai.SmallEmbedding3)
	}

	cfg := openai.DefaultConfig(opts.APIKey)
	cfg.BaseURL = opts.BaseURL
	cfg.HTTPClient = opts.HTTPClient

	e := &OpenAIEmbedder{
		client:      openai.NewClientWithConfig(cfg),
		model:       opts.Model,
		batchSize:   opts.BatchSize,
		queryPrefix: opts.QueryPrefix,
		logger:      opts.Logger,
	}
	e.dim.n = opts.Dimension
	return e, nil
}

func (e *OpenAIEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	all := make([][]float32, 0, len(texts))
	for _, batch := range embeddings.BatchTexts(texts, e.batchSize) {
		vecs, err := e.embedBatch(ctx, batch)
		if err != nil {
			return nil, err
		}
		all = append(all, vecs...)
	}
	return all, nil
}

func (e *OpenAIEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.embedBatch(ctx, []string{e.queryPrefix + text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *OpenAIEmbedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.logger.Debug("embedding batch", "provider", "openai", "model", e.model, "count", len(texts))

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, fmt.Errorf("openai embedding failed: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai returned %d embeddings for %d inputs", len(resp.Data), len(texts))
	}

	vecs := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(vecs) {
			return nil, fmt.Errorf("openai returned out of range index %d", d.Index)
		}
		vecs[d.Index] = d.Embedding
	}
	if err := e.dim.observe(vecs, e.logger); err != nil {
		return nil, err
	}
	return vecs, nil
}

func (e *OpenAIEmbedder) Dimension() int {
	return e.dim.get()
}

func (e *OpenAIEmbedder) ModelName() string {
	return e.model
}
