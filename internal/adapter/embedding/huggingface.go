package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/tmc/langchaingo/embeddings"
)

const (
	// HuggingFaceInferenceAPIURL is the hosted Inference API endpoint.
	HuggingFaceInferenceAPIURL = "https://api-inference.huggingface.co"
	// HuggingFaceTEIURL is the default Text Embeddings Inference endpoint.
	HuggingFaceTEIURL = "http://localhost:8080"
)

// BGEQueryInstruction is prepended to queries for BAAI/bge-*-en models.
const BGEQueryInstruction = "Represent this sentence for searching relevant passages: "

// HuggingFaceEmbedder serves sentence-transformers style models through
// Text Embeddings Inference or the hosted Inference API.
type HuggingFaceEmbedder struct {
	baseURL     string
	apiKey      string
	model       string
	useTEI      bool
	batchSize   int
	queryPrefix string
	docPrefix   string
	dim         dimension
	client      *http.Client
	logger      *slog.Logger
}

func NewHuggingFaceEmbedder(opts Options) *HuggingFaceEmbedder {
	opts.defaults()
	if opts.BaseURL == "" {
		if opts.TEI {
			opts.BaseURL = HuggingFaceTEIURL
		} else {
			opts.BaseURL = HuggingFaceInferenceAPIURL
		}
	}

	h := &HuggingFaceEmbedder{
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		apiKey:      opts.APIKey,
		model:       opts.Model,
		useTEI:      opts.TEI,
		batchSize:   opts.BatchSize,
		queryPrefix: opts.QueryPrefix,
		client:      opts.HTTPClient,
		logger:      opts.Logger,
	}
	h.dim.n = opts.Dimension

	if h.queryPrefix == "" {
		h.queryPrefix, h.docPrefix = defaultPrefixes(opts.Model)
	}
	return h
}

// defaultPrefixes returns the query and passage prefixes a model was trained with.
func defaultPrefixes(model string) (query, doc string) {
	m := strings.ToLower(model)
	switch {
	case strings.Contains(m, "intfloat/e5-"):
		return "query: ", "passage: "
	case strings.HasPrefix(m, "baai/bge-") && strings.Contains(m, "-en"):
		return BGEQueryInstruction, ""
	}
	return "", ""
}

type hfInferenceRequest struct {
	Inputs  []string `json:"inputs"`
	Options struct {
		WaitForModel bool `json:"wait_for_model"`
	} `json:"options"`
}

type teiEmbedRequest struct {
	Inputs   []string `json:"inputs"`
	Truncate bool     `json:"truncate,omitempty"`
}

func (h *HuggingFaceEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	all := make([][]float32, 0, len(texts))
	for i, batch := range embeddings.BatchTexts(texts, h.batchSize) {
		if h.docPrefix != "" {
			prefixed := make([]string, len(batch))
			for j, t := range batch {
				prefixed[j] = h.docPrefix + t
			}
			batch = prefixed
		}
		vecs, err := h.embed(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("embed batch %d: %w", i, err)
		}
		all = append(all, vecs...)
	}
	return all, nil
}

func (h *HuggingFaceEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := h.embed(ctx, []string{h.queryPrefix + text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (h *HuggingFaceEmbedder) embed(ctx context.Context, texts []string) ([][]float32, error) {
	h.logger.Debug("embedding batch", "provider", "huggingface", "model", h.model, "tei", h.useTEI, "count", len(texts))

	var url string
	var body any
	if h.useTEI {
		url = h.baseURL + "/embed"
		body = teiEmbedRequest{Inputs: texts, Truncate: true}
	} else {
		url = fmt.Sprintf("%s/pipeline/feature-extraction/%s", h.baseURL, h.model)
		req := hfInferenceRequest{Inputs: texts}
		req.Options.WaitForModel = true
		body = req
	}

	respBody, err := h.post(ctx, url, body)
	if err != nil {
		return nil, err
	}

	vecs, err := parseEmbeddings(respBody)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("huggingface returned %d embeddings for %d inputs", len(vecs), len(texts))
	}
	if err := h.dim.observe(vecs, h.logger); err != nil {
		return nil, err
	}
	return vecs, nil
}

func (h *HuggingFaceEmbedder) post(ctx context.Context, url string, body any) ([]byte, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if h.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.apiKey)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("huggingface API error (%d): %s", resp.StatusCode, preview(respBody))
	}
	return respBody, nil
}

// parseEmbeddings accepts pooled output ([][]float) or token level output
// ([][][]float), which is mean pooled.
func parseEmbeddings(body []byte) ([][]float32, error) {
	var pooled [][]float32
	if err := json.Unmarshal(body, &pooled); err == nil {
		return pooled, nil
	}

	var tokens [][][]float32
	if err := json.Unmarshal(body, &tokens); err == nil {
		out := make([][]float32, len(tokens))
		for i, t := range tokens {
			out[i] = meanPool(t)
		}
		return out, nil
	}

	return nil, fmt.Errorf("failed to parse embedding response: %s", preview(body))
}

func meanPool(tokenEmbeddings [][]float32) []float32 {
	if len(tokenEmbeddings) == 0 {
		return nil
	}

	result := make([]float32, len(tokenEmbeddings[0]))
	for _, token := range tokenEmbeddings {
		for i, v := range token {
			if i < len(result) {
				result[i] += v
			}
		}
	}

	n := float32(len(tokenEmbeddings))
	for i := range result {
		result[i] /= n
	}
	return result
}

func preview(body []byte) string {
	s := string(body)
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}

func (h *HuggingFaceEmbedder) Dimension() int {
	return h.dim.get()
}

func (h *HuggingFaceEmbedder) ModelName() string {
	return h.model
}
