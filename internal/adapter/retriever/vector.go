package retriever

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"docqa/internal/domain"
	"docqa/internal/port"
)

// Options tune a VectorRetriever.
type Options struct {
	// SimilarityCutoff drops results scoring below it. 0 disables the cutoff.
	SimilarityCutoff float64
	// MMR reranks an over-fetched candidate list for diversity.
	MMR          bool
	MMRLambda    float64
	DedupJaccard float64
	Logger       *slog.Logger
}

// VectorRetriever answers a question with the nearest chunks of the index.
type VectorRetriever struct {
	vectorStore port.VectorStore
	embedder    port.Embedder
	chunkStore  port.IndexStore
	mmr         *MMRReranker
	cutoff      float64
	logger      *slog.Logger
}

func NewVectorRetriever(
	vectorStore port.VectorStore,
	embedder port.Embedder,
	chunkStore port.IndexStore,
	opts Options,
) *VectorRetriever {
	r := &VectorRetriever{
		vectorStore: vectorStore,
		embedder:    embedder,
		chunkStore:  chunkStore,
		cutoff:      opts.SimilarityCutoff,
		logger:      opts.Logger,
	}
	if opts.MMR {
		r.mmr = NewMMRReranker(opts.MMRLambda, opts.DedupJaccard)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// Search returns at most k chunks ordered by descending relevance.
func (r *VectorRetriever) Search(ctx context.Context, query string, k int) ([]domain.ScoredChunk, error) {
	if r.vectorStore == nil || r.embedder == nil {
		return nil, fmt.Errorf("vector search not available: embeddings not configured")
	}
	if k <= 0 {
		return nil, nil
	}

	vec, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("embedding returned empty result")
	}

	fetch := k
	if r.mmr != nil {
		fetch = k * 2
	}
	results, err := r.vectorStore.Search(ctx, vec, fetch)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	chunks := make([]domain.ScoredChunk, 0, len(results))
	for _, result := range results {
		if r.cutoff > 0 && result.Score < r.cutoff {
			continue
		}
		chunk, err := r.chunkStore.GetChunk(result.ID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				r.logger.Warn("vector without catalog entry", "chunk_id", result.ID)
				continue
			}
			return nil, fmt.Errorf("load chunk %s: %w", result.ID, err)
		}
		chunks = append(chunks, domain.ScoredChunk{
			Chunk: chunk,
			Score: result.Score,
		})
	}

	if r.mmr != nil {
		chunks = r.mmr.Rerank(chunks, k)
	} else if len(chunks) > k {
		chunks = chunks[:k]
	}

	r.logger.Debug("retrieved", "query", query, "candidates", len(results), "kept", len(chunks))
	return chunks, nil
}
