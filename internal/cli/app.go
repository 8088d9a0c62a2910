package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"docqa/config"
	"docqa/internal/adapter/analyzer"
	"docqa/internal/adapter/cache"
	"docqa/internal/adapter/chunker"
	"docqa/internal/adapter/embedding"
	"docqa/internal/adapter/llm"
	"docqa/internal/adapter/memstore"
	"docqa/internal/adapter/prompt"
	"docqa/internal/adapter/reader"
	"docqa/internal/adapter/retriever"
	"docqa/internal/adapter/store"
	"docqa/internal/domain"
	"docqa/internal/port"
	"docqa/internal/usecase"
)

const cacheTTL = 30 * time.Minute

// app holds the pipeline assembled from a config.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	catalog  port.IndexStore
	vectors  port.VectorStore
	embedder port.Embedder
	counter  port.TokenCounter
	index    *usecase.IndexUseCase
}

// openStores opens the catalog and vector store for the configured backend.
// schema is nil for the memory backend.
func openStores(cfg *config.Config) (port.IndexStore, port.VectorStore, usecase.Schema, error) {
	switch cfg.Store.Backend {
	case "memory":
		return memstore.NewMemoryStore(), memstore.NewVectorStore(), nil, nil
	case "bolt", "chroma":
	default:
		return nil, nil, nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}

	if err := config.EnsureDir(cfg.Store.PersistDir); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create %s: %w", cfg.Store.PersistDir, err)
	}
	st, err := store.NewBoltStore(config.IndexDBPath(cfg))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to open index store: %w", err)
	}

	var vectors port.VectorStore
	if cfg.Store.Backend == "chroma" {
		vectors, err = store.NewChromemStore(cfg.Store.PersistDir, cfg.Store.Collection)
	} else {
		// the dimension is learned from stored vectors; a config change forces a rebuild anyway
		vectors, err = store.NewBoltVectorStore(st.DB(), 0)
	}
	if err != nil {
		st.Close()
		return nil, nil, nil, fmt.Errorf("failed to open vector store: %w", err)
	}
	return st, vectors, st, nil
}

func newChunker(cfg *config.Config, counter port.TokenCounter, logger *slog.Logger) port.Chunker {
	tokenizer := analyzer.NewTokenizer()
	if cfg.Index.Splitter == "line" {
		return chunker.NewLineChunker(cfg.Index.ChunkSize, cfg.Index.ChunkOverlap, counter, tokenizer)
	}

	var splitter chunker.SentenceSplitter
	punkt, err := chunker.NewPunktSplitter()
	if err != nil {
		logger.Warn("sentence model unavailable, splitting on punctuation", "error", err)
		splitter = chunker.NewRegexSplitter()
	} else {
		splitter = punkt
	}
	return chunker.NewSentenceChunker(cfg.Index.ChunkSize, cfg.Index.ChunkOverlap, counter, splitter, tokenizer)
}

// newApp wires the indexing side of the pipeline.
func newApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	if logger == nil {
		logger = slog.Default()
	}

	embedder, err := embedding.New(cfg.Embedding, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	catalog, vectors, schema, err := openStores(cfg)
	if err != nil {
		return nil, err
	}

	counter := analyzer.NewCounter(cfg.Index.Encoding, logger)
	index := usecase.NewIndexUseCase(cfg, usecase.IndexDeps{
		Catalog:  catalog,
		Vectors:  vectors,
		Reader:   reader.NewDirectoryReader(cfg.Corpus.Includes, cfg.Corpus.Excludes, logger),
		Chunker:  newChunker(cfg, counter, logger),
		Embedder: embedder,
		Schema:   schema,
		Logger:   logger,
	})

	return &app{
		cfg:      cfg,
		logger:   logger,
		catalog:  catalog,
		vectors:  vectors,
		embedder: embedder,
		counter:  counter,
		index:    index,
	}, nil
}

func (a *app) Close() error {
	return a.catalog.Close()
}

// retriever returns the vector retriever, behind a result cache when one is configured.
func (a *app) retriever() usecase.Retriever {
	var r usecase.Retriever = retriever.NewVectorRetriever(a.vectors, a.embedder, a.catalog, retriever.Options{
		SimilarityCutoff: a.cfg.Query.SimilarityCutoff,
		MMR:              a.cfg.Query.MMR,
		MMRLambda:        a.cfg.Query.MMRLambda,
		DedupJaccard:     a.cfg.Query.DedupJaccard,
		Logger:           a.logger,
	})
	if a.cfg.Query.CacheSize > 0 {
		r = cache.NewCachedRetriever(r, cache.NewQueryCache[[]domain.ScoredChunk](a.cfg.Query.CacheSize, cacheTTL))
	}
	return r
}

// queryEngine wires the answering side. model may be nil to use the configured provider.
func (a *app) queryEngine(model port.LLM) (*usecase.QueryEngine, error) {
	wrapper, err := prompt.NewChatWrapper(a.cfg.Prompt.QueryWrapper)
	if err != nil {
		return nil, fmt.Errorf("invalid query wrapper: %w", err)
	}
	qa, err := prompt.NewQATemplate(a.cfg.Prompt.QATemplate)
	if err != nil {
		return nil, fmt.Errorf("invalid qa template: %w", err)
	}
	if model == nil {
		model, err = llm.New(a.cfg.LLM, a.cfg.Prompt, a.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create llm: %w", err)
		}
	}

	var answers *cache.QueryCache[domain.Response]
	if a.cfg.Query.CacheSize > 0 {
		answers = cache.NewQueryCache[domain.Response](a.cfg.Query.CacheSize, cacheTTL)
	}

	return usecase.NewQueryEngine(
		a.retriever(),
		usecase.NewPackUseCase(a.catalog, a.counter),
		model,
		a.counter,
		usecase.QueryOptions{
			QATemplate:    qa,
			Wrapper:       wrapper,
			SystemPrompt:  a.cfg.Prompt.SystemPrompt,
			TopK:          a.cfg.Query.TopK,
			ContextWindow: a.cfg.LLM.ContextWindow,
			MaxNewTokens:  a.cfg.LLM.MaxNewTokens,
			Cache:         answers,
			Logger:        a.logger,
		},
	), nil
}

// load makes the index ready for questions, building it when needed.
// load makes the index ready and tells the user on out whether it came
// from disk or was just built.
func (a *app) load(ctx context.Context, out io.Writer) error {
	res, err := a.index.LoadOrBuild(ctx)
	if err != nil {
		if usecase.IsNoDocuments(err) {
			return fmt.Errorf("%w: check corpus.dir (%s)", err, a.cfg.Corpus.Dir)
		}
		return fmt.Errorf("failed to load index: %w", err)
	}
	a.logger.Debug("index ready", "status", res.Status, "chunks", res.TotalChunks)

	switch {
	case res.Status == usecase.StatusLoaded:
		fmt.Fprintf(out, "Loading index from disk: %s\n", a.cfg.Store.PersistDir)
	case a.cfg.Store.Backend == "memory":
		fmt.Fprintf(out, "Built in-memory index with %d chunks\n", res.TotalChunks)
	default:
		fmt.Fprintf(out, "Built index with %d chunks, persisted to disk: %s\n", res.TotalChunks, a.cfg.Store.PersistDir)
	}
	return nil
}

// requireIndex reports ErrIndexNotFound when a persistent backend has never been built.
func requireIndex(cfg *config.Config) error {
	if cfg.Store.Backend == "memory" {
		return nil
	}
	if _, err := os.Stat(config.IndexDBPath(cfg)); errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w in %s: run 'docqa index' first", domain.ErrIndexNotFound, cfg.Store.PersistDir)
	}
	return nil
}
