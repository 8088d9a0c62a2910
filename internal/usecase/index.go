package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"docqa/config"
	"docqa/internal/adapter/reader"
	"docqa/internal/domain"
	"docqa/internal/port"
)

// Schema tracks the format and configuration a persisted index was built with.
type Schema interface {
	NeedsRebuild(cfg *config.Config) (bool, string, error)
	Migrate(cfg *config.Config) error
}

// Progress reports indexing progress. Total is the number of chunks to embed.
type Progress struct {
	Stage string
	Done  int
	Total int
}

// LoadStatus tells whether LoadOrBuild reused a persisted index.
type LoadStatus string

const (
	StatusLoaded LoadStatus = "loaded"
	StatusBuilt  LoadStatus = "built"
)

// IndexUseCase handles file indexing operations.
type IndexUseCase struct {
	cfg        *config.Config
	catalog    port.IndexStore
	vectors    port.VectorStore
	reader     port.DocumentReader
	chunker    port.Chunker
	embedder   port.Embedder
	schema     Schema
	persistent bool
	logger     *slog.Logger
	onProgress func(Progress)
}

// IndexDeps are the collaborators of an IndexUseCase. Schema is nil for
// indexes that live in memory only.
type IndexDeps struct {
	Catalog  port.IndexStore
	Vectors  port.VectorStore
	Reader   port.DocumentReader
	Chunker  port.Chunker
	Embedder port.Embedder
	Schema   Schema
	Logger   *slog.Logger
}

// NewIndexUseCase creates a new index use case.
func NewIndexUseCase(cfg *config.Config, deps IndexDeps) *IndexUseCase {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &IndexUseCase{
		cfg:        cfg,
		catalog:    deps.Catalog,
		vectors:    deps.Vectors,
		reader:     deps.Reader,
		chunker:    deps.Chunker,
		embedder:   deps.Embedder,
		schema:     deps.Schema,
		persistent: cfg.Store.Backend != "memory",
		logger:     logger,
	}
}

// OnProgress registers a progress callback.
func (u *IndexUseCase) OnProgress(fn func(Progress)) {
	u.onProgress = fn
}

func (u *IndexUseCase) progress(p Progress) {
	if u.onProgress != nil {
		u.onProgress(p)
	}
}

// IndexResult contains the results of an indexing operation.
type IndexResult struct {
	Status        LoadStatus
	FilesIndexed  int
	FilesSkipped  int
	FilesDeleted  int
	ChunksCreated int
	TotalChunks   int
	Errors        []string
}

// LoadOrBuild reuses the persisted index when it holds vectors built with
// the current configuration, and builds it from the corpus otherwise.
func (u *IndexUseCase) LoadOrBuild(ctx context.Context) (*IndexResult, error) {
	rebuild, err := u.needsRebuild()
	if err != nil {
		return nil, err
	}

	if !rebuild && u.persistent {
		stats, err := u.catalog.GetStats()
		if err != nil {
			return nil, fmt.Errorf("read index stats: %w", err)
		}
		count, err := u.vectors.Count(ctx)
		if err != nil {
			return nil, fmt.Errorf("count vectors: %w", err)
		}
		if stats.TotalChunks > 0 && count > 0 {
			u.logger.Info("loading from disk", "dir", u.cfg.Store.PersistDir, "chunks", stats.TotalChunks)
			return &IndexResult{Status: StatusLoaded, TotalChunks: stats.TotalChunks}, nil
		}
	}

	res, err := u.Build(ctx, rebuild)
	if err != nil {
		return nil, err
	}
	if u.persistent {
		u.logger.Info("persisting to disk", "dir", u.cfg.Store.PersistDir, "chunks", res.TotalChunks)
	}
	return res, nil
}

// Refresh brings the index up to date with the corpus. It starts from
// scratch when force is set or the index was built under another configuration.
func (u *IndexUseCase) Refresh(ctx context.Context, force bool) (*IndexResult, error) {
	rebuild := force
	if !rebuild {
		var err error
		if rebuild, err = u.needsRebuild(); err != nil {
			return nil, err
		}
	}
	return u.Build(ctx, rebuild)
}

func (u *IndexUseCase) needsRebuild() (bool, error) {
	if u.schema == nil {
		return false, nil
	}
	need, reason, err := u.schema.NeedsRebuild(u.cfg)
	if err != nil {
		return false, fmt.Errorf("check index schema: %w", err)
	}
	if need {
		u.logger.Info("index must be rebuilt", "reason", reason)
	}
	return need, nil
}

// Build indexes the corpus. Unchanged documents are kept unless rebuild is
// set, and documents whose files disappeared are removed.
func (u *IndexUseCase) Build(ctx context.Context, rebuild bool) (*IndexResult, error) {
	result := &IndexResult{Status: StatusBuilt}

	if rebuild {
		if err := u.Clear(ctx); err != nil {
			return nil, err
		}
	}

	files, err := u.reader.Walk(u.cfg.Corpus.Dir)
	if err != nil {
		return nil, err
	}

	existingDocs, err := u.catalog.ListDocs()
	if err != nil {
		return nil, fmt.Errorf("failed to list existing docs: %w", err)
	}
	existingMap := make(map[string]domain.Document, len(existingDocs))
	for _, doc := range existingDocs {
		existingMap[doc.Path] = doc
	}

	seenPaths := make(map[string]bool)
	var pending []port.IndexedFile
	var stale []string
	totalChunks, totalChunkLen := 0, 0

	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		seenPaths[file.Path] = true

		existing, known := existingMap[file.Path]
		if known && existing.ModTime.UnixNano() >= file.ModTime {
			chunks, err := u.catalog.GetChunksByDoc(existing.ID)
			if err != nil {
				return nil, fmt.Errorf("read chunks of %s: %w", file.Path, err)
			}
			if len(chunks) > 0 {
				result.FilesSkipped++
				for _, c := range chunks {
					totalChunks++
					totalChunkLen += len(c.Tokens)
				}
				continue
			}
		}

		doc, err := u.reader.LoadFile(ctx, file)
		if reader.IsSkipped(err) {
			if known {
				if err := u.deleteDocument(ctx, existing.ID); err != nil {
					return nil, fmt.Errorf("failed to delete %s: %w", file.Path, err)
				}
				result.FilesDeleted++
			}
			continue
		}
		if err != nil {
			result.Errors = append(result.Errors, err.Error())
			continue
		}

		chunks, err := u.chunker.Chunk(doc)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("failed to chunk %s: %v", file.Path, err))
			continue
		}
		if known {
			stale = append(stale, existing.ID)
		}
		pending = append(pending, port.IndexedFile{Doc: doc, Chunks: chunks})
	}

	for path, doc := range existingMap {
		if seenPaths[path] {
			continue
		}
		if err := u.deleteDocument(ctx, doc.ID); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("failed to delete %s: %v", path, err))
			continue
		}
		result.FilesDeleted++
	}

	for _, id := range stale {
		if err := u.deleteVectors(ctx, id); err != nil {
			return nil, err
		}
	}

	created, chunkLen, err := u.embedAndStore(ctx, pending)
	if err != nil {
		return nil, err
	}
	result.FilesIndexed = len(pending)
	result.ChunksCreated = created
	totalChunks += created
	totalChunkLen += chunkLen

	if totalChunks == 0 {
		return nil, fmt.Errorf("%w in %s", domain.ErrNoDocuments, u.cfg.Corpus.Dir)
	}

	embedded, err := u.vectors.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count vectors: %w", err)
	}
	stats := domain.Stats{
		TotalDocs:   result.FilesIndexed + result.FilesSkipped,
		TotalChunks: totalChunks,
		AvgChunkLen: float64(totalChunkLen) / float64(totalChunks),
		Embedded:    embedded,
	}
	if err := u.catalog.UpdateStats(stats); err != nil {
		return nil, fmt.Errorf("failed to update stats: %w", err)
	}
	if u.schema != nil {
		if err := u.schema.Migrate(u.cfg); err != nil {
			return nil, fmt.Errorf("record index schema: %w", err)
		}
	}

	result.TotalChunks = totalChunks
	return result, nil
}

// embedAndStore embeds the chunks of files batch by batch. A batch is
// written to the vector store before the catalog, so a catalog entry
// always has its vector.
func (u *IndexUseCase) embedAndStore(ctx context.Context, files []port.IndexedFile) (int, int, error) {
	total := 0
	for _, f := range files {
		total += len(f.Chunks)
	}
	batchSize := u.cfg.Embedding.BatchSize
	if batchSize <= 0 {
		batchSize = 32
	}

	done, tokenLen := 0, 0
	u.progress(Progress{Stage: "embedding", Done: 0, Total: total})

	var batchFiles []port.IndexedFile
	var batchChunks []domain.Chunk
	flush := func() error {
		if len(batchFiles) == 0 {
			return nil
		}
		if err := u.storeBatch(ctx, batchFiles, batchChunks); err != nil {
			return err
		}
		done += len(batchChunks)
		u.progress(Progress{Stage: "embedding", Done: done, Total: total})
		batchFiles, batchChunks = nil, nil
		return nil
	}

	for _, f := range files {
		batchFiles = append(batchFiles, f)
		batchChunks = append(batchChunks, f.Chunks...)
		for _, c := range f.Chunks {
			tokenLen += len(c.Tokens)
		}
		if len(batchChunks) >= batchSize {
			if err := flush(); err != nil {
				return 0, 0, err
			}
		}
	}
	if err := flush(); err != nil {
		return 0, 0, err
	}
	return total, tokenLen, nil
}

func (u *IndexUseCase) storeBatch(ctx context.Context, files []port.IndexedFile, chunks []domain.Chunk) error {
	if len(chunks) > 0 {
		texts := make([]string, len(chunks))
		for i, c := range chunks {
			texts[i] = c.Text
		}
		vecs, err := u.embedder.EmbedDocuments(ctx, texts)
		if err != nil {
			return fmt.Errorf("embed chunks: %w", err)
		}
		if len(vecs) != len(chunks) {
			return fmt.Errorf("embedder returned %d vectors for %d chunks", len(vecs), len(chunks))
		}

		items := make([]port.VectorItem, len(chunks))
		for i, c := range chunks {
			items[i] = port.VectorItem{
				ID:       c.ID,
				Vector:   vecs[i],
				Text:     c.Text,
				Metadata: vectorMetadata(c),
			}
		}
		if err := u.vectors.Upsert(ctx, items); err != nil {
			return fmt.Errorf("store vectors: %w", err)
		}
	}

	if err := u.catalog.BatchIndex(files); err != nil {
		return fmt.Errorf("store catalog: %w", err)
	}
	return nil
}

func vectorMetadata(c domain.Chunk) map[string]string {
	m := make(map[string]string, len(c.Metadata)+1)
	for k, v := range c.Metadata {
		m[k] = v
	}
	m["doc_id"] = c.DocID
	return m
}

// Clear removes every document, chunk and vector of the index.
func (u *IndexUseCase) Clear(ctx context.Context) error {
	docs, err := u.catalog.ListDocs()
	if err != nil {
		return fmt.Errorf("failed to list existing docs: %w", err)
	}
	for _, doc := range docs {
		if err := u.deleteVectors(ctx, doc.ID); err != nil {
			return err
		}
	}
	if err := u.catalog.Clear(); err != nil {
		return fmt.Errorf("clear catalog: %w", err)
	}
	return nil
}

func (u *IndexUseCase) deleteVectors(ctx context.Context, docID string) error {
	chunks, err := u.catalog.GetChunksByDoc(docID)
	if err != nil {
		return err
	}
	if len(chunks) == 0 {
		return nil
	}
	ids := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID
	}
	if err := u.vectors.Delete(ctx, ids); err != nil {
		return fmt.Errorf("delete vectors of %s: %w", docID, err)
	}
	return nil
}

// deleteDocument deletes a document and all its associated data.
func (u *IndexUseCase) deleteDocument(ctx context.Context, docID string) error {
	if err := u.deleteVectors(ctx, docID); err != nil {
		return err
	}
	if err := u.catalog.DeleteChunksByDoc(docID); err != nil {
		return err
	}
	return u.catalog.DeleteDoc(docID)
}

// IsNoDocuments reports whether err means the corpus had nothing to index.
func IsNoDocuments(err error) bool {
	return errors.Is(err, domain.ErrNoDocuments)
}
