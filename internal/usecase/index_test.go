package usecase

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"docqa/config"
	"docqa/internal/adapter/analyzer"
	"docqa/internal/adapter/chunker"
	"docqa/internal/adapter/embedding"
	"docqa/internal/adapter/memstore"
	"docqa/internal/adapter/reader"
	"docqa/internal/adapter/store"
	"docqa/internal/domain"
	"docqa/internal/port"
)

func writeCorpus(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func testConfig(corpus, persist, backend string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Corpus.Dir = corpus
	cfg.Corpus.Excludes = nil
	cfg.Store.Backend = backend
	cfg.Store.PersistDir = persist
	cfg.Embedding.Provider = "mock"
	cfg.Embedding.BatchSize = 2
	cfg.Index.ChunkSize = 16
	cfg.Index.ChunkOverlap = 4
	return cfg
}

func newChunker(cfg *config.Config) port.Chunker {
	return chunker.NewSentenceChunker(cfg.Index.ChunkSize, cfg.Index.ChunkOverlap, wordCounter{}, chunker.NewRegexSplitter(), analyzer.NewTokenizer())
}

func newMemoryIndex(cfg *config.Config) (*IndexUseCase, *memstore.MemoryStore, *memstore.VectorStore) {
	catalog := memstore.NewMemoryStore()
	vectors := memstore.NewVectorStore()
	uc := NewIndexUseCase(cfg, IndexDeps{
		Catalog:  catalog,
		Vectors:  vectors,
		Reader:   reader.NewDirectoryReader(cfg.Corpus.Includes, cfg.Corpus.Excludes, nil),
		Chunker:  newChunker(cfg),
		Embedder: embedding.NewMockEmbedder(64),
	})
	return uc, catalog, vectors
}

type boltIndex struct {
	uc      *IndexUseCase
	catalog *store.BoltStore
	vectors *store.BoltVectorStore
}

func openBoltIndex(t *testing.T, cfg *config.Config) boltIndex {
	t.Helper()
	if err := config.EnsureDir(cfg.Store.PersistDir); err != nil {
		t.Fatal(err)
	}
	catalog, err := store.NewBoltStore(config.IndexDBPath(cfg))
	if err != nil {
		t.Fatal(err)
	}
	vectors, err := store.NewBoltVectorStore(catalog.DB(), 0)
	if err != nil {
		t.Fatal(err)
	}
	uc := NewIndexUseCase(cfg, IndexDeps{
		Catalog:  catalog,
		Vectors:  vectors,
		Reader:   reader.NewDirectoryReader(cfg.Corpus.Includes, cfg.Corpus.Excludes, nil),
		Chunker:  newChunker(cfg),
		Embedder: embedding.NewMockEmbedder(64),
		Schema:   catalog,
	})
	return boltIndex{uc: uc, catalog: catalog, vectors: vectors}
}

var bookCorpus = map[string]string{
	"ch01.txt": "Bitcoin is a collection of concepts and technologies that form the basis of a digital money ecosystem.\n\nUnits of currency called bitcoin are used to store and transmit value.",
	"ch05.txt": "BIP39 defines mnemonic code words. The words encode the seed of a deterministic wallet.",
	"empty.txt": "",
}

func TestBuild_InMemory(t *testing.T) {
	corpus := writeCorpus(t, bookCorpus)
	cfg := testConfig(corpus, "", "memory")
	uc, catalog, vectors := newMemoryIndex(cfg)

	var events []Progress
	uc.OnProgress(func(p Progress) { events = append(events, p) })

	res, err := uc.LoadOrBuild(context.Background())
	if err != nil {
		t.Fatalf("LoadOrBuild: %v", err)
	}
	if res.Status != StatusBuilt {
		t.Errorf("memory index is always built, got %s", res.Status)
	}
	if res.FilesIndexed != 2 {
		t.Errorf("expected 2 indexed files (empty one skipped), got %d", res.FilesIndexed)
	}

	n, _ := vectors.Count(context.Background())
	if n != res.ChunksCreated || n == 0 {
		t.Errorf("expected one vector per chunk, got %d vectors for %d chunks", n, res.ChunksCreated)
	}
	stats, _ := catalog.GetStats()
	if stats.TotalChunks != res.ChunksCreated || stats.TotalDocs != 2 || stats.Embedded != n {
		t.Errorf("unexpected stats %+v", stats)
	}

	if len(events) == 0 {
		t.Fatal("expected progress events")
	}
	last := events[len(events)-1]
	if last.Done != last.Total || last.Total != res.ChunksCreated {
		t.Errorf("final progress should be complete, got %+v", last)
	}
}

func TestBuild_NoDocuments(t *testing.T) {
	cfg := testConfig(filepath.Join(t.TempDir(), "missing"), "", "memory")
	uc, _, _ := newMemoryIndex(cfg)

	_, err := uc.Build(context.Background(), false)
	if !errors.Is(err, domain.ErrNoDocuments) {
		t.Errorf("expected ErrNoDocuments, got %v", err)
	}

	cfg = testConfig(writeCorpus(t, map[string]string{"empty.txt": ""}), "", "memory")
	uc, _, _ = newMemoryIndex(cfg)
	if _, err := uc.Build(context.Background(), false); !IsNoDocuments(err) {
		t.Errorf("expected ErrNoDocuments for a corpus without text, got %v", err)
	}
}

func TestLoadOrBuild_Persisted(t *testing.T) {
	corpus := writeCorpus(t, bookCorpus)
	persist := filepath.Join(t.TempDir(), "storage")
	cfg := testConfig(corpus, persist, "bolt")
	ctx := context.Background()

	first := openBoltIndex(t, cfg)
	res, err := first.uc.LoadOrBuild(ctx)
	if err != nil {
		t.Fatalf("first LoadOrBuild: %v", err)
	}
	if res.Status != StatusBuilt {
		t.Fatalf("expected built, got %s", res.Status)
	}
	built := res.TotalChunks
	first.catalog.Close()

	second := openBoltIndex(t, cfg)
	defer second.catalog.Close()
	res, err = second.uc.LoadOrBuild(ctx)
	if err != nil {
		t.Fatalf("second LoadOrBuild: %v", err)
	}
	if res.Status != StatusLoaded || res.TotalChunks != built {
		t.Errorf("expected loaded index with %d chunks, got %+v", built, res)
	}
}

func TestLoadOrBuild_ConfigChangeRebuilds(t *testing.T) {
	corpus := writeCorpus(t, bookCorpus)
	persist := filepath.Join(t.TempDir(), "storage")
	cfg := testConfig(corpus, persist, "bolt")
	ctx := context.Background()

	idx := openBoltIndex(t, cfg)
	if _, err := idx.uc.LoadOrBuild(ctx); err != nil {
		t.Fatal(err)
	}
	idx.catalog.Close()

	changed := testConfig(corpus, persist, "bolt")
	changed.Index.ChunkSize = 32
	idx = openBoltIndex(t, changed)
	defer idx.catalog.Close()

	res, err := idx.uc.LoadOrBuild(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != StatusBuilt || res.FilesIndexed != 2 || res.FilesSkipped != 0 {
		t.Errorf("expected a full rebuild, got %+v", res)
	}
	if rebuild, _, _ := idx.catalog.NeedsRebuild(changed); rebuild {
		t.Error("new config hash should be recorded after the rebuild")
	}
}

func TestBuild_Incremental(t *testing.T) {
	corpus := writeCorpus(t, bookCorpus)
	persist := filepath.Join(t.TempDir(), "storage")
	cfg := testConfig(corpus, persist, "bolt")
	ctx := context.Background()

	idx := openBoltIndex(t, cfg)
	defer idx.catalog.Close()
	if _, err := idx.uc.Build(ctx, false); err != nil {
		t.Fatal(err)
	}

	res, err := idx.uc.Build(ctx, false)
	if err != nil {
		t.Fatal(err)
	}
	if res.FilesIndexed != 0 || res.FilesSkipped != 2 {
		t.Errorf("unchanged corpus should be skipped, got %+v", res)
	}

	ch05 := filepath.Join(corpus, "ch05.txt")
	if err := os.WriteFile(ch05, []byte("BIP39 was revised. Mnemonic words remain."), 0644); err != nil {
		t.Fatal(err)
	}
	later := time.Now().Add(time.Hour)
	if err := os.Chtimes(ch05, later, later); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(filepath.Join(corpus, "ch01.txt")); err != nil {
		t.Fatal(err)
	}

	res, err = idx.uc.Build(ctx, false)
	if err != nil {
		t.Fatal(err)
	}
	if res.FilesIndexed != 1 || res.FilesDeleted != 1 {
		t.Errorf("expected one reindexed and one deleted file, got %+v", res)
	}

	docs, _ := idx.catalog.ListDocs()
	if len(docs) != 1 {
		t.Fatalf("expected 1 document left, got %d", len(docs))
	}
	chunks, _ := idx.catalog.GetChunksByDoc(docs[0].ID)
	n, _ := idx.vectors.Count(ctx)
	if n != len(chunks) {
		t.Errorf("vectors out of sync with catalog: %d vectors, %d chunks", n, len(chunks))
	}
	if len(chunks) == 0 || chunks[0].Text != "BIP39 was revised. Mnemonic words remain." {
		t.Errorf("expected the revised text, got %+v", chunks)
	}
}

func TestClear(t *testing.T) {
	corpus := writeCorpus(t, bookCorpus)
	cfg := testConfig(corpus, "", "memory")
	uc, catalog, vectors := newMemoryIndex(cfg)
	ctx := context.Background()

	if _, err := uc.Build(ctx, false); err != nil {
		t.Fatal(err)
	}
	if err := uc.Clear(ctx); err != nil {
		t.Fatal(err)
	}
	if n, _ := vectors.Count(ctx); n != 0 {
		t.Errorf("expected no vectors after Clear, got %d", n)
	}
	if docs, _ := catalog.ListDocs(); len(docs) != 0 {
		t.Errorf("expected no docs after Clear, got %d", len(docs))
	}
}

func TestRefresh_Force(t *testing.T) {
	corpus := writeCorpus(t, bookCorpus)
	cfg := testConfig(corpus, filepath.Join(t.TempDir(), "storage"), "bolt")
	ctx := context.Background()

	idx := openBoltIndex(t, cfg)
	defer idx.catalog.Close()
	if _, err := idx.uc.Refresh(ctx, false); err != nil {
		t.Fatal(err)
	}

	res, err := idx.uc.Refresh(ctx, true)
	if err != nil {
		t.Fatal(err)
	}
	if res.FilesIndexed != 2 || res.FilesSkipped != 0 {
		t.Errorf("forced refresh should reindex everything, got %+v", res)
	}
}
