package retriever

import (
	"context"
	"errors"
	"testing"

	"docqa/internal/adapter/memstore"
	"docqa/internal/domain"
	"docqa/internal/port"
)

// axisEmbedder maps a query to a fixed vector.
type axisEmbedder struct {
	vec []float32
	err error
}

func (e axisEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, errors.New("not used")
}

func (e axisEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return e.vec, e.err
}

func (e axisEmbedder) Dimension() int    { return len(e.vec) }
func (e axisEmbedder) ModelName() string { return "axis" }

func seedIndex(t *testing.T) (*memstore.MemoryStore, *memstore.VectorStore) {
	t.Helper()
	ctx := context.Background()
	catalog := memstore.NewMemoryStore()
	vectors := memstore.NewVectorStore()

	chunks := []domain.Chunk{
		{ID: "bip39", DocID: "d1", Text: "BIP39 defines mnemonic code words.", Tokens: []string{"bip39", "mnemonic", "code", "words"}},
		{ID: "bip39-dup", DocID: "d1", Seq: 1, Text: "BIP39 mnemonic code words again.", Tokens: []string{"bip39", "mnemonic", "code", "words"}},
		{ID: "mining", DocID: "d1", Seq: 2, Text: "Mining secures the chain.", Tokens: []string{"mining", "secures", "chain"}},
	}
	if err := catalog.BatchIndex([]port.IndexedFile{{Doc: domain.Document{ID: "d1"}, Chunks: chunks}}); err != nil {
		t.Fatal(err)
	}
	err := vectors.Upsert(ctx, []port.VectorItem{
		{ID: "bip39", Vector: []float32{1, 0}},
		{ID: "bip39-dup", Vector: []float32{0.95, 0.05}},
		{ID: "mining", Vector: []float32{0.6, 0.8}},
		{ID: "orphan", Vector: []float32{-1, 0}},
	})
	if err != nil {
		t.Fatal(err)
	}
	return catalog, vectors
}

func TestVectorRetriever_TopK(t *testing.T) {
	catalog, vectors := seedIndex(t)
	r := NewVectorRetriever(vectors, axisEmbedder{vec: []float32{1, 0}}, catalog, Options{})

	results, err := r.Search(context.Background(), "What is BIP39?", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 || results[0].Chunk.ID != "bip39" || results[1].Chunk.ID != "bip39-dup" {
		t.Fatalf("unexpected results %+v", results)
	}
	if results[0].Chunk.Text == "" {
		t.Error("expected chunk text from the catalog")
	}
}

func TestVectorRetriever_MMRDropsDuplicates(t *testing.T) {
	catalog, vectors := seedIndex(t)
	r := NewVectorRetriever(vectors, axisEmbedder{vec: []float32{1, 0}}, catalog, Options{
		MMR:          true,
		MMRLambda:    0.7,
		DedupJaccard: 0.8,
	})

	results, err := r.Search(context.Background(), "What is BIP39?", 2)
	if err != nil {
		t.Fatal(err)
	}
	// the orphan vector is fetched but has no catalog entry
	if len(results) != 2 || results[0].Chunk.ID != "bip39" || results[1].Chunk.ID != "mining" {
		t.Fatalf("expected bip39 then mining, got %+v", results)
	}
}

func TestVectorRetriever_SimilarityCutoff(t *testing.T) {
	catalog, vectors := seedIndex(t)
	r := NewVectorRetriever(vectors, axisEmbedder{vec: []float32{0, 1}}, catalog, Options{SimilarityCutoff: 0.5})

	results, err := r.Search(context.Background(), "mining", 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Chunk.ID != "mining" {
		t.Fatalf("expected only mining above the cutoff, got %+v", results)
	}
}

func TestVectorRetriever_EmbedError(t *testing.T) {
	catalog, vectors := seedIndex(t)
	r := NewVectorRetriever(vectors, axisEmbedder{err: errors.New("server down")}, catalog, Options{})

	if _, err := r.Search(context.Background(), "q", 2); err == nil {
		t.Error("expected embedding error")
	}
}

func TestVectorRetriever_EmptyIndex(t *testing.T) {
	r := NewVectorRetriever(memstore.NewVectorStore(), axisEmbedder{vec: []float32{1, 0}}, memstore.NewMemoryStore(), Options{})

	results, err := r.Search(context.Background(), "q", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 0 {
		t.Errorf("expected no results, got %d", len(results))
	}
}
