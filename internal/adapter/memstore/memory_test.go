package memstore

import (
	"context"
	"errors"
	"testing"

	"docqa/internal/domain"
	"docqa/internal/port"
)

func TestMemoryStore_BatchIndex(t *testing.T) {
	s := NewMemoryStore()

	file := port.IndexedFile{
		Doc: domain.Document{ID: "d1", Path: "paul_graham_essay.txt"},
		Chunks: []domain.Chunk{
			{ID: "c1", DocID: "d1", Seq: 0, Text: "Before college the two main things I worked on"},
			{ID: "c2", DocID: "d1", Seq: 1, Text: "were writing and programming."},
		},
	}
	if err := s.BatchIndex([]port.IndexedFile{file}); err != nil {
		t.Fatal(err)
	}

	chunks, _ := s.GetChunksByDoc("d1")
	if len(chunks) != 2 || chunks[0].ID != "c1" {
		t.Fatalf("unexpected chunks %+v", chunks)
	}

	// reindexing replaces the previous chunk list
	file.Chunks = file.Chunks[1:]
	if err := s.BatchIndex([]port.IndexedFile{file}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetChunk("c1"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected c1 to be gone, got %v", err)
	}

	if err := s.Clear(); err != nil {
		t.Fatal(err)
	}
	if docs, _ := s.ListDocs(); len(docs) != 0 {
		t.Errorf("expected empty store after Clear, got %d docs", len(docs))
	}
	if _, err := s.GetDoc("d1"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestVectorStore_Search(t *testing.T) {
	ctx := context.Background()
	s := NewVectorStore()

	err := s.Upsert(ctx, []port.VectorItem{
		{ID: "near", Vector: []float32{1, 1}},
		{ID: "far", Vector: []float32{-1, 0}},
		{ID: "mid", Vector: []float32{1, 0}},
	})
	if err != nil {
		t.Fatal(err)
	}

	results, err := s.Search(ctx, []float32{1, 1}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 || results[0].ID != "near" || results[1].ID != "mid" {
		t.Fatalf("unexpected ranking %+v", results)
	}

	if _, err := s.Search(ctx, []float32{1, 1, 1}, 1); err == nil {
		t.Error("expected dimension mismatch error")
	}

	if err := s.Delete(ctx, []string{"near", "far"}); err != nil {
		t.Fatal(err)
	}
	if n, _ := s.Count(ctx); n != 1 {
		t.Errorf("expected 1 vector, got %d", n)
	}
}

func TestVectorStore_DimensionFreedWhenEmpty(t *testing.T) {
	ctx := context.Background()
	s := NewVectorStore()

	if err := s.Upsert(ctx, []port.VectorItem{{ID: "a", Vector: []float32{1, 0}}}); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(ctx, []string{"a"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Upsert(ctx, []port.VectorItem{{ID: "b", Vector: []float32{1, 0, 0, 0}}}); err != nil {
		t.Fatalf("expected a wider vector to fit an emptied store: %v", err)
	}
	results, err := s.Search(ctx, []float32{1, 0, 0, 0}, 1)
	if err != nil || len(results) != 1 || results[0].ID != "b" {
		t.Fatalf("unexpected search after re-dimension: %+v %v", results, err)
	}
}
