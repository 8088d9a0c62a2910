package store

import (
	"context"
	"fmt"
	"runtime"

	"docqa/internal/port"
	"github.com/philippgille/chromem-go"
)

// ChromemStore keeps vectors in a chromem-go collection, the embedded
// stand-in for a Chroma server. Embeddings are always supplied by the
// caller, so the collection never calls an embedding API itself.
type ChromemStore struct {
	db         *chromem.DB
	collection *chromem.Collection
}

// NewChromemStore opens the collection persisted under dir, or an
// in-memory one when dir is empty.
func NewChromemStore(dir, collection string) (*ChromemStore, error) {
	var db *chromem.DB
	if dir == "" {
		db = chromem.NewDB()
	} else {
		var err error
		db, err = chromem.NewPersistentDB(dir, false)
		if err != nil {
			return nil, fmt.Errorf("open chromem db %s: %w", dir, err)
		}
	}

	c, err := db.GetOrCreateCollection(collection, nil, unusedEmbeddingFunc)
	if err != nil {
		return nil, fmt.Errorf("open collection %s: %w", collection, err)
	}
	return &ChromemStore{db: db, collection: c}, nil
}

func unusedEmbeddingFunc(context.Context, string) ([]float32, error) {
	return nil, fmt.Errorf("chromem store: embeddings must be precomputed")
}

func (s *ChromemStore) Upsert(ctx context.Context, items []port.VectorItem) error {
	if len(items) == 0 {
		return nil
	}
	docs := make([]chromem.Document, 0, len(items))
	for _, item := range items {
		docs = append(docs, chromem.Document{
			ID:        item.ID,
			Metadata:  item.Metadata,
			Embedding: item.Vector,
			Content:   item.Text,
		})
	}
	if err := s.collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("add documents: %w", err)
	}
	return nil
}

func (s *ChromemStore) Search(ctx context.Context, query []float32, k int) ([]port.VectorResult, error) {
	n := s.collection.Count()
	if n == 0 || k <= 0 {
		return nil, nil
	}
	if k > n {
		k = n
	}

	res, err := s.collection.QueryEmbedding(ctx, query, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query collection: %w", err)
	}
	results := make([]port.VectorResult, 0, len(res))
	for _, r := range res {
		results = append(results, port.VectorResult{
			ID:       r.ID,
			Score:    float64(r.Similarity),
			Metadata: r.Metadata,
		})
	}
	return results, nil
}

func (s *ChromemStore) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return s.collection.Delete(ctx, nil, nil, ids...)
}

func (s *ChromemStore) Count(ctx context.Context) (int, error) {
	return s.collection.Count(), nil
}

var _ port.VectorStore = (*ChromemStore)(nil)
