package memstore

import (
	"context"
	"fmt"
	"sync"

	"docqa/internal/adapter/store"
	"docqa/internal/port"
)

// VectorStore is a brute-force cosine index held in memory.
type VectorStore struct {
	mu      sync.RWMutex
	dim     int
	vectors map[string]port.VectorItem
}

func NewVectorStore() *VectorStore {
	return &VectorStore{vectors: make(map[string]port.VectorItem)}
}

func (s *VectorStore) Upsert(ctx context.Context, items []port.VectorItem) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, item := range items {
		if s.dim == 0 {
			s.dim = len(item.Vector)
		}
		if len(item.Vector) != s.dim {
			return fmt.Errorf("vector dimension mismatch: expected %d, got %d", s.dim, len(item.Vector))
		}
		s.vectors[item.ID] = item
	}
	return nil
}

func (s *VectorStore) Search(ctx context.Context, query []float32, k int) ([]port.VectorResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.vectors) == 0 || k <= 0 {
		return nil, nil
	}
	if len(query) != s.dim {
		return nil, fmt.Errorf("query dimension mismatch: expected %d, got %d", s.dim, len(query))
	}

	results := make([]port.VectorResult, 0, len(s.vectors))
	for id, item := range s.vectors {
		results = append(results, port.VectorResult{
			ID:       id,
			Score:    store.CosineSimilarity(query, item.Vector),
			Metadata: item.Metadata,
		})
	}
	return store.TopK(results, k), nil
}

func (s *VectorStore) Delete(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.vectors, id)
	}
	if len(s.vectors) == 0 {
		s.dim = 0
	}
	return nil
}

func (s *VectorStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.vectors), nil
}

var _ port.VectorStore = (*VectorStore)(nil)
