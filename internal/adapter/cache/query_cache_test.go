package cache

import (
	"context"
	"testing"
	"time"

	"docqa/internal/domain"
)

func TestQueryCache_HitAndNormalization(t *testing.T) {
	c := NewQueryCache[domain.Response](4, time.Minute)
	c.Put("What is BIP39?", 2, domain.Response{Answer: "A mnemonic standard."})

	got, ok := c.Get("  what is   bip39? ", 2)
	if !ok || got.Answer != "A mnemonic standard." {
		t.Fatalf("expected normalized hit, got %v %v", got, ok)
	}
	if _, ok := c.Get("What is BIP39?", 3); ok {
		t.Error("different top_k must miss")
	}
}

func TestQueryCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c := NewQueryCache[string](2, time.Minute)
	c.Put("a", 1, "A")
	c.Put("b", 1, "B")
	c.Get("a", 1)
	c.Put("c", 1, "C")

	if _, ok := c.Get("b", 1); ok {
		t.Error("b should have been evicted")
	}
	if _, ok := c.Get("a", 1); !ok {
		t.Error("a was used recently and should survive")
	}
	if c.Size() != 2 {
		t.Errorf("expected size 2, got %d", c.Size())
	}
}

func TestQueryCache_TTL(t *testing.T) {
	c := NewQueryCache[string](2, time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.Put("q", 1, "answer")
	now = now.Add(2 * time.Minute)

	if _, ok := c.Get("q", 1); ok {
		t.Error("expired entry should miss")
	}
	if c.Size() != 0 {
		t.Errorf("expired entry should be dropped, size %d", c.Size())
	}
}

type countingRetriever struct {
	calls int
}

func (r *countingRetriever) Search(ctx context.Context, query string, k int) ([]domain.ScoredChunk, error) {
	r.calls++
	return []domain.ScoredChunk{{Chunk: domain.Chunk{ID: "c1"}, Score: 0.9}}, nil
}

func TestCachedRetriever(t *testing.T) {
	inner := &countingRetriever{}
	r := NewCachedRetriever(inner, NewQueryCache[[]domain.ScoredChunk](8, time.Minute))

	for i := 0; i < 3; i++ {
		results, err := r.Search(context.Background(), "mining", 2)
		if err != nil || len(results) != 1 {
			t.Fatalf("unexpected %v %v", results, err)
		}
	}
	if inner.calls != 1 {
		t.Errorf("expected one underlying search, got %d", inner.calls)
	}
}
