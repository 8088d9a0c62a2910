package usecase

import (
	"sort"
	"strings"

	"docqa/internal/domain"
	"docqa/internal/port"
)

const chunkSeparator = "\n\n"

// maxOverlapBytes bounds the search for text shared by consecutive chunks.
const maxOverlapBytes = 4096

// PackUseCase fits retrieved chunks into the context part of the prompt.
type PackUseCase struct {
	catalog port.IndexStore
	counter port.TokenCounter
}

// NewPackUseCase creates a new pack use case.
func NewPackUseCase(catalog port.IndexStore, counter port.TokenCounter) *PackUseCase {
	return &PackUseCase{
		catalog: catalog,
		counter: counter,
	}
}

// Pack selects chunks in relevance order until budget tokens are used.
// Consecutive chunks of one document are merged and their shared overlap
// is written once. When not even the best chunk fits, it is truncated.
func (u *PackUseCase) Pack(query string, chunks []domain.ScoredChunk, budget int) (domain.PackedContext, error) {
	packed := domain.PackedContext{
		Query:        query,
		BudgetTokens: budget,
		Chunks:       []domain.ScoredChunk{},
	}
	if len(chunks) == 0 || budget <= 0 {
		return packed, nil
	}

	ranked := make([]domain.ScoredChunk, len(chunks))
	copy(ranked, chunks)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})

	sepTokens := u.counter.CountTokens(chunkSeparator)
	selected := make([]domain.ScoredChunk, 0, len(ranked))
	used := 0
	for _, c := range ranked {
		cost := u.counter.CountTokens(c.Chunk.Text)
		if len(selected) > 0 {
			cost += sepTokens
		}
		if used+cost > budget {
			continue
		}
		selected = append(selected, c)
		used += cost
	}

	if len(selected) == 0 {
		best := ranked[0]
		best.Chunk.Text = u.truncate(best.Chunk.Text, budget)
		if best.Chunk.Text == "" {
			return packed, nil
		}
		selected = append(selected, best)
	}

	merged := mergeAdjacentChunks(selected)

	texts := make([]string, len(merged))
	for i, c := range merged {
		texts[i] = c.Chunk.Text
	}
	packed.Chunks = merged
	packed.Text = strings.Join(texts, chunkSeparator)
	packed.UsedTokens = u.counter.CountTokens(packed.Text)
	return packed, nil
}

// Sources describes the packed chunks for the response.
func (u *PackUseCase) Sources(packed domain.PackedContext) []domain.Source {
	sources := make([]domain.Source, 0, len(packed.Chunks))
	paths := make(map[string]string)
	for _, sc := range packed.Chunks {
		path, ok := paths[sc.Chunk.DocID]
		if !ok {
			if doc, err := u.catalog.GetDoc(sc.Chunk.DocID); err == nil {
				path = doc.Path
			} else {
				path = sc.Chunk.Metadata["file_path"]
			}
			paths[sc.Chunk.DocID] = path
		}
		sources = append(sources, domain.Source{
			ChunkID: sc.Chunk.ID,
			Path:    path,
			Score:   sc.Score,
			Text:    sc.Chunk.Text,
		})
	}
	return sources
}

// truncate keeps the longest word prefix of text that fits budget tokens.
func (u *PackUseCase) truncate(text string, budget int) string {
	words := strings.Fields(text)
	lo, hi := 0, len(words)
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if u.counter.CountTokens(strings.Join(words[:mid], " ")) <= budget {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return strings.Join(words[:lo], " ")
}

// mergeAdjacentChunks merges chunks with consecutive sequence numbers from
// the same document. Groups keep the order of their best chunk.
func mergeAdjacentChunks(chunks []domain.ScoredChunk) []domain.ScoredChunk {
	if len(chunks) <= 1 {
		return chunks
	}

	byDoc := make(map[string][]domain.ScoredChunk)
	var docOrder []string
	for _, c := range chunks {
		if _, ok := byDoc[c.Chunk.DocID]; !ok {
			docOrder = append(docOrder, c.Chunk.DocID)
		}
		byDoc[c.Chunk.DocID] = append(byDoc[c.Chunk.DocID], c)
	}

	result := make([]domain.ScoredChunk, 0, len(chunks))
	for _, docID := range docOrder {
		docChunks := byDoc[docID]
		sort.Slice(docChunks, func(i, j int) bool {
			return docChunks[i].Chunk.Seq < docChunks[j].Chunk.Seq
		})

		i := 0
		for i < len(docChunks) {
			merged := docChunks[i]
			merged.Chunk.Tokens = append([]string(nil), merged.Chunk.Tokens...)
			last := merged.Chunk.Seq
			j := i + 1
			for j < len(docChunks) && docChunks[j].Chunk.Seq == last+1 {
				next := docChunks[j]
				merged.Chunk.Text = joinOverlapping(merged.Chunk.Text, next.Chunk.Text)
				merged.Chunk.Tokens = append(merged.Chunk.Tokens, next.Chunk.Tokens...)
				merged.Score = maxFloat(merged.Score, next.Score)
				last = next.Chunk.Seq
				j++
			}
			result = append(result, merged)
			i = j
		}
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Score > result[j].Score
	})
	return result
}

// joinOverlapping appends b to a, writing the longest suffix of a that
// starts at a word boundary and prefixes b only once.
func joinOverlapping(a, b string) string {
	start := 1
	if len(a) > maxOverlapBytes {
		start = len(a) - maxOverlapBytes
	}
	for i := start; i < len(a); i++ {
		if a[i-1] != ' ' && a[i-1] != '\n' {
			continue
		}
		if strings.HasPrefix(b, a[i:]) {
			return a + b[len(a)-i:]
		}
	}
	return a + chunkSeparator + b
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
