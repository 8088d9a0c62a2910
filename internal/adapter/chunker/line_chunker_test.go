package chunker

import (
	"strings"
	"testing"

	"docqa/internal/adapter/analyzer"
	"docqa/internal/domain"
)

func newLineChunker(maxTokens, overlap int) *LineChunker {
	return NewLineChunker(maxTokens, overlap, analyzer.HeuristicCounter{}, analyzer.NewTokenizer())
}

func TestLineChunkerBasic(t *testing.T) {
	chunker := newLineChunker(50, 10)

	doc := domain.Document{
		ID:       "doc1",
		Path:     "/test/notes.txt",
		Metadata: map[string]string{"file_name": "notes.txt"},
		Text: `Chapter 1

Bitcoin is a collection of concepts and technologies.

Units of currency called bitcoin are used to store and transmit value.
Users communicate with each other using the bitcoin protocol.`,
	}

	chunks, err := chunker.Chunk(doc)
	if err != nil {
		t.Fatal(err)
	}

	if len(chunks) == 0 {
		t.Fatal("expected at least one chunk")
	}

	for i, chunk := range chunks {
		if chunk.ID == "" {
			t.Error("chunk has empty ID")
		}
		if chunk.DocID != "doc1" {
			t.Errorf("expected DocID 'doc1', got '%s'", chunk.DocID)
		}
		if chunk.Seq != i {
			t.Errorf("expected Seq %d, got %d", i, chunk.Seq)
		}
		if chunk.Metadata["file_name"] != "notes.txt" {
			t.Errorf("chunk should inherit document metadata, got %v", chunk.Metadata)
		}
		if chunk.Metadata["lines"] == "" {
			t.Error("chunk should record its line range")
		}
		if chunk.Text == "" {
			t.Error("chunk has empty text")
		}
	}
}

func TestLineChunkerBoundaries(t *testing.T) {
	chunker := newLineChunker(10, 2)

	lines := []string{
		"Line one",
		"Line two",
		"Line three",
		"Line four",
		"Line five",
		"Line six",
		"Line seven",
		"Line eight",
	}
	doc := domain.Document{ID: "doc1", Text: strings.Join(lines, "\n")}

	chunks, err := chunker.Chunk(doc)
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) < 2 {
		t.Fatalf("expected several chunks, got %d", len(chunks))
	}

	for _, line := range lines {
		found := false
		for _, chunk := range chunks {
			if strings.Contains(chunk.Text, line) {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("line '%s' not found in any chunk", line)
		}
	}
}

func TestLineChunkerOverlap(t *testing.T) {
	chunker := newLineChunker(2, 2)

	doc := domain.Document{ID: "doc1", Text: "Line1\nLine2\nLine3\nLine4\nLine5"}

	chunks, err := chunker.Chunk(doc)
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) < 2 {
		t.Fatalf("expected at least 2 chunks, got %d", len(chunks))
	}

	for i := 0; i < len(chunks)-1; i++ {
		prev := strings.Split(chunks[i].Text, "\n")
		last := prev[len(prev)-1]
		if !strings.HasPrefix(chunks[i+1].Text, last) {
			t.Errorf("chunk %d should start with the last line of chunk %d (%q), got %q", i+1, i, last, chunks[i+1].Text)
		}
	}
}

func TestLineChunkerEmptyContent(t *testing.T) {
	chunker := newLineChunker(50, 10)

	chunks, err := chunker.Chunk(domain.Document{ID: "doc1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 0 {
		t.Errorf("expected 0 chunks for empty content, got %d", len(chunks))
	}
}

func TestLineChunkerSingleLine(t *testing.T) {
	chunker := newLineChunker(50, 10)

	content := "Just a single line of text"
	chunks, err := chunker.Chunk(domain.Document{ID: "doc1", Text: content})
	if err != nil {
		t.Fatal(err)
	}

	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk for single line, got %d", len(chunks))
	}
	if chunks[0].Text != content {
		t.Errorf("expected chunk text to match content")
	}
	if chunks[0].Metadata["lines"] != "1-1" {
		t.Errorf("expected lines 1-1, got %s", chunks[0].Metadata["lines"])
	}
}

func TestLineChunkerLongLine(t *testing.T) {
	chunker := newLineChunker(5, 0)

	content := "This is a very long line with many many words that will exceed the token limit"
	chunks, err := chunker.Chunk(domain.Document{ID: "doc1", Text: content})
	if err != nil {
		t.Fatal(err)
	}

	if len(chunks) != 1 {
		t.Fatalf("expected one chunk for an oversized line, got %d", len(chunks))
	}
	if chunks[0].Text != content {
		t.Error("chunk should contain the full oversized line")
	}
}

func TestChunkIDUniqueness(t *testing.T) {
	chunker := newLineChunker(10, 2)

	doc := domain.Document{ID: "doc1", Text: "Line1\nLine2\nLine3\nLine4\nLine5\nLine6\nLine7\nLine8"}

	chunks, err := chunker.Chunk(doc)
	if err != nil {
		t.Fatal(err)
	}

	ids := make(map[string]bool)
	for _, chunk := range chunks {
		if ids[chunk.ID] {
			t.Errorf("duplicate chunk ID: %s", chunk.ID)
		}
		ids[chunk.ID] = true
	}
}

func TestChunkIDStable(t *testing.T) {
	if ChunkID("doc1", 3) != ChunkID("doc1", 3) {
		t.Error("ChunkID should be deterministic")
	}
	if ChunkID("doc1", 3) == ChunkID("doc2", 3) {
		t.Error("ChunkID should depend on the document")
	}
	if len(ChunkID("doc1", 0)) != 16 {
		t.Errorf("expected 16 hex chars, got %q", ChunkID("doc1", 0))
	}
}
