package chunker

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"docqa/internal/domain"
	"docqa/internal/port"
)

// LineChunker packs whole lines into chunks. Used for plain-text corpora
// where line breaks carry structure (logs, lists, source listings).
type LineChunker struct {
	maxTokens int
	overlap   int
	counter   port.TokenCounter
	tokenizer port.Tokenizer
}

func NewLineChunker(maxTokens, overlap int, counter port.TokenCounter, tokenizer port.Tokenizer) *LineChunker {
	return &LineChunker{
		maxTokens: maxTokens,
		overlap:   overlap,
		counter:   counter,
		tokenizer: tokenizer,
	}
}

func (c *LineChunker) Chunk(doc domain.Document) ([]domain.Chunk, error) {
	if strings.TrimSpace(doc.Text) == "" {
		return nil, nil
	}
	lines := strings.Split(doc.Text, "\n")

	var chunks []domain.Chunk
	startLine := 0

	for startLine < len(lines) {

		endLine := startLine
		currentTokens := 0
		var chunkText strings.Builder

		for endLine < len(lines) {
			lineText := lines[endLine]
			lineTokens := c.counter.CountTokens(lineText)

			if currentTokens > 0 && currentTokens+lineTokens > c.maxTokens {
				break
			}

			if chunkText.Len() > 0 {
				chunkText.WriteString("\n")
			}
			chunkText.WriteString(lineText)
			currentTokens += lineTokens
			endLine++
		}

		if endLine == startLine {
			chunkText.WriteString(lines[endLine])
			endLine++
		}

		text := chunkText.String()
		if strings.TrimSpace(text) != "" {
			meta := inheritMetadata(doc.Metadata)
			meta["lines"] = fmt.Sprintf("%d-%d", startLine+1, endLine)
			seq := len(chunks)
			chunks = append(chunks, domain.Chunk{
				ID:       ChunkID(doc.ID, seq),
				DocID:    doc.ID,
				Seq:      seq,
				Tokens:   c.tokenizer.Tokenize(text),
				Text:     text,
				Metadata: meta,
			})
		}

		if endLine >= len(lines) {
			break
		}

		overlapLines := c.calculateOverlapLines(lines, startLine, endLine)
		newStart := endLine - overlapLines

		if newStart <= startLine {
			newStart = startLine + 1
		}
		startLine = newStart
	}

	return chunks, nil
}

func (c *LineChunker) calculateOverlapLines(lines []string, start, end int) int {
	if c.overlap == 0 {
		return 0
	}

	overlapLines := 0
	tokens := 0

	for i := end - 1; i > start && tokens < c.overlap; i-- {
		tokens += c.counter.CountTokens(lines[i])
		overlapLines++
	}

	return overlapLines
}

// ChunkID derives a stable chunk ID from the document ID and position.
func ChunkID(docID string, seq int) string {
	data := fmt.Sprintf("%s:%d", docID, seq)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:8])
}

func inheritMetadata(src map[string]string) map[string]string {
	meta := make(map[string]string, len(src)+1)
	for k, v := range src {
		meta[k] = v
	}
	return meta
}
