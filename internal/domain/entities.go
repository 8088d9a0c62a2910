package domain

import "time"

type Document struct {
	ID       string
	Path     string
	ModTime  time.Time
	Text     string
	Metadata map[string]string
}

type Chunk struct {
	ID       string
	DocID    string
	Seq      int
	Tokens   []string
	Text     string
	Metadata map[string]string
}

type ScoredChunk struct {
	Chunk Chunk
	Score float64
}

// Response is the answer to a single question together with the chunks
// that were placed in the prompt.
type Response struct {
	ID      string        `json:"id"`
	Query   string        `json:"query"`
	Answer  string        `json:"answer"`
	Sources []Source      `json:"sources"`
	Elapsed time.Duration `json:"elapsed"`
}

type Source struct {
	ChunkID string  `json:"chunk_id"`
	Path    string  `json:"path"`
	Score   float64 `json:"score"`
	Text    string  `json:"text"`
}

// String returns the answer text, so a Response prints like the answer itself.
func (r Response) String() string {
	return r.Answer
}

type Stats struct {
	TotalDocs   int
	TotalChunks int
	AvgChunkLen float64
	Embedded    int
}

// PackedContext is the retrieved text that fits the prompt budget.
type PackedContext struct {
	Query        string
	BudgetTokens int
	UsedTokens   int
	Chunks       []ScoredChunk
	Text         string
}
