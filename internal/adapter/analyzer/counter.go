package analyzer

import (
	"fmt"
	"log/slog"
	"sync"

	"docqa/internal/port"
	"github.com/pkoukk/tiktoken-go"
)

// TiktokenCounter counts tokens with a BPE encoding such as cl100k_base.
type TiktokenCounter struct {
	enc *tiktoken.Tiktoken
	mu  sync.Mutex
}

// NewTiktokenCounter loads the named encoding. The BPE ranks are fetched and
// cached by tiktoken-go on first use, so this can fail when offline.
func NewTiktokenCounter(encoding string) (*TiktokenCounter, error) {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("load encoding %s: %w", encoding, err)
	}
	return &TiktokenCounter{enc: enc}, nil
}

// CountTokens returns the exact number of BPE tokens in text.
func (c *TiktokenCounter) CountTokens(text string) int {
	if text == "" {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.enc.EncodeOrdinary(text))
}

// HeuristicCounter is the offline fallback.
type HeuristicCounter struct{}

// CountTokens implements port.TokenCounter.
func (HeuristicCounter) CountTokens(text string) int {
	return EstimateTokens(text)
}

// NewCounter returns a tiktoken counter for encoding, or the heuristic
// counter when encoding is empty or cannot be loaded.
func NewCounter(encoding string, logger *slog.Logger) port.TokenCounter {
	if encoding == "" {
		return HeuristicCounter{}
	}
	c, err := NewTiktokenCounter(encoding)
	if err != nil {
		if logger != nil {
			logger.Warn("falling back to heuristic token counts", "encoding", encoding, "error", err)
		}
		return HeuristicCounter{}
	}
	return c
}
