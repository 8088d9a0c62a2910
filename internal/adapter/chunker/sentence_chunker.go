package chunker

import (
	"fmt"
	"regexp"
	"strings"

	"docqa/internal/domain"
	"docqa/internal/port"
	"github.com/neurosnap/sentences"
	"github.com/neurosnap/sentences/english"
)

const paragraphSep = "\n\n"

// SentenceSplitter splits a paragraph into sentences.
type SentenceSplitter interface {
	Split(text string) []string
}

// PunktSplitter splits sentences with the pretrained English punkt model.
type PunktSplitter struct {
	tokenizer *sentences.DefaultSentenceTokenizer
}

// NewPunktSplitter loads the English training data bundled with neurosnap/sentences.
func NewPunktSplitter() (*PunktSplitter, error) {
	tok, err := english.NewSentenceTokenizer(nil)
	if err != nil {
		return nil, fmt.Errorf("load english sentence model: %w", err)
	}
	return &PunktSplitter{tokenizer: tok}, nil
}

func (s *PunktSplitter) Split(text string) []string {
	sents := s.tokenizer.Tokenize(text)
	out := make([]string, 0, len(sents))
	for _, sent := range sents {
		if t := strings.TrimSpace(sent.Text); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// RegexSplitter is a punctuation based fallback splitter.
type RegexSplitter struct {
	re *regexp.Regexp
}

func NewRegexSplitter() *RegexSplitter {
	return &RegexSplitter{re: regexp.MustCompile(`[^.!?]+[.!?]+["')\]]*|[^.!?]+$`)}
}

func (s *RegexSplitter) Split(text string) []string {
	var out []string
	for _, m := range s.re.FindAllString(text, -1) {
		if t := strings.TrimSpace(m); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// piece is a unit the chunker packs: a paragraph, a sentence or a word run.
type piece struct {
	text      string
	paraStart bool
}

// SentenceChunker splits documents into chunks of at most chunkSize tokens,
// preferring paragraph and sentence boundaries. Consecutive chunks share
// trailing pieces worth up to overlap tokens.
type SentenceChunker struct {
	chunkSize int
	overlap   int
	counter   port.TokenCounter
	splitter  SentenceSplitter
	tokenizer port.Tokenizer
}

func NewSentenceChunker(chunkSize, overlap int, counter port.TokenCounter, splitter SentenceSplitter, tokenizer port.Tokenizer) *SentenceChunker {
	if splitter == nil {
		splitter = NewRegexSplitter()
	}
	return &SentenceChunker{
		chunkSize: chunkSize,
		overlap:   overlap,
		counter:   counter,
		splitter:  splitter,
		tokenizer: tokenizer,
	}
}

func (c *SentenceChunker) Chunk(doc domain.Document) ([]domain.Chunk, error) {
	pieces := c.split(doc.Text)
	if len(pieces) == 0 {
		return nil, nil
	}

	texts := c.merge(pieces)
	chunks := make([]domain.Chunk, 0, len(texts))
	for _, text := range texts {
		seq := len(chunks)
		chunks = append(chunks, domain.Chunk{
			ID:       ChunkID(doc.ID, seq),
			DocID:    doc.ID,
			Seq:      seq,
			Tokens:   c.tokenizer.Tokenize(text),
			Text:     text,
			Metadata: inheritMetadata(doc.Metadata),
		})
	}
	return chunks, nil
}

func (c *SentenceChunker) split(text string) []piece {
	text = strings.ReplaceAll(text, "\r\n", "\n")

	var pieces []piece
	for _, para := range strings.Split(text, paragraphSep) {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if c.counter.CountTokens(para) <= c.chunkSize {
			pieces = append(pieces, piece{text: para, paraStart: true})
			continue
		}

		first := true
		for _, sent := range c.splitter.Split(para) {
			if c.counter.CountTokens(sent) <= c.chunkSize {
				pieces = append(pieces, piece{text: sent, paraStart: first})
				first = false
				continue
			}
			for _, run := range c.splitWords(sent) {
				run.paraStart = first
				first = false
				pieces = append(pieces, run)
			}
		}
	}
	return pieces
}

// splitWords breaks an oversize sentence into word runs that fit chunkSize.
func (c *SentenceChunker) splitWords(sentence string) []piece {
	var runs []piece
	var cur []string

	flush := func() {
		if len(cur) == 0 {
			return
		}
		text := strings.Join(cur, " ")
		runs = append(runs, piece{text: text})
		cur = nil
	}

	for _, w := range strings.Fields(sentence) {
		if len(cur) > 0 && c.counter.CountTokens(strings.Join(append(cur[:len(cur):len(cur)], w), " ")) > c.chunkSize {
			flush()
		}
		cur = append(cur, w)
	}
	flush()
	return runs
}

// merge packs pieces into chunks. Counts are taken on the joined text, since
// separators and tokenizers make piece counts non-additive.
func (c *SentenceChunker) merge(pieces []piece) []string {
	var chunks []string
	var cur []piece

	fits := func(ps []piece, p piece) bool {
		next := make([]piece, 0, len(ps)+1)
		next = append(append(next, ps...), p)
		return c.counter.CountTokens(joinPieces(next)) <= c.chunkSize
	}

	closeChunk := func() {
		chunks = append(chunks, joinPieces(cur))

		// carry the tail of the closed chunk into the next one
		var tail []piece
		for i := len(cur) - 1; i > 0; i-- {
			next := append([]piece{cur[i]}, tail...)
			if c.counter.CountTokens(joinPieces(next)) > c.overlap {
				break
			}
			tail = next
		}
		cur = tail
	}

	for _, p := range pieces {
		if len(cur) > 0 && !fits(cur, p) {
			closeChunk()
			for len(cur) > 0 && !fits(cur, p) {
				cur = cur[1:]
			}
		}
		cur = append(cur, p)
	}
	if len(cur) > 0 {
		chunks = append(chunks, joinPieces(cur))
	}
	return chunks
}

func joinPieces(pieces []piece) string {
	var sb strings.Builder
	for i, p := range pieces {
		if i > 0 {
			if p.paraStart {
				sb.WriteString(paragraphSep)
			} else {
				sb.WriteString(" ")
			}
		}
		sb.WriteString(p.text)
	}
	return sb.String()
}
