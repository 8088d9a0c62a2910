package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"docqa/internal/adapter/cache"
	"docqa/internal/adapter/prompt"
	"docqa/internal/domain"
	"docqa/internal/port"
	"github.com/google/uuid"
)

// Retriever finds the chunks most relevant to a question.
type Retriever interface {
	Search(ctx context.Context, query string, k int) ([]domain.ScoredChunk, error)
}

// QueryEngine answers questions: retrieve, pack, prompt, complete.
type QueryEngine struct {
	retriever     Retriever
	packer        *PackUseCase
	llm           port.LLM
	counter       port.TokenCounter
	qa            *prompt.Template
	wrapper       *prompt.ChatWrapper
	system        string
	topK          int
	contextWindow int
	maxNewTokens  int
	cache         *cache.QueryCache[domain.Response]
	logger        *slog.Logger
}

// QueryOptions configure a QueryEngine. Cache may be nil.
type QueryOptions struct {
	QATemplate    *prompt.Template
	Wrapper       *prompt.ChatWrapper
	SystemPrompt  string
	TopK          int
	ContextWindow int
	MaxNewTokens  int
	Cache         *cache.QueryCache[domain.Response]
	Logger        *slog.Logger
}

func NewQueryEngine(retriever Retriever, packer *PackUseCase, llm port.LLM, counter port.TokenCounter, opts QueryOptions) *QueryEngine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	qa := opts.QATemplate
	if qa == nil {
		qa = prompt.NewTemplate(prompt.DefaultQATemplate)
	}
	return &QueryEngine{
		retriever:     retriever,
		packer:        packer,
		llm:           llm,
		counter:       counter,
		qa:            qa,
		wrapper:       opts.Wrapper,
		system:        opts.SystemPrompt,
		topK:          opts.TopK,
		contextWindow: opts.ContextWindow,
		maxNewTokens:  opts.MaxNewTokens,
		cache:         opts.Cache,
		logger:        logger,
	}
}

// Query answers question from the indexed documents. An empty retrieval
// still reaches the model, with an empty context.
func (e *QueryEngine) Query(ctx context.Context, question string) (domain.Response, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return domain.Response{}, fmt.Errorf("empty question")
	}
	if e.cache != nil {
		if resp, ok := e.cache.Get(question, e.topK); ok {
			e.logger.Debug("answer served from cache", "query", question)
			return resp, nil
		}
	}

	start := time.Now()

	chunks, err := e.retriever.Search(ctx, question, e.topK)
	if err != nil {
		return domain.Response{}, fmt.Errorf("retrieve: %w", err)
	}

	budget, err := e.contextBudget(question)
	if err != nil {
		return domain.Response{}, err
	}
	packed, err := e.packer.Pack(question, chunks, budget)
	if err != nil {
		return domain.Response{}, fmt.Errorf("pack context: %w", err)
	}

	user, err := e.qa.Format(map[string]string{
		prompt.VarContext: packed.Text,
		prompt.VarQuery:   question,
	})
	if err != nil {
		return domain.Response{}, err
	}

	answer, err := e.llm.Complete(ctx, e.system, user)
	if err != nil {
		return domain.Response{}, fmt.Errorf("complete: %w", err)
	}

	resp := domain.Response{
		ID:      uuid.NewString(),
		Query:   question,
		Answer:  answer,
		Sources: e.packer.Sources(packed),
		Elapsed: time.Since(start),
	}
	e.logger.Debug("answered",
		"id", resp.ID,
		"model", e.llm.ModelName(),
		"chunks", len(packed.Chunks),
		"context_tokens", packed.UsedTokens,
		"budget", budget,
		"elapsed", resp.Elapsed)

	if e.cache != nil {
		e.cache.Put(question, e.topK, resp)
	}
	return resp, nil
}

// Retrieve runs retrieval alone. k <= 0 uses the configured top k.
func (e *QueryEngine) Retrieve(ctx context.Context, question string, k int) ([]domain.ScoredChunk, error) {
	if k <= 0 {
		k = e.topK
	}
	return e.retriever.Search(ctx, question, k)
}

// contextBudget is what remains of the context window once the answer
// and the prompt around the context are accounted for.
func (e *QueryEngine) contextBudget(question string) (int, error) {
	empty, err := e.qa.Format(map[string]string{
		prompt.VarContext: "",
		prompt.VarQuery:   question,
	})
	if err != nil {
		return 0, err
	}
	if e.wrapper != nil {
		empty = e.wrapper.Wrap(e.system, empty)
	}

	budget := e.contextWindow - e.maxNewTokens - e.counter.CountTokens(empty)
	if budget <= 0 {
		return 0, fmt.Errorf("question leaves no room for context: %d tokens over the %d token window", -budget, e.contextWindow)
	}
	return budget, nil
}
