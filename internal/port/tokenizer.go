package port

type Tokenizer interface {
	Tokenize(text string) []string

	CountTokens(text string) int
}

// TokenCounter counts model tokens for prompt budgeting.
type TokenCounter interface {
	CountTokens(text string) int
}
