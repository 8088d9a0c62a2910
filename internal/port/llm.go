package port

import "context"

// LLM represents a language model for text generation.
type LLM interface {
	// Complete answers the user prompt under the given system prompt.
	// Adapters decide how both are rendered for their runtime.
	Complete(ctx context.Context, system, user string) (string, error)

	// ModelName returns the name of the model.
	ModelName() string
}
