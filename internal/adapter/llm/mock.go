package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"docqa/internal/adapter/prompt"
)

// Mock answers without a model. The answer names the first context line
// of the prompt, which makes retrieval visible in tests and demos.
type Mock struct {
	wrapper *prompt.ChatWrapper

	mu      sync.Mutex
	prompts []string
}

func NewMock(wrapper *prompt.ChatWrapper) *Mock {
	return &Mock{wrapper: wrapper}
}

func (m *Mock) Complete(_ context.Context, system, user string) (string, error) {
	raw := user
	if m.wrapper != nil {
		raw = m.wrapper.Wrap(system, user)
	}
	m.mu.Lock()
	m.prompts = append(m.prompts, raw)
	m.mu.Unlock()

	ctx := contextOf(user)
	if ctx == "" {
		return "I could not find the answer in the provided documents.", nil
	}
	return fmt.Sprintf("According to the documents: %s", ctx), nil
}

// Prompts returns every rendered prompt received so far.
func (m *Mock) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.prompts...)
}

func (m *Mock) ModelName() string {
	return "mock"
}

// contextOf returns the first non-empty line between the QA template's rulers.
func contextOf(user string) string {
	const ruler = "---------------------"
	parts := strings.SplitN(user, ruler, 3)
	if len(parts) < 3 {
		return ""
	}
	for _, line := range strings.Split(parts[1], "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}
