package prompt

import "fmt"

// ChatWrapper renders a system prompt and a user prompt as one raw
// completion prompt, e.g. Llama-2 [INST]<<SYS>> markup.
type ChatWrapper struct {
	tmpl *Template
}

// NewChatWrapper validates that text has a {query_str} slot.
// {system_prompt} is optional.
func NewChatWrapper(text string) (*ChatWrapper, error) {
	t := NewTemplate(text)
	for _, v := range t.Vars() {
		switch v {
		case VarQuery, VarSystem:
		default:
			return nil, fmt.Errorf("query wrapper has unknown placeholder {%s}", v)
		}
	}
	hasQuery := false
	for _, v := range t.Vars() {
		if v == VarQuery {
			hasQuery = true
		}
	}
	if !hasQuery {
		return nil, fmt.Errorf("query wrapper must contain {%s}", VarQuery)
	}
	return &ChatWrapper{tmpl: t}, nil
}

func (w *ChatWrapper) Wrap(system, user string) string {
	return w.tmpl.MustFormat(map[string]string{
		VarSystem: system,
		VarQuery:  user,
	})
}

// NewQATemplate returns the QA template, falling back to DefaultQATemplate.
// Both {context_str} and {query_str} must be present.
func NewQATemplate(text string) (*Template, error) {
	if text == "" {
		text = DefaultQATemplate
	}
	t := NewTemplate(text)
	have := make(map[string]bool)
	for _, v := range t.Vars() {
		have[v] = true
	}
	if !have[VarContext] || !have[VarQuery] {
		return nil, fmt.Errorf("qa template must contain {%s} and {%s}", VarContext, VarQuery)
	}
	return t, nil
}
