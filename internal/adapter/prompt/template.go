package prompt

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Variable names used by the QA prompt and the chat wrapper.
const (
	VarContext = "context_str"
	VarQuery   = "query_str"
	VarSystem  = "system_prompt"
)

// DefaultQATemplate is the text QA prompt placed inside the chat wrapper.
const DefaultQATemplate = `Context information is below.
---------------------
{context_str}
---------------------
Given the context information and not prior knowledge, answer the query.
Query: {query_str}
Answer: `

var varRegex = regexp.MustCompile(`\{(\w+)\}`)

// Template is a prompt with {name} placeholders. Substitution is single
// pass, so braces inside substituted values are left alone.
type Template struct {
	text string
	vars []string
}

func NewTemplate(text string) *Template {
	seen := make(map[string]bool)
	var vars []string
	for _, m := range varRegex.FindAllStringSubmatch(text, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			vars = append(vars, m[1])
		}
	}
	return &Template{text: text, vars: vars}
}

// Vars returns the placeholder names in order of first appearance.
func (t *Template) Vars() []string {
	return t.vars
}

func (t *Template) String() string {
	return t.text
}

// Format substitutes every placeholder. Missing values are an error.
func (t *Template) Format(values map[string]string) (string, error) {
	var missing []string
	for _, v := range t.vars {
		if _, ok := values[v]; !ok {
			missing = append(missing, v)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return "", fmt.Errorf("prompt template missing values for %s", strings.Join(missing, ", "))
	}

	return varRegex.ReplaceAllStringFunc(t.text, func(m string) string {
		return values[m[1:len(m)-1]]
	}), nil
}

// MustFormat is Format for templates whose variables are known to be supplied.
func (t *Template) MustFormat(values map[string]string) string {
	s, err := t.Format(values)
	if err != nil {
		panic(err)
	}
	return s
}
