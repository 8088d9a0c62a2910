package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"docqa/config"
	"docqa/internal/adapter/prompt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func llama2Wrapper(t *testing.T) *prompt.ChatWrapper {
	t.Helper()
	w, err := prompt.NewChatWrapper(config.QueryWrapper)
	require.NoError(t, err)
	return w
}

func TestOpenAICompletion(t *testing.T) {
	var got struct {
		Model       string   `json:"model"`
		Prompt      string   `json:"prompt"`
		MaxTokens   int      `json:"max_tokens"`
		Temperature float32  `json:"temperature"`
		Stop        []string `json:"stop"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/completions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"cmpl-1","object":"text_completion","model":"llama","choices":[{"text":"  BIP39 defines mnemonic codes.\n","index":0,"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	c, err := NewOpenAICompletion(Options{
		Model:        config.Llama2_7BChat,
		BaseURL:      srv.URL + "/v1/",
		MaxNewTokens: 2048,
		Stop:         []string{"</s>"},
		Wrapper:      llama2Wrapper(t),
	})
	require.NoError(t, err)

	answer, err := c.Complete(context.Background(), "SYS", "What is BIP39?")
	require.NoError(t, err)
	assert.Equal(t, "BIP39 defines mnemonic codes.", answer)

	assert.Equal(t, config.Llama2_7BChat, got.Model)
	assert.Equal(t, "[INST]<<SYS>>\nSYS<</SYS>>\n\nWhat is BIP39?[/INST] ", got.Prompt)
	assert.Equal(t, 2048, got.MaxTokens)
	assert.InDelta(t, greedyTemperature, got.Temperature, 1e-6)
	assert.Equal(t, []string{"</s>"}, got.Stop)
}

func TestOpenAICompletion_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"model not loaded","type":"server_error"}}`))
	}))
	defer srv.Close()

	c, err := NewOpenAICompletion(Options{Model: "m", BaseURL: srv.URL, Wrapper: llama2Wrapper(t)})
	require.NoError(t, err)

	_, err = c.Complete(context.Background(), "", "q")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model not loaded")
}

func TestOpenAICompletion_RequiresBaseURL(t *testing.T) {
	_, err := NewOpenAICompletion(Options{Model: "m", Wrapper: llama2Wrapper(t)})
	assert.Error(t, err)
}

func TestOllama(t *testing.T) {
	var req struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/chat", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		_, _ = w.Write([]byte(`{"model":"llama2","message":{"role":"assistant","content":" He wrote short stories. "},"done":true}` + "\n"))
	}))
	defer srv.Close()

	o, err := NewOllama(Options{Model: "llama2", BaseURL: srv.URL, MaxNewTokens: 128})
	require.NoError(t, err)

	answer, err := o.Complete(context.Background(), "be brief", "What did the author do growing up?")
	require.NoError(t, err)
	assert.Equal(t, "He wrote short stories.", answer)

	require.Len(t, req.Messages, 2)
	assert.Equal(t, "system", req.Messages[0].Role)
	assert.Equal(t, "be brief", req.Messages[0].Content)
	assert.Equal(t, "user", req.Messages[1].Role)
	assert.Equal(t, "llama2", req.Model)
	assert.Equal(t, "llama2", o.ModelName())
}

func TestMock(t *testing.T) {
	m := NewMock(llama2Wrapper(t))
	qa, err := prompt.NewQATemplate("")
	require.NoError(t, err)

	user := qa.MustFormat(map[string]string{
		prompt.VarContext: "\nBIP39 describes mnemonic codes.\nMore text.",
		prompt.VarQuery:   "What is BIP39?",
	})
	answer, err := m.Complete(context.Background(), "SYS", user)
	require.NoError(t, err)
	assert.Equal(t, "According to the documents: BIP39 describes mnemonic codes.", answer)

	empty := qa.MustFormat(map[string]string{prompt.VarContext: "", prompt.VarQuery: "?"})
	answer, err = m.Complete(context.Background(), "SYS", empty)
	require.NoError(t, err)
	assert.Contains(t, answer, "could not find")

	prompts := m.Prompts()
	require.Len(t, prompts, 2)
	assert.Contains(t, prompts[0], "[INST]<<SYS>>\nSYS<</SYS>>")
}

func TestNew(t *testing.T) {
	cfg := config.DefaultConfig()

	for _, provider := range []string{"openai", "ollama", "mock"} {
		llmCfg := cfg.LLM
		llmCfg.Provider = provider
		l, err := New(llmCfg, cfg.Prompt, nil)
		require.NoError(t, err, provider)
		assert.NotNil(t, l)
	}

	llmCfg := cfg.LLM
	llmCfg.Provider = "anthropic"
	_, err := New(llmCfg, cfg.Prompt, nil)
	assert.Error(t, err)

	badPrompt := cfg.Prompt
	badPrompt.QueryWrapper = "[INST]{prompt}[/INST]"
	_, err = New(cfg.LLM, badPrompt, nil)
	assert.Error(t, err)
}
