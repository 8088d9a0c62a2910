package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Model names of the Llama-2 family (make sure you have access on HF).
const (
	Llama2_7B      = "meta-llama/Llama-2-7b-hf"
	Llama2_7BChat  = "meta-llama/Llama-2-7b-chat-hf"
	Llama2_13B     = "meta-llama/Llama-2-13b-hf"
	Llama2_13BChat = "meta-llama/Llama-2-13b-chat-hf"
	Llama2_70B     = "meta-llama/Llama-2-70b-hf"
	Llama2_70BChat = "meta-llama/Llama-2-70b-chat-hf"
)

// SystemPrompt is the system prompt placed inside the Llama-2 chat wrapper.
const SystemPrompt = `You are an AI assistant that answers questions in a friendly manner, based on the given source documents. Here are some rules you always follow:
- Generate human readable output, avoid creating output with gibberish text.
- Generate only the requested output, don't include any other language before or after the requested output.
- Never say thank you, that you are happy to help, that you are an AI agent, etc. Just answer directly.
- Generate professional language typically used in business documents in North America.
- Never generate offensive or foul language.
`

// QueryWrapper wraps the formatted QA prompt in Llama-2 chat markup.
const QueryWrapper = "[INST]<<SYS>>\n{system_prompt}<</SYS>>\n\n{query_str}[/INST] "

// Config holds all configuration for docqa.
type Config struct {
	Profile   string          `yaml:"profile"`
	Corpus    CorpusConfig    `yaml:"corpus"`
	Index     IndexConfig     `yaml:"index"`
	Store     StoreConfig     `yaml:"store"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	LLM       LLMConfig       `yaml:"llm"`
	Prompt    PromptConfig    `yaml:"prompt"`
	Query     QueryConfig     `yaml:"query"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// CorpusConfig describes where documents are read from.
type CorpusConfig struct {
	Dir      string   `yaml:"dir"`
	Includes []string `yaml:"includes"`
	Excludes []string `yaml:"excludes"`
}

// IndexConfig holds chunking configuration.
type IndexConfig struct {
	Splitter     string `yaml:"splitter"` // "sentence", "line"
	ChunkSize    int    `yaml:"chunk_size"`
	ChunkOverlap int    `yaml:"chunk_overlap"`
	Encoding     string `yaml:"encoding"` // tiktoken encoding used for token counts
}

// StoreConfig selects where the vector index lives.
type StoreConfig struct {
	Backend    string `yaml:"backend"`     // "bolt", "chroma", "memory"
	PersistDir string `yaml:"persist_dir"` // ignored by "memory"
	Collection string `yaml:"collection"`
}

// EmbeddingConfig holds embedding configuration.
type EmbeddingConfig struct {
	Provider    string `yaml:"provider"` // "huggingface", "openai", "ollama", "mock"
	Model       string `yaml:"model"`
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"` // Environment variable for API key
	Dimension   int    `yaml:"dimension"`   // 0 = learn from first response
	BatchSize   int    `yaml:"batch_size"`
	QueryPrefix string `yaml:"query_prefix"`
	TEI         bool   `yaml:"tei"` // Text Embeddings Inference server instead of the hosted Inference API
}

// LLMConfig describes the language model runtime.
type LLMConfig struct {
	Provider      string  `yaml:"provider"` // "openai", "ollama", "mock"
	Model         string  `yaml:"model"`
	BaseURL       string  `yaml:"base_url"`
	APIKeyEnv     string  `yaml:"api_key_env"`
	ContextWindow int     `yaml:"context_window"`
	MaxNewTokens  int     `yaml:"max_new_tokens"`
	Temperature   float64 `yaml:"temperature"`
	TimeoutSec    int     `yaml:"timeout_sec"`
}

// PromptConfig holds the prompt templates.
type PromptConfig struct {
	SystemPrompt string `yaml:"system_prompt"`
	QueryWrapper string `yaml:"query_wrapper"`
	QATemplate   string `yaml:"qa_template"` // empty = built-in text QA template
}

// QueryConfig holds retrieval and query loop configuration.
type QueryConfig struct {
	TopK             int     `yaml:"top_k"`
	SimilarityCutoff float64 `yaml:"similarity_cutoff"` // 0 = disabled
	MMR              bool    `yaml:"mmr"`
	MMRLambda        float64 `yaml:"mmr_lambda"`
	DedupJaccard     float64 `yaml:"dedup_jaccard"`
	InitialQuestion  string  `yaml:"initial_question"`
	Interactive      bool    `yaml:"interactive"`
	ExitSequence     string  `yaml:"exit_sequence"`
	Verbose          bool    `yaml:"verbose"`
	CacheSize        int     `yaml:"cache_size"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text", "json"
}

// DefaultConfig returns the default configuration (the bitcoinbook profile).
func DefaultConfig() *Config {
	return &Config{
		Profile: ProfileBitcoinBook,
		Corpus: CorpusConfig{
			Dir:      "./data/bitcoinbook/",
			Includes: []string{"**/*"},
			Excludes: []string{"**/.git/**", "**/images/**", "**/*.png", "**/*.jpg", "**/*.svg"},
		},
		Index: IndexConfig{
			Splitter:     "sentence",
			ChunkSize:    1024,
			ChunkOverlap: 20,
			Encoding:     "cl100k_base",
		},
		Store: StoreConfig{
			Backend:    "bolt",
			PersistDir: "./storage/cache/bitcoinbook/",
			Collection: "bitcoinbook",
		},
		Embedding: EmbeddingConfig{
			Provider:    "huggingface",
			Model:       "BAAI/bge-small-en",
			BaseURL:     "http://localhost:8080",
			APIKeyEnv:   "HUGGINGFACE_API_KEY",
			Dimension:   384,
			BatchSize:   32,
			QueryPrefix: "Represent this sentence for searching relevant passages: ",
			TEI:         true,
		},
		LLM: LLMConfig{
			Provider:      "openai",
			Model:         Llama2_7BChat,
			BaseURL:       "http://localhost:5000/v1",
			APIKeyEnv:     "OPENAI_API_KEY",
			ContextWindow: 4096,
			MaxNewTokens:  2048,
			Temperature:   0.0,
			TimeoutSec:    600,
		},
		Prompt: PromptConfig{
			SystemPrompt: SystemPrompt,
			QueryWrapper: QueryWrapper,
		},
		Query: QueryConfig{
			TopK:            2,
			MMRLambda:       0.7,
			DedupJaccard:    0.8,
			InitialQuestion: "What is the purpose of BIP39?",
			Interactive:     true,
			ExitSequence:    "\x1b",
			Verbose:         true,
			CacheSize:       64,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from a YAML file.
// The profile named in the file (if any) provides the defaults the file overlays.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil // Return defaults if no config file
		}
		return nil, err
	}

	var head struct {
		Profile string `yaml:"profile"`
	}
	if err := yaml.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if head.Profile != "" {
		cfg, err = Profile(head.Profile)
		if err != nil {
			return nil, err
		}
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	return cfg, nil
}

// LoadFromDir loads configuration from a directory (looks for docqa.yaml).
func LoadFromDir(dir string) (*Config, error) {
	// Try docqa.yaml in the directory
	path := filepath.Join(dir, "docqa.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	// Try .docqa/config.yaml
	path = filepath.Join(dir, ".docqa", "config.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	// Return defaults
	return DefaultConfig(), nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate checks the settings the pipeline cannot run without.
func (c *Config) Validate() error {
	if c.Index.ChunkSize <= 0 {
		return fmt.Errorf("index.chunk_size must be positive, got %d", c.Index.ChunkSize)
	}
	if c.Index.ChunkOverlap < 0 || c.Index.ChunkOverlap >= c.Index.ChunkSize {
		return fmt.Errorf("index.chunk_overlap must be in [0, %d), got %d", c.Index.ChunkSize, c.Index.ChunkOverlap)
	}
	switch c.Index.Splitter {
	case "sentence", "line":
	default:
		return fmt.Errorf("unknown index.splitter %q", c.Index.Splitter)
	}
	switch c.Store.Backend {
	case "bolt", "chroma":
		if c.Store.PersistDir == "" {
			return fmt.Errorf("store.persist_dir is required for backend %q", c.Store.Backend)
		}
	case "memory":
	default:
		return fmt.Errorf("unknown store.backend %q", c.Store.Backend)
	}
	switch c.Embedding.Provider {
	case "huggingface", "openai", "ollama", "mock":
	default:
		return fmt.Errorf("unsupported embedding provider: %s", c.Embedding.Provider)
	}
	switch c.LLM.Provider {
	case "openai", "ollama", "mock":
	default:
		return fmt.Errorf("unsupported llm provider: %s", c.LLM.Provider)
	}
	if c.LLM.MaxNewTokens <= 0 || c.LLM.MaxNewTokens >= c.LLM.ContextWindow {
		return fmt.Errorf("llm.max_new_tokens (%d) must be positive and below llm.context_window (%d)", c.LLM.MaxNewTokens, c.LLM.ContextWindow)
	}
	if c.Query.TopK <= 0 {
		return fmt.Errorf("query.top_k must be positive, got %d", c.Query.TopK)
	}
	return nil
}

// IndexDBPath returns the path to the bolt catalog of the index.
func IndexDBPath(cfg *Config) string {
	return filepath.Join(cfg.Store.PersistDir, "index.db")
}

// EnsureDir ensures the persist directory exists.
func EnsureDir(dir string) error {
	return os.MkdirAll(dir, 0755)
}
