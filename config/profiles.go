package config

import (
	"fmt"
	"sort"
	"strings"
)

// Built-in profile names.
const (
	ProfileBitcoinBook       = "bitcoinbook"
	ProfileBitcoinBookChroma = "bitcoinbook-chroma"
	ProfilePaulGraham        = "paul_graham"
)

var profiles = map[string]func() *Config{
	ProfileBitcoinBook: DefaultConfig,
	ProfileBitcoinBookChroma: func() *Config {
		cfg := DefaultConfig()
		cfg.Profile = ProfileBitcoinBookChroma
		cfg.Store.Backend = "chroma"
		cfg.Store.PersistDir = "./storage/chroma"
		cfg.Store.Collection = "bitcoinbook"
		cfg.Embedding.Model = "sentence-transformers/all-mpnet-base-v2"
		cfg.Embedding.Dimension = 768
		cfg.Embedding.QueryPrefix = ""
		return cfg
	},
	ProfilePaulGraham: func() *Config {
		cfg := DefaultConfig()
		cfg.Profile = ProfilePaulGraham
		cfg.Corpus.Dir = "./data/paul_graham/"
		cfg.Store.Backend = "memory"
		cfg.Store.PersistDir = ""
		cfg.Store.Collection = "paul_graham"
		cfg.Query.InitialQuestion = "What did the author do growing up?"
		cfg.Query.Interactive = false
		return cfg
	},
}

// Profile returns a fresh copy of the named built-in profile.
func Profile(name string) (*Config, error) {
	mk, ok := profiles[name]
	if !ok {
		return nil, fmt.Errorf("unknown profile %q (available: %s)", name, strings.Join(ProfileNames(), ", "))
	}
	return mk(), nil
}

// ProfileNames lists the built-in profiles, sorted.
func ProfileNames() []string {
	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ApplyEnv overrides fields from DOCQA_* environment variables.
// lookup is usually os.LookupEnv. A DOCQA_PROFILE switch replaces cfg
// with the named profile before the remaining overrides apply.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) (*Config, error) {
	if v, ok := lookup("DOCQA_PROFILE"); ok && v != "" && v != cfg.Profile {
		p, err := Profile(v)
		if err != nil {
			return nil, err
		}
		cfg = p
	}
	if v, ok := lookup("DOCQA_LLM_BASE_URL"); ok && v != "" {
		cfg.LLM.BaseURL = v
	}
	if v, ok := lookup("DOCQA_LLM_MODEL"); ok && v != "" {
		cfg.LLM.Model = v
	}
	if v, ok := lookup("DOCQA_EMBED_BASE_URL"); ok && v != "" {
		cfg.Embedding.BaseURL = v
	}
	if v, ok := lookup("DOCQA_EMBED_MODEL"); ok && v != "" {
		cfg.Embedding.Model = v
	}
	if v, ok := lookup("DOCQA_LOG_LEVEL"); ok && v != "" {
		cfg.Logging.Level = v
	}
	return cfg, nil
}
