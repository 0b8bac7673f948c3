package llm

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"ultraflow/internal/llmclient"
)

// CatalogFile is the on-disk shape of model overrides:
//
//	models:
//	  - provider: groq
//	    model: llama-3.3-70b-versatile
//	    default_for: [middle]
//	    max_tokens: 8000
//	    rate_limit: {rpm: 20, tpm: 9000}
type CatalogFile struct {
	Models []CatalogOverride `yaml:"models"`
}

type CatalogOverride struct {
	Provider   string                     `yaml:"provider"`
	Model      string                     `yaml:"model"`
	DefaultFor []llmclient.ModelLevel     `yaml:"default_for"`
	MaxTokens  int                        `yaml:"max_tokens"`
	RateLimit  *llmclient.RateLimitConfig `yaml:"rate_limit"`
}

// LoadCatalogFile reads a YAML override file. An empty path yields an empty file.
func LoadCatalogFile(path string) (CatalogFile, error) {
	var out CatalogFile
	if strings.TrimSpace(path) == "" {
		return out, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return out, fmt.Errorf("read model catalog: %w", err)
	}
	if err := yaml.Unmarshal(b, &out); err != nil {
		return out, fmt.Errorf("parse model catalog %s: %w", path, err)
	}
	return out, nil
}

// ApplyOverrides updates registered models in place. Unknown models are an
// error so typos in the file surface at startup.
func (r *InMemoryModelRegistry) ApplyOverrides(file CatalogFile) error {
	for _, o := range file.Models {
		k := keyFor(o.Provider, o.Model)
		r.mu.Lock()
		m, ok := r.models[k]
		if ok {
			if o.MaxTokens > 0 {
				m.Profile.MaxTokens = o.MaxTokens
			}
			if o.RateLimit != nil {
				rl := *o.RateLimit
				m.Profile.RateLimit = &rl
			}
		}
		r.mu.Unlock()
		if !ok {
			return fmt.Errorf("%w: provider=%s model=%s", ErrModelNotRegistered, o.Provider, o.Model)
		}
		for _, level := range o.DefaultFor {
			if err := r.SetDefault(o.Provider, level, o.Model); err != nil {
				return err
			}
		}
	}
	return nil
}
