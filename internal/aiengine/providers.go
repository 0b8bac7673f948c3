package aiengine

import (
	"fmt"

	"ultraflow/internal/llm"
	"ultraflow/internal/llmclient"
)

// ProviderSettings holds credentials and catalog options for every backend.
type ProviderSettings struct {
	Gemini     llmclient.ProviderOptions
	Groq       llmclient.ProviderOptions
	ModelsFile string
}

// BuildRegistry registers every known backend and applies catalog overrides.
// Backends without credentials are still listed; building one of their
// clients fails with a config error.
func BuildRegistry(s ProviderSettings) (*llm.InMemoryModelRegistry, error) {
	reg := llm.NewInMemoryModelRegistry()
	if err := llmclient.RegisterGeminiModels(reg, s.Gemini); err != nil {
		return nil, fmt.Errorf("register gemini models: %w", err)
	}
	if err := llmclient.RegisterGroqModels(reg, s.Groq); err != nil {
		return nil, fmt.Errorf("register groq models: %w", err)
	}
	if err := llmclient.RegisterFakeModels(reg); err != nil {
		return nil, fmt.Errorf("register fake models: %w", err)
	}
	file, err := llm.LoadCatalogFile(s.ModelsFile)
	if err != nil {
		return nil, err
	}
	if err := reg.ApplyOverrides(file); err != nil {
		return nil, fmt.Errorf("apply model overrides: %w", err)
	}
	return reg, nil
}
