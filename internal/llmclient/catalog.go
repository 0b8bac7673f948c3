package llmclient

import (
	"context"
	"strings"
)

type ModelLevel string

const (
	ModelLevelLow    ModelLevel = "low"
	ModelLevelMiddle ModelLevel = "middle"
	ModelLevelHigh   ModelLevel = "high"
	ModelLevelXHigh  ModelLevel = "xhigh"
)

type ClientFactory func(ctx context.Context, tokenCap int) (LLMClient, error)

type RateLimitConfig struct {
	RPM   int     `yaml:"rpm" json:"rpm,omitempty"`
	RPD   int     `yaml:"rpd" json:"rpd,omitempty"`
	TPM   int     `yaml:"tpm" json:"tpm,omitempty"`
	RPS   float64 `yaml:"rps" json:"rps,omitempty"`
	Burst int     `yaml:"burst" json:"burst,omitempty"`
}

type ModelRegistration struct {
	Provider  string
	Tier      string
	Model     string
	Level     ModelLevel
	MaxTokens int
	RateLimit *RateLimitConfig
	Factory   ClientFactory
}

type ModelRegistrar interface {
	RegisterModel(spec ModelRegistration) error
}

// ModelDescriptor is the diagnostic view of a registered model.
type ModelDescriptor struct {
	Provider  string           `json:"provider"`
	Model     string           `json:"model"`
	Tier      string           `json:"tier,omitempty"`
	Levels    []ModelLevel     `json:"levels"`
	MaxTokens int              `json:"maxTokens"`
	RateLimit *RateLimitConfig `json:"rateLimit,omitempty"`
}

// ProviderOptions carries the per-provider settings a factory needs.
type ProviderOptions struct {
	APIKey  string
	Tier    string
	BaseURL string
}

func normalizeTier(tier, fallback string) string {
	t := strings.ToLower(strings.TrimSpace(tier))
	if t == "" {
		return strings.ToLower(strings.TrimSpace(fallback))
	}
	return t
}
