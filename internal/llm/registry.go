package llm

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"ultraflow/internal/llmclient"
)

var (
	ErrModelNotRegistered = errors.New("llm model is not registered")
	ErrProviderUnknown    = errors.New("llm provider is not registered")
	ErrModelLevelRequired = errors.New("llm model level is required")
)

// ModelProfile describes a registered model.
type ModelProfile struct {
	Provider  string
	Tier      string
	Model     string
	Name      string
	Levels    []llmclient.ModelLevel
	MaxTokens int
	RateLimit *llmclient.RateLimitConfig
}

// RegisteredModel pairs a profile with its factory.
type RegisteredModel struct {
	Profile ModelProfile
	Factory llmclient.ClientFactory
}

// InMemoryModelRegistry stores model registrations in memory. It implements
// llmclient.ModelRegistrar so provider packages can register into it.
type InMemoryModelRegistry struct {
	mu       sync.RWMutex
	models   map[string]*RegisteredModel
	order    []string
	defaults map[string]map[llmclient.ModelLevel]string
}

func NewInMemoryModelRegistry() *InMemoryModelRegistry {
	return &InMemoryModelRegistry{
		models:   map[string]*RegisteredModel{},
		defaults: map[string]map[llmclient.ModelLevel]string{},
	}
}

func normalizeProvider(provider string) string {
	return strings.ToLower(strings.TrimSpace(provider))
}

func normalizeLevel(level llmclient.ModelLevel) llmclient.ModelLevel {
	switch llmclient.ModelLevel(strings.ToLower(string(level))) {
	case llmclient.ModelLevelLow:
		return llmclient.ModelLevelLow
	case llmclient.ModelLevelMiddle:
		return llmclient.ModelLevelMiddle
	case llmclient.ModelLevelHigh:
		return llmclient.ModelLevelHigh
	case llmclient.ModelLevelXHigh:
		return llmclient.ModelLevelXHigh
	default:
		return ""
	}
}

func keyFor(provider, model string) string {
	return normalizeProvider(provider) + "::" + strings.TrimSpace(model)
}

// RegisterModel adds a model. Registering the same provider/model again adds
// the level to the existing entry; the first registration wins for the
// factory and limits.
func (r *InMemoryModelRegistry) RegisterModel(spec llmclient.ModelRegistration) error {
	if spec.Factory == nil {
		return fmt.Errorf("register model: factory is nil")
	}
	level := normalizeLevel(spec.Level)
	if level == "" {
		return fmt.Errorf("register model: invalid level %q", spec.Level)
	}
	provider := normalizeProvider(spec.Provider)
	model := strings.TrimSpace(spec.Model)
	if provider == "" || model == "" {
		return fmt.Errorf("register model: provider and model are required")
	}

	k := keyFor(provider, model)
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.models[k]; ok {
		for _, l := range existing.Profile.Levels {
			if l == level {
				return nil
			}
		}
		existing.Profile.Levels = append(existing.Profile.Levels, level)
		return nil
	}
	r.models[k] = &RegisteredModel{
		Profile: ModelProfile{
			Provider:  provider,
			Tier:      strings.TrimSpace(spec.Tier),
			Model:     model,
			Name:      provider + ":" + model,
			Levels:    []llmclient.ModelLevel{level},
			MaxTokens: spec.MaxTokens,
			RateLimit: spec.RateLimit,
		},
		Factory: spec.Factory,
	}
	r.order = append(r.order, k)
	return nil
}

// SetDefault pins the model used for provider at level.
func (r *InMemoryModelRegistry) SetDefault(provider string, level llmclient.ModelLevel, model string) error {
	level = normalizeLevel(level)
	if level == "" {
		return ErrModelLevelRequired
	}
	provider = normalizeProvider(provider)
	k := keyFor(provider, model)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.models[k]; !ok {
		return fmt.Errorf("%w: provider=%s model=%s", ErrModelNotRegistered, provider, model)
	}
	bucket, ok := r.defaults[provider]
	if !ok {
		bucket = map[llmclient.ModelLevel]string{}
		r.defaults[provider] = bucket
	}
	bucket[level] = k
	return nil
}

// Resolve picks a model. An explicit model must be registered under provider;
// otherwise the provider's default for level is used, then the first model
// registered at that level.
func (r *InMemoryModelRegistry) Resolve(provider string, level llmclient.ModelLevel, model string) (RegisteredModel, error) {
	provider = normalizeProvider(provider)
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.hasProviderLocked(provider) {
		return RegisteredModel{}, fmt.Errorf("%w: %q", ErrProviderUnknown, provider)
	}
	if strings.TrimSpace(model) != "" {
		if m, ok := r.models[keyFor(provider, model)]; ok {
			return *m, nil
		}
		return RegisteredModel{}, fmt.Errorf("%w: provider=%s model=%s", ErrModelNotRegistered, provider, model)
	}

	level = normalizeLevel(level)
	if level == "" {
		level = llmclient.ModelLevelMiddle
	}
	if k := r.defaults[provider][level]; k != "" {
		if m, ok := r.models[k]; ok {
			return *m, nil
		}
	}
	for _, k := range r.order {
		m := r.models[k]
		if m.Profile.Provider != provider {
			continue
		}
		for _, l := range m.Profile.Levels {
			if l == level {
				return *m, nil
			}
		}
	}
	return RegisteredModel{}, fmt.Errorf("%w: provider=%s level=%s", ErrModelNotRegistered, provider, level)
}

func (r *InMemoryModelRegistry) hasProviderLocked(provider string) bool {
	for _, k := range r.order {
		if r.models[k].Profile.Provider == provider {
			return true
		}
	}
	return false
}

// Providers lists registered providers in sorted order.
func (r *InMemoryModelRegistry) Providers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := map[string]struct{}{}
	var out []string
	for _, k := range r.order {
		p := r.models[k].Profile.Provider
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Descriptors returns the catalog for provider in registration order.
func (r *InMemoryModelRegistry) Descriptors(provider string) ([]llmclient.ModelDescriptor, error) {
	provider = normalizeProvider(provider)
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.hasProviderLocked(provider) {
		return nil, fmt.Errorf("%w: %q", ErrProviderUnknown, provider)
	}
	var out []llmclient.ModelDescriptor
	for _, k := range r.order {
		p := r.models[k].Profile
		if p.Provider != provider {
			continue
		}
		levels := make([]llmclient.ModelLevel, len(p.Levels))
		copy(levels, p.Levels)
		out = append(out, llmclient.ModelDescriptor{
			Provider:  p.Provider,
			Model:     p.Model,
			Tier:      p.Tier,
			Levels:    levels,
			MaxTokens: p.MaxTokens,
			RateLimit: p.RateLimit,
		})
	}
	return out, nil
}

// BuildClient creates a client for the resolved model with header backoff and
// its configured rate limits applied.
func (r *InMemoryModelRegistry) BuildClient(
	ctx context.Context,
	provider string,
	level llmclient.ModelLevel,
	model string,
	tokenCap int,
) (llmclient.LLMClient, ModelProfile, error) {
	entry, err := r.Resolve(provider, level, model)
	if err != nil {
		return nil, ModelProfile{}, err
	}
	cli, err := entry.Factory(ctx, tokenCap)
	if err != nil {
		return nil, ModelProfile{}, err
	}
	cli = HeaderBackoff()(cli)
	if rl := entry.Profile.RateLimit; rl != nil {
		if rl.RPM > 0 || rl.RPD > 0 || rl.TPM > 0 {
			cli = MultiLimit(rl.RPM, rl.RPD, rl.TPM)(cli)
		}
		if rl.RPS > 0 {
			cli = RateLimit(rl.RPS, rl.Burst)(cli)
		}
	}
	return cli, entry.Profile, nil
}
