// Package aiengine is the provider-agnostic entry point for text generation.
// Callers hand it a prompt and get back text or a classified *Error; which
// backend answers is decided by configuration and the model registry.
package aiengine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	"ultraflow/internal/llm"
	"ultraflow/internal/llmclient"
)

const (
	DefaultTimeout    = 45 * time.Second
	defaultCatalogTTL = 10 * time.Minute
	defaultRetryDelay = 500 * time.Millisecond
)

// Registry builds backend clients and lists the models a provider offers.
type Registry interface {
	BuildClient(ctx context.Context, provider string, level llmclient.ModelLevel, model string, tokenCap int) (llmclient.LLMClient, llm.ModelProfile, error)
	Descriptors(provider string) ([]llmclient.ModelDescriptor, error)
}

type Config struct {
	Provider string
	Model    string
	Level    llmclient.ModelLevel
	Timeout  time.Duration

	// MaxAttempts above 1 enables the Retry middleware.
	MaxAttempts int
	RetryDelay  time.Duration
	// Breaker enables the circuit breaker when non-nil.
	Breaker *llm.BreakerConfig
	// RPS above 0 adds a process-wide limiter on top of the per-model limits.
	RPS   float64
	Burst int

	CatalogSize int
	CatalogTTL  time.Duration
}

// Answer is a successful generation.
type Answer struct {
	Text     string
	Provider string
	Model    string
}

type Option func(*Engine)

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithRecorder reports every backend call, typically to the Prometheus collector.
func WithRecorder(r llm.CallRecorder) Option {
	return func(e *Engine) { e.recorder = r }
}

type boundClient struct {
	cli     llmclient.LLMClient
	profile llm.ModelProfile
}

// Engine is safe for concurrent use. Its only mutable state is the set of
// built clients and the catalog cache, neither of which holds request data.
type Engine struct {
	reg      Registry
	cfg      Config
	logger   *zap.Logger
	recorder llm.CallRecorder

	mu      sync.Mutex
	clients map[string]*boundClient
	models  *expirable.LRU[string, []llmclient.ModelDescriptor]
}

// New builds the engine and its default client so configuration problems
// surface at startup instead of on the first request.
func New(ctx context.Context, reg Registry, cfg Config, opts ...Option) (*Engine, error) {
	if reg == nil {
		return nil, &Error{Kind: KindConfig, Msg: "model registry is required"}
	}
	cfg.Provider = strings.ToLower(strings.TrimSpace(cfg.Provider))
	if cfg.Provider == "" {
		return nil, &Error{Kind: KindConfig, Msg: "provider is required"}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Level == "" {
		cfg.Level = llmclient.ModelLevelMiddle
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultRetryDelay
	}
	if cfg.CatalogSize <= 0 {
		cfg.CatalogSize = 16
	}
	if cfg.CatalogTTL <= 0 {
		cfg.CatalogTTL = defaultCatalogTTL
	}

	e := &Engine{
		reg:     reg,
		cfg:     cfg,
		logger:  zap.NewNop(),
		clients: map[string]*boundClient{},
		models:  expirable.NewLRU[string, []llmclient.ModelDescriptor](cfg.CatalogSize, nil, cfg.CatalogTTL),
	}
	for _, o := range opts {
		o(e)
	}
	if _, err := e.client(ctx, cfg.Provider, cfg.Model); err != nil {
		return nil, err
	}
	return e, nil
}

// DefaultModel reports the provider and model used when Ask gets no override.
func (e *Engine) DefaultModel() (provider, model string) {
	bc, err := e.client(context.Background(), e.cfg.Provider, e.cfg.Model)
	if err != nil {
		return e.cfg.Provider, e.cfg.Model
	}
	return bc.profile.Provider, bc.profile.Model
}

// Ask performs exactly one backend call bounded by the configured timeout.
func (e *Engine) Ask(ctx context.Context, prompt string, opts ...AskOption) (Answer, error) {
	if strings.TrimSpace(prompt) == "" {
		return Answer{}, &Error{Kind: KindInvalidInput, Msg: "prompt must not be empty"}
	}
	var o askOptions
	for _, opt := range opts {
		opt(&o)
	}
	provider, model := e.cfg.Provider, e.cfg.Model
	if p := strings.TrimSpace(o.provider); p != "" {
		provider = strings.ToLower(p)
		model = ""
	}
	if m := strings.TrimSpace(o.model); m != "" {
		model = m
	}

	bc, err := e.client(ctx, provider, model)
	if err != nil {
		return Answer{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	text, err := bc.cli.Generate(ctx, llmclient.Request{
		Prompt:      prompt,
		System:      o.system,
		History:     o.history,
		Temperature: o.temperature,
		JSON:        o.json,
		Schema:      o.schema,
	})
	if err != nil {
		return Answer{}, classify(err, bc.profile.Provider, bc.profile.Model)
	}
	if strings.TrimSpace(text) == "" {
		return Answer{}, &Error{Kind: KindMalformed, Provider: bc.profile.Provider, Model: bc.profile.Model, Msg: "backend returned no text", Err: llmclient.ErrEmptyResponse}
	}
	return Answer{Text: text, Provider: bc.profile.Provider, Model: bc.profile.Model}, nil
}

// ModelsForProvider lists the models registered for provider. Results are
// cached for the configured TTL.
func (e *Engine) ModelsForProvider(provider string) ([]llmclient.ModelDescriptor, error) {
	key := strings.ToLower(strings.TrimSpace(provider))
	if key == "" {
		return nil, &Error{Kind: KindInvalidInput, Msg: "provider must not be empty"}
	}
	if cached, ok := e.models.Get(key); ok {
		return cached, nil
	}
	ds, err := e.reg.Descriptors(key)
	if err != nil {
		return nil, &Error{Kind: KindConfig, Provider: key, Msg: "unknown provider", Err: err}
	}
	e.models.Add(key, ds)
	return ds, nil
}

// Close releases every client the engine built.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	var errs []error
	for k, bc := range e.clients {
		if err := bc.cli.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(e.clients, k)
	}
	return errors.Join(errs...)
}

func (e *Engine) client(ctx context.Context, provider, model string) (*boundClient, error) {
	key := provider + "::" + model
	e.mu.Lock()
	defer e.mu.Unlock()
	if bc, ok := e.clients[key]; ok {
		return bc, nil
	}

	cli, profile, err := e.reg.BuildClient(ctx, provider, e.cfg.Level, model, 0)
	if err != nil {
		if errors.Is(err, llmclient.ErrMissingAPIKey) {
			return nil, &Error{Kind: KindConfig, Provider: provider, Model: model, Msg: "backend credentials are not configured", Err: err}
		}
		return nil, &Error{Kind: KindConfig, Provider: provider, Model: model, Msg: "no usable model", Err: err}
	}

	mws := []llm.Middleware{llm.WithMetrics(e.recorder), llm.WithLogging(e.logger)}
	if e.cfg.MaxAttempts > 1 {
		mws = append(mws, llm.Retry(e.cfg.MaxAttempts, e.cfg.RetryDelay))
	}
	if e.cfg.Breaker != nil {
		bcfg := *e.cfg.Breaker
		bcfg.Logger = e.logger
		if bcfg.Name == "" {
			bcfg.Name = profile.Name
		}
		mws = append(mws, llm.CircuitBreaker(bcfg))
	}
	if e.cfg.RPS > 0 {
		mws = append(mws, llm.RateLimit(e.cfg.RPS, e.cfg.Burst))
	}

	bc := &boundClient{cli: llm.Wrap(cli, mws...), profile: profile}
	e.clients[key] = bc
	e.logger.Info("llm client ready",
		zap.String("provider", profile.Provider),
		zap.String("model", profile.Model),
		zap.Int("max_tokens", profile.MaxTokens))
	return bc, nil
}
